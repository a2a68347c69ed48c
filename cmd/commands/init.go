package commands

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/agentrt/internal/config"
)

const starterConfigTemplate = `server:
  host: 127.0.0.1
  port: 18420

providers:
  anthropic:
    apiKeyEnv: ANTHROPIC_API_KEY

agents:
  default:
    persona:
      name: default
      systemPrompt: You are a helpful personal assistant.
    model:
      provider: anthropic
      modelId: claude-sonnet-4-6
    generation:
      temperature: 1.0
      maxOutputTokens: 4096
`

// NewInitCommand returns the init subcommand, which bootstraps
// $AGENTRT_HOME with a starter agent.yaml.
func NewInitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Write a starter agent.yaml",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "force", Usage: "Overwrite an existing agent.yaml"},
		},
		Action: func(_ context.Context, cmd *cli.Command) error { return runInit(cmd) },
	}
}

func runInit(cmd *cli.Command) error {
	path := cmd.String("config")
	if path == "" {
		path = config.ConfigPath()
	}

	if _, err := os.Stat(path); err == nil && !cmd.Bool("force") {
		return fmt.Errorf("%s already exists; pass --force to overwrite", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(starterConfigTemplate), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	fmt.Printf("wrote %s\n", path)
	return nil
}
