package commands

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/dohr-michael/agentrt/internal/config"
	"github.com/dohr-michael/agentrt/internal/storage"
	"github.com/dohr-michael/agentrt/internal/workflow"
)

// NewChatCommand returns the chat subcommand: a local REPL that dispatches
// turns through the same channel facade the gateway serves over HTTP,
// without going through the network.
func NewChatCommand() *cli.Command {
	return &cli.Command{
		Name:  "chat",
		Usage: "Chat with an agent in a local terminal session",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "agent", Usage: "Agent ID to talk to (required)"},
			&cli.StringFlag{Name: "channel", Usage: "Channel ID to reuse across runs"},
		},
		Action: runChat,
	}
}

func runChat(ctx context.Context, cmd *cli.Command) error {
	agentID := cmd.String("agent")
	if agentID == "" {
		return fmt.Errorf("--agent is required")
	}
	channelID := cmd.String("channel")
	if channelID == "" {
		channelID = "chat:" + uuid.NewString()
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	rt, err := buildRuntime(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}
	defer rt.Close()

	if err := rt.facade.CreateChannel(ctx, channelID, storage.ChannelCLI, agentID); err != nil {
		return fmt.Errorf("create channel: %w", err)
	}

	fmt.Printf("chatting with %s on channel %s (ctrl-d to exit)\n", agentID, channelID)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		stream, err := rt.facade.SendMessage(ctx, channelID, line)
		if err != nil {
			slog.Error("send message", "error", err)
			continue
		}
		for ev := range stream {
			printChatEvent(ev.Name, ev.Payload)
		}
	}
}

func printChatEvent(name string, payload any) {
	switch name {
	case "assistant.delta":
		if p, ok := payload.(workflow.AssistantDeltaPayload); ok {
			fmt.Print(p.Text)
		}
	case "tool.call":
		if p, ok := payload.(workflow.ToolCallPayload); ok {
			fmt.Printf("\n[calling %s]\n", p.ToolName)
		}
	case "turn.completed":
		fmt.Println()
	case "turn.failed":
		if p, ok := payload.(workflow.TurnFailedPayload); ok {
			fmt.Printf("\n[error] %s: %s\n", p.ErrorCode, p.Message)
		}
	}
}
