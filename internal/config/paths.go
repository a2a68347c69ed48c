package config

import (
	"os"
	"path/filepath"
)

// AgentHome returns the root directory for runtime data. It uses
// $AGENTRT_HOME if set, otherwise defaults to ~/.agentrt.
func AgentHome() string {
	if v := os.Getenv("AGENTRT_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".agentrt")
	}
	return filepath.Join(home, ".agentrt")
}

// ConfigPath returns the path to the agent.yaml config file.
func ConfigPath() string {
	return filepath.Join(AgentHome(), "agent.yaml")
}

// DotenvPath returns the path to the runtime's .env file.
func DotenvPath() string {
	return filepath.Join(AgentHome(), ".env")
}
