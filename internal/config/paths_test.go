package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAgentHome_Default(t *testing.T) {
	t.Setenv("AGENTRT_HOME", "")

	home, err := os.UserHomeDir()
	if err != nil {
		t.Fatal(err)
	}

	got := AgentHome()
	want := filepath.Join(home, ".agentrt")
	if got != want {
		t.Errorf("AgentHome() = %q, want %q", got, want)
	}
}

func TestAgentHome_EnvOverride(t *testing.T) {
	t.Setenv("AGENTRT_HOME", "/tmp/custom-agentrt")

	got := AgentHome()
	want := "/tmp/custom-agentrt"
	if got != want {
		t.Errorf("AgentHome() = %q, want %q", got, want)
	}
}

func TestConfigPath(t *testing.T) {
	t.Setenv("AGENTRT_HOME", "/tmp/test-agentrt")

	got := ConfigPath()
	want := "/tmp/test-agentrt/agent.yaml"
	if got != want {
		t.Errorf("ConfigPath() = %q, want %q", got, want)
	}
}

func TestDotenvPath(t *testing.T) {
	t.Setenv("AGENTRT_HOME", "/tmp/test-agentrt")

	got := DotenvPath()
	want := "/tmp/test-agentrt/.env"
	if got != want {
		t.Errorf("DotenvPath() = %q, want %q", got, want)
	}
}
