package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad(t *testing.T) {
	content := `
server:
  host: 0.0.0.0
  port: 9999
providers:
  claude:
    apiKeyEnv: ANTHROPIC_API_KEY
agents:
  assistant:
    persona:
      name: Assistant
      systemPrompt: be helpful
    model:
      provider: claude
      modelId: claude-sonnet-4-6
    generation:
      temperature: 0.7
      maxOutputTokens: 2048
`
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "test-key-123")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("expected host 0.0.0.0, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("expected port 9999, got %d", cfg.Server.Port)
	}

	p, ok := cfg.Providers["claude"]
	if !ok {
		t.Fatal("expected claude provider")
	}
	if p.APIKeyEnv != "ANTHROPIC_API_KEY" {
		t.Errorf("expected apiKeyEnv ANTHROPIC_API_KEY, got %s", p.APIKeyEnv)
	}

	a, ok := cfg.Agents["assistant"]
	if !ok {
		t.Fatal("expected assistant agent")
	}
	if a.Persona.SystemPrompt != "be helpful" {
		t.Errorf("expected systemPrompt 'be helpful', got %s", a.Persona.SystemPrompt)
	}
	if a.Generation.MaxOutputTokens != 2048 {
		t.Errorf("expected maxOutputTokens 2048, got %d", a.Generation.MaxOutputTokens)
	}

	key, err := cfg.ResolveAPIKey("claude")
	if err != nil {
		t.Fatal(err)
	}
	if key != "test-key-123" {
		t.Errorf("expected resolved api key test-key-123, got %s", key)
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("expected default host 127.0.0.1, got %s", cfg.Server.Host)
	}
	if cfg.Server.Port != 18420 {
		t.Errorf("expected default port 18420, got %d", cfg.Server.Port)
	}
}

func TestLoadDefaults_AgentMaxOutputTokens(t *testing.T) {
	content := `
agents:
  assistant:
    persona:
      name: Assistant
      systemPrompt: be helpful
    model:
      provider: claude
      modelId: claude-sonnet-4-6
`
	dir := t.TempDir()
	path := filepath.Join(dir, "agent.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Agents["assistant"].Generation.MaxOutputTokens != 4096 {
		t.Errorf("expected default maxOutputTokens 4096, got %d", cfg.Agents["assistant"].Generation.MaxOutputTokens)
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("TEST_KEY", "my-secret")
	result := expandEnvTemplates(`key: ${{ .Env.TEST_KEY }}`)
	expected := `key: my-secret`
	if result != expected {
		t.Errorf("expected %s, got %s", expected, result)
	}
}

func TestResolveAPIKey_MissingEnvVar(t *testing.T) {
	cfg := &Config{Providers: map[string]ProviderConfig{"claude": {APIKeyEnv: "UNSET_VAR_XYZ"}}}
	os.Unsetenv("UNSET_VAR_XYZ")
	if _, err := cfg.ResolveAPIKey("claude"); err == nil {
		t.Error("expected error for unset env var")
	}
}

func TestResolveAPIKey_UnknownProvider(t *testing.T) {
	cfg := &Config{Providers: map[string]ProviderConfig{}}
	if _, err := cfg.ResolveAPIKey("missing"); err == nil {
		t.Error("expected error for unknown provider")
	}
}
