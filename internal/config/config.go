package config

// Config is the root configuration for the personal-agent runtime, loaded
// from an agent.yaml file (see spec.md §6).
type Config struct {
	Server    ServerConfig              `yaml:"server"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Agents    map[string]AgentConfig    `yaml:"agents"`
}

// ServerConfig holds the gateway server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ProviderConfig configures a single LLM provider's connection details.
// The API key itself is never inlined in the file; APIKeyEnv names the
// environment variable it is read from at resolve time.
type ProviderConfig struct {
	APIKeyEnv string `yaml:"apiKeyEnv"`
	APIURL    string `yaml:"apiUrl,omitempty"`
}

// AgentConfig holds one agent's persona, model binding, and generation
// parameters.
type AgentConfig struct {
	Persona    PersonaConfig    `yaml:"persona"`
	Model      ModelConfig      `yaml:"model"`
	Generation GenerationConfig `yaml:"generation"`
}

// PersonaConfig names the agent and carries its system prompt.
type PersonaConfig struct {
	Name         string `yaml:"name"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// ModelConfig binds an agent to a provider and model ID.
type ModelConfig struct {
	Provider string `yaml:"provider"`
	ModelID  string `yaml:"modelId"`
}

// GenerationConfig holds the sampling parameters passed to the provider on
// every turn.
type GenerationConfig struct {
	Temperature     float64  `yaml:"temperature"`
	MaxOutputTokens int      `yaml:"maxOutputTokens"`
	TopP            *float64 `yaml:"topP,omitempty"`
	Seed            *int64   `yaml:"seed,omitempty"`
}
