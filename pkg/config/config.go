// Package config provides configuration management for Pidgin.
// It defines the structure for YAML configuration files and handles
// loading, validation, and default value application.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pidginhq/pidgin/pkg/names"
)

// ConvergenceAction is the behavior taken once the convergence threshold
// is reached.
type ConvergenceAction string

const (
	ConvergenceActionStop ConvergenceAction = "stop"
	ConvergenceActionWarn ConvergenceAction = "warn"
)

// Config is the top-level, flat configuration record for a Pidgin run.
type Config struct {
	// Version is the configuration file format version.
	Version string `yaml:"version"`

	// AgentA and AgentB describe the two conversation participants.
	AgentA AgentConfig `yaml:"agent_a"`
	AgentB AgentConfig `yaml:"agent_b"`

	// InitialPrompt seeds the conversation; Tag is a human-readable label
	// attached to the run (e.g. for grouping logs by experiment).
	InitialPrompt string `yaml:"initial_prompt"`
	Tag           string `yaml:"tag"`

	// MaxTurns bounds the conversation length. A Config holding 0 runs zero
	// turns and emits an immediate max_turns_reached end event; LoadConfig
	// replaces a 0 read from a file with the default of 10.
	MaxTurns int `yaml:"max_turns"`

	// Convergence controls early stopping on semantic convergence.
	Convergence ConvergenceConfig `yaml:"convergence"`

	// MessageTimeout bounds how long a single provider call may take
	// before the turn is abandoned as a ProviderTimeout.
	MessageTimeout time.Duration `yaml:"message_timeout"`

	// MaxContextTokens bounds the per-call prompt budget before the
	// provider wrapper truncates oldest non-system messages.
	MaxContextTokens int `yaml:"max_context_tokens"`

	// MaxEventHistorySize bounds the in-memory event ring kept by the bus.
	MaxEventHistorySize int `yaml:"max_event_history_size"`

	// RateLimits holds per-provider request/token budgets, keyed by
	// provider id (e.g. "openai", "anthropic").
	RateLimits map[string]RateLimitConfig `yaml:"rate_limits"`

	// Logging defines conversation logging behavior.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics defines the optional Prometheus metrics server.
	Metrics MetricsConfig `yaml:"metrics"`
}

// AgentConfig describes one side of the conversation.
type AgentConfig struct {
	// Model is the model identifier, resolved to a provider via the
	// provider registry (exact, then prefix, then fuzzy match).
	Model string `yaml:"model"`
	// DisplayName overrides the name shown in logs and exports; if empty
	// it defaults to the model id. When both agents share a model, the
	// name (given or defaulted) is suffixed -A/-B.
	DisplayName string `yaml:"display_name"`
	// SystemPrompt seeds the agent's perspective; empty means no
	// SystemPrompt event is emitted for this agent.
	SystemPrompt string `yaml:"system_prompt"`
	// Temperature is forwarded to the provider; nil means provider default.
	Temperature *float64 `yaml:"temperature"`
	// APIKey and APIEndpoint configure the HTTP provider. APIKey falls
	// back to the <PROVIDER>_API_KEY environment variable when empty.
	APIKey      string `yaml:"api_key"`
	APIEndpoint string `yaml:"api_endpoint"`
}

// ConvergenceConfig controls early termination on semantic convergence.
type ConvergenceConfig struct {
	Threshold float64           `yaml:"threshold"`
	Action    ConvergenceAction `yaml:"action"`
}

// RateLimitConfig overrides a provider's default request/token budget.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	TokensPerMinute   int `yaml:"tokens_per_minute"`
}

// LoggingConfig defines conversation logging behavior.
type LoggingConfig struct {
	// Enabled determines if conversation event logging is active.
	Enabled bool `yaml:"enabled"`
	// LogDir is the directory where <conversation_id>_events.jsonl files
	// are written.
	LogDir string `yaml:"log_dir"`
	// Level is the minimum zerolog level emitted to the process logger.
	Level string `yaml:"level"`
	// Pretty switches the process logger to zerolog's console writer.
	Pretty bool `yaml:"pretty"`
}

// MetricsConfig defines the optional Prometheus metrics HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// NewDefaultConfig creates a configuration with sensible defaults.
// The default log directory is ~/.pidgin/chats.
func NewDefaultConfig() *Config {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}
	defaultLogDir := fmt.Sprintf("%s/.pidgin/chats", homeDir)

	return &Config{
		Version:  "1.0",
		MaxTurns: 10,
		Convergence: ConvergenceConfig{
			Threshold: 0.85,
			Action:    ConvergenceActionStop,
		},
		MessageTimeout:      60 * time.Second,
		MaxContextTokens:    8000,
		MaxEventHistorySize: 1000,
		RateLimits:          map[string]RateLimitConfig{},
		Logging: LoggingConfig{
			Enabled: true,
			LogDir:  defaultLogDir,
			Level:   "info",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9090",
		},
	}
}

// LoadConfig loads and validates a configuration from a YAML file.
// It applies default values for any missing optional fields.
// Returns an error if the file cannot be read, parsed, or is invalid.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := *NewDefaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// SaveConfig writes the configuration to a YAML file.
// The file is created with 0600 permissions (read/write for owner only).
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.AgentA.Model == "" {
		return fmt.Errorf("agent_a.model cannot be empty")
	}
	if c.AgentB.Model == "" {
		return fmt.Errorf("agent_b.model cannot be empty")
	}

	if c.MaxTurns < 0 {
		return fmt.Errorf("max_turns cannot be negative")
	}

	if c.Convergence.Threshold < 0 || c.Convergence.Threshold > 1 {
		return fmt.Errorf("convergence.threshold must be in [0,1], got %f", c.Convergence.Threshold)
	}

	switch c.Convergence.Action {
	case ConvergenceActionStop, ConvergenceActionWarn:
	default:
		return fmt.Errorf("invalid convergence action: %s", c.Convergence.Action)
	}

	for provider, limits := range c.RateLimits {
		if limits.RequestsPerMinute < 0 || limits.TokensPerMinute < 0 {
			return fmt.Errorf("rate_limits.%s: limits cannot be negative", provider)
		}
	}

	return nil
}

// nolint:gocyclo // Config defaults are inherently sequential; complexity is acceptable for readability
func (c *Config) applyDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}

	if c.MaxTurns == 0 {
		c.MaxTurns = 10
	}

	if c.Convergence.Threshold == 0 {
		c.Convergence.Threshold = 0.85
	}
	if c.Convergence.Action == "" {
		c.Convergence.Action = ConvergenceActionStop
	}

	if c.MessageTimeout == 0 {
		c.MessageTimeout = 60 * time.Second
	}
	if c.MaxContextTokens == 0 {
		c.MaxContextTokens = 8000
	}
	if c.MaxEventHistorySize == 0 {
		c.MaxEventHistorySize = 1000
	}
	if c.RateLimits == nil {
		c.RateLimits = map[string]RateLimitConfig{}
	}

	if c.Logging.LogDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = "."
		}
		c.Logging.LogDir = fmt.Sprintf("%s/.pidgin/chats", homeDir)
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}

	for _, agentCfg := range []*AgentConfig{&c.AgentA, &c.AgentB} {
		if agentCfg.APIKey == "" {
			agentCfg.APIKey = apiKeyFromEnv(agentCfg.Model)
		}
	}
}

var providerEnvVar = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"google":     "GOOGLE_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
}

func apiKeyFromEnv(model string) string {
	provider := names.ResolveProvider(model)
	if key, ok := providerEnvVar[provider]; ok {
		return os.Getenv(key)
	}
	return ""
}
