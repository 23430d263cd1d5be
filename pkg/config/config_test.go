package config

import (
	"strings"
	"testing"
	"time"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	if cfg.Version != "1.0" {
		t.Errorf("Expected Version to be '1.0', got %s", cfg.Version)
	}

	if cfg.MaxTurns != 10 {
		t.Errorf("Expected default MaxTurns to be 10, got %d", cfg.MaxTurns)
	}

	if cfg.Convergence.Threshold != 0.85 {
		t.Errorf("Expected default convergence threshold to be 0.85, got %f", cfg.Convergence.Threshold)
	}

	if cfg.Convergence.Action != ConvergenceActionStop {
		t.Errorf("Expected default convergence action to be stop, got %s", cfg.Convergence.Action)
	}

	if cfg.MessageTimeout != 60*time.Second {
		t.Errorf("Expected default message timeout to be 60s, got %v", cfg.MessageTimeout)
	}

	if !cfg.Logging.Enabled {
		t.Error("Expected logging to be enabled by default")
	}

	if !strings.Contains(cfg.Logging.LogDir, ".pidgin/chats") {
		t.Errorf("Expected LogDir to contain '.pidgin/chats', got %s", cfg.Logging.LogDir)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		wantErr bool
		errMsg  string
	}{
		{
			name:    "missing agent_a model",
			config:  &Config{AgentB: AgentConfig{Model: "gpt-4o"}},
			wantErr: true,
			errMsg:  "agent_a.model",
		},
		{
			name:    "missing agent_b model",
			config:  &Config{AgentA: AgentConfig{Model: "gpt-4o"}},
			wantErr: true,
			errMsg:  "agent_b.model",
		},
		{
			name: "invalid convergence action",
			config: &Config{
				AgentA:      AgentConfig{Model: "gpt-4o"},
				AgentB:      AgentConfig{Model: "claude-sonnet-4-5"},
				Convergence: ConvergenceConfig{Threshold: 0.5, Action: "explode"},
			},
			wantErr: true,
			errMsg:  "invalid convergence action",
		},
		{
			name: "threshold out of range",
			config: &Config{
				AgentA:      AgentConfig{Model: "gpt-4o"},
				AgentB:      AgentConfig{Model: "claude-sonnet-4-5"},
				Convergence: ConvergenceConfig{Threshold: 1.5, Action: ConvergenceActionStop},
			},
			wantErr: true,
			errMsg:  "threshold must be in",
		},
		{
			name: "valid config",
			config: &Config{
				AgentA:      AgentConfig{Model: "gpt-4o"},
				AgentB:      AgentConfig{Model: "claude-sonnet-4-5"},
				Convergence: ConvergenceConfig{Threshold: 0.85, Action: ConvergenceActionStop},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && tt.errMsg != "" && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error message = %v, want to contain %v", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestLoadConfigAppliesDefaultsBeforeValidation(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/pidgin.yaml"
	cfg := &Config{
		AgentA: AgentConfig{Model: "gpt-4o"},
		AgentB: AgentConfig{Model: "claude-sonnet-4-5"},
	}
	if err := cfg.SaveConfig(path); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if loaded.MaxTurns != 10 {
		t.Errorf("expected defaulted MaxTurns 10, got %d", loaded.MaxTurns)
	}
	if loaded.Convergence.Threshold != 0.85 {
		t.Errorf("expected defaulted threshold 0.85, got %f", loaded.Convergence.Threshold)
	}
}
