package conductor

import (
	"context"
	"testing"
	"time"

	"github.com/pidginhq/pidgin/pkg/config"
	"github.com/pidginhq/pidgin/pkg/event"
	"github.com/pidginhq/pidgin/pkg/provider"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.NewDefaultConfig()
	cfg.AgentA.Model = "gpt-4o"
	cfg.AgentB.Model = "claude-sonnet-4-5"
	cfg.InitialPrompt = "Discuss the weather."
	cfg.MaxTurns = 2
	cfg.Logging.Enabled = false
	cfg.MessageTimeout = 2 * time.Second
	cfg.Convergence.Threshold = 0.99
	cfg.Convergence.Action = config.ConvergenceActionStop
	return cfg
}

func mockFactory(agentCfg config.AgentConfig) provider.Provider {
	return provider.NewMockProvider("a reply about " + agentCfg.Model)
}

func TestConductor_Run_MaxTurnsReached(t *testing.T) {
	cfg := testConfig(t)
	c := New(cfg, mockFactory, nil)

	outcome, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if outcome.Reason != event.EndMaxTurnsReached {
		t.Errorf("expected max_turns_reached, got %s", outcome.Reason)
	}
	if outcome.TotalTurns != cfg.MaxTurns {
		t.Errorf("expected %d turns, got %d", cfg.MaxTurns, outcome.TotalTurns)
	}
	if outcome.ConversationID == "" {
		t.Error("expected a non-empty conversation id")
	}
}

func TestConductor_Run_HighConvergenceStopsEarly(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxTurns = 5
	cfg.Convergence.Threshold = 0.0

	c := New(cfg, mockFactory, nil)
	outcome, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if outcome.Reason != event.EndHighConvergence {
		t.Errorf("expected high_convergence, got %s", outcome.Reason)
	}
	if outcome.TotalTurns != 1 {
		t.Errorf("expected exactly 1 turn before stopping, got %d", outcome.TotalTurns)
	}
}

func TestConductor_Run_ZeroMaxTurns(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxTurns = 0

	c := New(cfg, mockFactory, nil)
	outcome, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if outcome.TotalTurns != 0 {
		t.Errorf("expected 0 turns run, got %d", outcome.TotalTurns)
	}
	if outcome.Reason != event.EndMaxTurnsReached {
		t.Errorf("expected max_turns_reached even with zero budget, got %s", outcome.Reason)
	}
}
