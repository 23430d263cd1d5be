// Package conductor is the composition root: it wires the event bus,
// conversation lifecycle, provider wrappers, message handler, turn
// executor, and interrupt handler together and drives the turn loop.
package conductor

import (
	"context"
	"fmt"
	"time"

	"github.com/pidginhq/pidgin/internal/pidginlog"
	"github.com/pidginhq/pidgin/pkg/config"
	"github.com/pidginhq/pidgin/pkg/conversation"
	"github.com/pidginhq/pidgin/pkg/event"
	"github.com/pidginhq/pidgin/pkg/interrupt"
	"github.com/pidginhq/pidgin/pkg/names"
	"github.com/pidginhq/pidgin/pkg/provider"
	"github.com/pidginhq/pidgin/pkg/ratelimit"
	"github.com/pidginhq/pidgin/pkg/turn"
	"github.com/pidginhq/pidgin/pkg/turnmsg"
)

// ProviderFactory constructs a provider.Provider for one agent slot. Real
// runs use httpprovider.New; tests substitute a mock.
type ProviderFactory func(agentCfg config.AgentConfig) provider.Provider

// BusHook is invoked once the event bus is constructed and started, before
// any turn is run, so a caller can attach additional subscribers (a display
// renderer, a metrics bridge) without this package knowing about them.
type BusHook func(*event.Bus)

// Conductor owns one conversation's full run: construction through its
// ConversationEnd emission.
type Conductor struct {
	cfg         *config.Config
	newProvider ProviderFactory
	policy      interrupt.Policy
	hooks       []BusHook
}

// New constructs a Conductor. policy may be nil to use interrupt.AlwaysExit.
// Run ends the conversation on every observed interrupt; it does not
// consult policy.
func New(cfg *config.Config, newProvider ProviderFactory, policy interrupt.Policy) *Conductor {
	return &Conductor{cfg: cfg, newProvider: newProvider, policy: policy}
}

// WithBusHooks attaches additional event.Bus subscribers, invoked right
// after the bus is constructed for a run. Returns the Conductor for chaining.
func (c *Conductor) WithBusHooks(hooks ...BusHook) *Conductor {
	c.hooks = append(c.hooks, hooks...)
	return c
}

// Outcome reports how a run concluded.
type Outcome struct {
	ConversationID string
	TotalTurns     int
	Reason         event.EndReason
	StartedAt      time.Time
	History        []event.Message
}

// Run executes one full conversation: bus setup, provider wiring, the
// turn loop bounded by cfg.MaxTurns, and a single terminal ConversationEnd
// emission regardless of which path ends the run.
func (c *Conductor) Run(ctx context.Context) (Outcome, error) {
	logDir := ""
	if c.cfg.Logging.Enabled {
		logDir = c.cfg.Logging.LogDir
	}
	bus := event.NewBus(logDir, c.cfg.MaxEventHistorySize)
	bus.Start()
	defer bus.Stop()

	for _, hook := range c.hooks {
		hook(bus)
	}

	conv := conversation.New(bus)

	displayA, displayB := names.AssignDisplayNames(c.cfg.AgentA.Model, c.cfg.AgentB.Model, c.cfg.AgentA.DisplayName, c.cfg.AgentB.DisplayName)
	c.cfg.AgentA.DisplayName = displayA
	c.cfg.AgentB.DisplayName = displayB

	handler := turnmsg.NewHandler(bus)
	handler.Subscribe()

	irqHandler := interrupt.New(bus, c.policy)
	irqHandler.Install()
	defer irqHandler.Close()

	limiterA := c.buildLimiter(c.cfg.AgentA.Model)
	limiterB := c.buildLimiter(c.cfg.AgentB.Model)

	providerA := c.newProvider(c.cfg.AgentA)
	providerB := c.newProvider(c.cfg.AgentB)

	wrapperA := provider.NewWrapper(provider.Config{
		AgentID:          conv.AgentAID,
		OtherAgentID:     conv.AgentBID,
		DisplayName:      displayA,
		OtherDisplayName: displayB,
		ProviderName:     names.ResolveProvider(c.cfg.AgentA.Model),
		Model:            c.cfg.AgentA.Model,
		MaxContextTokens: c.cfg.MaxContextTokens,
	}, providerA, bus, limiterA)
	wrapperB := provider.NewWrapper(provider.Config{
		AgentID:          conv.AgentBID,
		OtherAgentID:     conv.AgentAID,
		DisplayName:      displayB,
		OtherDisplayName: displayA,
		ProviderName:     names.ResolveProvider(c.cfg.AgentB.Model),
		Model:            c.cfg.AgentB.Model,
		MaxContextTokens: c.cfg.MaxContextTokens,
	}, providerB, bus, limiterB)
	wrapperA.Subscribe()
	wrapperB.Subscribe()

	executor := turn.New(bus, handler, turn.Config{
		Threshold: c.cfg.Convergence.Threshold,
		Action:    turn.ConvergenceAction(c.cfg.Convergence.Action),
		Timeout:   c.cfg.MessageTimeout,
	})

	conv.Start(ctx, c.cfg)

	agentASpec := turn.AgentSpec{ID: conv.AgentAID, Provider: names.ResolveProvider(c.cfg.AgentA.Model), Temperature: c.cfg.AgentA.Temperature, Limiter: limiterA}
	agentBSpec := turn.AgentSpec{ID: conv.AgentBID, Provider: names.ResolveProvider(c.cfg.AgentB.Model), Temperature: c.cfg.AgentB.Temperature, Limiter: limiterB}

	reason := event.EndMaxTurnsReached
	turnsRun := 0

	for turnNumber := 0; turnNumber < c.cfg.MaxTurns; turnNumber++ {
		if ctx.Err() != nil {
			reason = event.EndInterrupted
			break
		}
		if irqHandler.InterruptRequested() {
			irqHandler.HandlePause(ctx, conv.ID, turnNumber, event.InterruptUser, fmt.Sprintf("turn_%d", turnNumber))
			reason = event.EndInterrupted
			break
		}

		before := conv.History()
		result, history := executor.RunSingleTurn(ctx, conv.ID, turnNumber, before, agentASpec, agentBSpec, irqHandler)
		conv.Append(history[len(before):]...)

		if result.Stop == turn.StopInterrupted {
			irqHandler.HandlePause(ctx, conv.ID, turnNumber, event.InterruptUser, fmt.Sprintf("turn_%d", turnNumber))
			reason = event.EndInterrupted
			break
		}

		turnsRun++

		if result.Stop == turn.StopHighConvergence {
			reason = event.EndHighConvergence
			break
		}
	}

	conv.End(ctx, turnsRun, reason)

	pidginlog.WithFields(map[string]interface{}{
		"conversation_id": conv.ID,
		"total_turns":     turnsRun,
		"reason":          string(reason),
	}).Info("conversation ended")

	return Outcome{ConversationID: conv.ID, TotalTurns: turnsRun, Reason: reason, StartedAt: conv.StartedAt, History: conv.History()}, nil
}

func (c *Conductor) buildLimiter(model string) *ratelimit.Limiter {
	providerID := names.ResolveProvider(model)
	if rl, ok := c.cfg.RateLimits[providerID]; ok {
		return ratelimit.NewLimiter(rl.RequestsPerMinute, rl.TokensPerMinute)
	}
	return ratelimit.NewLimiter(ratelimit.DefaultRequestsPerMinute, ratelimit.DefaultTokensPerMinute)
}
