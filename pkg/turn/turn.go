// Package turn implements the turn executor: it drives one strict
// agent_a -> agent_b exchange, scores convergence once both halves have
// landed, and decides whether the conversation should continue.
package turn

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pidginhq/pidgin/pkg/convergence"
	"github.com/pidginhq/pidgin/pkg/event"
	"github.com/pidginhq/pidgin/pkg/ratelimit"
	"github.com/pidginhq/pidgin/pkg/turnmsg"
)

// StopReason explains why RunSingleTurn returned a nil turn.
type StopReason string

const (
	StopNone             StopReason = ""
	StopInterrupted      StopReason = "interrupted"
	StopHighConvergence  StopReason = "high_convergence"
)

// ConvergenceAction mirrors config.ConvergenceAction without importing the
// config package, so pkg/turn does not depend on pkg/config for a
// two-value enum.
type ConvergenceAction string

const (
	ActionStop ConvergenceAction = "stop"
	ActionWarn ConvergenceAction = "warn"
)

// AgentSpec bundles the static per-agent parameters the executor needs for
// one GetAgentMessage call.
type AgentSpec struct {
	ID          string
	Provider    string
	Temperature *float64
	Limiter     *ratelimit.Limiter
}

// Executor runs single turns against a bound message handler and bus.
type Executor struct {
	bus     *event.Bus
	handler *turnmsg.Handler

	threshold float64
	action    ConvergenceAction
	timeout   time.Duration
}

// Config bundles the parameters needed to construct an Executor.
type Config struct {
	Threshold float64
	Action    ConvergenceAction
	Timeout   time.Duration
}

// New constructs a turn executor bound to bus and handler.
func New(bus *event.Bus, handler *turnmsg.Handler, cfg Config) *Executor {
	return &Executor{
		bus:       bus,
		handler:   handler,
		threshold: cfg.Threshold,
		action:    cfg.Action,
		timeout:   cfg.Timeout,
	}
}

// Result is what RunSingleTurn returns: either a completed Turn, or a nil
// Turn accompanied by a StopReason explaining why the conversation should
// end.
type Result struct {
	Turn             *event.Turn
	ConvergenceScore float64
	Stop             StopReason
}

// RunSingleTurn emits TurnStart, drives the message handler for agent_a then
// agent_b (agent_b sees agent_a's reply in its history), scores convergence
// over the updated history, emits TurnComplete, and -- if the score clears
// the configured threshold under a "stop" action -- reports
// StopHighConvergence. It never emits ConversationEnd: the caller
// (pkg/conductor) owns appending returned messages to the conversation and
// the single ConversationEnd emission for every stop reason.
func (x *Executor) RunSingleTurn(ctx context.Context, conversationID string, turnNumber int, history []event.Message, agentA, agentB AgentSpec, interrupt turnmsg.InterruptHandle) (Result, []event.Message) {
	_ = x.bus.Emit(ctx, event.TurnStart{
		Envelope:   newEnvelope(conversationID),
		TurnNumber: turnNumber,
	})

	msgA, err := x.handler.GetAgentMessage(ctx, turnmsg.Request{
		ConversationID: conversationID,
		AgentID:        agentA.ID,
		Provider:       agentA.Provider,
		TurnNumber:     turnNumber,
		History:        history,
		Temperature:    agentA.Temperature,
		Limiter:        agentA.Limiter,
		Interrupt:      interrupt,
		Timeout:        x.timeout,
	})
	if err != nil || msgA == nil {
		return Result{Stop: StopInterrupted}, history
	}
	history = append(history, *msgA)

	msgB, err := x.handler.GetAgentMessage(ctx, turnmsg.Request{
		ConversationID: conversationID,
		AgentID:        agentB.ID,
		Provider:       agentB.Provider,
		TurnNumber:     turnNumber,
		History:        history,
		Temperature:    agentB.Temperature,
		Limiter:        agentB.Limiter,
		Interrupt:      interrupt,
		Timeout:        x.timeout,
	})
	if err != nil || msgB == nil {
		return Result{Stop: StopInterrupted}, history
	}
	history = append(history, *msgB)

	t := event.Turn{AgentAMessage: *msgA, AgentBMessage: *msgB}
	score := convergence.Calculate(history)

	_ = x.bus.Emit(ctx, event.TurnComplete{
		Envelope:         newEnvelope(conversationID),
		TurnNumber:       turnNumber,
		Turn:             t,
		ConvergenceScore: score,
	})

	if score >= x.threshold && x.action == ActionStop {
		return Result{Turn: &t, ConvergenceScore: score, Stop: StopHighConvergence}, history
	}

	return Result{Turn: &t, ConvergenceScore: score, Stop: StopNone}, history
}

func newEnvelope(conversationID string) event.Envelope {
	return event.Envelope{
		EventID:        newEventID(),
		ConversationID: conversationID,
		Timestamp:      time.Now(),
	}
}

func newEventID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
