// Package conversation owns a conversation's identity and its begin/end
// bookkeeping: allocating a conversation id, seeding system and initial
// human messages, and emitting the start/end events exactly once.
package conversation

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pidginhq/pidgin/pkg/config"
	"github.com/pidginhq/pidgin/pkg/event"
)

// HumanAgentID tags the initial prompt as coming from neither agent.
const HumanAgentID = "human"

// Conversation tracks the live state of one run: its id, accumulated
// message history, and the guard that makes end-event emission idempotent.
type Conversation struct {
	ID        string
	StartedAt time.Time

	AgentAID string
	AgentBID string

	bus *event.Bus

	mu      sync.Mutex
	history []event.Message
	ended   bool
}

// New allocates a conversation id and returns an empty Conversation bound to
// bus. Nothing is emitted yet; call Start to seed messages and emit
// ConversationStart/SystemPrompt.
func New(bus *event.Bus) *Conversation {
	return &Conversation{
		ID:       newConversationID(),
		bus:      bus,
		AgentAID: "agent_a",
		AgentBID: "agent_b",
	}
}

// Start seeds the conversation history with each agent's system prompt (if
// any) and the human-tagged initial prompt, then emits ConversationStart
// followed by one SystemPrompt event per non-empty system prompt. It is the
// only place those events are emitted, and must be called exactly once.
func (c *Conversation) Start(ctx context.Context, cfg *config.Config) {
	c.mu.Lock()
	c.StartedAt = time.Now()
	if cfg.AgentA.SystemPrompt != "" {
		c.history = append(c.history, event.Message{
			Role:      event.RoleSystem,
			Content:   cfg.AgentA.SystemPrompt,
			AgentID:   c.AgentAID,
			Timestamp: c.StartedAt,
		})
	}
	if cfg.AgentB.SystemPrompt != "" {
		c.history = append(c.history, event.Message{
			Role:      event.RoleSystem,
			Content:   cfg.AgentB.SystemPrompt,
			AgentID:   c.AgentBID,
			Timestamp: c.StartedAt,
		})
	}
	c.history = append(c.history, event.Message{
		Role:      event.RoleUser,
		Content:   cfg.InitialPrompt,
		AgentID:   HumanAgentID,
		Timestamp: c.StartedAt,
	})
	c.mu.Unlock()

	_ = c.bus.Emit(ctx, event.ConversationStart{
		Envelope:      c.envelope(),
		ModelA:        cfg.AgentA.Model,
		ModelB:        cfg.AgentB.Model,
		DisplayNameA:  cfg.AgentA.DisplayName,
		DisplayNameB:  cfg.AgentB.DisplayName,
		InitialPrompt: cfg.InitialPrompt,
		MaxTurns:      cfg.MaxTurns,
		TemperatureA:  cfg.AgentA.Temperature,
		TemperatureB:  cfg.AgentB.Temperature,
	})

	if cfg.AgentA.SystemPrompt != "" {
		_ = c.bus.Emit(ctx, event.SystemPrompt{
			Envelope: c.envelope(),
			AgentID:  c.AgentAID,
			Prompt:   cfg.AgentA.SystemPrompt,
		})
	}
	if cfg.AgentB.SystemPrompt != "" {
		_ = c.bus.Emit(ctx, event.SystemPrompt{
			Envelope: c.envelope(),
			AgentID:  c.AgentBID,
			Prompt:   cfg.AgentB.SystemPrompt,
		})
	}
}

// History returns a snapshot of the accumulated message history.
func (c *Conversation) History() []event.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Message, len(c.history))
	copy(out, c.history)
	return out
}

// Append adds messages to the conversation's running history, in order.
func (c *Conversation) Append(messages ...event.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, messages...)
}

// End emits ConversationEnd with the given reason and total turn count. It
// is guarded so only the first call has any effect -- a conversation that
// ends once (on convergence, max turns, interrupt, or error) must never
// emit a second end event even if multiple code paths race to call End.
func (c *Conversation) End(ctx context.Context, totalTurns int, reason event.EndReason) {
	c.mu.Lock()
	if c.ended {
		c.mu.Unlock()
		return
	}
	c.ended = true
	started := c.StartedAt
	c.mu.Unlock()

	_ = c.bus.Emit(ctx, event.ConversationEnd{
		Envelope:   c.envelope(),
		TotalTurns: totalTurns,
		Reason:     reason,
		DurationMs: time.Since(started).Milliseconds(),
	})

	if err := c.bus.CloseConversationLog(c.ID); err != nil {
		_ = err // best effort; the bus already logs persistence failures
	}
}

func (c *Conversation) envelope() event.Envelope {
	return event.Envelope{
		EventID:        newEventID(),
		ConversationID: c.ID,
		Timestamp:      time.Now(),
	}
}

func newConversationID() string {
	return "conv_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

func newEventID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
