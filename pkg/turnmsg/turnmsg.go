// Package turnmsg implements the message handler: it turns a
// MessageRequest into a blocking call that resolves once the bound
// provider wrapper emits the matching MessageComplete, or is cut short by
// an interrupt or a timeout.
package turnmsg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pidginhq/pidgin/pkg/event"
	"github.com/pidginhq/pidgin/pkg/ratelimit"
)

// DefaultTimeout is the per-message timeout applied when the caller does
// not override it.
const DefaultTimeout = 60 * time.Second

// rateLimitPaceThreshold is the minimum rate-limiter wait worth reporting.
const rateLimitPaceThreshold = 100 * time.Millisecond

// interruptPollInterval is how often the multi-wait checks the interrupt
// handle for a newly raised request.
const interruptPollInterval = 50 * time.Millisecond

// interruptGracePeriod is how long get_agent_message keeps waiting on the
// in-flight future after an interrupt is observed, before giving up.
const interruptGracePeriod = 3 * time.Second

// InterruptHandle reports whether an interrupt has been raised. It is
// satisfied by pkg/interrupt.Handler; defined here to avoid a dependency
// cycle between the two packages.
type InterruptHandle interface {
	InterruptRequested() bool
}

// Handler owns the pending_messages table: at most one outstanding
// completion per agent id, correlated against the provider wrapper's
// MessageComplete events.
type Handler struct {
	bus *event.Bus

	mu      sync.Mutex
	pending map[string]chan event.Message
}

// NewHandler constructs a message handler bound to bus. The handler
// subscribes to MessageComplete to resolve pending futures; call
// Subscribe once during setup.
func NewHandler(bus *event.Bus) *Handler {
	return &Handler{
		bus:     bus,
		pending: make(map[string]chan event.Message),
	}
}

// Subscribe registers the handler's MessageComplete correlator on the bus.
func (h *Handler) Subscribe() uint64 {
	return h.bus.Subscribe(event.TypeMessageComplete, h.onMessageComplete)
}

func (h *Handler) onMessageComplete(ctx context.Context, e event.Event) error {
	complete, ok := e.(event.MessageComplete)
	if !ok {
		return nil
	}

	h.mu.Lock()
	ch, exists := h.pending[complete.AgentID]
	h.mu.Unlock()

	if exists {
		select {
		case ch <- complete.Message:
		default:
		}
	}
	return nil
}

// Request bundles the parameters for one GetAgentMessage call.
type Request struct {
	ConversationID string
	AgentID        string
	Provider       string
	TurnNumber     int
	History        []event.Message
	Temperature    *float64
	Limiter        *ratelimit.Limiter
	Interrupt      InterruptHandle
	Timeout        time.Duration
}

// GetAgentMessage asks the provider wrapper bound to req.AgentID to
// produce the next message, blocking until it resolves, the interrupt
// handle reports a request, or the timeout elapses. A nil *Message with a
// nil error signals "skip this turn" (interrupted or timed out).
func (h *Handler) GetAgentMessage(ctx context.Context, req Request) (*event.Message, error) {
	timeout := req.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	estimated := estimatePayloadTokens(req.History, req.Provider)
	result, err := req.Limiter.Acquire(ctx, estimated)
	if err != nil {
		return nil, fmt.Errorf("rate limiter acquire failed: %w", err)
	}
	if result.Wait > rateLimitPaceThreshold {
		_ = h.bus.Emit(ctx, event.RateLimitPace{
			Envelope: newEnvelope(req.ConversationID),
			Provider: req.Provider,
			WaitTime: result.Wait,
			Reason:   rateLimitReason(result.Reason),
		})
	}

	ch := make(chan event.Message, 1)
	h.mu.Lock()
	h.pending[req.AgentID] = ch
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, req.AgentID)
		h.mu.Unlock()
	}()

	requestStart := time.Now()

	if err := h.bus.Emit(ctx, event.MessageRequest{
		Envelope:            newEnvelope(req.ConversationID),
		AgentID:             req.AgentID,
		TurnNumber:          req.TurnNumber,
		ConversationHistory: req.History,
		Temperature:         req.Temperature,
	}); err != nil {
		return nil, fmt.Errorf("failed to emit message request: %w", err)
	}

	msg, skipped, err := h.waitForOutcome(ctx, req, ch, timeout, requestStart, estimated)
	if err != nil {
		return nil, err
	}
	if skipped {
		return nil, nil
	}

	return &msg, nil
}

// waitForOutcome races the three outcomes get_agent_message waits on:
// the future resolving, an interrupt request, or the timeout. Completion
// is only recorded with the rate limiter on the plain "future resolved"
// path below, matching message_handler.py's get_agent_message, which
// calls record_request_complete solely in its non-interrupted branch --
// a message that arrives after an interrupt was already observed is
// still returned to the caller, but its usage is not re-recorded.
func (h *Handler) waitForOutcome(ctx context.Context, req Request, ch chan event.Message, timeout time.Duration, requestStart time.Time, payloadTokens int) (event.Message, bool, error) {
	timeoutTimer := time.NewTimer(timeout)
	defer timeoutTimer.Stop()

	pollTicker := time.NewTicker(interruptPollInterval)
	defer pollTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return event.Message{}, true, nil

		case msg := <-ch:
			req.Limiter.RecordRequestComplete(estimateActualTokens(msg.Content, payloadTokens), time.Since(requestStart))
			return msg, false, nil

		case <-timeoutTimer.C:
			_ = h.bus.Emit(ctx, event.ProviderTimeout{
				Envelope:       newEnvelope(req.ConversationID),
				AgentID:        req.AgentID,
				Provider:       req.Provider,
				TimeoutSeconds: timeout.Seconds(),
			})
			return event.Message{}, true, nil

		case <-pollTicker.C:
			if req.Interrupt == nil || !req.Interrupt.InterruptRequested() {
				continue
			}
			_ = h.bus.Emit(ctx, event.ConversationPaused{
				Envelope:     newEnvelope(req.ConversationID),
				TurnNumber:   req.TurnNumber,
				PausedDuring: "waiting_for_" + req.AgentID,
			})
			select {
			case msg := <-ch:
				return msg, false, nil
			case <-time.After(interruptGracePeriod):
				return event.Message{}, true, nil
			}
		}
	}
}

func estimatePayloadTokens(history []event.Message, provider string) int {
	total := 0
	for _, m := range history {
		total += ratelimit.EstimateTokens(m.Content, provider)
	}
	return total
}

// estimateActualTokens approximates the tokens consumed by one completed
// request: the response's own rough char-count estimate plus the payload
// tokens already charged at acquire time, mirroring message_handler.py's
// `len(message.content) // 4 + payload_tokens`.
func estimateActualTokens(content string, payloadTokens int) int {
	return len(content)/4 + payloadTokens
}

func rateLimitReason(r ratelimit.Reason) event.PaceReason {
	switch r {
	case ratelimit.ReasonRequestRate:
		return event.PaceRequestRate
	case ratelimit.ReasonTokenRate:
		return event.PaceTokenRate
	default:
		return event.PaceMixed
	}
}

func newEnvelope(conversationID string) event.Envelope {
	return event.Envelope{
		EventID:        newEventID(),
		ConversationID: conversationID,
		Timestamp:      time.Now(),
	}
}
