// Package provider defines the minimal interface a model backend must
// satisfy and the wrapper that adapts it to the event-driven conversation
// loop: history transformation, context truncation, streaming, and error
// classification.
package provider

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pidginhq/pidgin/internal/pidginlog"
	"github.com/pidginhq/pidgin/pkg/event"
	"github.com/pidginhq/pidgin/pkg/ratelimit"
	"github.com/pidginhq/pidgin/pkg/utils"
)

// Provider is the contract a model backend must satisfy. Nothing about
// transport, auth, or vendor wire format is assumed here; adapters such as
// pkg/provider/httpprovider translate a specific vendor API to this shape.
type Provider interface {
	// StreamResponse sends messages (already in this agent's local
	// perspective) and returns a channel of text chunks. The channel is
	// closed when the response is complete; a send on errCh (buffered,
	// capacity 1) indicates failure and the chunk channel is closed
	// without further sends.
	StreamResponse(ctx context.Context, messages []event.Message, temperature *float64) (<-chan string, <-chan error)
	// GetLastUsage returns token accounting for the most recently
	// completed call, or nil if the provider does not report usage.
	GetLastUsage() *event.Usage
}

// Wrapper adapts a bound Provider to the bus: it subscribes to
// MessageRequest for one agent id, performs history transformation and
// context truncation, invokes the provider, and emits the resulting
// MessageChunk / MessageComplete / TokenUsage / APIError / ContextTruncation
// events. It never blocks the bus dispatch loop — each request is handled
// on its own goroutine.
type Wrapper struct {
	agentID          string
	otherAgentID     string
	displayName      string
	otherDisplayName string
	providerName     string
	model            string
	maxContextTokens int

	provider Provider
	bus      *event.Bus
	limiter  *ratelimit.Limiter
}

// Config bundles the parameters needed to construct a Wrapper.
type Config struct {
	AgentID          string
	OtherAgentID     string
	DisplayName      string
	OtherDisplayName string
	ProviderName     string
	Model            string
	MaxContextTokens int
}

// NewWrapper binds a Provider implementation to one agent slot.
func NewWrapper(cfg Config, p Provider, bus *event.Bus, limiter *ratelimit.Limiter) *Wrapper {
	return &Wrapper{
		agentID:          cfg.AgentID,
		otherAgentID:     cfg.OtherAgentID,
		displayName:      cfg.DisplayName,
		otherDisplayName: cfg.OtherDisplayName,
		providerName:     cfg.ProviderName,
		model:            cfg.Model,
		maxContextTokens: cfg.MaxContextTokens,
		provider:         p,
		bus:              bus,
		limiter:          limiter,
	}
}

// Subscribe registers the wrapper's handler on the bus. It returns the
// subscription id so the caller can Unsubscribe during teardown.
func (w *Wrapper) Subscribe() uint64 {
	return w.bus.Subscribe(event.TypeMessageRequest, w.onMessageRequest)
}

func (w *Wrapper) onMessageRequest(ctx context.Context, e event.Event) error {
	req, ok := e.(event.MessageRequest)
	if !ok || req.AgentID != w.agentID {
		return nil
	}
	// The provider call runs independently of the bus dispatch loop; the
	// handler itself must return immediately.
	go w.handle(ctx, req)
	return nil
}

func (w *Wrapper) handle(ctx context.Context, req event.MessageRequest) {
	conversationID := req.ConversationID

	localHistory := w.toLocalPerspective(req.ConversationHistory)

	truncated, originalCount, droppedCount := w.truncate(localHistory)
	if droppedCount > 0 {
		_ = w.bus.Emit(ctx, event.ContextTruncation{
			Envelope:       w.envelope(conversationID),
			AgentID:        w.agentID,
			Provider:       w.providerName,
			Model:          w.model,
			TurnNumber:     req.TurnNumber,
			OriginalCount:  originalCount,
			TruncatedCount: len(truncated),
			Dropped:        droppedCount,
		})
	}

	start := time.Now()
	chunks, errCh := w.provider.StreamResponse(ctx, truncated, req.Temperature)

	var builder strings.Builder
	index := 0
	for chunk := range chunks {
		builder.WriteString(chunk)
		_ = w.bus.Emit(ctx, event.MessageChunk{
			Envelope:   w.envelope(conversationID),
			AgentID:    w.agentID,
			Chunk:      chunk,
			ChunkIndex: index,
			ElapsedMs:  time.Since(start).Milliseconds(),
		})
		index++
	}

	if err := drainErr(errCh); err != nil {
		retryable, errType := classifyError(err)
		_ = w.bus.Emit(ctx, event.APIError{
			Envelope:     w.envelope(conversationID),
			AgentID:      w.agentID,
			Provider:     w.providerName,
			ErrorType:    errType,
			ErrorMessage: err.Error(),
			Retryable:    retryable,
			RetryCount:   0,
		})
		return
	}

	message := event.Message{
		Role:      event.RoleAssistant,
		Content:   builder.String(),
		AgentID:   w.agentID,
		Timestamp: time.Now(),
	}

	usage := w.provider.GetLastUsage()
	duration := time.Since(start)

	// Completion is recorded against the rate limiter by the message
	// handler once it receives this event (see pkg/turnmsg), not here --
	// matching message_handler.py, which owns record_request_complete.
	_ = w.bus.Emit(ctx, event.MessageComplete{
		Envelope:         w.envelope(conversationID),
		AgentID:          w.agentID,
		Message:          message,
		PromptTokens:     usageOrZero(usage).PromptTokens,
		CompletionTokens: usageOrZero(usage).CompletionTokens,
		TotalTokens:      usageOrZero(usage).TotalTokens,
		DurationMs:       duration.Milliseconds(),
	})

	stats := w.limiter.Stats()
	_ = w.bus.Emit(ctx, event.TokenUsage{
		Envelope:         w.envelope(conversationID),
		Provider:         w.providerName,
		Model:            w.model,
		TokensUsed:       usageOrZero(usage).TotalTokens,
		PromptTokens:     usageOrZero(usage).PromptTokens,
		CompletionTokens: usageOrZero(usage).CompletionTokens,
		RequestsInWindow: stats.RequestsInWindow,
		TokensInWindow:   stats.TokensInWindow,
		EstimatedCostUSD: utils.EstimateCost(w.model, usageOrZero(usage).PromptTokens, usageOrZero(usage).CompletionTokens),
	})
}

func (w *Wrapper) envelope(conversationID string) event.Envelope {
	return event.Envelope{
		EventID:        newEventID(),
		ConversationID: conversationID,
		Timestamp:      time.Now(),
	}
}

// toLocalPerspective rewrites the shared conversation history into this
// agent's point of view: its own messages become assistant turns, the
// other agent's become user turns. System messages always pass through to
// both agents (mirroring router.py's _build_agent_history, which hands
// every system message to both sides rather than scoping it to its
// author) — the other agent's system message is rewritten so identity
// references resolve to this agent's own name/partner pairing, the same
// "You are Agent A" -> "You are Agent B" substitution router.py performs
// for its target agent.
func (w *Wrapper) toLocalPerspective(history []event.Message) []event.Message {
	out := make([]event.Message, 0, len(history))
	for _, msg := range history {
		switch {
		case msg.Role == event.RoleSystem:
			content := msg.Content
			if msg.AgentID != "" && msg.AgentID == w.otherAgentID {
				content = rewriteIdentityReferences(content, w.otherDisplayName, w.displayName)
			}
			out = append(out, event.Message{
				Role:      event.RoleSystem,
				Content:   content,
				AgentID:   msg.AgentID,
				Timestamp: msg.Timestamp,
			})
		case msg.AgentID == w.agentID:
			out = append(out, event.Message{Role: event.RoleAssistant, Content: msg.Content, AgentID: msg.AgentID, Timestamp: msg.Timestamp})
		case msg.AgentID == w.otherAgentID:
			out = append(out, event.Message{Role: event.RoleUser, Content: msg.Content, AgentID: msg.AgentID, Timestamp: msg.Timestamp})
		default:
			// Human-tagged initial prompt or any untagged message.
			out = append(out, event.Message{Role: event.RoleUser, Content: msg.Content, AgentID: msg.AgentID, Timestamp: msg.Timestamp})
		}
	}
	return out
}

// rewriteIdentityReferences swaps every occurrence of fromName and toName
// in content, so a system message authored for one agent reads correctly
// when delivered to the other: mentions of the author's own name become
// mentions of the reader's name, and (since the same text block typically
// also names the reader as "the conversation partner") prior mentions of
// the reader's name swap back to the author's. A placeholder hop is used
// so the two replacements don't clobber each other when fromName and
// toName are substrings of one another.
func rewriteIdentityReferences(content, fromName, toName string) string {
	if fromName == "" || toName == "" || fromName == toName {
		return content
	}
	const placeholder = "\x00pidgin-identity-swap\x00"
	out := strings.ReplaceAll(content, fromName, placeholder)
	out = strings.ReplaceAll(out, toName, fromName)
	out = strings.ReplaceAll(out, placeholder, toName)
	return out
}

// truncate drops the oldest non-system messages, located via binary
// search over the drop count, until the estimated token total fits
// maxContextTokens. System messages are never dropped.
func (w *Wrapper) truncate(history []event.Message) (kept []event.Message, originalCount, dropped int) {
	originalCount = len(history)
	if w.maxContextTokens <= 0 || estimateTotal(history, w.providerName) <= w.maxContextTokens {
		return history, originalCount, 0
	}

	systemIdx := make([]int, 0)
	nonSystemIdx := make([]int, 0)
	for i, msg := range history {
		if msg.Role == event.RoleSystem {
			systemIdx = append(systemIdx, i)
		} else {
			nonSystemIdx = append(nonSystemIdx, i)
		}
	}

	fits := func(drop int) bool {
		kept := make([]event.Message, 0, len(history))
		for _, i := range systemIdx {
			kept = append(kept, history[i])
		}
		for _, i := range nonSystemIdx[drop:] {
			kept = append(kept, history[i])
		}
		return estimateTotal(kept, w.providerName) <= w.maxContextTokens
	}

	lo, hi := 0, len(nonSystemIdx)
	for lo < hi {
		mid := (lo + hi) / 2
		if fits(mid) {
			hi = mid
		} else {
			lo = mid + 1
		}
	}

	droppedIdx := make(map[int]bool, lo)
	for _, i := range nonSystemIdx[:lo] {
		droppedIdx[i] = true
	}

	result := make([]event.Message, 0, len(history)-lo)
	for i, msg := range history {
		if droppedIdx[i] {
			continue
		}
		result = append(result, msg)
	}

	return result, originalCount, lo
}

func estimateTotal(history []event.Message, providerName string) int {
	total := 0
	for _, msg := range history {
		total += ratelimit.EstimateTokens(msg.Content, providerName)
	}
	return total
}

// classifyError maps an error surfaced by a Provider into the retryable
// flag and error_type carried by APIError, per the rate-limit/auth/
// transient-network taxonomy.
func classifyError(err error) (retryable bool, errType string) {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "quota"):
		return true, "rate_limit"
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "unauthorized"):
		return false, "auth"
	case strings.Contains(msg, "400") || strings.Contains(msg, "malformed") || strings.Contains(msg, "invalid request"):
		return false, "invalid_request"
	case strings.Contains(msg, "http 5") || strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") || strings.Contains(msg, "eof"):
		return true, "transient_network"
	default:
		return false, "unknown"
	}
}

func usageOrZero(u *event.Usage) event.Usage {
	if u == nil {
		return event.Usage{}
	}
	return *u
}

func drainErr(errCh <-chan error) error {
	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func newEventID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}

func init() {
	pidginlog.Debug("provider wrapper package initialized")
}
