// Package interrupt installs a process-wide SIGINT/SIGTERM handler and
// coordinates the cooperative pause/resume protocol the conductor uses to
// stop a conversation between messages rather than tearing it down
// mid-stream.
package interrupt

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/pidginhq/pidgin/internal/pidginlog"
	"github.com/pidginhq/pidgin/pkg/event"
)

// Reason is an alias for event.InterruptSource, so a Policy receives the
// same source values HandlePause emits.
type Reason = event.InterruptSource

// Policy decides what happens once a pause has been observed. The harness
// currently hard-wires a single answer (always end the conversation); it is
// exposed as an overridable function rather than a hard-wired branch so a
// caller wanting a future interactive "continue" prompt has somewhere to
// hook in without touching this package.
type Policy func(Reason) bool

// AlwaysExit is the default policy: every interrupt, regardless of source,
// ends the conversation. This matches the source harness's current
// behavior, where the "continue" branch is structurally present but never
// taken.
func AlwaysExit(Reason) bool { return false }

// Handler installs (at most once) a process-wide signal handler and exposes
// the cooperative interrupt flag the message handler polls during its
// multi-wait. It is idempotent: a second signal delivered before the first
// is consumed is ignored, to prevent tearing mid-message.
type Handler struct {
	bus    *event.Bus
	policy Policy

	mu        sync.Mutex
	requested bool
	sigCh     chan os.Signal
	closed    bool
}

// New constructs a Handler bound to bus. It does not install the signal
// handler yet; call Install for that.
func New(bus *event.Bus, policy Policy) *Handler {
	if policy == nil {
		policy = AlwaysExit
	}
	return &Handler{bus: bus, policy: policy}
}

// Install registers the process-wide SIGINT/SIGTERM handler. Safe to call
// once per Handler; calling it twice is a programming error the caller must
// avoid (mirrors the source's single global installation).
func (h *Handler) Install() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.sigCh = make(chan os.Signal, 1)
	signal.Notify(h.sigCh, os.Interrupt, syscall.SIGTERM)

	go h.watch()
}

func (h *Handler) watch() {
	for range h.sigCh {
		h.mu.Lock()
		if h.requested || h.closed {
			// Second signal: ignored, per the "no escalation" contract.
			h.mu.Unlock()
			continue
		}
		h.requested = true
		h.mu.Unlock()

		pidginlog.Info("interrupt received, pausing after current message")
		return
	}
}

// InterruptRequested reports whether an interrupt has been observed. It
// satisfies pkg/turnmsg.InterruptHandle.
func (h *Handler) InterruptRequested() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requested
}

// ShouldContinue applies the configured policy for the given reason.
func (h *Handler) ShouldContinue(reason Reason) bool {
	return h.policy(reason)
}

// HandlePause emits InterruptRequest followed by ConversationPaused for the
// given conversation and turn, describing what the conductor was waiting on.
func (h *Handler) HandlePause(ctx context.Context, conversationID string, turnNumber int, source Reason, pausedDuring string) {
	_ = h.bus.Emit(ctx, event.InterruptRequest{
		Envelope:   newEnvelope(conversationID),
		TurnNumber: turnNumber,
		Source:     source,
	})
	_ = h.bus.Emit(ctx, event.ConversationPaused{
		Envelope:     newEnvelope(conversationID),
		TurnNumber:   turnNumber,
		PausedDuring: pausedDuring,
	})
}

// Close stops watching for further signals and unregisters the handler.
// Safe to call multiple times.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	signal.Stop(h.sigCh)
	close(h.sigCh)
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
