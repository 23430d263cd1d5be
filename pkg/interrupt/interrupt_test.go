package interrupt

import (
	"context"
	"testing"

	"github.com/pidginhq/pidgin/pkg/event"
)

func TestNew_DefaultsToAlwaysExitPolicy(t *testing.T) {
	bus := event.NewBus("", 0)
	h := New(bus, nil)

	if h.ShouldContinue(event.InterruptUser) {
		t.Error("expected default policy to never continue")
	}
}

func TestHandler_InterruptRequested_InitiallyFalse(t *testing.T) {
	bus := event.NewBus("", 0)
	h := New(bus, nil)

	if h.InterruptRequested() {
		t.Error("expected no interrupt requested before any signal")
	}
}

func TestHandler_HandlePause_EmitsRequestAndPaused(t *testing.T) {
	bus := event.NewBus("", 0)
	h := New(bus, nil)

	var sawRequest, sawPaused bool
	bus.Subscribe(event.TypeInterruptRequest, func(_ context.Context, e event.Event) error {
		sawRequest = true
		req := e.(event.InterruptRequest)
		if req.TurnNumber != 3 {
			t.Errorf("expected turn number 3, got %d", req.TurnNumber)
		}
		if req.Source != event.InterruptUser {
			t.Errorf("expected InterruptUser source, got %s", req.Source)
		}
		return nil
	})
	bus.Subscribe(event.TypeConversationPaused, func(_ context.Context, e event.Event) error {
		sawPaused = true
		paused := e.(event.ConversationPaused)
		if paused.PausedDuring != "turn_3" {
			t.Errorf("expected paused_during turn_3, got %s", paused.PausedDuring)
		}
		return nil
	})

	h.HandlePause(context.Background(), "conv_1", 3, event.InterruptUser, "turn_3")

	if !sawRequest {
		t.Error("expected InterruptRequest to be emitted")
	}
	if !sawPaused {
		t.Error("expected ConversationPaused to be emitted")
	}
}

func TestHandler_Close_IsIdempotent(t *testing.T) {
	bus := event.NewBus("", 0)
	h := New(bus, nil)
	h.Install()

	h.Close()
	h.Close()
}

func TestAlwaysExit_NeverContinues(t *testing.T) {
	if AlwaysExit(event.InterruptUser) {
		t.Error("expected AlwaysExit to always return false")
	}
	if AlwaysExit(event.InterruptConvergence) {
		t.Error("expected AlwaysExit to always return false regardless of reason")
	}
}
