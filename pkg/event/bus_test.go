package event

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBusDispatchOrderAndWildcard(t *testing.T) {
	b := NewBus("", 10)

	var order []string
	b.Subscribe(TypeTurnStart, func(ctx context.Context, e Event) error {
		order = append(order, "specific")
		return nil
	})
	b.SubscribeAll(func(ctx context.Context, e Event) error {
		order = append(order, "wildcard")
		return nil
	})

	evt := TurnStart{Envelope: Envelope{EventID: "e1", ConversationID: "c1", Timestamp: time.Now()}, TurnNumber: 0}
	if err := b.Emit(context.Background(), evt); err != nil {
		t.Fatalf("emit: %v", err)
	}

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Fatalf("expected registration-order dispatch, got %v", order)
	}
}

func TestBusSwallowsHandlerErrors(t *testing.T) {
	b := NewBus("", 10)
	called := false
	b.SubscribeAll(func(ctx context.Context, e Event) error {
		return errors.New("boom")
	})
	b.SubscribeAll(func(ctx context.Context, e Event) error {
		called = true
		return nil
	})

	evt := TurnStart{Envelope: Envelope{EventID: "e1", ConversationID: "c1", Timestamp: time.Now()}}
	if err := b.Emit(context.Background(), evt); err != nil {
		t.Fatalf("emit should never fail due to handler error: %v", err)
	}
	if !called {
		t.Fatal("second handler should still run after first returns an error")
	}
}

func TestBusHistoryBounded(t *testing.T) {
	b := NewBus("", 2)
	for i := 0; i < 5; i++ {
		b.Emit(context.Background(), TurnStart{Envelope: Envelope{EventID: "e", ConversationID: "c", Timestamp: time.Now()}, TurnNumber: i})
	}
	hist := b.History(nil)
	if len(hist) != 2 {
		t.Fatalf("expected bounded history of 2, got %d", len(hist))
	}
	last := hist[len(hist)-1].(TurnStart)
	if last.TurnNumber != 4 {
		t.Fatalf("expected most recent event retained, got turn %d", last.TurnNumber)
	}
}

func TestBusPersistsJSONLAndClosesOnStop(t *testing.T) {
	dir := t.TempDir()
	b := NewBus(dir, 10)

	conv := "abc123"
	b.Emit(context.Background(), ConversationStart{Envelope: Envelope{EventID: "e1", ConversationID: conv, Timestamp: time.Now()}, ModelA: "m-a", ModelB: "m-b"})
	b.Emit(context.Background(), TurnStart{Envelope: Envelope{EventID: "e2", ConversationID: conv, Timestamp: time.Now()}, TurnNumber: 0})

	if err := b.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	path := filepath.Join(dir, conv+"_events.jsonl")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatal("expected non-empty jsonl log")
	}
}

func TestEventRoundTrip(t *testing.T) {
	original := MessageComplete{
		Envelope:         Envelope{EventID: "e1", ConversationID: "c1", Timestamp: time.Now().UTC().Truncate(time.Microsecond)},
		AgentID:          "agent_a",
		Message:          Message{Role: RoleAssistant, Content: "hi", AgentID: "agent_a", Timestamp: time.Now().UTC().Truncate(time.Microsecond)},
		PromptTokens:     10,
		CompletionTokens: 2,
		TotalTokens:      12,
		DurationMs:       42,
	}

	line, err := EncodeLine(original)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, ok, err := DecodeLine(line)
	if err != nil || !ok {
		t.Fatalf("decode: ok=%v err=%v", ok, err)
	}

	got, isMC := decoded.(MessageComplete)
	if !isMC {
		t.Fatalf("expected MessageComplete, got %T", decoded)
	}
	if got.AgentID != original.AgentID || got.TotalTokens != original.TotalTokens {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, original)
	}
}

func TestDecodeLineUnknownTypeIsSkippedNotFailed(t *testing.T) {
	_, ok, err := DecodeLine([]byte(`{"event_type":"SomethingFromTheFuture"}`))
	if err != nil {
		t.Fatalf("unknown type should not error: %v", err)
	}
	if ok {
		t.Fatal("unknown type should report ok=false")
	}
}
