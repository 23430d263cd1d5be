package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/pidginhq/pidgin/pkg/event"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("failed to read gauge: %v", err)
	}
	return m.GetGauge().GetValue()
}

func TestNewMetrics_RegistersWithoutPanic(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}
}

func TestMetrics_Subscribe_TracksActiveConversations(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	bus := event.NewBus("", 0)
	m.Subscribe(bus)

	_ = bus.Emit(context.Background(), event.ConversationStart{
		Envelope: event.Envelope{EventID: "e1", ConversationID: "conv_1", Timestamp: time.Now()},
	})
	if got := gaugeValue(t, m.ActiveConversations); got != 1 {
		t.Errorf("expected 1 active conversation, got %f", got)
	}

	_ = bus.Emit(context.Background(), event.ConversationEnd{
		Envelope: event.Envelope{EventID: "e2", ConversationID: "conv_1", Timestamp: time.Now()},
	})
	if got := gaugeValue(t, m.ActiveConversations); got != 0 {
		t.Errorf("expected 0 active conversations after end, got %f", got)
	}
}

func TestMetrics_Subscribe_RecordsTokensAndCost(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	bus := event.NewBus("", 0)
	m.Subscribe(bus)

	_ = bus.Emit(context.Background(), event.TokenUsage{
		Envelope:         event.Envelope{EventID: "e1", ConversationID: "conv_1", Timestamp: time.Now()},
		Provider:         "openai",
		PromptTokens:     100,
		CompletionTokens: 50,
		EstimatedCostUSD: 0.002,
	})

	if got := counterValue(t, m.TokensTotal.WithLabelValues("openai", "prompt")); got != 100 {
		t.Errorf("expected 100 prompt tokens, got %f", got)
	}
	if got := counterValue(t, m.TokensTotal.WithLabelValues("openai", "completion")); got != 50 {
		t.Errorf("expected 50 completion tokens, got %f", got)
	}
	if got := counterValue(t, m.CostUSDTotal.WithLabelValues("openai")); got != 0.002 {
		t.Errorf("expected cost 0.002, got %f", got)
	}
}

func TestMetrics_Subscribe_RecordsAPIErrors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	bus := event.NewBus("", 0)
	m.Subscribe(bus)

	_ = bus.Emit(context.Background(), event.APIError{
		Envelope:  event.Envelope{EventID: "e1", ConversationID: "conv_1", Timestamp: time.Now()},
		Provider:  "anthropic",
		ErrorType: "rate_limit",
	})

	if got := counterValue(t, m.APIErrorsTotal.WithLabelValues("anthropic", "rate_limit")); got != 1 {
		t.Errorf("expected 1 api error, got %f", got)
	}
}

func TestMetrics_Subscribe_RecordsEventCounts(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	bus := event.NewBus("", 0)
	m.Subscribe(bus)

	_ = bus.Emit(context.Background(), event.TurnStart{
		Envelope:   event.Envelope{EventID: "e1", ConversationID: "conv_1", Timestamp: time.Now()},
		TurnNumber: 0,
	})

	if got := counterValue(t, m.EventsEmittedTotal.WithLabelValues(string(event.TypeTurnStart))); got != 1 {
		t.Errorf("expected 1 TurnStart event recorded, got %f", got)
	}
}
