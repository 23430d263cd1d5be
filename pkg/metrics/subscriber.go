package metrics

import (
	"context"

	"github.com/pidginhq/pidgin/pkg/event"
)

// Subscribe registers a wildcard handler on bus that keeps m's instruments
// current as the conductor emits events. It is the bridge between the
// closed event vocabulary and the Prometheus surface -- the conductor never
// calls into metrics directly.
func (m *Metrics) Subscribe(bus *event.Bus) uint64 {
	return bus.SubscribeAll(m.onEvent)
}

func (m *Metrics) onEvent(_ context.Context, e event.Event) error {
	m.EventsEmittedTotal.WithLabelValues(string(e.EventType())).Inc()

	switch ev := e.(type) {
	case event.ConversationStart:
		m.ActiveConversations.Inc()

	case event.ConversationEnd:
		m.ActiveConversations.Dec()

	case event.TurnComplete:
		m.ConvergenceScore.WithLabelValues(ev.Envelope.ConversationID).Set(ev.ConvergenceScore)

	case event.RateLimitPace:
		m.RateLimitWaitsTotal.WithLabelValues(ev.Provider, string(ev.Reason)).Inc()
		m.RateLimitWaitSeconds.WithLabelValues(ev.Provider).Observe(ev.WaitTime.Seconds())

	case event.TokenUsage:
		m.TokensTotal.WithLabelValues(ev.Provider, "prompt").Add(float64(ev.PromptTokens))
		m.TokensTotal.WithLabelValues(ev.Provider, "completion").Add(float64(ev.CompletionTokens))
		m.CostUSDTotal.WithLabelValues(ev.Provider).Add(ev.EstimatedCostUSD)

	case event.APIError:
		m.APIErrorsTotal.WithLabelValues(ev.Provider, ev.ErrorType).Inc()

	case event.MessageComplete:
		m.TurnDurationSeconds.WithLabelValues(ev.Envelope.ConversationID).Observe(float64(ev.DurationMs) / 1000.0)
	}

	return nil
}
