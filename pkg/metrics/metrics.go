package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus instruments Pidgin records against during a
// run: how many events of each type were emitted, how the rate limiter
// paced requests, how long agent replies took, and how convergence scores
// evolved.
type Metrics struct {
	EventsEmittedTotal *prometheus.CounterVec
	RateLimitWaitsTotal *prometheus.CounterVec
	RateLimitWaitSeconds *prometheus.HistogramVec
	TurnDurationSeconds *prometheus.HistogramVec
	ConvergenceScore   *prometheus.GaugeVec
	TokensTotal        *prometheus.CounterVec
	CostUSDTotal       *prometheus.CounterVec
	APIErrorsTotal     *prometheus.CounterVec
	ActiveConversations prometheus.Gauge
}

// NewMetrics registers every instrument against registry and returns the
// bundle. Each call must be given a fresh registry -- registering the same
// metric name twice against one registry panics.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		EventsEmittedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pidgin_events_emitted_total",
			Help: "Total events emitted on the bus, by event type.",
		}, []string{"event_type"}),

		RateLimitWaitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pidgin_rate_limit_waits_total",
			Help: "Total times the rate limiter made a request wait, by provider and reason.",
		}, []string{"provider", "reason"}),

		RateLimitWaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pidgin_rate_limit_wait_seconds",
			Help:    "Distribution of rate limiter wait durations, by provider.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),

		TurnDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pidgin_turn_duration_seconds",
			Help:    "Distribution of agent reply durations, one observation per MessageComplete (two per turn).",
			Buckets: prometheus.DefBuckets,
		}, []string{"conversation_id"}),

		ConvergenceScore: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pidgin_convergence_score",
			Help: "Most recent convergence score for a conversation.",
		}, []string{"conversation_id"}),

		TokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pidgin_tokens_total",
			Help: "Total tokens consumed, by provider and token kind (prompt/completion).",
		}, []string{"provider", "kind"}),

		CostUSDTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pidgin_cost_usd_total",
			Help: "Total estimated cost in USD, by provider.",
		}, []string{"provider"}),

		APIErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pidgin_api_errors_total",
			Help: "Total provider API errors, by provider and error type.",
		}, []string{"provider", "error_type"}),

		ActiveConversations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pidgin_active_conversations",
			Help: "Current number of in-flight conversations.",
		}),
	}

	registry.MustRegister(
		m.EventsEmittedTotal,
		m.RateLimitWaitsTotal,
		m.RateLimitWaitSeconds,
		m.TurnDurationSeconds,
		m.ConvergenceScore,
		m.TokensTotal,
		m.CostUSDTotal,
		m.APIErrorsTotal,
		m.ActiveConversations,
	)

	return m
}
