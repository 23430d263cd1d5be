package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pidginhq/pidgin/internal/pidginlog"
)

// Server is an HTTP server that exposes Prometheus metrics.
type Server struct {
	addr     string
	server   *http.Server
	registry *prometheus.Registry
	metrics  *Metrics
}

// ServerConfig contains configuration for the metrics server.
type ServerConfig struct {
	// Addr is the address to listen on (e.g., ":9090")
	Addr string

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout is the maximum duration before timing out writes
	WriteTimeout time.Duration

	// Registry is the Prometheus registry to use (if nil, a new one is created)
	Registry *prometheus.Registry
}

// NewServer creates a new metrics server with the given configuration.
func NewServer(config ServerConfig) *Server {
	if config.Addr == "" {
		config.Addr = ":9090"
	}

	if config.ReadTimeout == 0 {
		config.ReadTimeout = 5 * time.Second
	}

	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	registry := config.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	metrics := NewMetrics(registry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/", indexHandler)

	server := &http.Server{
		Addr:         config.Addr,
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return &Server{
		addr:     config.Addr,
		server:   server,
		registry: registry,
		metrics:  metrics,
	}
}

// Start starts the metrics server.
// This method blocks until the server is stopped or encounters an error.
func (s *Server) Start() error {
	pidginlog.WithField("addr", s.addr).Info("starting metrics server")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		pidginlog.WithError(err).Error("metrics server failed")
		return fmt.Errorf("metrics server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	pidginlog.Info("stopping metrics server")

	if err := s.server.Shutdown(ctx); err != nil {
		pidginlog.WithError(err).Error("metrics server shutdown failed")
		return fmt.Errorf("metrics server shutdown failed: %w", err)
	}

	pidginlog.Info("metrics server stopped")
	return nil
}

// GetMetrics returns the metrics instance for recording.
func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

// GetRegistry returns the Prometheus registry.
func (s *Server) GetRegistry() *prometheus.Registry {
	return s.registry
}

// healthHandler handles health check requests.
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","service":"pidgin-metrics"}`)
}

// indexHandler handles requests to the root path.
func indexHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head>
    <title>Pidgin Metrics</title>
    <style>
        body { font-family: Arial, sans-serif; max-width: 800px; margin: 50px auto; padding: 20px; }
        h1 { color: #333; }
        a { color: #0066cc; text-decoration: none; }
        a:hover { text-decoration: underline; }
        .endpoint { margin: 20px 0; padding: 15px; background-color: #f5f5f5; border-left: 4px solid #0066cc; }
        code { background-color: #e8e8e8; padding: 2px 6px; border-radius: 3px; }
    </style>
</head>
<body>
    <h1>Pidgin Metrics Server</h1>
    <p>This server exposes Prometheus metrics for Pidgin conversation runs.</p>

    <div class="endpoint">
        <h2><a href="/metrics">/metrics</a></h2>
        <p>Prometheus metrics endpoint in OpenMetrics format.</p>
    </div>

    <div class="endpoint">
        <h2><a href="/health">/health</a></h2>
        <p>Health check endpoint. Returns JSON with service status.</p>
    </div>

    <h2>Available Metrics</h2>
    <ul>
        <li><code>pidgin_events_emitted_total</code> - Total events emitted on the bus, by event type</li>
        <li><code>pidgin_rate_limit_waits_total</code> - Total rate limiter waits, by provider and reason</li>
        <li><code>pidgin_rate_limit_wait_seconds</code> - Rate limiter wait duration histogram, by provider</li>
        <li><code>pidgin_turn_duration_seconds</code> - Agent reply duration histogram (one observation per reply), by conversation</li>
        <li><code>pidgin_convergence_score</code> - Most recent convergence score, by conversation</li>
        <li><code>pidgin_tokens_total</code> - Total tokens consumed, by provider and token kind</li>
        <li><code>pidgin_cost_usd_total</code> - Total estimated cost in USD, by provider</li>
        <li><code>pidgin_api_errors_total</code> - Total provider API errors, by provider and error type</li>
        <li><code>pidgin_active_conversations</code> - Current number of in-flight conversations</li>
    </ul>

    <h2>Example Prometheus Configuration</h2>
    <pre><code>scrape_configs:
  - job_name: 'pidgin'
    static_configs:
      - targets: ['localhost:9090']
    scrape_interval: 15s</code></pre>
</body>
</html>`)
}
