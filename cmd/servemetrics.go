package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pidginhq/pidgin/internal/pidginlog"
	"github.com/pidginhq/pidgin/pkg/metrics"
)

var serveMetricsAddr string

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Run a standalone Prometheus metrics endpoint",
	Long: `Serve-metrics starts the /metrics, /health, and / endpoints without
running a conversation. It is useful for verifying scrape configuration, or
for a deployment that fronts several pidgin run processes with one shared
collector via pushgateway in front of this server.`,
	RunE: serveMetrics,
}

func init() {
	rootCmd.AddCommand(serveMetricsCmd)
	serveMetricsCmd.Flags().StringVar(&serveMetricsAddr, "addr", ":9090", "address to listen on")
}

func serveMetrics(cmd *cobra.Command, args []string) error {
	server := metrics.NewServer(metrics.ServerConfig{Addr: serveMetricsAddr})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics server failed: %w", err)
		}
		return nil
	case <-sigCh:
		pidginlog.Info("shutting down metrics server")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Stop(ctx)
	}
}
