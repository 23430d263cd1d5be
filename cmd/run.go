package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/pidginhq/pidgin/internal/displaysub"
	"github.com/pidginhq/pidgin/internal/pidginlog"
	"github.com/pidginhq/pidgin/internal/providers"
	"github.com/pidginhq/pidgin/pkg/conductor"
	"github.com/pidginhq/pidgin/pkg/config"
	"github.com/pidginhq/pidgin/pkg/conversation"
	"github.com/pidginhq/pidgin/pkg/event"
	"github.com/pidginhq/pidgin/pkg/export"
	"github.com/pidginhq/pidgin/pkg/metrics"
	"github.com/pidginhq/pidgin/pkg/provider"
	"github.com/pidginhq/pidgin/pkg/provider/httpprovider"
)

const shutdownTimeout = 5 * time.Second

var (
	runConfigPath   string
	runMock         bool
	runSaveState    bool
	runExportPath   string
	runExportFormat string
	runNoDisplay    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a conversation between two configured agents",
	Long: `Run loads a YAML configuration describing two agents, wires the
conductor, and drives the conversation to completion (max turns, high
convergence, or an operator interrupt).`,
	RunE: runConversation,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "", "path to YAML configuration file (required)")
	runCmd.Flags().BoolVar(&runMock, "mock", false, "use an in-process mock provider instead of calling real APIs")
	runCmd.Flags().BoolVar(&runSaveState, "save-state", false, "save a snapshot of the finished conversation to ~/.pidgin/snapshots")
	runCmd.Flags().StringVar(&runExportPath, "export", "", "write the finished conversation to this path in --export-format")
	runCmd.Flags().StringVar(&runExportFormat, "export-format", "markdown", "export format: json, markdown, or html")
	runCmd.Flags().BoolVar(&runNoDisplay, "no-display", false, "disable the colored terminal transcript")

	_ = runCmd.MarkFlagRequired("config")
}

func runConversation(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(runConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	factory := newHTTPProvider
	if runMock {
		factory = newMockProvider
	}

	c := conductor.New(cfg, factory, nil)

	var hooks []conductor.BusHook
	if !runNoDisplay {
		display := displaysub.New(os.Stdout, 100)
		hooks = append(hooks, func(bus *event.Bus) { display.Subscribe(bus) })
	}

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer = metrics.NewServer(metrics.ServerConfig{Addr: cfg.Metrics.Addr})
		hooks = append(hooks, func(bus *event.Bus) { metricsServer.GetMetrics().Subscribe(bus) })
		go func() {
			if err := metricsServer.Start(); err != nil {
				pidginlog.WithError(err).Error("metrics server stopped unexpectedly")
			}
		}()
	}
	c.WithBusHooks(hooks...)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	outcome, err := c.Run(ctx)
	if err != nil {
		return fmt.Errorf("conversation run failed: %w", err)
	}

	if metricsServer != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := metricsServer.Stop(stopCtx); err != nil {
			pidginlog.WithError(err).Warn("failed to stop metrics server cleanly")
		}
	}

	pidginlog.WithFields(map[string]interface{}{
		"conversation_id": outcome.ConversationID,
		"total_turns":     outcome.TotalTurns,
		"reason":          string(outcome.Reason),
	}).Info("run complete")

	if runSaveState {
		if err := saveSnapshot(cfg, outcome); err != nil {
			return err
		}
	}
	if runExportPath != "" {
		if err := exportConversation(cfg, outcome); err != nil {
			return err
		}
	}

	return nil
}

func saveSnapshot(cfg *config.Config, outcome conductor.Outcome) error {
	dir, err := conversation.DefaultSnapshotDir()
	if err != nil {
		return fmt.Errorf("failed to resolve snapshot directory: %w", err)
	}
	snap := conversation.NewSnapshot(outcome.ConversationID, outcome.History, cfg, outcome.StartedAt, outcome.TotalTurns, outcome.Reason)
	path := filepath.Join(dir, conversation.GenerateSnapshotFileName())
	if err := snap.Save(path); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	pidginlog.WithField("path", path).Info("saved conversation snapshot")
	return nil
}

func exportConversation(cfg *config.Config, outcome conductor.Outcome) error {
	f, err := os.Create(runExportPath)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	defer f.Close()

	exporter := export.NewExporter(export.Options{
		Format: export.Format(runExportFormat),
		Title:  "Pidgin Conversation",
		DisplayNames: map[string]string{
			"agent_a": cfg.AgentA.DisplayName,
			"agent_b": cfg.AgentB.DisplayName,
		},
	})
	if err := exporter.Export(outcome.History, f); err != nil {
		return fmt.Errorf("failed to export conversation: %w", err)
	}
	pidginlog.WithField("path", runExportPath).Info("exported conversation")
	return nil
}

// newHTTPProvider resolves an agent's model to its provider via the
// registry (for the default base URL); a config-level APIEndpoint override
// always wins.
func newHTTPProvider(agentCfg config.AgentConfig) provider.Provider {
	baseURL := agentCfg.APIEndpoint
	if baseURL == "" {
		if _, prov, err := providers.GetRegistry().GetModel(agentCfg.Model); err == nil {
			baseURL = prov.BaseURL
		}
	}
	return httpprovider.New(baseURL, agentCfg.APIKey, agentCfg.Model)
}

func newMockProvider(agentCfg config.AgentConfig) provider.Provider {
	return provider.NewMockProvider(fmt.Sprintf("(%s) noted.", agentCfg.Model))
}
