// Package cmd implements the pidgin CLI: a thin cobra/viper composition
// root over pkg/conductor. It carries no conversation-orchestration logic
// of its own.
package cmd

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pidginhq/pidgin/internal/pidginlog"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "pidgin",
	Short: "Run event-driven conversations between two AI agents",
	Long: `Pidgin orchestrates a structured conversation between two AI agents,
alternating turns, scoring semantic convergence, and emitting a typed event
log of everything that happens along the way.`,
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.pidgin.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable debug-level logging")

	if err := viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding verbose flag: %v\n", err)
	}
}

func initConfig() {
	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	pidginlog.InitLogger(os.Stderr, level, true)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			pidginlog.WithError(err).Error("failed to get home directory")
			fmt.Fprintf(os.Stderr, "Error getting home directory: %v\n", err)
			os.Exit(1)
		}

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pidgin")
	}

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		pidginlog.WithField("config_file", viper.ConfigFileUsed()).Info("loaded configuration file")
	} else {
		pidginlog.WithError(err).Debug("no config file found, using defaults")
	}
}
