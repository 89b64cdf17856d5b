// Package cli provides the loom command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tOgg1/loom/internal/config"
	"github.com/tOgg1/loom/internal/logging"
)

var (
	flagConfigFile string
	flagLogLevel   string
	flagLogFormat  string

	loadedConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "loom",
	Short: "Room timeline reconciliation engine",
	Long: "Loom reconciles an unordered stream of room events (messages, edits,\n" +
		"reactions, redactions, receipts) into an ordered, continuously updated\n" +
		"timeline and publishes every change as positional diffs.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loader := config.NewLoader()
		if flagConfigFile != "" {
			loader.SetConfigFile(flagConfigFile)
		}

		cfg, err := loader.Load()
		if err != nil {
			return err
		}
		if flagLogLevel != "" {
			cfg.Logging.Level = flagLogLevel
		}
		if flagLogFormat != "" {
			cfg.Logging.Format = flagLogFormat
		}
		loadedConfig = cfg

		logging.Init(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "", "log format (json, console)")
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return loadedConfig
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
