package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"interview-copilot/internal/config"
	"interview-copilot/internal/observability/logging"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "interview-copilot",
	Short: "Local capture agent for the interview co-pilot",
	Long: "Captures interview audio, relays it for live transcription and forwards " +
		"questions to the co-pilot backend.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configFile != "" {
			return os.Setenv("CONFIG_FILE", configFile)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overridden by environment)")
	rootCmd.AddCommand(serveCmd, settingsCmd, sessionsCmd)
}

// loadConfig loads configuration and initialises logging from it.
func loadConfig() (*config.Configuration, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})
	return cfg, nil
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
