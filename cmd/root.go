package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"babybot/pkg/config"
	"babybot/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "babybot",
	Short: "Chat bot that logs a baby's daily activities",
	Long:  "BabyBot receives chat messages from LINE and Telegram, records milk, food, sleep, medicine, height, weight and diary entries, and stores shared photos and videos.",
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadRuntime loads configuration and installs the process logger as the
// slog default.
func loadRuntime(component string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	appLogger, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	slog.SetDefault(appLogger)

	return cfg, appLogger.With("component", component), nil
}
