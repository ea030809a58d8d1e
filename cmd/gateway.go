package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"babybot/pkg/channel"
	"babybot/pkg/channel/line"
	"babybot/pkg/channel/telegram"
	"babybot/pkg/config"
	"babybot/pkg/gateway"
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Run channel gateway mode",
	Long:  "Runs the enabled chat channels against the configured backends and serves health, readiness and metrics endpoints.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = args

		cfg, log, err := loadRuntime("cmd.gateway")
		if err != nil {
			fmt.Printf("%v\n", err)
			return
		}

		adapters, err := enabledAdapters(cfg, log)
		if err != nil {
			log.Error("Gateway configuration invalid", "error", err)
			return
		}

		runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backends, err := gateway.OpenBackends(runCtx, cfg, log)
		if err != nil {
			log.Error("Failed to open backends", "error", err)
			return
		}
		defer backends.Close()

		svc, err := gateway.NewService(cfg, adapters, backends, log)
		if err != nil {
			log.Error("Failed to initialize gateway service", "error", err)
			return
		}

		log.Info("Gateway started", "channels", enabledChannelNames(adapters), "persistence", cfg.Persistence.Mode)
		if err := svc.Run(runCtx); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error("Gateway runtime failed", "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(gatewayCmd)
}

func enabledAdapters(cfg *config.Config, log *slog.Logger) ([]channel.Adapter, error) {
	adapters := make([]channel.Adapter, 0, 2)

	if cfg.Line.Enabled {
		adapter, err := line.NewAdapter(cfg.Line, log)
		if err != nil {
			return nil, fmt.Errorf("configure line channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if cfg.Telegram.Enabled {
		adapter, err := telegram.NewAdapter(cfg.Telegram, log)
		if err != nil {
			return nil, fmt.Errorf("configure telegram channel: %w", err)
		}
		adapters = append(adapters, adapter)
	}

	if len(adapters) == 0 {
		return nil, errors.New("no channels are enabled")
	}

	return adapters, nil
}

func enabledChannelNames(adapters []channel.Adapter) string {
	names := make([]string, 0, len(adapters))
	for _, adapter := range adapters {
		names = append(names, adapter.Name())
	}

	return strings.Join(names, ",")
}
