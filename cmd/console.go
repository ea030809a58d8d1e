package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"babybot/pkg/dispatch"
	"babybot/pkg/gateway"
	"babybot/pkg/messaging"
	"babybot/pkg/ui/console"
)

var (
	consoleUser string
	consoleText string
)

var consoleCmd = &cobra.Command{
	Use:   "console [text]",
	Short: "Chat with the bot from the terminal",
	Long:  "Sends messages through the same dispatcher and backends the chat channels use. With text, sends one message and exits; without, starts an interactive session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadRuntime("cmd.console")
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		backends, err := gateway.OpenBackends(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("open backends: %w", err)
		}
		defer backends.Close()

		messenger := console.NewMessenger(consoleUser)
		d, err := dispatch.New(dispatch.Deps{
			Messenger: messaging.Guard(messenger, backends.Ledger, 0),
			Store:     backends.Store,
			Storage:   backends.Storage,
			Feed:      backends.Feed,
			Log:       log,
			Platform:  console.Platform,
			Defaults:  cfg.Defaults,
			LinkTTL:   time.Duration(cfg.Storage.PresignExpirySeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("build dispatcher: %w", err)
		}

		session, err := console.NewSession(messenger, d.HandleBatch, consoleUser)
		if err != nil {
			return err
		}

		if text := resolveText(args); text != "" {
			return console.RunOneShot(ctx, session.Prompt, text, consoleUser)
		}
		return console.RunInteractive(ctx, session.Prompt, consoleUser)
	},
}

func init() {
	rootCmd.AddCommand(consoleCmd)
	consoleCmd.Flags().StringVarP(&consoleText, "text", "t", "", "message text to send")
	consoleCmd.Flags().StringVarP(&consoleUser, "user", "u", "console-user", "platform user ID to send as")
}

func resolveText(args []string) string {
	if value := strings.TrimSpace(consoleText); value != "" {
		return value
	}

	return strings.TrimSpace(strings.Join(args, " "))
}
