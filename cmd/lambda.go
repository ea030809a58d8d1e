package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/spf13/cobra"

	"babybot/pkg/channel/line"
	"babybot/pkg/config"
	"babybot/pkg/dispatch"
	"babybot/pkg/gateway"
	"babybot/pkg/messaging"
	"babybot/pkg/persistence/remote"
	"babybot/pkg/serverless"
)

var lambdaCmd = &cobra.Command{
	Use:   "lambda",
	Short: "Run as an AWS Lambda function",
}

var lambdaWebhookCmd = &cobra.Command{
	Use:   "webhook",
	Short: "Serve the LINE webhook behind a Lambda function URL",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, log, err := loadRuntime("cmd.lambda.webhook")
		if err != nil {
			return err
		}

		ctx := context.Background()
		backends, err := gateway.OpenBackends(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("open backends: %w", err)
		}
		defer backends.Close()

		adapter, err := line.NewAdapter(cfg.Line, log)
		if err != nil {
			return fmt.Errorf("configure line channel: %w", err)
		}

		d, err := dispatch.New(dispatch.Deps{
			Messenger: messaging.Guard(adapter.Messenger(), backends.Ledger, adapter.ReplyTokenTTL()),
			Store:     backends.Store,
			Storage:   backends.Storage,
			Feed:      backends.Feed,
			Log:       log,
			Platform:  adapter.Name(),
			Defaults:  cfg.Defaults,
			LinkTTL:   time.Duration(cfg.Storage.PresignExpirySeconds) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("build dispatcher: %w", err)
		}

		hook := line.NewWebhook(cfg.Line.ChannelSecret, d.HandleBatch, log)
		lambda.Start(serverless.NewWebhookHandler(hook, log).Handle)
		return nil
	},
}

var lambdaStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Serve persistence requests for remote clients",
	Long:  "Fronts the configured database for gateways running with persistence mode lambda.",
	RunE: func(cmd *cobra.Command, args []string) error {
		_ = args

		cfg, log, err := loadRuntime("cmd.lambda.store")
		if err != nil {
			return err
		}
		if cfg.Persistence.Mode == config.PersistenceLambda {
			return errors.New("the store function cannot itself use persistence mode lambda")
		}

		backends, err := gateway.OpenBackends(context.Background(), cfg, log)
		if err != nil {
			return fmt.Errorf("open backends: %w", err)
		}
		defer backends.Close()

		handler := &remote.Handler{Store: backends.Store, Log: log}
		lambda.Start(handler.Handle)
		return nil
	},
}

func init() {
	lambdaCmd.AddCommand(lambdaWebhookCmd, lambdaStoreCmd)
	rootCmd.AddCommand(lambdaCmd)
}
