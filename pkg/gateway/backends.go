package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"babybot/pkg/config"
	"babybot/pkg/feed"
	"babybot/pkg/messaging"
	"babybot/pkg/messaging/dynamo"
	"babybot/pkg/persistence"
	"babybot/pkg/persistence/memory"
	"babybot/pkg/persistence/postgres"
	"babybot/pkg/persistence/remote"
	"babybot/pkg/storage"
	"babybot/pkg/storage/local"
	"babybot/pkg/storage/s3store"
)

// Backends are the collaborators shared by every channel, built once from
// configuration.
type Backends struct {
	Store   persistence.Store
	Storage storage.Store
	Ledger  messaging.Ledger
	Feed    feed.Publisher

	closers []func()
}

// OpenBackends connects persistence, media storage, the reply-token ledger
// and the activity feed selected by cfg.
func OpenBackends(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Backends, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "gateway.backends")

	b := &Backends{}
	ok := false
	defer func() {
		if !ok {
			b.Close()
		}
	}()

	switch cfg.Persistence.Mode {
	case config.PersistencePostgres:
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.Store = postgres.New(pool)
	case config.PersistenceLambda:
		client, err := remote.New(ctx, cfg.Persistence.Lambda, log)
		if err != nil {
			return nil, fmt.Errorf("open remote persistence: %w", err)
		}
		b.Store = client
	default:
		b.Store = memory.New()
	}
	log.Info("Persistence ready", "mode", cfg.Persistence.Mode)

	if cfg.Storage.Bucket != "" {
		store, err := s3store.New(ctx, cfg.Storage, log)
		if err != nil {
			return nil, fmt.Errorf("open media bucket: %w", err)
		}
		b.Storage = store
		log.Info("Media storage ready", "bucket", cfg.Storage.Bucket)
	} else {
		b.Storage = local.New(cfg.Storage.LocalDir)
		log.Info("Media storage ready", "dir", cfg.Storage.LocalDir)
	}

	if cfg.Ledger.DynamoTable != "" {
		ledger, err := dynamo.New(ctx, cfg.Ledger)
		if err != nil {
			return nil, fmt.Errorf("open reply-token ledger: %w", err)
		}
		b.Ledger = ledger
	} else {
		b.Ledger = messaging.NewMemoryLedger()
	}

	if len(cfg.Feed.Brokers) > 0 {
		publisher := feed.NewKafka(cfg.Feed.Brokers, cfg.Feed.Topic)
		b.Feed = publisher
		b.closers = append(b.closers, func() {
			if err := publisher.Close(); err != nil {
				log.Warn("Failed to close activity feed", "error", err)
			}
		})
		log.Info("Activity feed enabled", "topic", cfg.Feed.Topic)
	} else {
		b.Feed = feed.Nop{}
	}

	ok = true
	return b, nil
}

// Close releases connections in reverse opening order.
func (b *Backends) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}
