package gateway

import (
	"context"
	"testing"
	"time"

	"babybot/pkg/config"
	"babybot/pkg/persistence/memory"
)

func TestIsReady(t *testing.T) {
	t.Parallel()

	svc := &Service{channelStates: map[string]channelState{"telegram": {Running: true}}}
	if svc.isReady() {
		t.Fatal("expected not ready without persistence health")
	}

	svc.storeLastOKAt = time.Now().UTC()
	if !svc.isReady() {
		t.Fatal("expected ready with running channel and healthy persistence")
	}

	svc.storeLastErr = "boom"
	if svc.isReady() {
		t.Fatal("expected not ready when persistence has error")
	}

	svc.storeLastErr = ""
	svc.channelStates["telegram"] = channelState{Running: false, Error: "closed"}
	if svc.isReady() {
		t.Fatal("expected not ready without a running channel")
	}
}

func TestNewServiceValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, nil, nil, nil); err == nil {
		t.Fatal("expected error without config")
	}
	if _, err := NewService(&config.Config{}, nil, &Backends{}, nil); err == nil {
		t.Fatal("expected error without adapters")
	}
}

func TestOpenBackendsMemory(t *testing.T) {
	cfg := &config.Config{
		Persistence: config.PersistenceConfig{Mode: config.PersistenceMemory},
		Storage:     config.StorageConfig{LocalDir: t.TempDir()},
		Line:        config.LineConfig{ReplyTokenTTLSeconds: 60},
	}

	backends, err := OpenBackends(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("OpenBackends error: %v", err)
	}
	defer backends.Close()

	if _, ok := backends.Store.(*memory.Store); !ok {
		t.Fatalf("store = %T, want *memory.Store", backends.Store)
	}
	if backends.Ledger == nil || backends.Feed == nil || backends.Storage == nil {
		t.Fatalf("backends = %+v, want every collaborator set", backends)
	}
}
