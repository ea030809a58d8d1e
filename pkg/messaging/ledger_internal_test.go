package messaging

import (
	"context"
	"testing"
	"time"

	"babybot/pkg/failure"
)

func TestMemoryLedgerKeepsUnstampedClaims(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ledger := NewMemoryLedger()
	ledger.now = func() time.Time { return now }
	ctx := context.Background()

	if err := ledger.Claim(ctx, "tok", time.Time{}, time.Minute); err != nil {
		t.Fatalf("first Claim error: %v", err)
	}

	now = now.Add(30 * time.Minute)
	if got := failure.KindOf(ledger.Claim(ctx, "tok", time.Time{}, time.Minute)); got != failure.ReplyTokenReused {
		t.Fatalf("Claim after 30m kind = %q, want %q", got, failure.ReplyTokenReused)
	}

	now = now.Add(UnboundedRetention)
	if err := ledger.Claim(ctx, "tok", time.Time{}, time.Minute); err != nil {
		t.Fatalf("Claim after horizon error: %v", err)
	}
}

func TestMemoryLedgerPrunesStampedClaimsAfterTTL(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	ledger := NewMemoryLedger()
	ledger.now = func() time.Time { return now }

	if err := ledger.Claim(context.Background(), "tok", now, time.Minute); err != nil {
		t.Fatalf("Claim error: %v", err)
	}

	now = now.Add(2 * time.Minute)
	ledger.mu.Lock()
	ledger.prune(now)
	n := len(ledger.claimed)
	ledger.mu.Unlock()
	if n != 0 {
		t.Fatalf("claims after prune = %d, want 0", n)
	}
}
