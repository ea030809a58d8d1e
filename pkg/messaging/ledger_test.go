package messaging_test

import (
	"context"
	"testing"
	"time"

	"babybot/pkg/failure"
	"babybot/pkg/messaging"
	"babybot/pkg/messaging/messagingtest"
)

func TestMemoryLedgerRejectsReuse(t *testing.T) {
	ledger := messaging.NewMemoryLedger()
	ctx := context.Background()

	if err := ledger.Claim(ctx, "token-1", time.Time{}, 0); err != nil {
		t.Fatalf("first Claim error: %v", err)
	}
	err := ledger.Claim(ctx, "token-1", time.Time{}, 0)
	if got := failure.KindOf(err); got != failure.ReplyTokenReused {
		t.Fatalf("second Claim kind = %q, want %q", got, failure.ReplyTokenReused)
	}
	if err := ledger.Claim(ctx, "token-2", time.Time{}, 0); err != nil {
		t.Fatalf("other token Claim error: %v", err)
	}
}

func TestMemoryLedgerRejectsExpired(t *testing.T) {
	ledger := messaging.NewMemoryLedger()

	err := ledger.Claim(context.Background(), "old", time.Now().Add(-2*time.Minute), time.Minute)
	if got := failure.KindOf(err); got != failure.ReplyTokenExpired {
		t.Fatalf("Claim kind = %q, want %q", got, failure.ReplyTokenExpired)
	}
	if err := ledger.Claim(context.Background(), "fresh", time.Now(), time.Minute); err != nil {
		t.Fatalf("fresh Claim error: %v", err)
	}
}

func TestMemoryLedgerTTLIsPerClaim(t *testing.T) {
	ledger := messaging.NewMemoryLedger()
	ctx := context.Background()
	issued := time.Now().Add(-2 * time.Minute)

	if err := ledger.Claim(ctx, "tg:12345:7", issued, 0); err != nil {
		t.Fatalf("Claim without ttl error: %v", err)
	}
	err := ledger.Claim(ctx, "line-token", issued, time.Minute)
	if got := failure.KindOf(err); got != failure.ReplyTokenExpired {
		t.Fatalf("Claim with ttl kind = %q, want %q", got, failure.ReplyTokenExpired)
	}
}

func TestRetention(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		issuedAt time.Time
		ttl      time.Duration
		want     time.Duration
	}{
		{name: "stamped with ttl", issuedAt: now, ttl: time.Minute, want: time.Minute},
		{name: "no ttl", issuedAt: now, ttl: 0, want: messaging.UnboundedRetention},
		{name: "unstamped", issuedAt: time.Time{}, ttl: time.Minute, want: messaging.UnboundedRetention},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := messaging.Retention(tt.issuedAt, tt.ttl); got != tt.want {
				t.Fatalf("Retention() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestGuardedReplyClaimsBeforeSending(t *testing.T) {
	recorder := messagingtest.New()
	guarded := messaging.Guard(recorder, messaging.NewMemoryLedger(), 0)
	ctx := context.Background()

	reply := messaging.Reply{Token: "abc", Texts: []string{"hello"}}
	if err := guarded.Reply(ctx, reply); err != nil {
		t.Fatalf("first Reply error: %v", err)
	}
	err := guarded.Reply(ctx, reply)
	if !failure.Is(err, failure.ReplyTokenReused) {
		t.Fatalf("second Reply error = %v, want reply_token_reused", err)
	}
	if got := recorder.ReplyCount(); got != 1 {
		t.Fatalf("platform replies = %d, want 1", got)
	}
}

func TestGuardsShareLedgerWithOwnTTL(t *testing.T) {
	ledger := messaging.NewMemoryLedger()
	line := messaging.Guard(messagingtest.New(), ledger, time.Minute)
	telegram := messaging.Guard(messagingtest.New(), ledger, 0)
	ctx := context.Background()
	backlog := time.Now().Add(-2 * time.Minute)

	if err := telegram.Reply(ctx, messaging.Reply{Token: "tg:12345:7", IssuedAt: backlog, Texts: []string{"help"}}); err != nil {
		t.Fatalf("telegram Reply error: %v", err)
	}
	err := line.Reply(ctx, messaging.Reply{Token: "line-token", IssuedAt: backlog, Texts: []string{"help"}})
	if !failure.Is(err, failure.ReplyTokenExpired) {
		t.Fatalf("line Reply error = %v, want reply_token_expired", err)
	}
}
