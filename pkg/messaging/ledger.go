package messaging

import (
	"context"
	"sync"
	"time"

	"babybot/pkg/failure"
)

// UnboundedRetention is how long a claim is remembered when the token's age
// cannot be checked: the channel has no token TTL or the token carries no
// issue time. Expiry then cannot stop a reuse, so the claim itself must.
const UnboundedRetention = 24 * time.Hour

// Ledger records reply tokens so each is used at most once.
type Ledger interface {
	// Claim marks token as used. It fails with failure.ReplyTokenReused when
	// the token was claimed before and failure.ReplyTokenExpired when it was
	// issued longer than ttl ago. A zero ttl disables the expiry check.
	Claim(ctx context.Context, token string, issuedAt time.Time, ttl time.Duration) error
}

// MemoryLedger is a process-local Ledger.
type MemoryLedger struct {
	now func() time.Time

	mu      sync.Mutex
	claimed map[string]time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		now:     time.Now,
		claimed: make(map[string]time.Time),
	}
}

func (l *MemoryLedger) Claim(_ context.Context, token string, issuedAt time.Time, ttl time.Duration) error {
	now := l.now()
	if Expired(issuedAt, now, ttl) {
		return failure.Newf(failure.ReplyTokenExpired, "reply token issued at %s", issuedAt.Format(time.RFC3339))
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.prune(now)
	if _, ok := l.claimed[token]; ok {
		return failure.New(failure.ReplyTokenReused, "reply token already used")
	}
	l.claimed[token] = now.Add(Retention(issuedAt, ttl))

	return nil
}

func (l *MemoryLedger) prune(now time.Time) {
	for token, until := range l.claimed {
		if now.After(until) {
			delete(l.claimed, token)
		}
	}
}

// Expired reports whether a token issued at issuedAt is past ttl at now.
func Expired(issuedAt, now time.Time, ttl time.Duration) bool {
	return ttl > 0 && !issuedAt.IsZero() && now.Sub(issuedAt) > ttl
}

// Retention returns how long a claim must be kept so the token cannot be
// claimed again. A stamped token under a TTL is expired by then anyway.
func Retention(issuedAt time.Time, ttl time.Duration) time.Duration {
	if ttl > 0 && !issuedAt.IsZero() {
		return ttl
	}
	return UnboundedRetention
}
