package messaging

import (
	"context"
	"fmt"
	"time"
)

// Guarded is a Messenger whose Reply claims the token in a Ledger before any
// network call.
type Guarded struct {
	Messenger
	ledger Ledger
	ttl    time.Duration
}

// Guard wraps m with ledger. ttl is how long the platform honours a reply
// token; zero means its tokens never expire.
func Guard(m Messenger, ledger Ledger, ttl time.Duration) *Guarded {
	return &Guarded{Messenger: m, ledger: ledger, ttl: ttl}
}

func (g *Guarded) Reply(ctx context.Context, reply Reply) error {
	if err := g.ledger.Claim(ctx, reply.Token, reply.IssuedAt, g.ttl); err != nil {
		return fmt.Errorf("claim reply token: %w", err)
	}
	return g.Messenger.Reply(ctx, reply)
}
