// Package channel connects chat platforms to the event dispatcher.
package channel

import (
	"context"
	"time"

	"babybot/pkg/dispatch"
	"babybot/pkg/event"
	"babybot/pkg/messaging"
)

// Handler processes one batch of inbound events. A non-nil error means a
// handler panicked; outcomes are still complete.
type Handler func(context.Context, []event.Event) ([]dispatch.Outcome, error)

// Adapter bridges one external transport (for example LINE or Telegram) into
// the dispatcher.
type Adapter interface {
	Name() string
	// Messenger sends replies back through this transport.
	Messenger() messaging.Messenger
	// ReplyTokenTTL is how long the platform honours a reply token. Zero
	// means tokens never expire.
	ReplyTokenTTL() time.Duration
	Run(context.Context, Handler) error
}
