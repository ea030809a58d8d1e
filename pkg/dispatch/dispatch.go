// Package dispatch classifies inbound events and routes each one to its
// handler: text commands, media ingestion, or membership changes.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"babybot/pkg/bus"
	"babybot/pkg/config"
	"babybot/pkg/event"
	"babybot/pkg/failure"
	"babybot/pkg/feed"
	"babybot/pkg/logger"
	"babybot/pkg/messaging"
	"babybot/pkg/persistence"
	"babybot/pkg/storage"
)

// Status is the per-event result reported back to the platform.
type Status string

const (
	StatusOK      Status = "ok"
	StatusIgnored Status = "ignored"
	StatusError   Status = "error"
)

const defaultLinkTTL = 15 * time.Minute

// Outcome is the result of handling one event of a batch.
type Outcome struct {
	Index  int    `json:"index"`
	Type   string `json:"type"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Deps are the collaborators of a Dispatcher. Messenger should already be
// guarded by a reply-token ledger.
type Deps struct {
	Messenger messaging.Messenger
	Store     persistence.Store
	Storage   storage.Store
	Feed      feed.Publisher
	Events    bus.Publisher
	Log       *slog.Logger
	Platform  string
	Defaults  config.DefaultsConfig
	// LinkTTL bounds presigned media links. Zero means 15 minutes.
	LinkTTL time.Duration
}

// Dispatcher handles event batches for one platform.
type Dispatcher struct {
	messenger messaging.Messenger
	store     persistence.Store
	storage   storage.Store
	feed      feed.Publisher
	events    bus.Publisher
	log       *slog.Logger
	platform  string
	defaults  config.DefaultsConfig
	linkTTL   time.Duration
	now       func() time.Time
}

// New validates deps and returns a Dispatcher.
func New(deps Deps) (*Dispatcher, error) {
	if deps.Messenger == nil {
		return nil, fmt.Errorf("messenger is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("persistence store is required")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("media storage is required")
	}
	if deps.Platform == "" {
		return nil, fmt.Errorf("platform is required")
	}
	if deps.Feed == nil {
		deps.Feed = feed.Nop{}
	}
	if deps.Events == nil {
		deps.Events = bus.Discard{}
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.LinkTTL <= 0 {
		deps.LinkTTL = defaultLinkTTL
	}

	return &Dispatcher{
		messenger: deps.Messenger,
		store:     deps.Store,
		storage:   deps.Storage,
		feed:      deps.Feed,
		events:    deps.Events,
		log:       deps.Log.With("component", "dispatch.dispatcher", "platform", deps.Platform),
		platform:  deps.Platform,
		defaults:  deps.Defaults,
		linkTTL:   deps.LinkTTL,
		now:       time.Now,
	}, nil
}

// HandleBatch handles every event concurrently and waits for all of them.
// Outcomes are returned in batch order. The error is non-nil when at least
// one handler panicked; the outcomes are still complete in that case.
func (d *Dispatcher) HandleBatch(ctx context.Context, events []event.Event) ([]Outcome, error) {
	outcomes := make([]Outcome, len(events))
	panicked := make([]bool, len(events))

	// No shared cancellation: one failing event must not abort its siblings.
	var g errgroup.Group
	for i, ev := range events {
		g.Go(func() error {
			outcomes[i], panicked[i] = d.handleRecovered(ctx, i, ev)
			return nil
		})
	}
	_ = g.Wait()

	for i, p := range panicked {
		if p {
			return outcomes, failure.Newf(failure.Internal, "handler for event %d panicked", i)
		}
	}
	return outcomes, nil
}

func (d *Dispatcher) handleRecovered(ctx context.Context, index int, ev event.Event) (outcome Outcome, panicked bool) {
	requestID := uuid.NewString()
	log := d.log.With("request_id", requestID, "event_type", string(ev.Type), "index", index, "reply_token", ev.ReplyToken)
	ctx = logger.IntoContext(ctx, log)

	outcome = Outcome{Index: index, Type: string(ev.Type)}
	trace := bus.Event{
		Channel:   d.platform,
		ChatID:    ev.Source.ChatID(),
		RequestID: requestID,
		Kind:      string(ev.Type),
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("Event handler panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			outcome.Status = StatusError
			outcome.Error = string(failure.Internal)
			panicked = true

			trace.Type = bus.EventFailed
			trace.Error = string(failure.Internal)
			d.events.PublishEvent(ctx, trace)
		}
	}()

	trace.Type = bus.EventReceived
	d.events.PublishEvent(ctx, trace)

	started := time.Now()
	status, err := d.handle(ctx, ev)
	outcome.Status = status

	switch {
	case err != nil:
		kind := failure.KindOf(err)
		outcome.Status = StatusError
		outcome.Error = string(kind)
		trace.Type = bus.EventFailed
		trace.Error = string(kind)
		log.Warn("Event failed", "kind", kind, "error", err, "duration", time.Since(started))
	case status == StatusIgnored:
		trace.Type = bus.EventIgnored
		log.Debug("Event ignored")
	default:
		trace.Type = bus.EventHandled
		log.Info("Event handled", "duration", time.Since(started))
	}
	d.events.PublishEvent(ctx, trace)

	return outcome, false
}

// handle classifies ev by type and, for messages, by content.
func (d *Dispatcher) handle(ctx context.Context, ev event.Event) (Status, error) {
	if ev.IsVerification() {
		return StatusIgnored, nil
	}

	switch ev.Type {
	case event.TypeMessage:
		if ev.Message == nil {
			return StatusError, failure.New(failure.MalformedPayload, "message event without message")
		}
		switch ev.Message.Type {
		case event.MessageText:
			return StatusOK, d.handleText(ctx, ev)
		case event.MessageImage, event.MessageVideo:
			return d.handleMedia(ctx, ev)
		default:
			return StatusError, failure.Newf(failure.UnknownMessageSubtype, "message type %q", ev.Message.Type)
		}
	case event.TypeJoin:
		return StatusOK, d.reply(ctx, ev, "Joined "+string(ev.Source.Type))
	case event.TypeLeave:
		logger.FromContext(ctx).Info("Left chat", "source_type", ev.Source.Type, "chat_id", ev.Source.ChatID())
		return StatusOK, nil
	default:
		return StatusError, failure.Newf(failure.UnknownEventType, "event type %q", ev.Type)
	}
}

// reply sends texts with the event's reply token.
func (d *Dispatcher) reply(ctx context.Context, ev event.Event, texts ...string) error {
	err := d.messenger.Reply(ctx, messaging.Reply{
		Token:    ev.ReplyToken,
		IssuedAt: ev.Timestamp,
		Texts:    texts,
	})
	if err != nil {
		return fmt.Errorf("send reply: %w", err)
	}

	d.events.PublishEvent(ctx, bus.Event{
		Type:    bus.ReplySent,
		Channel: d.platform,
		ChatID:  ev.Source.ChatID(),
		Kind:    string(ev.Type),
	})
	return nil
}

// replyOnFailure tells the user about cause. cause stays the reported error
// even when the reply itself fails.
func (d *Dispatcher) replyOnFailure(ctx context.Context, ev event.Event, cause error, text string) error {
	if err := d.reply(ctx, ev, text); err != nil {
		logger.FromContext(ctx).Warn("Failed to send failure reply", "error", err)
	}
	return cause
}
