package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"babybot/pkg/activity"
	"babybot/pkg/bus"
	"babybot/pkg/command"
	"babybot/pkg/event"
	"babybot/pkg/failure"
	"babybot/pkg/logger"
)

// Replies for reserved commands.
const (
	MsgProfileWithoutUser = "Bot can't use profile API without user ID"
	MsgCannotLeaveUser    = "Bot can't leave from 1:1 chat"
)

func (d *Dispatcher) handleText(ctx context.Context, ev event.Event) error {
	text := strings.TrimSpace(ev.Message.Text)

	switch strings.ToLower(text) {
	case "profile":
		return d.replyProfile(ctx, ev)
	case "bye":
		return d.leave(ctx, ev)
	case "help":
		return d.reply(ctx, ev, command.Guidance)
	}

	cmd := command.Parse(text)
	if cmd.Category == command.Unknown {
		return d.reply(ctx, ev, command.Guidance)
	}

	userID, access, err := d.identify(ctx, ev.Source)
	if err != nil {
		return d.replyOnFailure(ctx, ev, err, "Failed to save "+string(cmd.Category)+".")
	}

	record, err := activity.Resolve(activity.Request{
		OwnerUserID: userID,
		Command:     cmd,
		Access:      access,
		At:          d.eventTime(ev),
	})
	if err != nil {
		if msg := activity.Message(err); msg != "" {
			return d.replyOnFailure(ctx, ev, err, msg)
		}
		return err
	}

	id, err := d.store.InsertActivityRecord(ctx, record)
	if err != nil {
		err = failure.Wrap(failure.PersistenceWriteFailed, err, "insert activity record")
		return d.replyOnFailure(ctx, ev, err, "Failed to save "+string(cmd.Category)+".")
	}
	record.ID = id

	d.events.PublishEvent(ctx, bus.Event{
		Type:     bus.RecordSaved,
		Channel:  d.platform,
		ChatID:   ev.Source.ChatID(),
		Kind:     string(ev.Type),
		Category: string(record.Category),
	})

	if err := d.feed.Publish(ctx, record); err != nil {
		logger.FromContext(ctx).Warn("Failed to publish activity", "record_id", id, "error", err)
	}

	return d.reply(ctx, ev, confirmation(record))
}

// confirmation renders the reply for a saved record.
func confirmation(record activity.Record) string {
	if record.Amount == nil {
		return fmt.Sprintf("Saved %s.", record.Category)
	}
	amount := strconv.FormatFloat(*record.Amount, 'f', -1, 64)
	return fmt.Sprintf("Saved %s: %s %s.", record.Category, amount, record.Category.Unit())
}

func (d *Dispatcher) replyProfile(ctx context.Context, ev event.Event) error {
	if ev.Source.UserID == "" {
		return d.reply(ctx, ev, MsgProfileWithoutUser)
	}

	profile, err := d.messenger.Profile(ctx, ev.Source.UserID)
	if err != nil {
		return fmt.Errorf("get profile: %w", err)
	}

	return d.reply(ctx, ev,
		"Display name: "+profile.DisplayName,
		"Status message: "+profile.StatusMessage,
	)
}

func (d *Dispatcher) leave(ctx context.Context, ev event.Event) error {
	switch ev.Source.Type {
	case event.SourceGroup:
		if err := d.reply(ctx, ev, "Leaving group"); err != nil {
			return err
		}
		if err := d.messenger.LeaveGroup(ctx, ev.Source.GroupID); err != nil {
			return fmt.Errorf("leave group: %w", err)
		}
		return nil
	case event.SourceRoom:
		if err := d.reply(ctx, ev, "Leaving room"); err != nil {
			return err
		}
		if err := d.messenger.LeaveRoom(ctx, ev.Source.RoomID); err != nil {
			return fmt.Errorf("leave room: %w", err)
		}
		return nil
	default:
		return d.reply(ctx, ev, MsgCannotLeaveUser)
	}
}

// identify maps the sender to an internal user and the babies they manage.
// Unknown senders fall back to the configured default user and baby, or get
// no access at all.
func (d *Dispatcher) identify(ctx context.Context, source event.Source) (int64, activity.Access, error) {
	if source.UserID != "" {
		userID, ok, err := d.store.UserIDByPlatformID(ctx, d.platform, source.UserID)
		if err != nil {
			return 0, activity.Access{}, fmt.Errorf("look up user: %w", err)
		}
		if ok {
			access, err := d.store.ManagedEntities(ctx, userID)
			if err != nil {
				return 0, activity.Access{}, fmt.Errorf("list managed babies: %w", err)
			}
			return userID, access, nil
		}
	}

	if d.defaults.UserID != 0 && d.defaults.BabyID != 0 {
		return d.defaults.UserID, activity.SingleAccess(d.defaults.BabyID), nil
	}
	return 0, activity.Access{}, nil
}

func (d *Dispatcher) eventTime(ev event.Event) time.Time {
	if ev.Timestamp.IsZero() {
		return d.now().UTC()
	}
	return ev.Timestamp.UTC()
}
