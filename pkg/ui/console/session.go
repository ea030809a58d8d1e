package console

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"babybot/pkg/channel"
	"babybot/pkg/dispatch"
	"babybot/pkg/event"
)

// Session turns prompts into message events for one console user.
type Session struct {
	messenger *Messenger
	handle    channel.Handler
	userID    string
	seq       atomic.Int64
	now       func() time.Time
}

func NewSession(messenger *Messenger, handle channel.Handler, userID string) (*Session, error) {
	if messenger == nil {
		return nil, errors.New("console messenger is required")
	}
	if handle == nil {
		return nil, errors.New("event handler is required")
	}
	if userID == "" {
		userID = "console-user"
	}
	return &Session{messenger: messenger, handle: handle, userID: userID, now: time.Now}, nil
}

// Prompt sends text as a user message and returns every reply it produced.
// A handler error or a failed outcome without a reply is reported as an error.
func (s *Session) Prompt(ctx context.Context, text string) (string, error) {
	n := s.seq.Add(1)
	token := "console:" + s.userID + ":" + strconv.FormatInt(n, 10)
	ev := event.Event{
		Type:       event.TypeMessage,
		ReplyToken: token,
		Source:     event.Source{Type: event.SourceUser, UserID: s.userID},
		Timestamp:  s.now(),
		Message: &event.Message{
			ID:   "c-" + strconv.FormatInt(n, 10),
			Type: event.MessageText,
			Text: text,
		},
	}

	outcomes, err := s.handle(ctx, []event.Event{ev})
	replies := s.messenger.take(token)
	if err != nil {
		return replies, err
	}
	if replies == "" && len(outcomes) == 1 && outcomes[0].Status == dispatch.StatusError {
		return "", fmt.Errorf("message failed: %s", outcomes[0].Error)
	}
	return replies, nil
}
