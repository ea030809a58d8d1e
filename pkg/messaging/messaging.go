// Package messaging defines the outbound side of a chat platform and guards
// reply tokens against reuse.
package messaging

import (
	"context"
	"io"
	"time"
)

// Reply is a text response bound to an event's reply token.
type Reply struct {
	Token    string
	IssuedAt time.Time
	Texts    []string
}

// Profile is the public profile of a platform user.
type Profile struct {
	DisplayName   string
	StatusMessage string
	PictureURL    string
}

// Content is binary message content streamed from the platform. Length is -1
// when the platform did not announce it. Callers must close Body.
type Content struct {
	Body        io.ReadCloser
	ContentType string
	Length      int64
}

// Messenger sends replies and fetches data from a chat platform.
type Messenger interface {
	Reply(ctx context.Context, reply Reply) error
	Profile(ctx context.Context, userID string) (Profile, error)
	Content(ctx context.Context, messageID string) (Content, error)
	LeaveGroup(ctx context.Context, groupID string) error
	LeaveRoom(ctx context.Context, roomID string) error
}
