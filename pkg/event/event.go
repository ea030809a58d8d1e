// Package event models inbound chat-platform events as a closed tagged union.
package event

import (
	"strings"
	"time"
)

// Type is the top-level event tag. Values outside the known set are kept
// verbatim so the classifier can report them.
type Type string

const (
	TypeMessage Type = "message"
	TypeJoin    Type = "join"
	TypeLeave   Type = "leave"
)

// MessageType tags message events by content.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
)

// SourceType identifies the conversation an event came from.
type SourceType string

const (
	SourceUser  SourceType = "user"
	SourceGroup SourceType = "group"
	SourceRoom  SourceType = "room"
)

// ProviderLine marks content hosted by the messaging platform itself.
const ProviderLine = "line"

// Source describes who sent an event and in which conversation.
type Source struct {
	Type    SourceType
	UserID  string
	GroupID string
	RoomID  string
}

// ChatID returns the identifier of the conversation the source belongs to.
func (s Source) ChatID() string {
	switch s.Type {
	case SourceGroup:
		return s.GroupID
	case SourceRoom:
		return s.RoomID
	default:
		return s.UserID
	}
}

// ContentProvider says where binary message content lives.
type ContentProvider struct {
	Type               string
	OriginalContentURL string
	PreviewImageURL    string
}

// Hosted reports whether the content must be fetched from the platform.
func (p ContentProvider) Hosted() bool {
	return p.Type == "" || p.Type == ProviderLine
}

// Message is the payload of a message event.
type Message struct {
	ID              string
	Type            MessageType
	Text            string
	ContentProvider ContentProvider
}

// Event is one inbound event. Message is set only for message events.
type Event struct {
	Type           Type
	ReplyToken     string
	Source         Source
	Timestamp      time.Time
	WebhookEventID string
	Redelivery     bool
	Message        *Message
}

// IsVerification reports whether the reply token is a platform test hook: a
// token made of one repeated character.
func (e Event) IsVerification() bool {
	if e.ReplyToken == "" {
		return false
	}
	first := e.ReplyToken[:1]
	return strings.Trim(e.ReplyToken, first) == ""
}

// Payload is a decoded webhook request body.
type Payload struct {
	Destination string
	Events      []Event
}
