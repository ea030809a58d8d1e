package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"babybot/pkg/failure"
)

type wirePayload struct {
	Destination string          `json:"destination"`
	Events      json.RawMessage `json:"events"`
}

type wireEvent struct {
	Type            string       `json:"type"`
	ReplyToken      string       `json:"replyToken"`
	Timestamp       int64        `json:"timestamp"`
	WebhookEventID  string       `json:"webhookEventId"`
	Source          wireSource   `json:"source"`
	Message         *wireMessage `json:"message,omitempty"`
	DeliveryContext *struct {
		IsRedelivery bool `json:"isRedelivery"`
	} `json:"deliveryContext,omitempty"`
}

type wireSource struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId"`
	RoomID  string `json:"roomId"`
}

type wireMessage struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	Text            string `json:"text"`
	ContentProvider *struct {
		Type               string `json:"type"`
		OriginalContentURL string `json:"originalContentUrl"`
		PreviewImageURL    string `json:"previewImageUrl"`
	} `json:"contentProvider,omitempty"`
}

// Decode parses a webhook body of the form {destination, events[]}.
//
// A body that is not an object, lacks an events array, or holds an event that
// is not an object fails with failure.MalformedPayload.
func Decode(body []byte) (Payload, error) {
	var wire wirePayload
	if err := json.Unmarshal(body, &wire); err != nil {
		return Payload{}, failure.Wrap(failure.MalformedPayload, err, "decode webhook body")
	}

	raw := bytes.TrimSpace(wire.Events)
	if len(raw) == 0 || raw[0] != '[' {
		return Payload{}, failure.New(failure.MalformedPayload, "events is not an array")
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return Payload{}, failure.Wrap(failure.MalformedPayload, err, "decode events")
	}

	payload := Payload{Destination: wire.Destination, Events: make([]Event, 0, len(items))}
	for i, item := range items {
		var we wireEvent
		if err := json.Unmarshal(item, &we); err != nil {
			return Payload{}, failure.Wrap(failure.MalformedPayload, err, fmt.Sprintf("decode event %d", i))
		}
		payload.Events = append(payload.Events, we.toEvent())
	}

	return payload, nil
}

func (we wireEvent) toEvent() Event {
	ev := Event{
		Type:           Type(we.Type),
		ReplyToken:     we.ReplyToken,
		WebhookEventID: we.WebhookEventID,
		Source: Source{
			Type:    SourceType(we.Source.Type),
			UserID:  we.Source.UserID,
			GroupID: we.Source.GroupID,
			RoomID:  we.Source.RoomID,
		},
	}
	if we.Timestamp > 0 {
		ev.Timestamp = time.UnixMilli(we.Timestamp).UTC()
	}
	if we.DeliveryContext != nil {
		ev.Redelivery = we.DeliveryContext.IsRedelivery
	}

	if we.Message != nil {
		msg := &Message{
			ID:   we.Message.ID,
			Type: MessageType(we.Message.Type),
			Text: we.Message.Text,
		}
		if cp := we.Message.ContentProvider; cp != nil {
			msg.ContentProvider = ContentProvider{
				Type:               cp.Type,
				OriginalContentURL: cp.OriginalContentURL,
				PreviewImageURL:    cp.PreviewImageURL,
			}
		}
		ev.Message = msg
	}

	return ev
}
