package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventReceived EventType = "event_received"
	EventHandled  EventType = "event_handled"
	EventIgnored  EventType = "event_ignored"
	EventFailed   EventType = "event_failed"
	ReplySent     EventType = "reply_sent"
	MediaStored   EventType = "media_stored"
	RecordSaved   EventType = "record_saved"
)

// Event describes one step of handling an inbound event.
type Event struct {
	Type      EventType         `json:"type"`
	At        time.Time         `json:"at"`
	Channel   string            `json:"channel,omitempty"`
	ChatID    string            `json:"chat_id,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Kind      string            `json:"kind,omitempty"`
	Category  string            `json:"category,omitempty"`
	Bytes     int64             `json:"bytes,omitempty"`
	Payload   map[string]string `json:"payload,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Publisher is the publishing side of a Bus.
type Publisher interface {
	PublishEvent(ctx context.Context, event Event) bool
}

// PublishEvent delivers event to current subscribers. Subscribers whose
// buffer is full miss the event. It returns false once the bus is closed or
// ctx is done.
func (b *Bus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-b.done:
		return false
	default:
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Drop instead of blocking the publisher on slow subscribers.
		}
	}

	return true
}

// SubscribeEvents registers a subscriber. The channel closes when ctx ends,
// the bus closes, or unsubscribe is called.
func (b *Bus) SubscribeEvents(ctx context.Context, buffer int) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	ch := make(chan Event, buffer)

	b.mu.Lock()
	select {
	case <-b.done:
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	default:
	}

	id := b.nextSubscriberID
	b.nextSubscriberID++
	b.subscribers[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			if eventCh, ok := b.subscribers[id]; ok {
				delete(b.subscribers, id)
				close(eventCh)
			}
			b.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-b.done:
			unsubscribe()
		}
	}()

	return ch, unsubscribe
}

// Discard is a Publisher that drops every event.
type Discard struct{}

func (Discard) PublishEvent(context.Context, Event) bool { return true }
