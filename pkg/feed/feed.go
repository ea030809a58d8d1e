// Package feed publishes recorded activities to Kafka for downstream consumers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"babybot/pkg/activity"
)

// Publisher emits activity records. Publish failures never affect the reply
// the user receives.
type Publisher interface {
	Publish(ctx context.Context, record activity.Record) error
	Close() error
}

// Nop discards records. It is used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, activity.Record) error { return nil }
func (Nop) Close() error                                   { return nil }

// Event is the message value written for each record.
type Event struct {
	Type        string          `json:"type"`
	Record      activity.Record `json:"record"`
	PublishedAt time.Time       `json:"published_at"`
}

// MessageWriter writes messages to a topic.
type MessageWriter interface {
	WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes records keyed by baby so one baby's activities stay ordered
// within a partition.
type Kafka struct {
	writer MessageWriter
	topic  string
}

// NewKafka returns a Kafka publisher writing to topic on brokers.
func NewKafka(brokers []string, topic string) *Kafka {
	return &Kafka{writer: NewProducer(brokers), topic: topic}
}

// NewKafkaWithWriter builds a publisher over writer.
func NewKafkaWithWriter(writer MessageWriter, topic string) *Kafka {
	return &Kafka{writer: writer, topic: topic}
}

func (k *Kafka) Publish(ctx context.Context, record activity.Record) error {
	value, err := json.Marshal(Event{Type: "activity.recorded", Record: record, PublishedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("encode activity event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(record.EntityID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "category", Value: []byte(record.Category)},
		},
	}
	if err := k.writer.WriteMessages(ctx, k.topic, msg); err != nil {
		return fmt.Errorf("publish activity event: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

// Producer lazily manages one writer per topic.
type Producer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewProducer creates a Producer for brokers.
func NewProducer(brokers []string) *Producer {
	return &Producer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages writes msgs to topic, creating the writer on first use.
func (p *Producer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerFor(topic).WriteMessages(ctx, msgs...)
}

func (p *Producer) writerFor(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(p.brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Compression:  kafka.Snappy,
	}
	p.writers[topic] = writer
	return writer
}

// Close releases all writers and returns the first error.
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}
