// Package events publishes finished sync jobs to Kafka so downstream
// consumers (search indexing, POS menus) can refresh.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/JonMunkholm/menusync/internal/core"
)

// EventType is carried in the event_type header of every message.
const EventType = "catalog.sync.completed"

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher implements core.EventPublisher.
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
}

// NewKafkaPublisher writes to topic on the given brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	slog.Info("kafka publisher initialized", "topic", topic, "brokers", brokers)
	return &KafkaPublisher{writer: w, topic: topic}
}

// NewPublisherWithWriter wraps an existing writer.
func NewPublisherWithWriter(w MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

// PublishSyncResult sends the event keyed by its slot, so events for one
// restaurant channel stay ordered within a partition.
func (p *KafkaPublisher) PublishSyncResult(ctx context.Context, event core.SyncEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode sync event: %w", err)
	}

	slot := core.SlotKey{TenantID: event.TenantID, SyncType: event.SyncType}
	msg := kafka.Message{
		Key:   []byte(slot.String()),
		Value: data,
		Time:  event.FinishedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventType)},
			{Key: "job_id", Value: []byte(event.JobID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish sync event to %s: %w", p.topic, err)
	}
	return nil
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
