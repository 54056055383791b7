package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// Domain event types.
const (
	EventQuoteCreated       = "quote.created"
	EventQuoteStatusChanged = "quote.status_changed"
	EventInvoiceCreated     = "invoice.created"
	EventInvoiceStatus      = "invoice.status_changed"
	EventInvoicePaid        = "invoice.paid"
)

// Event is the JSON envelope written to the event topic.
type Event struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	EntityID   uint        `json:"entity_id"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload,omitempty"`
}

// NewEvent stamps a new event with an id and the current time.
func NewEvent(eventType string, entityID uint, payload interface{}) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		EntityID:   entityID,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// EventPublisher emits domain events. Publishing is best-effort.
type EventPublisher interface {
	Publish(ctx context.Context, event Event)
}

// NopPublisher drops every event. Used when no broker is configured.
type NopPublisher struct{}

// Publish does nothing.
func (NopPublisher) Publish(context.Context, Event) {}

// KafkaPublisher writes events to one topic, keyed by entity id so that the
// events of one document stay ordered within a partition.
type KafkaPublisher struct {
	writer  *kafka.Writer
	timeout time.Duration
}

// NewKafkaPublisher creates a publisher for brokers and topic.
func NewKafkaPublisher(brokers []string, topic string, transport *kafka.Transport) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	if transport != nil {
		w.Transport = transport
	}
	log.Printf("✅ Kafka publisher ready (brokers: %v, topic: %s)", brokers, topic)
	return &KafkaPublisher{writer: w, timeout: 5 * time.Second}
}

// Publish writes the event in the background. Errors are logged only.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) {
	value, err := json.Marshal(event)
	if err != nil {
		log.Printf("⚠️ Event %s not encoded: %v", event.Type, err)
		return
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.EntityID), 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	// detached from the request, which ends before the write completes
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	go func() {
		defer cancel()
		if err := p.writer.WriteMessages(writeCtx, msg); err != nil {
			log.Printf("⚠️ Event %s #%d not published: %v", event.Type, event.EntityID, err)
		}
	}()
}

// Close flushes pending messages.
func (p *KafkaPublisher) Close() error {
	if err := p.writer.Close(); err != nil {
		return fmt.Errorf("close kafka writer: %w", err)
	}
	return nil
}
