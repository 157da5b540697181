package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fjod/go_cart/sharedcart-service/internal/domain"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const DefaultTopic = "shared-cart-events"

type EventType string

const (
	EventCartShared   EventType = "cart.shared"
	EventCartImported EventType = "cart.imported"
)

type Event struct {
	ID         string    `json:"event_id"`
	Type       EventType `json:"event_type"`
	CartID     string    `json:"cart_id"`
	ItemCount  int       `json:"item_count"`
	Total      string    `json:"total"`
	Policy     string    `json:"policy,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewEvent(eventType EventType, snapshot *domain.CartSnapshot, policy string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		CartID:     snapshot.ID,
		ItemCount:  len(snapshot.Items),
		Total:      snapshot.Total().String(),
		Policy:     policy,
		ExpiresAt:  snapshot.ExpiresAt,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: w}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.CartID), // cart_id for ordering
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s for %s: %w", event.Type, event.CartID, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop drops every event. Used when no brokers are configured.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

func (Noop) Close() error { return nil }
