// Package events fans domain events out to subscribers. Brokers share one
// interface so the server can run in-process, across instances over AMQP,
// or in a degraded polling mode.
package events

import (
	"context"
	"encoding/json"
	"time"
)

const (
	TopicSubmissionCreated = "submission.created"
	TopicPaymentFailed     = "payment.verification_failed"
)

// SupportTicketTopic is the topic carrying messages for one support ticket.
func SupportTicketTopic(ticketID string) string {
	return "support.ticket." + ticketID
}

type Event struct {
	ID      string          `json:"id"`
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
	At      time.Time       `json:"at"`
}

// Broker publishes events and hands out subscriptions. A subscription
// channel is closed once ctx is done.
type Broker interface {
	Publish(ctx context.Context, topic string, payload any) error
	Subscribe(ctx context.Context, topic string) (<-chan Event, error)
	Close() error
}

func newEvent(id, topic string, payload any, at time.Time) (Event, error) {
	if raw, ok := payload.(json.RawMessage); ok {
		return Event{ID: id, Topic: topic, Payload: raw, At: at}, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{ID: id, Topic: topic, Payload: b, At: at}, nil
}

// SharedSubscriber is implemented by brokers that can spread one topic over
// competing consumers on several instances.
type SharedSubscriber interface {
	SubscribeShared(ctx context.Context, topic, queue string) (<-chan Event, error)
}

// SubscribeOnce subscribes through a shared queue when the broker supports
// one and falls back to a plain subscription otherwise.
func SubscribeOnce(ctx context.Context, b Broker, topic, queue string) (<-chan Event, error) {
	if s, ok := b.(SharedSubscriber); ok {
		return s.SubscribeShared(ctx, topic, queue)
	}
	return b.Subscribe(ctx, topic)
}
