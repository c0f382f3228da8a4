package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPBroker publishes to a durable topic exchange. Each subscription gets
// its own exclusive auto-delete queue and channel, so every instance sees
// every event.
type AMQPBroker struct {
	conn     *amqp.Connection
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	channel *amqp.Channel
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

func NewAMQPBroker(amqpURL, exchange string, logger *slog.Logger) (*AMQPBroker, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPBroker{conn: conn, exchange: exchange, logger: logger, channel: ch}, nil
}

func (b *AMQPBroker) Publish(ctx context.Context, topic string, payload any) error {
	ev, err := newEvent(uuid.NewString(), topic, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	msg := amqp.Publishing{
		ContentType: "application/json",
		MessageId:   ev.ID,
		Timestamp:   ev.At,
		Body:        body,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	err = b.channel.PublishWithContext(ctx, b.exchange, topic, false, false, msg)
	if err == nil {
		return nil
	}

	// one reopen attempt on a dead channel
	b.logger.Warn("amqp publish failed; reopening channel", "topic", topic, "error", err)
	ch, chErr := b.conn.Channel()
	if chErr != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	b.channel = ch
	return b.channel.PublishWithContext(ctx, b.exchange, topic, false, false, msg)
}

// Subscribe binds a private queue, so every subscriber on every instance
// sees every event.
func (b *AMQPBroker) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	return b.consume(ctx, topic, "", false)
}

// SubscribeShared binds the durable queue name. Subscribers sharing a name
// across instances compete, so each event is handled once.
func (b *AMQPBroker) SubscribeShared(ctx context.Context, topic, queue string) (<-chan Event, error) {
	return b.consume(ctx, topic, queue, true)
}

func (b *AMQPBroker) consume(ctx context.Context, topic, queue string, shared bool) (<-chan Event, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	q, err := ch.QueueDeclare(queue, shared, !shared, !shared, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, topic, b.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx, q.Name, "", true, !shared, false, false, nil)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("consume: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal(d.Body, &ev); err != nil {
					b.logger.Warn("discarding malformed event", "topic", topic, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *AMQPBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel != nil {
		b.channel.Close()
	}
	return b.conn.Close()
}
