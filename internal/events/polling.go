package events

import (
	"context"
	"log/slog"
	"time"
)

// Source is where a PollingBroker reads events from, typically a table the
// publisher already writes to.
type Source interface {
	Since(ctx context.Context, topic string, after time.Time) ([]Event, error)
}

// PollingBroker serves subscriptions by polling a Source. Publish is a no-op
// because the source of truth is written by the caller.
type PollingBroker struct {
	source   Source
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewPollingBroker(source Source, interval time.Duration, logger *slog.Logger) *PollingBroker {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &PollingBroker{source: source, interval: interval, logger: logger, now: time.Now}
}

func (b *PollingBroker) Publish(context.Context, string, any) error {
	return nil
}

func (b *PollingBroker) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	out := make(chan Event, subscriberBuffer)
	cursor := b.now().UTC()

	go func() {
		defer close(out)
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		seen := make(map[string]struct{})
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			evs, err := b.source.Since(ctx, topic, cursor)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				b.logger.Warn("poll failed", "topic", topic, "error", err)
				continue
			}
			for _, ev := range evs {
				if _, dup := seen[ev.ID]; dup {
					continue
				}
				seen[ev.ID] = struct{}{}
				if ev.At.After(cursor) {
					cursor = ev.At
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			if len(seen) > 1024 {
				seen = make(map[string]struct{})
			}
		}
	}()
	return out, nil
}

func (b *PollingBroker) Close() error {
	return nil
}
