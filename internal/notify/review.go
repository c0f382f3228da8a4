package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/events"
)

const reviewQueue = "notify.review_queue"

type submissionCreated struct {
	SubmissionID string `json:"submission_id"`
	MarketID     string `json:"market_id"`
	UserID       string `json:"user_id"`
	Title        string `json:"title"`
	IsFree       bool   `json:"is_free"`
}

// WatchReviewQueue mails the market's support address for every new ad
// waiting in the moderation queue. It returns once the subscription is
// open; delivery stops when ctx is done.
func (n *SupportNotifier) WatchReviewQueue(ctx context.Context, broker events.Broker, logger *slog.Logger) error {
	ch, err := events.SubscribeOnce(ctx, broker, events.TopicSubmissionCreated, reviewQueue)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", events.TopicSubmissionCreated, err)
	}
	go func() {
		for ev := range ch {
			if err := n.submissionAwaitingReview(ctx, ev); err != nil {
				logger.Warn("review queue mail not sent", "event_id", ev.ID, "error", err)
			}
		}
	}()
	return nil
}

func (n *SupportNotifier) submissionAwaitingReview(ctx context.Context, ev events.Event) error {
	var sub submissionCreated
	if err := json.Unmarshal(ev.Payload, &sub); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	to := n.recipient(sub.MarketID)
	if to == "" {
		return fmt.Errorf("no support address for market %q", sub.MarketID)
	}
	kind := "paid"
	if sub.IsFree {
		kind = "free"
	}
	return n.sender.Send(ctx, Message{
		To:      to,
		Subject: "New ad awaiting review: " + sub.Title,
		Body: fmt.Sprintf("<p>A %s ad was published and is waiting for review.</p><p>Ad <b>%s</b> (%s) by user %s.</p>",
			kind, html.EscapeString(sub.Title), html.EscapeString(sub.SubmissionID), html.EscapeString(sub.UserID)),
	})
}
