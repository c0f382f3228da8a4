package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// Expirer flips rows past their end date to expired.
type Expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

// Purger deletes log rows older than its retention window.
type Purger interface {
	Purge(ctx context.Context, now time.Time) (int64, error)
}

const jobTimeout = 2 * time.Minute

// Jobs holds the periodic maintenance tasks.
type Jobs struct {
	subscriptions Expirer
	submissions   Expirer
	logs          Purger
	logger        *slog.Logger
	now           func() time.Time
}

func NewJobs(subscriptions, submissions Expirer, logs Purger, logger *slog.Logger) *Jobs {
	return &Jobs{
		subscriptions: subscriptions,
		submissions:   submissions,
		logs:          logs,
		logger:        logger,
		now:           time.Now,
	}
}

// ExpireSubscriptions ends plans whose end date has passed.
func (j *Jobs) ExpireSubscriptions() {
	j.run("subscription expiry", j.subscriptions.ExpireDue)
}

// ExpireSubmissions takes ads past their lifetime out of the listing.
func (j *Jobs) ExpireSubmissions() {
	j.run("submission expiry", j.submissions.ExpireDue)
}

func (j *Jobs) PurgeLogs() {
	if j.logs == nil {
		return
	}
	j.run("log purge", j.logs.Purge)
}

func (j *Jobs) run(name string, fn func(ctx context.Context, now time.Time) (int64, error)) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := j.now()
	n, err := fn(ctx, start)
	if err != nil {
		j.logger.Error("job failed", "job", name, "error", err)
		return
	}
	j.logger.Info("job finished", "job", name, "rows", n, "took_ms", time.Since(start).Milliseconds())
}
