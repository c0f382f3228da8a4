package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExpirer struct {
	calls []time.Time
	err   error
}

func (s *stubExpirer) ExpireDue(_ context.Context, now time.Time) (int64, error) {
	s.calls = append(s.calls, now)
	return int64(len(s.calls)), s.err
}

type stubPurger struct {
	calls int
}

func (s *stubPurger) Purge(context.Context, time.Time) (int64, error) {
	s.calls++
	return 0, nil
}

func TestJobsRunWithCurrentTime(t *testing.T) {
	subs, ads, logs := &stubExpirer{}, &stubExpirer{err: errors.New("db down")}, &stubPurger{}
	jobs := NewJobs(subs, ads, logs, logging.Discard())
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	jobs.now = func() time.Time { return fixed }

	jobs.ExpireSubscriptions()
	jobs.ExpireSubmissions()
	jobs.PurgeLogs()

	require.Len(t, subs.calls, 1)
	assert.Equal(t, fixed, subs.calls[0])
	assert.Len(t, ads.calls, 1)
	assert.Equal(t, 1, logs.calls)
}

func TestPurgeLogsWithoutRetention(t *testing.T) {
	jobs := NewJobs(&stubExpirer{}, &stubExpirer{}, nil, logging.Discard())
	assert.NotPanics(t, jobs.PurgeLogs)
}

func TestStartRejectsBadSchedule(t *testing.T) {
	s := New(NewJobs(&stubExpirer{}, &stubExpirer{}, &stubPurger{}, logging.Discard()), logging.Discard())
	err := s.Start(Schedules{SubscriptionExpiry: "every now and then"})
	assert.Error(t, err)
}

func TestStartAndStop(t *testing.T) {
	s := New(NewJobs(&stubExpirer{}, &stubExpirer{}, &stubPurger{}, logging.Discard()), logging.Discard())
	require.NoError(t, s.Start(Schedules{SubscriptionExpiry: "@every 1h", SubmissionExpiry: "@hourly"}))
	ctx := s.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
