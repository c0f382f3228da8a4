package support

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	mu       sync.Mutex
	tickets  map[uuid.UUID]*Ticket
	messages []Message
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{tickets: make(map[uuid.UUID]*Ticket)}
}

func (f *fakeRepo) CreateTicket(_ context.Context, t *Ticket, first *Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *t
	f.tickets[t.ID] = &cp
	f.messages = append(f.messages, *first)
	return nil
}

func (f *fakeRepo) GetTicket(_ context.Context, marketID string, id uuid.UUID) (*Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok || t.MarketID != marketID {
		return nil, errNotFound
	}
	cp := *t
	return &cp, nil
}

func (f *fakeRepo) ListTickets(_ context.Context, marketID string, userID *uuid.UUID, status string, limit, offset int) ([]Ticket, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Ticket
	for _, t := range f.tickets {
		if t.MarketID != marketID || (userID != nil && t.UserID != *userID) || (status != "" && t.Status != status) {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, int64(len(out)), nil
}

func (f *fakeRepo) AddMessage(_ context.Context, m *Message, ticketStatus string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tickets[m.TicketID]
	if t.Status == TicketClosed {
		return ErrTicketClosed
	}
	t.Status = ticketStatus
	t.LastMessageAt = m.CreatedAt
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeRepo) Messages(_ context.Context, ticketID uuid.UUID, after time.Time) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Message
	for _, m := range f.messages {
		if m.TicketID == ticketID && m.CreatedAt.After(after) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeRepo) CloseTicket(_ context.Context, marketID string, id uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok || t.MarketID != marketID {
		return errNotFound
	}
	t.Status = TicketClosed
	t.ClosedAt = &at
	return nil
}

type harness struct {
	svc   *SupportService
	repo  *fakeRepo
	clock time.Time
}

func newHarness() *harness {
	h := &harness{repo: newFakeRepo(), clock: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)}
	h.svc = NewSupportService(h.repo, events.NewMemoryBroker(logging.Discard()), services.NewModerationService(nil, nil))
	h.svc.now = func() time.Time {
		h.clock = h.clock.Add(time.Second)
		return h.clock
	}
	return h
}

var (
	buyer = Viewer{UserID: uuid.New(), Role: models.RoleBuyer}
	other = Viewer{UserID: uuid.New(), Role: models.RoleVendor}
	agent = Viewer{UserID: uuid.New(), Role: models.RoleAgent}
)

func TestTicketConversation(t *testing.T) {
	h := newHarness()
	ctx := context.Background()

	ticket, err := h.svc.OpenTicket(ctx, "lagos", buyer, " Payment stuck ", "I paid but my ad is not live")
	require.NoError(t, err)
	assert.Equal(t, "Payment stuck", ticket.Subject)
	assert.Equal(t, TicketOpen, ticket.Status)

	_, err = h.svc.GetTicket(ctx, "lagos", ticket.ID, other)
	assert.ErrorIs(t, err, ErrTicketNotFound)
	_, err = h.svc.GetTicket(ctx, "accra", ticket.ID, agent)
	assert.ErrorIs(t, err, ErrTicketNotFound)

	_, err = h.svc.PostMessage(ctx, "lagos", ticket.ID, agent, "Looking into it now")
	require.NoError(t, err)
	got, err := h.svc.GetTicket(ctx, "lagos", ticket.ID, buyer)
	require.NoError(t, err)
	assert.Equal(t, TicketAnswered, got.Status)

	first, err := h.svc.Messages(ctx, "lagos", ticket.ID, buyer, time.Time{})
	require.NoError(t, err)
	require.Len(t, first, 2)

	_, err = h.svc.PostMessage(ctx, "lagos", ticket.ID, buyer, "Thanks")
	require.NoError(t, err)
	newer, err := h.svc.Messages(ctx, "lagos", ticket.ID, buyer, first[1].CreatedAt)
	require.NoError(t, err)
	require.Len(t, newer, 1)
	assert.Equal(t, "Thanks", newer[0].Body)

	mine, total, err := h.svc.ListTickets(ctx, "lagos", other, "", 20, 0)
	require.NoError(t, err)
	assert.Empty(t, mine)
	assert.Zero(t, total)
	all, _, err := h.svc.ListTickets(ctx, "lagos", agent, "", 20, 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, h.svc.CloseTicket(ctx, "lagos", ticket.ID, buyer))
	_, err = h.svc.PostMessage(ctx, "lagos", ticket.ID, agent, "One more thing")
	assert.ErrorIs(t, err, ErrTicketClosed)
}

func TestPostMessageScreensContent(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	ticket, err := h.svc.OpenTicket(ctx, "lagos", buyer, "Question", "Is this listing real?")
	require.NoError(t, err)

	_, err = h.svc.PostMessage(ctx, "lagos", ticket.ID, buyer, "call me on +234 803 555 1234")
	var rejected *MessageRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.NotEmpty(t, rejected.Message)

	_, err = h.svc.PostMessage(ctx, "lagos", ticket.ID, buyer, "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestSubscribeReceivesReplies(t *testing.T) {
	h := newHarness()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticket, err := h.svc.OpenTicket(ctx, "lagos", buyer, "Refund", "Where is my refund")
	require.NoError(t, err)

	_, err = h.svc.Subscribe(ctx, "lagos", ticket.ID, other)
	assert.ErrorIs(t, err, ErrTicketNotFound)

	sub, err := h.svc.Subscribe(ctx, "lagos", ticket.ID, buyer)
	require.NoError(t, err)

	sent, err := h.svc.PostMessage(ctx, "lagos", ticket.ID, agent, "We are on it")
	require.NoError(t, err)

	select {
	case ev := <-sub:
		var m Message
		require.NoError(t, json.Unmarshal(ev.Payload, &m))
		assert.Equal(t, sent.ID, m.ID)
		assert.Equal(t, models.RoleAgent, m.SenderRole)
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestMessageSource(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	ticket, err := h.svc.OpenTicket(ctx, "lagos", buyer, "Hi", "First message")
	require.NoError(t, err)

	src := NewMessageSource(h.repo)
	topic := events.SupportTicketTopic(ticket.ID.String())

	evs, err := src.Since(ctx, topic, time.Time{})
	require.NoError(t, err)
	require.Len(t, evs, 1)
	assert.Equal(t, topic, evs[0].Topic)

	evs, err = src.Since(ctx, topic, evs[0].At)
	require.NoError(t, err)
	assert.Empty(t, evs)

	evs, err = src.Since(ctx, events.TopicSubmissionCreated, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, evs)
}
