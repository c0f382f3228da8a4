package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/store"
	"github.com/google/uuid"
)

var ErrNoActivePlan = errors.New("no active plan")

type SubscriptionService struct {
	subs SubscriptionRepository
	now  func() time.Time
}

func NewSubscriptionService(subs SubscriptionRepository) *SubscriptionService {
	return &SubscriptionService{subs: subs, now: time.Now}
}

// GetActive returns the user's active plan or ErrNoActivePlan. A row whose
// end date has passed but which the expiry job has not reached yet counts
// as no plan.
func (s *SubscriptionService) GetActive(ctx context.Context, marketID string, userID uuid.UUID) (*models.Subscription, error) {
	sub, err := s.subs.GetActive(ctx, marketID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoActivePlan
	}
	if err != nil {
		return nil, fmt.Errorf("get active plan: %w", err)
	}
	if !s.now().Before(sub.EndDate) {
		return nil, ErrNoActivePlan
	}
	return sub, nil
}

// Plan is GetActive seen through the entitlement rules. No plan is nil.
func (s *SubscriptionService) Plan(ctx context.Context, marketID string, userID uuid.UUID) (*entitlement.Plan, error) {
	sub, err := s.GetActive(ctx, marketID, userID)
	if errors.Is(err, ErrNoActivePlan) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entitlement.Plan{
		PackageID:  sub.PackageID,
		AdsUsed:    sub.AdsUsed,
		AdsAllowed: sub.AdsAllowed,
		EndDate:    sub.EndDate,
		Active:     sub.Status == models.SubscriptionActive,
	}, nil
}

// ActivatePlan makes pkg the user's active plan with a fresh quota. Buying
// the same package again before it ends extends from the current end date.
func (s *SubscriptionService) ActivatePlan(ctx context.Context, marketID string, userID uuid.UUID, pkg models.Package, reference string) (*models.Subscription, error) {
	now := s.now()
	from := now
	current, err := s.GetActive(ctx, marketID, userID)
	if err != nil && !errors.Is(err, ErrNoActivePlan) {
		return nil, err
	}
	if current != nil && current.PackageID == pkg.ID && current.EndDate.After(now) {
		from = current.EndDate
	}

	days := pkg.DurationDays
	if days <= 0 {
		days = entitlement.DefaultWindowDays
	}
	sub := &models.Subscription{
		ID:               uuid.New(),
		MarketID:         marketID,
		UserID:           userID,
		PackageID:        pkg.ID,
		PackageName:      pkg.Name,
		AdsAllowed:       pkg.AdsAllowed,
		AdsUsed:          0,
		StartDate:        now,
		EndDate:          from.AddDate(0, 0, days),
		Status:           models.SubscriptionActive,
		PaymentReference: reference,
	}
	if err := s.subs.Replace(ctx, sub); err != nil {
		return nil, fmt.Errorf("activate plan: %w", err)
	}
	slog.Info("plan activated",
		"market_id", marketID,
		"user_id", userID.String(),
		"package_id", pkg.ID.String(),
		"action", "subscription.activate",
		"end_date", sub.EndDate,
	)
	return sub, nil
}

// ExpireDue marks every plan past its end date expired.
func (s *SubscriptionService) ExpireDue(ctx context.Context) (int64, error) {
	return s.subs.ExpireDue(ctx, s.now())
}
