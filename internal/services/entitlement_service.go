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

var (
	ErrSubmissionNotFound      = errors.New("submission not found")
	ErrAdNotExpired            = errors.New("only expired ads can be renewed")
	ErrRenewalRequiresPurchase = errors.New("paid ads are renewed by buying a package")
	ErrFreeLimitReached        = errors.New("free ad limit reached")
)

// ListingRules are the market-wide defaults for ad lifetimes.
type ListingRules struct {
	// FreeWindowDays overrides the free packages' own window when positive.
	FreeWindowDays int
	// AdLifetimeDays applies when a package has no duration.
	AdLifetimeDays int
}

func (r ListingRules) lifetime(durationDays int) int {
	if durationDays > 0 {
		return durationDays
	}
	if r.AdLifetimeDays > 0 {
		return r.AdLifetimeDays
	}
	return entitlement.DefaultWindowDays
}

type EntitlementService struct {
	submissions SubmissionRepository
	plans       *SubscriptionService
	rules       ListingRules
	now         func() time.Time
}

func NewEntitlementService(submissions SubmissionRepository, plans *SubscriptionService, rules ListingRules) *EntitlementService {
	return &EntitlementService{submissions: submissions, plans: plans, rules: rules, now: time.Now}
}

func (s *EntitlementService) offerFor(pkg models.Package) (entitlement.Offer, error) {
	offer, err := entitlement.OfferFor(pkg)
	if err != nil {
		return nil, err
	}
	if fo, ok := offer.(entitlement.FreeOffer); ok && s.rules.FreeWindowDays > 0 {
		fo.WindowDays = s.rules.FreeWindowDays
		offer = fo
	}
	return offer, nil
}

// Evaluate decides what the user must do to publish on pkg right now.
func (s *EntitlementService) Evaluate(ctx context.Context, marketID string, userID uuid.UUID, pkg models.Package) (entitlement.Decision, entitlement.Offer, error) {
	offer, err := s.offerFor(pkg)
	if err != nil {
		return entitlement.Decision{}, nil, err
	}

	now := s.now()
	var usage entitlement.Usage
	if fo, ok := offer.(entitlement.FreeOffer); ok {
		n, err := s.submissions.CountFree(ctx, marketID, userID, entitlement.WindowStart(now, fo.WindowDays))
		if err != nil {
			return entitlement.Decision{}, nil, fmt.Errorf("count free ads: %w", err)
		}
		usage.FreeAdsCount = int(n)
	}

	plan, err := s.plans.Plan(ctx, marketID, userID)
	if err != nil {
		return entitlement.Decision{}, nil, err
	}
	usage.Plan = plan

	decision, err := entitlement.Decide(offer, usage, now)
	if err != nil {
		return entitlement.Decision{}, nil, err
	}
	return decision, offer, nil
}

// ListSubmissions returns the user's ads, newest first.
func (s *EntitlementService) ListSubmissions(ctx context.Context, marketID string, userID uuid.UUID, limit, offset int) ([]models.ProductSubmission, int64, error) {
	return s.submissions.ListByUser(ctx, marketID, userID, limit, offset)
}

// RenewAd puts an expired free ad back into review if the user still has
// free ads left in the current window.
func (s *EntitlementService) RenewAd(ctx context.Context, marketID string, userID, adID uuid.UUID) (*models.ProductSubmission, error) {
	sub, err := s.submissions.Get(ctx, marketID, adID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrSubmissionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if sub.UserID != userID {
		return nil, ErrSubmissionNotFound
	}
	if sub.Status != models.SubmissionExpired {
		return nil, ErrAdNotExpired
	}
	if !sub.IsFreePackage {
		return nil, ErrRenewalRequiresPurchase
	}

	snap := sub.Package.Data()
	window := snap.DurationDays
	if s.rules.FreeWindowDays > 0 {
		window = s.rules.FreeWindowDays
	}
	now := s.now()
	expiresAt := now.AddDate(0, 0, s.rules.lifetime(snap.DurationDays))

	err = s.submissions.RenewFree(ctx, sub, entitlement.WindowStart(now, window), now, expiresAt, func(count int64) error {
		if !entitlement.CanRenewFree(int(count), snap.AdsAllowed) {
			return ErrFreeLimitReached
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrFreeLimitReached):
		return nil, err
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrAdNotExpired
	case err != nil:
		return nil, fmt.Errorf("renew ad: %w", err)
	}

	slog.Info("free ad renewed", "market_id", marketID, "user_id", userID.String(), "submission_id", adID.String(), "action", "submission.renew")
	return sub, nil
}
