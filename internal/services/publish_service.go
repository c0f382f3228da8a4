package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/events"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/pricing"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var ErrContentRejected = errors.New("content rejected")

// WarningUsagePending is returned with a published ad whose plan usage
// could not be recorded. The ad stands and the row is flagged for
// reconciliation.
const WarningUsagePending = "Your ad was published but your plan usage is still being updated."

// ContentRejectedError carries the message shown to the user.
type ContentRejectedError struct {
	Reason  string
	Message string
}

func (e *ContentRejectedError) Error() string { return "content rejected: " + e.Reason }

func (e *ContentRejectedError) Is(target error) bool { return target == ErrContentRejected }

type PublishInput struct {
	MarketID         string
	UserID           uuid.UUID
	Package          models.Package
	Draft            models.SubmissionDraft
	Quote            pricing.Quote
	AttemptID        string
	PaymentReference string
	// ConsumeQuota takes one ad from the user's active plan after insert.
	ConsumeQuota bool
	// FreeQuota, when set, makes the insert recount the user's free ads
	// under the owner's lock and refuse with ErrFreeLimitReached.
	FreeQuota *FreeQuota
}

// FreeQuota is the free-ad allowance checked at insert time.
type FreeQuota struct {
	Since      time.Time
	AdsAllowed int
}

type PublishResult struct {
	Submission *models.ProductSubmission
	Warning    string
}

// PromoRedeemer consumes a checkout attempt's promo reservation.
type PromoRedeemer interface {
	Redeem(ctx context.Context, userID uuid.UUID, attemptID string) error
}

type submissionCreated struct {
	SubmissionID string          `json:"submission_id"`
	MarketID     string          `json:"market_id"`
	UserID       string          `json:"user_id"`
	PackageID    string          `json:"package_id"`
	Title        string          `json:"title"`
	IsFree       bool            `json:"is_free"`
	AmountPaid   decimal.Decimal `json:"amount_paid"`
}

// PublishService turns an entitled draft into a stored submission.
type PublishService struct {
	submissions   SubmissionRepository
	subscriptions SubscriptionRepository
	promos        PromoRedeemer
	screener      ContentScreener
	broker        events.Broker
	rules         ListingRules
	now           func() time.Time
}

func NewPublishService(
	submissions SubmissionRepository,
	subscriptions SubscriptionRepository,
	promos PromoRedeemer,
	screener ContentScreener,
	broker events.Broker,
	rules ListingRules,
) *PublishService {
	return &PublishService{
		submissions:   submissions,
		subscriptions: subscriptions,
		promos:        promos,
		screener:      screener,
		broker:        broker,
		rules:         rules,
		now:           time.Now,
	}
}

// Screen runs the content filter over the user-written parts of a draft.
func (s *PublishService) Screen(d models.SubmissionDraft) error {
	for _, text := range []string{d.Title, d.Description, d.Location} {
		if ok, reason := s.screener.FilterContent(text); !ok {
			return &ContentRejectedError{Reason: reason, Message: s.screener.GetRejectionMessage(reason)}
		}
	}
	return nil
}

// Publish inserts the submission first and only then consumes plan quota.
// A failed increment never rolls the ad back: the row is flagged and the
// caller gets a warning.
func (s *PublishService) Publish(ctx context.Context, in PublishInput) (*PublishResult, error) {
	if err := s.Screen(in.Draft); err != nil {
		return nil, err
	}

	now := s.now()
	expiresAt := now.AddDate(0, 0, s.rules.lifetime(in.Package.DurationDays))
	sub := &models.ProductSubmission{
		ID:             uuid.New(),
		MarketID:       in.MarketID,
		UserID:         in.UserID,
		Title:          strings.TrimSpace(in.Draft.Title),
		Description:    strings.TrimSpace(in.Draft.Description),
		Category:       in.Draft.Category,
		Price:          in.Draft.Price,
		Location:       in.Draft.Location,
		Images:         in.Draft.Images,
		PackageID:      in.Package.ID,
		PackagePrice:   in.Package.Price,
		IsFreePackage:  in.Package.IsFree(),
		PromoCode:      in.Quote.PromoCode,
		DiscountAmount: in.Quote.Discount,
		Status:         models.SubmissionPending,
		ExpiresAt:      &expiresAt,
	}
	sub.Package = datatypes.NewJSONType(in.Package.Snapshot())
	if in.PaymentReference != "" {
		ref := in.PaymentReference
		sub.PaymentReference = &ref
	}

	if err := s.insert(ctx, sub, in.FreeQuota); err != nil {
		return nil, err
	}

	logger := slog.With(
		"market_id", in.MarketID,
		"user_id", in.UserID.String(),
		"submission_id", sub.ID.String(),
	)
	res := &PublishResult{Submission: sub}

	if in.ConsumeQuota {
		if err := s.subscriptions.IncrementUsage(ctx, in.MarketID, in.UserID, now); err != nil {
			logger.Warn("plan usage not recorded, flagged for reconciliation", "action", "publish.increment_usage", "error", err)
			if ferr := s.submissions.MarkUsageReconcile(ctx, sub.ID); ferr != nil {
				logger.Error("failed to flag submission for reconciliation", "error", ferr)
			}
			sub.UsageReconcileRequired = true
			res.Warning = WarningUsagePending
		}
	}

	if in.Quote.PromoCode != "" && in.AttemptID != "" {
		if err := s.promos.Redeem(ctx, in.UserID, in.AttemptID); err != nil {
			logger.Warn("promo redemption not recorded", "action", "publish.redeem_promo", "code", in.Quote.PromoCode, "error", err)
		}
	}

	if s.broker != nil {
		evt := submissionCreated{
			SubmissionID: sub.ID.String(),
			MarketID:     in.MarketID,
			UserID:       in.UserID.String(),
			PackageID:    in.Package.ID.String(),
			Title:        sub.Title,
			IsFree:       sub.IsFreePackage,
			AmountPaid:   in.Quote.Final,
		}
		if err := s.broker.Publish(ctx, events.TopicSubmissionCreated, evt); err != nil {
			logger.Warn("submission event not published", "error", err)
		}
	}

	logger.Info("submission published", "action", "publish", "package_id", in.Package.ID.String(), "free", sub.IsFreePackage)
	return res, nil
}

func (s *PublishService) insert(ctx context.Context, sub *models.ProductSubmission, quota *FreeQuota) error {
	if quota == nil {
		if err := s.submissions.Create(ctx, sub); err != nil {
			return fmt.Errorf("insert submission: %w", err)
		}
		return nil
	}
	err := s.submissions.CreateFree(ctx, sub, quota.Since, func(count int64) error {
		if int(count) >= quota.AdsAllowed {
			return ErrFreeLimitReached
		}
		return nil
	})
	switch {
	case errors.Is(err, ErrFreeLimitReached):
		return err
	case err != nil:
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}
