package services

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/notify"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/payment"
	"github.com/google/uuid"
)

// The interfaces below are satisfied by the types in internal/store and
// let the services run against stubs in tests.

type PackageRepository interface {
	ListActive(ctx context.Context, marketID string) ([]models.Package, error)
	Get(ctx context.Context, marketID string, id uuid.UUID) (*models.Package, error)
	Create(ctx context.Context, pkg *models.Package) error
	Deactivate(ctx context.Context, marketID string, id uuid.UUID) error
	Count(ctx context.Context, marketID string) (int64, error)
}

type PromoRepository interface {
	FindByCode(ctx context.Context, marketID, code string) (*models.PromoCode, error)
	CountRedeemed(ctx context.Context, promoID, userID uuid.UUID) (int64, error)
	FindAttempt(ctx context.Context, userID uuid.UUID, attemptID string) (*models.PromoRedemption, error)
	Reserve(ctx context.Context, r *models.PromoRedemption) (*models.PromoRedemption, error)
	Release(ctx context.Context, userID uuid.UUID, attemptID string) error
	Redeem(ctx context.Context, userID uuid.UUID, attemptID string, now time.Time) error
	Create(ctx context.Context, promo *models.PromoCode) error
	List(ctx context.Context, marketID string) ([]models.PromoCode, error)
}

type SubscriptionRepository interface {
	GetActive(ctx context.Context, marketID string, userID uuid.UUID) (*models.Subscription, error)
	Replace(ctx context.Context, sub *models.Subscription) error
	IncrementUsage(ctx context.Context, marketID string, userID uuid.UUID, now time.Time) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type SubmissionRepository interface {
	Create(ctx context.Context, sub *models.ProductSubmission) error
	Get(ctx context.Context, marketID string, id uuid.UUID) (*models.ProductSubmission, error)
	FindByPaymentReference(ctx context.Context, reference string) (*models.ProductSubmission, error)
	ListByUser(ctx context.Context, marketID string, userID uuid.UUID, limit, offset int) ([]models.ProductSubmission, int64, error)
	ListByStatus(ctx context.Context, marketID, status string, limit, offset int) ([]models.ProductSubmission, int64, error)
	CountFree(ctx context.Context, marketID string, userID uuid.UUID, since time.Time) (int64, error)
	CreateFree(ctx context.Context, sub *models.ProductSubmission, since time.Time, allow func(count int64) error) error
	RenewFree(ctx context.Context, sub *models.ProductSubmission, since, now, expiresAt time.Time, allow func(count int64) error) error
	MarkUsageReconcile(ctx context.Context, id uuid.UUID) error
	SetStatus(ctx context.Context, marketID string, id uuid.UUID, status, note string) error
	ExpireDue(ctx context.Context, now time.Time) (int64, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, tx *models.PaymentTransaction) error
	GetByReference(ctx context.Context, reference string) (*models.PaymentTransaction, error)
	Transition(ctx context.Context, reference, from, to string, fields map[string]interface{}) (bool, error)
	AttachSubmission(ctx context.Context, reference string, submissionID uuid.UUID) error
}

// PaymentVerifier is the server-side half of the gateway.
type PaymentVerifier interface {
	Verify(ctx context.Context, reference string) (*payment.Transaction, error)
}

type SupportNotifier interface {
	PaymentVerificationFailed(ctx context.Context, issue notify.PaymentIssue) error
}

type MarketDirectory interface {
	Currency(marketID string) string
}

// ContentScreener rejects text that breaks the listing rules.
type ContentScreener interface {
	FilterContent(text string) (bool, string)
	GetRejectionMessage(reason string) string
}
