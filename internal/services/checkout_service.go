package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/entitlement"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/notify"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/payment"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/pricing"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

var (
	ErrPublishBlocked     = errors.New("publishing not allowed on this package")
	ErrPromoRejected      = errors.New("promo code rejected")
	ErrPaymentNotFound    = errors.New("payment not found")
	ErrPaymentInProgress  = errors.New("payment is already being processed")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

const (
	CheckoutPublished          = "published"
	CheckoutPaymentRequired    = "payment_required"
	CheckoutCancelled          = "cancelled"
	CheckoutVerificationFailed = "verification_failed"

	MessagePaymentCancelled = "Payment Cancelled"
	MessageContactSupport   = "We could not confirm your payment. Our support team has been notified and will contact you shortly."

	webhookChargeSuccess = "charge.success"
)

type CheckoutInput struct {
	MarketID  string
	UserID    uuid.UUID
	Email     string
	PackageID uuid.UUID
	PromoCode string
	AttemptID string
	Draft     models.SubmissionDraft
}

type CallbackInput struct {
	MarketID  string
	UserID    uuid.UUID
	Reference string
	Status    string
}

type CheckoutResult struct {
	Status     string                    `json:"status"`
	Decision   *entitlement.Decision     `json:"entitlement,omitempty"`
	Quote      pricing.Quote             `json:"quote"`
	Submission *models.ProductSubmission `json:"submission,omitempty"`
	Payment    *dto.PaymentPopup         `json:"payment,omitempty"`
	Message    string                    `json:"message,omitempty"`
	Warning    string                    `json:"warning,omitempty"`
}

// GatewayConfig is what the client needs to open the payment popup.
type GatewayConfig struct {
	PublicKey string
	ScriptURL string
}

type CheckoutDeps struct {
	Packages     PackageRepository
	Submissions  SubmissionRepository
	Payments     PaymentRepository
	Entitlements *EntitlementService
	Promos       *PromoService
	Plans        *SubscriptionService
	Publisher    *PublishService
	// Gateway is nil when payments are not configured.
	Gateway  PaymentVerifier
	Notifier SupportNotifier
	Reporter ErrorReporter
	Markets  MarketDirectory
	Popup    GatewayConfig
}

// CheckoutService runs the publish flow: entitlement, pricing, payment and
// publish. A paid reference produces at most one submission.
type CheckoutService struct {
	CheckoutDeps
	now          func() time.Time
	newReference func() string
}

func NewCheckoutService(deps CheckoutDeps) *CheckoutService {
	return &CheckoutService{CheckoutDeps: deps, now: time.Now, newReference: newPaymentReference}
}

func newPaymentReference() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "mkt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return "mkt_" + hex.EncodeToString(b)
}

// Quote reports the entitlement decision and base price without side effects.
func (s *CheckoutService) Quote(ctx context.Context, marketID string, userID, packageID uuid.UUID) (*CheckoutResult, error) {
	pkg, err := s.activePackage(ctx, marketID, packageID)
	if err != nil {
		return nil, err
	}
	decision, _, err := s.Entitlements.Evaluate(ctx, marketID, userID, *pkg)
	if err != nil {
		return nil, err
	}
	quote := pricing.NewQuote(pkg.Price)
	if !decision.RequiresPayment {
		quote = pricing.NewQuote(decimal.Zero)
	}
	return &CheckoutResult{Decision: &decision, Quote: quote, Message: decision.Message}, nil
}

func (s *CheckoutService) activePackage(ctx context.Context, marketID string, id uuid.UUID) (*models.Package, error) {
	pkg, err := s.Packages.Get(ctx, marketID, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get package: %w", err)
	}
	if !pkg.IsActive {
		return nil, ErrPackageNotFound
	}
	return pkg, nil
}

// Checkout publishes straight away when nothing is owed. Otherwise it
// records a pending payment and returns the popup configuration.
func (s *CheckoutService) Checkout(ctx context.Context, in CheckoutInput) (*CheckoutResult, error) {
	pkg, err := s.activePackage(ctx, in.MarketID, in.PackageID)
	if err != nil {
		return nil, err
	}
	if err := s.Publisher.Screen(in.Draft); err != nil {
		return nil, err
	}

	decision, offer, err := s.Entitlements.Evaluate(ctx, in.MarketID, in.UserID, *pkg)
	if err != nil {
		return nil, err
	}
	res := &CheckoutResult{Decision: &decision, Quote: pricing.NewQuote(pkg.Price)}
	if !decision.Allowed {
		res.Message = decision.Message
		return res, ErrPublishBlocked
	}

	_, isPlan := offer.(entitlement.SubscriptionOffer)
	if fo, ok := offer.(entitlement.FreeOffer); ok {
		res.Quote = pricing.NewQuote(decimal.Zero)
		return s.publishFree(ctx, in, *pkg, res, fo)
	}
	if !decision.RequiresPayment {
		res.Quote = pricing.NewQuote(decimal.Zero)
		return s.publishNow(ctx, in, *pkg, res, "", isPlan)
	}

	if strings.TrimSpace(in.PromoCode) != "" {
		app, err := s.Promos.Apply(ctx, ApplyPromoInput{
			MarketID:  in.MarketID,
			UserID:    in.UserID,
			Code:      in.PromoCode,
			Package:   *pkg,
			AttemptID: in.AttemptID,
		})
		if err != nil {
			return nil, err
		}
		if !app.Success {
			res.Message = app.Message
			return res, ErrPromoRejected
		}
		res.Quote = QuoteOf(app)
	} else if err := s.Promos.Remove(ctx, in.UserID, in.AttemptID); err != nil {
		slog.Warn("failed to release promo reservation", "market_id", in.MarketID, "attempt_id", in.AttemptID, "error", err)
	}

	if res.Quote.IsFree() {
		if isPlan {
			if _, err := s.Plans.ActivatePlan(ctx, in.MarketID, in.UserID, *pkg, ""); err != nil {
				return nil, err
			}
		}
		return s.publishNow(ctx, in, *pkg, res, "", isPlan)
	}

	if s.Gateway == nil || s.Popup.PublicKey == "" {
		return nil, fmt.Errorf("%w: payments are not configured", ErrGatewayUnavailable)
	}

	tx := &models.PaymentTransaction{
		ID:             uuid.New(),
		MarketID:       in.MarketID,
		UserID:         in.UserID,
		Email:          in.Email,
		PackageID:      pkg.ID,
		Reference:      s.newReference(),
		AttemptID:      in.AttemptID,
		Amount:         res.Quote.Final,
		AmountMinor:    res.Quote.MinorUnits(),
		Currency:       s.Markets.Currency(in.MarketID),
		PromoCode:      res.Quote.PromoCode,
		OriginalAmount: res.Quote.Original,
		DiscountAmount: res.Quote.Discount,
		Status:         models.PaymentPending,
		Draft:          datatypes.NewJSONType(in.Draft),
	}
	if err := s.Payments.Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	res.Status = CheckoutPaymentRequired
	res.Payment = &dto.PaymentPopup{
		ScriptURL: s.Popup.ScriptURL,
		PublicKey: s.Popup.PublicKey,
		Email:     in.Email,
		Amount:    tx.AmountMinor,
		Currency:  tx.Currency,
		Reference: tx.Reference,
	}
	slog.Info("payment initialised",
		"market_id", in.MarketID,
		"user_id", in.UserID.String(),
		"reference", tx.Reference,
		"amount_minor", tx.AmountMinor,
		"action", "checkout.pay",
	)
	return res, nil
}

// publishFree inserts a free ad only if the free allowance still holds at
// insert time. Losing that race blocks the publish like Evaluate would.
func (s *CheckoutService) publishFree(ctx context.Context, in CheckoutInput, pkg models.Package, res *CheckoutResult, offer entitlement.FreeOffer) (*CheckoutResult, error) {
	now := s.Entitlements.now()
	out, err := s.Publisher.Publish(ctx, PublishInput{
		MarketID:  in.MarketID,
		UserID:    in.UserID,
		Package:   pkg,
		Draft:     in.Draft,
		Quote:     res.Quote,
		AttemptID: in.AttemptID,
		FreeQuota: &FreeQuota{
			Since:      entitlement.WindowStart(now, offer.WindowDays),
			AdsAllowed: offer.AdsAllowed,
		},
	})
	if errors.Is(err, ErrFreeLimitReached) {
		decision, derr := entitlement.Decide(offer, entitlement.Usage{FreeAdsCount: offer.AdsAllowed}, now)
		if derr != nil {
			return nil, derr
		}
		res.Decision = &decision
		res.Message = decision.Message
		return res, ErrPublishBlocked
	}
	if err != nil {
		return nil, err
	}
	res.Status = CheckoutPublished
	res.Submission = out.Submission
	res.Warning = out.Warning
	return res, nil
}

func (s *CheckoutService) publishNow(ctx context.Context, in CheckoutInput, pkg models.Package, res *CheckoutResult, reference string, consume bool) (*CheckoutResult, error) {
	out, err := s.Publisher.Publish(ctx, PublishInput{
		MarketID:         in.MarketID,
		UserID:           in.UserID,
		Package:          pkg,
		Draft:            in.Draft,
		Quote:            res.Quote,
		AttemptID:        in.AttemptID,
		PaymentReference: reference,
		ConsumeQuota:     consume,
	})
	if err != nil {
		return nil, err
	}
	res.Status = CheckoutPublished
	res.Submission = out.Submission
	res.Warning = out.Warning
	return res, nil
}

// HandleCallback settles the popup result reported by the client. Only a
// successful server-side verification publishes anything.
func (s *CheckoutService) HandleCallback(ctx context.Context, in CallbackInput) (*CheckoutResult, error) {
	tx, err := s.Payments.GetByReference(ctx, in.Reference)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	if tx.MarketID != in.MarketID || tx.UserID != in.UserID {
		return nil, ErrPaymentNotFound
	}

	if !strings.EqualFold(in.Status, payment.StatusSuccess) {
		return s.cancel(ctx, tx)
	}
	return s.settle(ctx, tx)
}

// HandleWebhook processes a verified gateway event for marketID.
func (s *CheckoutService) HandleWebhook(ctx context.Context, marketID string, event *dto.PaystackWebhook) error {
	if event.Event != webhookChargeSuccess {
		return nil
	}
	var data dto.PaystackChargeData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("decode charge data: %w", err)
	}

	tx, err := s.Payments.GetByReference(ctx, data.Reference)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("webhook for unknown reference", "market_id", marketID, "reference", data.Reference)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get payment: %w", err)
	}
	if tx.MarketID != marketID {
		return ErrPaymentNotFound
	}

	_, err = s.settle(ctx, tx)
	if errors.Is(err, ErrPaymentInProgress) {
		return nil
	}
	return err
}

func (s *CheckoutService) cancel(ctx context.Context, tx *models.PaymentTransaction) (*CheckoutResult, error) {
	if tx.Status == models.PaymentPending {
		ok, err := s.Payments.Transition(ctx, tx.Reference, models.PaymentPending, models.PaymentCancelled, nil)
		if err != nil {
			return nil, fmt.Errorf("cancel payment: %w", err)
		}
		if ok {
			tx.Status = models.PaymentCancelled
		} else {
			// the webhook got there first
			current, err := s.Payments.GetByReference(ctx, tx.Reference)
			if err != nil {
				return nil, fmt.Errorf("reload payment: %w", err)
			}
			tx = current
		}
	}

	switch tx.Status {
	case models.PaymentPaid:
		return s.settle(ctx, tx)
	case models.PaymentVerifying:
		return nil, ErrPaymentInProgress
	case models.PaymentVerificationFailed:
		return &CheckoutResult{Status: CheckoutVerificationFailed, Message: MessageContactSupport}, nil
	}

	if err := s.Promos.Remove(ctx, tx.UserID, tx.AttemptID); err != nil {
		slog.Warn("failed to release promo reservation", "market_id", tx.MarketID, "reference", tx.Reference, "error", err)
	}
	slog.Info("payment cancelled", "market_id", tx.MarketID, "user_id", tx.UserID.String(), "reference", tx.Reference, "action", "checkout.cancel")
	return &CheckoutResult{Status: CheckoutCancelled, Message: MessagePaymentCancelled}, nil
}

// settle verifies a reference with the gateway and publishes exactly once.
// The pending row is claimed by moving it to verifying, so concurrent
// callers cannot both verify.
func (s *CheckoutService) settle(ctx context.Context, tx *models.PaymentTransaction) (*CheckoutResult, error) {
	switch tx.Status {
	case models.PaymentPaid:
		return s.fulfil(ctx, tx)
	case models.PaymentVerifying:
		return nil, ErrPaymentInProgress
	case models.PaymentVerificationFailed:
		return &CheckoutResult{Status: CheckoutVerificationFailed, Message: MessageContactSupport}, nil
	}
	if s.Gateway == nil {
		return nil, fmt.Errorf("%w: payments are not configured", ErrGatewayUnavailable)
	}

	claimed, err := s.Payments.Transition(ctx, tx.Reference, tx.Status, models.PaymentVerifying, nil)
	if err != nil {
		return nil, fmt.Errorf("claim payment: %w", err)
	}
	if !claimed {
		return nil, ErrPaymentInProgress
	}

	verified, err := s.Gateway.Verify(ctx, tx.Reference)
	if err != nil {
		if errors.Is(err, payment.ErrGatewayUnavailable) {
			if _, rerr := s.Payments.Transition(ctx, tx.Reference, models.PaymentVerifying, tx.Status, nil); rerr != nil {
				slog.Error("failed to release payment claim", "reference", tx.Reference, "error", rerr)
			}
			return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
		}
		return s.failVerification(ctx, tx, err.Error())
	}

	switch {
	case !verified.Succeeded():
		return s.failVerification(ctx, tx, "gateway status "+verified.Status)
	case verified.Amount != tx.AmountMinor:
		return s.failVerification(ctx, tx, fmt.Sprintf("amount mismatch: expected %d got %d", tx.AmountMinor, verified.Amount))
	case !strings.EqualFold(verified.Currency, tx.Currency):
		return s.failVerification(ctx, tx, fmt.Sprintf("currency mismatch: expected %s got %s", tx.Currency, verified.Currency))
	}

	paidAt := s.now()
	if !verified.PaidAt.IsZero() {
		paidAt = verified.PaidAt
	}
	if _, err := s.Payments.Transition(ctx, tx.Reference, models.PaymentVerifying, models.PaymentPaid, map[string]interface{}{
		"paid_at":          paidAt,
		"gateway_response": verified.GatewayResponse,
	}); err != nil {
		return nil, fmt.Errorf("mark payment paid: %w", err)
	}
	tx.Status = models.PaymentPaid
	tx.PaidAt = &paidAt

	slog.Info("payment verified", "market_id", tx.MarketID, "user_id", tx.UserID.String(), "reference", tx.Reference, "action", "checkout.verify")
	return s.fulfil(ctx, tx)
}

func (s *CheckoutService) failVerification(ctx context.Context, tx *models.PaymentTransaction, reason string) (*CheckoutResult, error) {
	if _, err := s.Payments.Transition(ctx, tx.Reference, models.PaymentVerifying, models.PaymentVerificationFailed, map[string]interface{}{
		"gateway_response": reason,
	}); err != nil {
		slog.Error("failed to record verification failure", "reference", tx.Reference, "error", err)
	}

	err := fmt.Errorf("payment %s not verified: %s", tx.Reference, reason)
	slog.Error("payment verification failed",
		"market_id", tx.MarketID,
		"user_id", tx.UserID.String(),
		"reference", tx.Reference,
		"action", "checkout.verify",
		"error", reason,
	)
	if s.Reporter != nil {
		s.Reporter.CaptureError(err, map[string]string{"market_id": tx.MarketID, "reference": tx.Reference})
	}
	if s.Notifier != nil {
		issue := notify.PaymentIssue{
			MarketID:  tx.MarketID,
			Reference: tx.Reference,
			UserID:    tx.UserID.String(),
			Email:     tx.Email,
			Amount:    tx.Amount.StringFixed(2),
			Currency:  tx.Currency,
			Reason:    reason,
		}
		if nerr := s.Notifier.PaymentVerificationFailed(ctx, issue); nerr != nil {
			slog.Error("failed to notify support", "reference", tx.Reference, "error", nerr)
		}
	}
	return &CheckoutResult{Status: CheckoutVerificationFailed, Message: MessageContactSupport}, nil
}

// fulfil publishes the submission a paid reference bought. It is safe to
// call again for the same reference.
func (s *CheckoutService) fulfil(ctx context.Context, tx *models.PaymentTransaction) (*CheckoutResult, error) {
	quote := pricing.Quote{Original: tx.OriginalAmount, Discount: tx.DiscountAmount, Final: tx.Amount, PromoCode: tx.PromoCode}

	if existing, err := s.existingSubmission(ctx, tx); err != nil {
		return nil, err
	} else if existing != nil {
		return &CheckoutResult{Status: CheckoutPublished, Quote: quote, Submission: existing}, nil
	}

	pkg, err := s.Packages.Get(ctx, tx.MarketID, tx.PackageID)
	if err != nil {
		return nil, fmt.Errorf("get paid package: %w", err)
	}
	offer, err := entitlement.OfferFor(*pkg)
	if err != nil {
		return nil, err
	}
	_, isPlan := offer.(entitlement.SubscriptionOffer)
	if isPlan {
		active, err := s.Plans.GetActive(ctx, tx.MarketID, tx.UserID)
		if err != nil && !errors.Is(err, ErrNoActivePlan) {
			return nil, err
		}
		if active == nil || active.PaymentReference != tx.Reference {
			if _, err := s.Plans.ActivatePlan(ctx, tx.MarketID, tx.UserID, *pkg, tx.Reference); err != nil {
				return nil, err
			}
		}
	}

	out, err := s.Publisher.Publish(ctx, PublishInput{
		MarketID:         tx.MarketID,
		UserID:           tx.UserID,
		Package:          *pkg,
		Draft:            tx.Draft.Data(),
		Quote:            quote,
		AttemptID:        tx.AttemptID,
		PaymentReference: tx.Reference,
		ConsumeQuota:     isPlan,
	})
	if err != nil {
		slog.Error("paid submission not published", "market_id", tx.MarketID, "reference", tx.Reference, "action", "checkout.publish", "error", err)
		return nil, err
	}
	if err := s.Payments.AttachSubmission(ctx, tx.Reference, out.Submission.ID); err != nil {
		slog.Error("failed to link submission to payment", "reference", tx.Reference, "submission_id", out.Submission.ID.String(), "error", err)
	}
	return &CheckoutResult{Status: CheckoutPublished, Quote: quote, Submission: out.Submission, Warning: out.Warning}, nil
}

func (s *CheckoutService) existingSubmission(ctx context.Context, tx *models.PaymentTransaction) (*models.ProductSubmission, error) {
	if tx.SubmissionID != nil {
		sub, err := s.Submissions.Get(ctx, tx.MarketID, *tx.SubmissionID)
		if err == nil {
			return sub, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("get submission: %w", err)
		}
	}
	sub, err := s.Submissions.FindByPaymentReference(ctx, tx.Reference)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find submission by reference: %w", err)
	}
	if tx.SubmissionID == nil {
		if err := s.Payments.AttachSubmission(ctx, tx.Reference, sub.ID); err != nil {
			slog.Warn("failed to link submission to payment", "reference", tx.Reference, "error", err)
		}
	}
	return sub, nil
}
