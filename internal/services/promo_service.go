package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/pricing"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/store"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrAttemptRequired = errors.New("attempt_id is required")
	ErrPromoCodeTaken  = errors.New("promo code already exists")
	ErrInvalidPromo    = errors.New("invalid promo code definition")
)

const (
	msgPromoInvalid      = "Invalid promo code"
	msgPromoInactive     = "This promo code is no longer active"
	msgPromoNotStarted   = "This promo code is not active yet"
	msgPromoExpired      = "This promo code has expired"
	msgPromoExhausted    = "This promo code has reached its usage limit"
	msgPromoAlreadyUsed  = "You have already used this promo code"
	msgPromoWrongPackage = "This promo code does not apply to the selected package"
	msgPromoMisconfig    = "This promo code cannot be used right now"
	msgPromoFreePackage  = "Promo codes cannot be applied to free packages"
	msgPromoCompleted    = "This checkout has already been completed"
)

type ApplyPromoInput struct {
	MarketID  string
	UserID    uuid.UUID
	Code      string
	Package   models.Package
	AttemptID string
}

// PromoService validates promo codes and holds one reservation per
// checkout attempt until the submission is published.
type PromoService struct {
	promos PromoRepository
	now    func() time.Time
}

func NewPromoService(promos PromoRepository) *PromoService {
	return &PromoService{promos: promos, now: time.Now}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Validate checks a code without reserving it. Any lookup problem reads as
// an invalid code.
func (s *PromoService) Validate(ctx context.Context, marketID, code string, userID uuid.UUID, packageID *uuid.UUID) (*dto.PromoValidation, error) {
	promo, reason, err := s.check(ctx, marketID, normalizeCode(code), userID, packageID)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return &dto.PromoValidation{IsValid: false, DiscountValue: decimal.Zero, Message: reason}, nil
	}
	return &dto.PromoValidation{
		IsValid:       true,
		DiscountType:  promo.DiscountType,
		DiscountValue: promo.DiscountValue,
		Message:       describePromo(promo),
	}, nil
}

func (s *PromoService) check(ctx context.Context, marketID, code string, userID uuid.UUID, packageID *uuid.UUID) (*models.PromoCode, string, error) {
	if code == "" {
		return nil, msgPromoInvalid, nil
	}
	promo, err := s.promos.FindByCode(ctx, marketID, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, msgPromoInvalid, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("find promo: %w", err)
	}

	now := s.now()
	switch {
	case !promo.IsActive:
		return nil, msgPromoInactive, nil
	case promo.ValidFrom != nil && now.Before(*promo.ValidFrom):
		return nil, msgPromoNotStarted, nil
	case promo.ValidTo != nil && now.After(*promo.ValidTo):
		return nil, msgPromoExpired, nil
	case promo.MaxUses > 0 && promo.UsedCount >= promo.MaxUses:
		return nil, msgPromoExhausted, nil
	case packageID != nil && !promo.AppliesTo(*packageID):
		return nil, msgPromoWrongPackage, nil
	}
	if _, err := pricing.ParseDiscountType(promo.DiscountType); err != nil {
		slog.Error("promo code has unknown discount type", "market_id", marketID, "code", code, "error", err)
		return nil, msgPromoMisconfig, nil
	}

	limit := promo.PerUserLimit
	if limit <= 0 {
		limit = 1
	}
	used, err := s.promos.CountRedeemed(ctx, promo.ID, userID)
	if err != nil {
		return nil, "", fmt.Errorf("count redemptions: %w", err)
	}
	if used >= int64(limit) {
		return nil, msgPromoAlreadyUsed, nil
	}
	return promo, "", nil
}

func describePromo(p *models.PromoCode) string {
	switch pricing.DiscountType(p.DiscountType) {
	case pricing.DiscountPercentage:
		return fmt.Sprintf("%s%% off", p.DiscountValue.String())
	case pricing.DiscountFixed:
		return fmt.Sprintf("%s off", p.DiscountValue.StringFixed(2))
	default:
		return "Your ad is free with this code"
	}
}

// Apply prices the package with code and reserves the code for the
// attempt. Calling it again for the same attempt returns the stored result.
func (s *PromoService) Apply(ctx context.Context, in ApplyPromoInput) (*dto.PromoApplication, error) {
	if strings.TrimSpace(in.AttemptID) == "" {
		return nil, ErrAttemptRequired
	}
	code := normalizeCode(in.Code)
	base := pricing.NewQuote(in.Package.Price)
	reject := func(msg string) *dto.PromoApplication {
		return &dto.PromoApplication{
			Success:        false,
			Code:           code,
			OriginalAmount: base.Original,
			DiscountAmount: decimal.Zero,
			FinalAmount:    base.Final,
			Message:        msg,
		}
	}

	if base.IsFree() {
		return reject(msgPromoFreePackage), nil
	}

	existing, err := s.promos.FindAttempt(ctx, in.UserID, in.AttemptID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find attempt: %w", err)
	}
	if existing != nil {
		sameTerms := existing.Code == code && existing.PackageID == in.Package.ID && existing.OriginalAmount.Equal(base.Original)
		switch {
		case existing.Status == models.RedemptionRedeemed && sameTerms:
			return applied(existing), nil
		case existing.Status == models.RedemptionRedeemed:
			return reject(msgPromoCompleted), nil
		case existing.Status == models.RedemptionReserved && sameTerms:
			return applied(existing), nil
		}
	}

	promo, reason, err := s.check(ctx, in.MarketID, code, in.UserID, &in.Package.ID)
	if err != nil {
		return nil, err
	}
	if reason != "" {
		return reject(reason), nil
	}

	kind, _ := pricing.ParseDiscountType(promo.DiscountType)
	quote, err := base.WithPromo(code, kind, promo.DiscountValue)
	if err != nil {
		return nil, fmt.Errorf("price promo: %w", err)
	}

	stored, err := s.promos.Reserve(ctx, &models.PromoRedemption{
		ID:             uuid.New(),
		MarketID:       in.MarketID,
		PromoCodeID:    promo.ID,
		Code:           code,
		UserID:         in.UserID,
		AttemptID:      in.AttemptID,
		PackageID:      in.Package.ID,
		OriginalAmount: quote.Original,
		DiscountAmount: quote.Discount,
		FinalAmount:    quote.Final,
	})
	if err != nil {
		return nil, fmt.Errorf("reserve promo: %w", err)
	}
	return applied(stored), nil
}

func applied(r *models.PromoRedemption) *dto.PromoApplication {
	return &dto.PromoApplication{
		Success:        true,
		Code:           r.Code,
		OriginalAmount: r.OriginalAmount,
		DiscountAmount: r.DiscountAmount,
		FinalAmount:    r.FinalAmount,
		Message:        "Promo code applied",
	}
}

// QuoteOf turns a successful application back into a price quote.
func QuoteOf(a *dto.PromoApplication) pricing.Quote {
	return pricing.Quote{
		Original:  a.OriginalAmount,
		Discount:  a.DiscountAmount,
		Final:     a.FinalAmount,
		PromoCode: a.Code,
	}
}

// Remove drops the attempt's reservation. Removing twice is harmless.
func (s *PromoService) Remove(ctx context.Context, userID uuid.UUID, attemptID string) error {
	if attemptID == "" {
		return nil
	}
	return s.promos.Release(ctx, userID, attemptID)
}

// Redeem consumes the attempt's reservation once its submission exists.
func (s *PromoService) Redeem(ctx context.Context, userID uuid.UUID, attemptID string) error {
	return s.promos.Redeem(ctx, userID, attemptID, s.now())
}

func (s *PromoService) CreatePromo(ctx context.Context, marketID string, req *dto.CreatePromoRequest) (*models.PromoCode, error) {
	code := normalizeCode(req.Code)
	kind, err := pricing.ParseDiscountType(req.DiscountType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPromo, err)
	}

	value := req.DiscountValue
	switch kind {
	case pricing.DiscountPercentage:
		if !value.IsPositive() || value.GreaterThan(decimal.NewFromInt(100)) {
			return nil, fmt.Errorf("%w: percentage must be between 0 and 100", ErrInvalidPromo)
		}
	case pricing.DiscountFixed:
		if !value.IsPositive() {
			return nil, fmt.Errorf("%w: fixed discount must be positive", ErrInvalidPromo)
		}
	case pricing.DiscountFree:
		value = decimal.Zero
	}
	if req.ValidFrom != nil && req.ValidTo != nil && !req.ValidTo.After(*req.ValidFrom) {
		return nil, fmt.Errorf("%w: valid_to must be after valid_from", ErrInvalidPromo)
	}

	if _, err := s.promos.FindByCode(ctx, marketID, code); err == nil {
		return nil, ErrPromoCodeTaken
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("find promo: %w", err)
	}

	packageIDs := make([]string, 0, len(req.PackageIDs))
	for _, id := range req.PackageIDs {
		packageIDs = append(packageIDs, id.String())
	}
	perUser := req.PerUserLimit
	if perUser <= 0 {
		perUser = 1
	}

	promo := &models.PromoCode{
		ID:            uuid.New(),
		MarketID:      marketID,
		Code:          code,
		DiscountType:  string(kind),
		DiscountValue: value,
		ValidFrom:     req.ValidFrom,
		ValidTo:       req.ValidTo,
		MaxUses:       req.MaxUses,
		PerUserLimit:  perUser,
		PackageIDs:    packageIDs,
		IsActive:      true,
	}
	if err := s.promos.Create(ctx, promo); err != nil {
		return nil, fmt.Errorf("create promo: %w", err)
	}
	return promo, nil
}

func (s *PromoService) ListPromos(ctx context.Context, marketID string) ([]models.PromoCode, error) {
	return s.promos.List(ctx, marketID)
}
