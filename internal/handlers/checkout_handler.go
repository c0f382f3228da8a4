package handlers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// CheckoutFlow is the publish and payment flow behind the checkout routes.
type CheckoutFlow interface {
	Quote(ctx context.Context, marketID string, userID, packageID uuid.UUID) (*services.CheckoutResult, error)
	Checkout(ctx context.Context, in services.CheckoutInput) (*services.CheckoutResult, error)
	HandleCallback(ctx context.Context, in services.CallbackInput) (*services.CheckoutResult, error)
}

type Listings interface {
	ListSubmissions(ctx context.Context, marketID string, userID uuid.UUID, limit, offset int) ([]models.ProductSubmission, int64, error)
	RenewAd(ctx context.Context, marketID string, userID, adID uuid.UUID) (*models.ProductSubmission, error)
}

type PlanReader interface {
	GetActive(ctx context.Context, marketID string, userID uuid.UUID) (*models.Subscription, error)
}

type VendorChecker interface {
	IsVerifiedVendor(ctx context.Context, marketID string, userID uuid.UUID) (bool, error)
}

type FeatureFlags interface {
	HasFeature(marketID, feature string) bool
}

type CheckoutHandler struct {
	checkout CheckoutFlow
	listings Listings
	plans    PlanReader
	vendors  VendorChecker
	features FeatureFlags
}

func NewCheckoutHandler(checkout CheckoutFlow, listings Listings, plans PlanReader, vendors VendorChecker, features FeatureFlags) *CheckoutHandler {
	return &CheckoutHandler{
		checkout: checkout,
		listings: listings,
		plans:    plans,
		vendors:  vendors,
		features: features,
	}
}

// Entitlement reports whether the caller may publish on ?package_id= and
// what it would cost.
func (h *CheckoutHandler) Entitlement(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	packageID, err := uuid.Parse(c.Query("package_id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "package_id is required")
	}

	res, err := h.checkout.Quote(c.UserContext(), tenant.GetMarketID(c), userID, packageID)
	if err != nil {
		return h.checkoutError(c, res, err)
	}
	return c.JSON(res)
}

func (h *CheckoutHandler) Checkout(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CheckoutRequest
	if resp := bind(c, &req); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	marketID := tenant.GetMarketID(c)
	if h.features.HasFeature(marketID, tenant.FeatureRequireKYC) {
		verified, err := h.vendors.IsVerifiedVendor(c.UserContext(), marketID, userID)
		if err != nil {
			return fail(c, fiber.StatusInternalServerError, "Could not check your vendor status")
		}
		if !verified {
			return fail(c, fiber.StatusForbidden, "Complete vendor verification before posting ads")
		}
	}

	res, err := h.checkout.Checkout(c.UserContext(), services.CheckoutInput{
		MarketID:  marketID,
		UserID:    userID,
		Email:     tenant.GetEmail(c),
		PackageID: req.PackageID,
		PromoCode: req.PromoCode,
		AttemptID: req.AttemptID,
		Draft: models.SubmissionDraft{
			Title:       req.Draft.Title,
			Description: req.Draft.Description,
			Category:    req.Draft.Category,
			Price:       req.Draft.Price,
			Location:    req.Draft.Location,
			Images:      req.Draft.Images,
		},
	})
	if err != nil {
		return h.checkoutError(c, res, err)
	}
	return h.result(c, res)
}

// PaymentCallback settles the popup outcome the client reports.
func (h *CheckoutHandler) PaymentCallback(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.PaymentCallbackRequest
	if resp := bind(c, &req); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	res, err := h.checkout.HandleCallback(c.UserContext(), services.CallbackInput{
		MarketID:  tenant.GetMarketID(c),
		UserID:    userID,
		Reference: req.Reference,
		Status:    req.Status,
	})
	if err != nil {
		return h.checkoutError(c, res, err)
	}
	return h.result(c, res)
}

func (h *CheckoutHandler) result(c *fiber.Ctx, res *services.CheckoutResult) error {
	switch res.Status {
	case services.CheckoutPublished:
		return c.Status(fiber.StatusCreated).JSON(res)
	case services.CheckoutVerificationFailed:
		return c.Status(fiber.StatusPaymentRequired).JSON(res)
	default:
		return c.JSON(res)
	}
}

func (h *CheckoutHandler) checkoutError(c *fiber.Ctx, res *services.CheckoutResult, err error) error {
	var rejected *services.ContentRejectedError
	switch {
	case errors.As(err, &rejected):
		return fail(c, fiber.StatusUnprocessableEntity, rejected.Message)
	case errors.Is(err, services.ErrPublishBlocked):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":       true,
			"message":     res.Message,
			"entitlement": res.Decision,
		})
	case errors.Is(err, services.ErrPromoRejected):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":   true,
			"message": res.Message,
			"quote":   res.Quote,
		})
	case errors.Is(err, services.ErrPackageNotFound):
		return fail(c, fiber.StatusNotFound, "This package is no longer available")
	case errors.Is(err, services.ErrPaymentNotFound):
		return fail(c, fiber.StatusNotFound, "Payment not found")
	case errors.Is(err, services.ErrPaymentInProgress):
		return fail(c, fiber.StatusConflict, "Your payment is still being confirmed. Please wait a moment.")
	case errors.Is(err, services.ErrAttemptRequired):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrGatewayUnavailable):
		return fail(c, fiber.StatusServiceUnavailable, "Payments are unavailable right now. Please try again shortly.")
	}
	slog.Error("checkout failed", "market_id", tenant.GetMarketID(c), "path", c.Path(), "error", err)
	return fail(c, fiber.StatusBadGateway, "Something went wrong. Please try again.")
}

func (h *CheckoutHandler) ListSubmissions(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	limit, offset := paging(c)
	subs, total, err := h.listings.ListSubmissions(c.UserContext(), tenant.GetMarketID(c), userID, limit, offset)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch your ads")
	}
	return c.JSON(fiber.Map{
		"submissions": subs,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

func (h *CheckoutHandler) RenewAd(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	adID, ok := paramUUID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid ad ID")
	}

	sub, err := h.listings.RenewAd(c.UserContext(), tenant.GetMarketID(c), userID, adID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSubmissionNotFound):
			return fail(c, fiber.StatusNotFound, "Ad not found")
		case errors.Is(err, services.ErrFreeLimitReached):
			return fail(c, fiber.StatusConflict, "You have reached your free ad limit")
		case errors.Is(err, services.ErrAdNotExpired), errors.Is(err, services.ErrRenewalRequiresPurchase):
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to renew ad")
	}
	return c.JSON(sub)
}

func (h *CheckoutHandler) MySubscription(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	sub, err := h.plans.GetActive(c.UserContext(), tenant.GetMarketID(c), userID)
	if errors.Is(err, services.ErrNoActivePlan) {
		return c.JSON(fiber.Map{"subscription": nil})
	}
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to load your plan")
	}
	return c.JSON(fiber.Map{"subscription": sub})
}
