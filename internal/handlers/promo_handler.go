package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type PromoHandler struct {
	promos  *services.PromoService
	catalog *services.CatalogService
}

func NewPromoHandler(promos *services.PromoService, catalog *services.CatalogService) *PromoHandler {
	return &PromoHandler{promos: promos, catalog: catalog}
}

func (h *PromoHandler) Validate(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.ValidatePromoRequest
	if resp := bind(c, &req); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	res, err := h.promos.Validate(c.UserContext(), tenant.GetMarketID(c), req.Code, userID, req.PackageID)
	if err != nil {
		return fail(c, fiber.StatusServiceUnavailable, "Could not check the promo code. Please try again.")
	}
	return c.JSON(res)
}

func (h *PromoHandler) Apply(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.ApplyPromoRequest
	if resp := bind(c, &req); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	marketID := tenant.GetMarketID(c)
	pkg, err := h.catalog.GetPackage(c.UserContext(), marketID, req.PackageID)
	if err != nil {
		if errors.Is(err, services.ErrPackageNotFound) {
			return fail(c, fiber.StatusNotFound, err.Error())
		}
		return fail(c, fiber.StatusServiceUnavailable, "Could not load the package. Please try again.")
	}

	res, err := h.promos.Apply(c.UserContext(), services.ApplyPromoInput{
		MarketID:  marketID,
		UserID:    userID,
		Code:      req.Code,
		Package:   *pkg,
		AttemptID: req.AttemptID,
	})
	if err != nil {
		if errors.Is(err, services.ErrAttemptRequired) {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		return fail(c, fiber.StatusServiceUnavailable, "Could not apply the promo code. Please try again.")
	}
	return c.JSON(res)
}

// Remove releases the promo reserved for the attempt in :attempt_id.
func (h *PromoHandler) Remove(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	if err := h.promos.Remove(c.UserContext(), userID, c.Params("attempt_id")); err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to remove promo code")
	}
	return c.JSON(fiber.Map{"message": "Promo code removed"})
}

func (h *PromoHandler) Create(c *fiber.Ctx) error {
	var req dto.CreatePromoRequest
	if resp := bind(c, &req); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	promo, err := h.promos.CreatePromo(c.UserContext(), tenant.GetMarketID(c), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPromoCodeTaken):
			return fail(c, fiber.StatusConflict, err.Error())
		case errors.Is(err, services.ErrInvalidPromo):
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to create promo code")
	}
	return c.Status(fiber.StatusCreated).JSON(promo)
}

func (h *PromoHandler) List(c *fiber.Ctx) error {
	promos, err := h.promos.ListPromos(c.UserContext(), tenant.GetMarketID(c))
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch promo codes")
	}
	return c.JSON(fiber.Map{"promo_codes": promos})
}
