package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type CatalogHandler struct {
	catalog *services.CatalogService
}

func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

func (h *CatalogHandler) ListPackages(c *fiber.Ctx) error {
	pkgs, err := h.catalog.ListPackages(c.UserContext(), tenant.GetMarketID(c))
	if err != nil {
		return fail(c, fiber.StatusServiceUnavailable, "Could not load packages. Please try again.")
	}
	return c.JSON(fiber.Map{"packages": pkgs})
}

func (h *CatalogHandler) CreatePackage(c *fiber.Ctx) error {
	var req dto.CreatePackageRequest
	if resp := bind(c, &req); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	pkg, err := h.catalog.CreatePackage(c.UserContext(), tenant.GetMarketID(c), &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidPackage) {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to create package")
	}
	return c.Status(fiber.StatusCreated).JSON(pkg)
}

func (h *CatalogHandler) DeactivatePackage(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid package ID")
	}

	if err := h.catalog.DeactivatePackage(c.UserContext(), tenant.GetMarketID(c), id); err != nil {
		if errors.Is(err, services.ErrPackageNotFound) {
			return fail(c, fiber.StatusNotFound, err.Error())
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to deactivate package")
	}
	return c.JSON(fiber.Map{"message": "Package deactivated"})
}
