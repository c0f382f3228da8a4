package handlers

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/services"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
)

type ModerationHandler struct {
	moderationService *services.ModerationService
}

func NewModerationHandler(moderationService *services.ModerationService) *ModerationHandler {
	return &ModerationHandler{moderationService: moderationService}
}

func (h *ModerationHandler) CreateReport(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return unauthorized(c)
	}

	var req dto.CreateReportRequest
	if resp := bind(c, &req); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	report, err := h.moderationService.CreateReport(c.UserContext(), tenant.GetMarketID(c), userID, &req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidReportID) {
			return fail(c, fiber.StatusBadRequest, err.Error())
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to create report")
	}

	return c.Status(fiber.StatusCreated).JSON(report)
}

func (h *ModerationHandler) ListReports(c *fiber.Ctx) error {
	limit, offset := paging(c)
	reports, total, err := h.moderationService.ListReports(c.UserContext(), tenant.GetMarketID(c), c.Query("status", ""), limit, offset)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch reports")
	}

	return c.JSON(fiber.Map{
		"reports": reports,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
	})
}

func (h *ModerationHandler) ActionReport(c *fiber.Ctx) error {
	reportID, ok := paramUUID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid report ID")
	}

	var req dto.ActionReportRequest
	if resp := bind(c, &req); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	if err := h.moderationService.ActionReport(c.UserContext(), tenant.GetMarketID(c), reportID, &req); err != nil {
		if errors.Is(err, services.ErrReportNotFound) {
			return fail(c, fiber.StatusNotFound, err.Error())
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to update report")
	}

	return c.JSON(fiber.Map{"message": "Report updated successfully"})
}

func (h *ModerationHandler) ReviewQueue(c *fiber.Ctx) error {
	limit, offset := paging(c)
	subs, total, err := h.moderationService.ReviewQueue(c.UserContext(), tenant.GetMarketID(c), limit, offset)
	if err != nil {
		return fail(c, fiber.StatusInternalServerError, "Failed to fetch submissions")
	}

	return c.JSON(fiber.Map{
		"submissions": subs,
		"total":       total,
		"limit":       limit,
		"offset":      offset,
	})
}

func (h *ModerationHandler) ReviewSubmission(c *fiber.Ctx) error {
	id, ok := paramUUID(c, "id")
	if !ok {
		return fail(c, fiber.StatusBadRequest, "Invalid submission ID")
	}

	var req dto.ReviewSubmissionRequest
	if resp := bind(c, &req); resp != nil {
		return c.Status(fiber.StatusBadRequest).JSON(resp)
	}

	if err := h.moderationService.ReviewSubmission(c.UserContext(), tenant.GetMarketID(c), id, &req); err != nil {
		if errors.Is(err, services.ErrSubmissionNotFound) {
			return fail(c, fiber.StatusNotFound, err.Error())
		}
		return fail(c, fiber.StatusInternalServerError, "Failed to review submission")
	}

	return c.JSON(fiber.Map{"message": "Submission " + req.Status})
}
