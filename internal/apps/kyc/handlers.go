package kyc

import (
	"errors"
	"io"
	"log/slog"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/tenant"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type KYCHandler struct {
	service *KYCService
}

func NewKYCHandler(service *KYCService) *KYCHandler {
	return &KYCHandler{service: service}
}

type submitForm struct {
	BusinessName string `form:"business_name" json:"business_name" validate:"required,max=200"`
	IDType       string `form:"id_type" json:"id_type" validate:"required,oneof=national_id passport drivers_license cac_certificate"`
	IDNumber     string `form:"id_number" json:"id_number" validate:"required,max=100"`
}

type reviewRequest struct {
	Status string `json:"status" validate:"required,oneof=approved rejected"`
	Note   string `json:"note" validate:"max=1000"`
}

type verificationResponse struct {
	*Verification
	IDNumber string `json:"id_number"`
}

func present(v *Verification) verificationResponse {
	return verificationResponse{Verification: v, IDNumber: v.MaskedIDNumber()}
}

func badRequest(c *fiber.Ctx, err error) error {
	resp := dto.ErrorResponse{Error: true, Message: "Validation failed"}
	var ve *dto.ValidationError
	if errors.As(err, &ve) {
		resp.Fields = ve.Errors
	} else {
		resp.Message = err.Error()
	}
	return c.Status(fiber.StatusBadRequest).JSON(resp)
}

func (h *KYCHandler) fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrAlreadyVerified), errors.Is(err, ErrReviewPending), errors.Is(err, ErrAlreadyDecided):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	case errors.Is(err, ErrVerificationMissing):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	case errors.Is(err, ErrInvalidDocument):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: err.Error()})
	case errors.Is(err, ErrStorageUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: true, Message: "Document upload is unavailable right now"})
	}
	slog.Error("kyc request failed", "market_id", tenant.GetMarketID(c), "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: true, Message: "Something went wrong"})
}

// Submit accepts a multipart form with the business details and a
// "document" file.
func (h *KYCHandler) Submit(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
	}

	var form submitForm
	if err := c.BodyParser(&form); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid form data"})
	}
	if err := dto.Validate(&form); err != nil {
		return badRequest(c, err)
	}

	fh, err := c.FormFile("document")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "document file is required"})
	}
	if fh.Size > maxDocumentBytes {
		return h.fail(c, ErrInvalidDocument)
	}
	f, err := fh.Open()
	if err != nil {
		return h.fail(c, err)
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxDocumentBytes+1))
	if err != nil {
		return h.fail(c, err)
	}

	v, err := h.service.Submit(c.UserContext(), tenant.GetMarketID(c), userID, Submission{
		BusinessName: form.BusinessName,
		IDType:       form.IDType,
		IDNumber:     form.IDNumber,
		FileName:     fh.Filename,
		Document:     data,
	})
	if err != nil {
		return h.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(present(v))
}

func (h *KYCHandler) Status(c *fiber.Ctx) error {
	userID, err := tenant.GetUserID(c)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Error: true, Message: "Unauthorized"})
	}

	v, err := h.service.Status(c.UserContext(), tenant.GetMarketID(c), userID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(present(v))
}

func (h *KYCHandler) List(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	list, total, err := h.service.List(c.UserContext(), tenant.GetMarketID(c), c.Query("status", StatusPending), limit, offset)
	if err != nil {
		return h.fail(c, err)
	}
	out := make([]verificationResponse, 0, len(list))
	for i := range list {
		out = append(out, present(&list[i]))
	}
	return c.JSON(fiber.Map{"verifications": out, "total": total, "limit": limit, "offset": offset})
}

func (h *KYCHandler) Review(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.fail(c, ErrVerificationMissing)
	}
	var req reviewRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: true, Message: "Invalid request body"})
	}
	if err := dto.Validate(&req); err != nil {
		return badRequest(c, err)
	}

	// X-Admin-Token callers have no user id and are recorded as uuid.Nil.
	reviewer, _ := tenant.GetUserID(c)
	v, err := h.service.Review(c.UserContext(), tenant.GetMarketID(c), id, reviewer, req.Status == StatusApproved, req.Note)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(present(v))
}

func (h *KYCHandler) Document(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return h.fail(c, ErrVerificationMissing)
	}

	url, err := h.service.DocumentURL(c.UserContext(), tenant.GetMarketID(c), id)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": int(documentURLTTL.Seconds())})
}
