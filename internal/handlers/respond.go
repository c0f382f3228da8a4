package handlers

import (
	"errors"
	"strconv"

	"github.com/ahmetcoskunkizilkaya/marketplace-backend/internal/dto"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// bind parses the JSON body into req and validates it. A non-nil result is
// the 400 response to send.
func bind(c *fiber.Ctx, req interface{}) *dto.ErrorResponse {
	if err := c.BodyParser(req); err != nil {
		return &dto.ErrorResponse{Error: true, Message: "Invalid request body"}
	}
	if err := dto.Validate(req); err != nil {
		var ve *dto.ValidationError
		if errors.As(err, &ve) {
			return &dto.ErrorResponse{Error: true, Message: "Validation failed", Fields: ve.Errors}
		}
		return &dto.ErrorResponse{Error: true, Message: err.Error()}
	}
	return nil
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: true, Message: message})
}

func unauthorized(c *fiber.Ctx) error {
	return fail(c, fiber.StatusUnauthorized, "Unauthorized")
}

func paramUUID(c *fiber.Ctx, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params(name))
	return id, err == nil
}

func paging(c *fiber.Ctx) (limit, offset int) {
	limit, _ = strconv.Atoi(c.Query("limit", "20"))
	offset, _ = strconv.Atoi(c.Query("offset", "0"))
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
