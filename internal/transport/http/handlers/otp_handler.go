package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/netfleet/backend/internal/core/services"
	"github.com/netfleet/backend/internal/infrastructure/logger"
	"github.com/netfleet/backend/internal/transport/http/dto"
)

type OTPHandler struct {
	cache  *services.OTPCache
	logger *logger.Logger
}

func NewOTPHandler(cache *services.OTPCache, logger *logger.Logger) *OTPHandler {
	return &OTPHandler{cache: cache, logger: logger}
}

// SubmitOTP caches a one-time code for a credential group ahead of a batch
// submission. Codes expire on their own; nothing reads them back out over
// HTTP.
func (h *OTPHandler) SubmitOTP(c *fiber.Ctx) error {
	var req dto.SubmitOTPRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	if errs := req.Validate(); len(errs) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	h.cache.Put(req.CredentialGroup, req.Code)
	h.logger.Infow("otp_code_cached", "credential_group", req.CredentialGroup)
	return c.JSON(fiber.Map{"status": "cached"})
}

// ClearOTP drops a cached code before it expires.
func (h *OTPHandler) ClearOTP(c *fiber.Ctx) error {
	group := c.Params("group")
	if group == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid credential group"})
	}
	h.cache.Delete(group)
	h.logger.Infow("otp_code_cleared", "credential_group", group)
	return c.JSON(fiber.Map{"status": "cleared"})
}
