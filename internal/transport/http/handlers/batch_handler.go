package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/netfleet/backend/internal/core/ports"
	"github.com/netfleet/backend/internal/core/services"
	"github.com/netfleet/backend/internal/domain"
	"github.com/netfleet/backend/internal/infrastructure/logger"
	"github.com/netfleet/backend/internal/transport/http/dto"
)

type BatchHandler struct {
	service ports.BatchService
	logger  *logger.Logger
}

func NewBatchHandler(service ports.BatchService, logger *logger.Logger) *BatchHandler {
	return &BatchHandler{service: service, logger: logger}
}

// SubmitBatch accepts a batch request and returns immediately with the
// pending batch; execution happens on the dispatch workers.
func (h *BatchHandler) SubmitBatch(c *fiber.Ctx) error {
	var req dto.SubmitBatchRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("batch_submit_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("batch_submit_validation_failed", "details", errs)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	job, err := h.service.SubmitBatch(c.UserContext(), ports.SubmitBatchInput{
		DeviceIDs:     req.DeviceIDs,
		Operation:     domain.Operation(req.Operation),
		Payload:       req.Payload,
		SkipDeviceIDs: req.SkipDeviceIDs,
	})
	if err != nil {
		var otpErr *services.OTPRequiredError
		if errors.As(err, &otpErr) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":           "otp-required",
				"message":         otpErr.Error(),
				"blocked_devices": otpErr.Devices,
				"batch":           dto.ToBatchResponse(job),
			})
		}
		if errors.Is(err, services.ErrBatchInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		if errors.Is(err, services.ErrBatchQueueFull) {
			h.logger.Warnw("batch_submit_rejected_queue_full", "operation", req.Operation)
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.logger.Errorw("batch_submit_failed", "operation", req.Operation, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to submit batch"})
	}

	return c.Status(fiber.StatusAccepted).JSON(dto.ToBatchResponse(job))
}

func (h *BatchHandler) GetBatches(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	jobs, err := h.service.GetBatches(c.UserContext(), limit)
	if err != nil {
		h.logger.Errorw("batch_list_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to list batches"})
	}

	out := make([]dto.BatchResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, dto.ToBatchResponse(&jobs[i]))
	}
	return c.JSON(out)
}

func (h *BatchHandler) GetBatch(c *fiber.Ctx) error {
	job, err := h.service.GetBatch(c.UserContext(), c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "batch not found"})
	}
	return c.JSON(dto.ToBatchResponse(job))
}

func (h *BatchHandler) GetReport(c *fiber.Ctx) error {
	report, err := h.service.GetReport(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, services.ErrBatchNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "batch not found"})
		}
		h.logger.Errorw("batch_report_failed", "batch_id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to build report"})
	}
	return c.JSON(report)
}

// ResumeBatch creates a new batch covering only the devices that did not
// succeed in the referenced run.
func (h *BatchHandler) ResumeBatch(c *fiber.Ctx) error {
	job, err := h.service.ResumeBatch(c.UserContext(), c.Params("id"))
	if err != nil {
		var otpErr *services.OTPRequiredError
		switch {
		case errors.As(err, &otpErr):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error":           "otp-required",
				"message":         otpErr.Error(),
				"blocked_devices": otpErr.Devices,
			})
		case errors.Is(err, services.ErrBatchNotFound):
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "batch not found"})
		case errors.Is(err, services.ErrBatchNotResumable):
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, services.ErrBatchInvalidInput):
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		case errors.Is(err, services.ErrBatchQueueFull):
			return c.Status(fiber.StatusServiceUnavailable).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.logger.Errorw("batch_resume_failed", "batch_id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to resume batch"})
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.ToBatchResponse(job))
}

func (h *BatchHandler) CancelBatch(c *fiber.Ctx) error {
	if err := h.service.CancelBatch(c.UserContext(), c.Params("id")); err != nil {
		if errors.Is(err, services.ErrBatchNotRunning) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.logger.Errorw("batch_cancel_failed", "batch_id", c.Params("id"), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to cancel batch"})
	}
	return c.JSON(fiber.Map{"status": "cancelling"})
}
