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

type DeviceHandler struct {
	service ports.DeviceService
	logger  *logger.Logger
}

func NewDeviceHandler(service ports.DeviceService, logger *logger.Logger) *DeviceHandler {
	return &DeviceHandler{service: service, logger: logger}
}

func (h *DeviceHandler) CreateDevice(c *fiber.Ctx) error {
	var req dto.CreateDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		h.logger.Warnw("device_create_body_parse_failed", "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: "invalid request body",
		})
	}

	if errs := req.Validate(); len(errs) > 0 {
		h.logger.Warnw("device_create_validation_failed", "details", errs)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error:   "validation failed",
			Details: errs,
		})
	}

	device, err := h.service.CreateDevice(c.UserContext(), ports.CreateDeviceInput{
		Name:            req.Name,
		Host:            req.Host,
		SSHPort:         req.GetSSHPort(),
		Platform:        req.GetPlatform(),
		User:            req.Username,
		Password:        req.Password,
		PrivateKey:      req.PrivateKey,
		CredentialGroup: req.CredentialGroup,
		RequiresOTP:     req.RequiresOTP,
		Tags:            req.Tags,
	})
	if err != nil {
		if errors.Is(err, services.ErrDeviceAlreadyExists) {
			return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		if errors.Is(err, services.ErrDeviceInvalidInput) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: err.Error()})
		}
		h.logger.Errorw("device_create_failed", "host", req.Host, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to create device"})
	}

	return c.Status(fiber.StatusCreated).JSON(dto.ToDeviceResponse(device))
}

func (h *DeviceHandler) GetDevices(c *fiber.Ctx) error {
	devices, err := h.service.GetDevices(c.UserContext())
	if err != nil {
		h.logger.Errorw("device_list_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to list devices"})
	}

	out := make([]dto.DeviceResponse, 0, len(devices))
	for i := range devices {
		out = append(out, dto.ToDeviceResponse(&devices[i]))
	}
	return c.JSON(out)
}

func (h *DeviceHandler) GetDevice(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid device id"})
	}

	device, err := h.service.GetDeviceByID(c.UserContext(), uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "device not found"})
	}
	return c.JSON(dto.ToDeviceResponse(device))
}

func (h *DeviceHandler) UpdateDevice(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid device id"})
	}

	var req dto.UpdateDeviceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid request body"})
	}

	input := ports.UpdateDeviceInput{
		Name:        req.Name,
		SSHPort:     req.SSHPort,
		User:        req.Username,
		Password:    req.Password,
		PrivateKey:  req.PrivateKey,
		RequiresOTP: req.RequiresOTP,
		Tags:        req.Tags,
	}
	if req.Platform != nil {
		platform := domain.Platform(*req.Platform)
		input.Platform = &platform
	}

	device, err := h.service.UpdateDevice(c.UserContext(), uint(id), input)
	if err != nil {
		if errors.Is(err, services.ErrDeviceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "device not found"})
		}
		h.logger.Errorw("device_update_failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to update device"})
	}
	return c.JSON(dto.ToDeviceResponse(device))
}

func (h *DeviceHandler) DeleteDevice(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid device id"})
	}

	if err := h.service.DeleteDevice(c.UserContext(), uint(id)); err != nil {
		if errors.Is(err, services.ErrDeviceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "device not found"})
		}
		h.logger.Errorw("device_delete_failed", "id", id, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to delete device"})
	}
	return c.SendStatus(fiber.StatusNoContent)
}
