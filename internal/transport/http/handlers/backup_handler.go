package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/netfleet/backend/internal/core/ports"
	"github.com/netfleet/backend/internal/infrastructure/logger"
	"github.com/netfleet/backend/internal/transport/http/dto"
)

type BackupHandler struct {
	repo   ports.BackupRepository
	logger *logger.Logger
}

func NewBackupHandler(repo ports.BackupRepository, logger *logger.Logger) *BackupHandler {
	return &BackupHandler{repo: repo, logger: logger}
}

// GetDeviceBackups lists a device's backups, newest first, without content.
func (h *BackupHandler) GetDeviceBackups(c *fiber.Ctx) error {
	deviceID, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid device id"})
	}
	limit, _ := strconv.Atoi(c.Query("limit", "20"))

	backups, err := h.repo.GetByDeviceID(c.UserContext(), uint(deviceID), limit)
	if err != nil {
		h.logger.Errorw("backup_list_failed", "device_id", deviceID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to list backups"})
	}
	return c.JSON(backups)
}

// GetBackupContent returns one backup's raw configuration text.
func (h *BackupHandler) GetBackupContent(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Error: "invalid backup id"})
	}

	backup, err := h.repo.GetByID(c.UserContext(), uint(id))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Error: "backup not found"})
	}

	c.Set("Content-Type", "text/plain; charset=utf-8")
	return c.SendString(backup.Content)
}
