package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/netfleet/backend/internal/core/ports"
	"github.com/netfleet/backend/internal/infrastructure/logger"
	"github.com/netfleet/backend/internal/transport/http/dto"
)

type TimelineHandler struct {
	repo   ports.TimelineRepository
	logger *logger.Logger
}

func NewTimelineHandler(repo ports.TimelineRepository, logger *logger.Logger) *TimelineHandler {
	return &TimelineHandler{repo: repo, logger: logger}
}

func (h *TimelineHandler) GetEvents(c *fiber.Ctx) error {
	limit, _ := strconv.Atoi(c.Query("limit", "100"))
	events, err := h.repo.GetAll(c.UserContext(), limit)
	if err != nil {
		h.logger.Errorw("timeline_list_failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Error: "failed to list events"})
	}
	return c.JSON(events)
}
