package handlers

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/netfleet/backend/internal/core/services"
	"github.com/netfleet/backend/internal/infrastructure/logger"
)

type ProgressHandler struct {
	service *services.BatchService
	logger  *logger.Logger
}

func NewProgressHandler(service *services.BatchService, logger *logger.Logger) *ProgressHandler {
	return &ProgressHandler{service: service, logger: logger}
}

// Handle streams per-attempt progress events for one batch over a
// websocket until the batch finishes or the client disconnects.
func (h *ProgressHandler) Handle(c *websocket.Conn) {
	batchID := c.Params("id")
	if batchID == "" {
		c.WriteJSON(map[string]string{"error": "invalid batch id"})
		c.Close()
		return
	}

	if _, err := h.service.GetBatch(context.Background(), batchID); err != nil {
		h.logger.Warnw("progress_batch_not_found", "batch_id", batchID)
		c.WriteJSON(map[string]string{"error": "batch not found"})
		c.Close()
		return
	}

	events, unsubscribe := h.service.Subscribe(batchID)
	defer unsubscribe()

	h.logger.Infow("progress_stream_opened", "batch_id", batchID)

	// Reads only serve to detect client disconnect.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			h.logger.Infow("progress_stream_client_closed", "batch_id", batchID)
			return
		case ev := <-events:
			if err := c.WriteJSON(ev); err != nil {
				h.logger.Warnw("progress_stream_write_failed", "batch_id", batchID, "error", err)
				return
			}
			if ev.Type == "batch-finished" {
				c.Close()
				return
			}
		}
	}
}
