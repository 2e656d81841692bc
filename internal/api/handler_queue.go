package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-display-backend/internal/queue"
)

// GetQueueStats handles GET /api/queue/stats.
func (h *Handler) GetQueueStats(c *gin.Context) {
	stats, err := h.queue.Metrics(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListDeadLetters handles GET /api/queue/dead_letters.
func (h *Handler) ListDeadLetters(c *gin.Context) {
	items, err := h.queue.DeadLetters(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, items)
}

// RequeueDeadLetter handles POST /api/queue/dead_letters/:id/requeue.
func (h *Handler) RequeueDeadLetter(c *gin.Context) {
	err := h.queue.Requeue(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, queue.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "dead-lettered item not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}

// PurgeDeadLetter handles DELETE /api/queue/dead_letters/:id.
func (h *Handler) PurgeDeadLetter(c *gin.Context) {
	err := h.queue.Purge(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, queue.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "dead-lettered item not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.Status(http.StatusNoContent)
	}
}
