package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"parking-display-backend/internal/ingest"
)

// PostUplink handles POST /api/uplinks: the webhook delivering normalized
// sensor readings. Duplicate frames are acknowledged but not applied so the
// network server does not retry them.
func (h *Handler) PostUplink(c *gin.Context) {
	var ev ingest.UplinkEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.intake.ApplyUplink(c.Request.Context(), ev)
	switch {
	case errors.Is(err, ingest.ErrStaleFrame):
		c.JSON(http.StatusOK, gin.H{"accepted": false, "reason": "stale_frame"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
	}
}
