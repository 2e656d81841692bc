package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parking-display-backend/internal/ledger"
)

type createReservationRequest struct {
	SpaceID   string    `json:"space_id" binding:"required"`
	Start     time.Time `json:"start" binding:"required"`
	End       time.Time `json:"end" binding:"required"`
	RequestID string    `json:"request_id" binding:"required"`
}

// CreateReservation handles POST /api/reservations.
func (h *Handler) CreateReservation(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	var req createReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reservation, err := h.ledger.CreateReservation(c.Request.Context(), tenant, req.SpaceID, req.Start, req.End, req.RequestID)
	switch {
	case errors.Is(err, ledger.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, ledger.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "space is already reserved for the requested range"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.recompute(c, reservation.SpaceID)
	c.JSON(http.StatusCreated, reservation)
}

// CancelReservation handles DELETE /api/reservations/:id.
func (h *Handler) CancelReservation(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	reservation, err := h.ledger.CancelReservation(c.Request.Context(), tenant, c.Param("id"))
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "reservation not found"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.recompute(c, reservation.SpaceID)
	c.JSON(http.StatusOK, reservation)
}

// ListReservations handles GET /api/spaces/:space_id/reservations.
func (h *Handler) ListReservations(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	from := time.Now().UTC()
	to := from.Add(24 * time.Hour)
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' timestamp, use RFC3339"})
			return
		}
		from = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' timestamp, use RFC3339"})
			return
		}
		to = t
	}

	reservations, err := h.ledger.ListActive(c.Request.Context(), tenant, c.Param("space_id"), from, to)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, reservations)
}

// recompute refreshes a space's display after a booking change. Delivery
// failures are queue territory; they never surface to the booking caller.
func (h *Handler) recompute(c *gin.Context, spaceID string) {
	if err := h.recomputer.Recompute(c.Request.Context(), spaceID); err != nil {
		log.Printf("recompute after booking change for space %s: %v", spaceID, err)
	}
}
