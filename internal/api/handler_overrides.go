package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"parking-display-backend/internal/model"
)

type putOverrideRequest struct {
	State model.DisplayState `json:"state" binding:"required"`
}

var validOverrideStates = map[model.DisplayState]bool{
	model.DisplayFree:     true,
	model.DisplayOccupied: true,
	model.DisplayReserved: true,
	model.DisplayUnknown:  true,
}

// PutOverride handles PUT /api/spaces/:space_id/override. The override's
// expiry comes from the tenant's display policy.
func (h *Handler) PutOverride(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	var req putOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !validOverrideStates[req.State] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "state must be one of FREE, OCCUPIED, RESERVED, UNKNOWN"})
		return
	}

	spaceID := c.Param("space_id")
	var space model.Space
	if err := h.db.Take(&space, "id = ? AND tenant_id = ?", spaceID, tenant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "space not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	policy, err := h.policies.GetPolicy(c.Request.Context(), tenant)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	now := time.Now().UTC()
	override := model.Override{
		SpaceID:   spaceID,
		TenantID:  tenant,
		State:     req.State,
		CreatedAt: now,
		ExpiresAt: now.Add(policy.OverrideExpiry),
	}
	if err := h.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "space_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"tenant_id", "state", "created_at", "expires_at"}),
	}).Create(&override).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.recompute(c, spaceID)
	c.JSON(http.StatusOK, override)
}

// DeleteOverride handles DELETE /api/spaces/:space_id/override.
func (h *Handler) DeleteOverride(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	spaceID := c.Param("space_id")

	res := h.db.Where("space_id = ? AND tenant_id = ?", spaceID, tenant).Delete(&model.Override{})
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": res.Error.Error()})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no override set for space"})
		return
	}

	h.recompute(c, spaceID)
	c.Status(http.StatusNoContent)
}
