package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"parking-display-backend/internal/engine"
	"parking-display-backend/internal/model"
)

// spaceStatusResponse flattens a space and its latest sensor reading.
type spaceStatusResponse struct {
	model.Space
	OccupancyState model.OccupancyState `json:"occupancy_state"`
	ObservedAt     *time.Time           `json:"observed_at,omitempty"`
}

// ListSpaces handles GET /api/spaces for the tenant.
func (h *Handler) ListSpaces(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}

	var spaces []model.Space
	if err := h.db.Where("tenant_id = ?", tenant).Order("id ASC").Find(&spaces).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to retrieve spaces"})
		return
	}

	spaceIDs := make([]string, len(spaces))
	for i, s := range spaces {
		spaceIDs[i] = s.ID
	}
	var snapshots []model.OccupancySnapshot
	if len(spaceIDs) > 0 {
		h.db.Where("space_id IN ?", spaceIDs).Find(&snapshots)
	}
	snapshotMap := make(map[string]model.OccupancySnapshot, len(snapshots))
	for _, s := range snapshots {
		snapshotMap[s.SpaceID] = s
	}

	response := make([]spaceStatusResponse, 0, len(spaces))
	for _, space := range spaces {
		entry := spaceStatusResponse{Space: space, OccupancyState: model.OccupancyUnknown}
		if snapshot, found := snapshotMap[space.ID]; found {
			entry.OccupancyState = snapshot.State
			observed := snapshot.ObservedAt
			entry.ObservedAt = &observed
		}
		response = append(response, entry)
	}
	c.JSON(http.StatusOK, response)
}

type putSpaceRequest struct {
	Label           string `json:"label"`
	SensorDeviceID  string `json:"sensor_device_id"`
	DisplayDeviceID string `json:"display_device_id"`
	GatewayID       string `json:"gateway_id"`
	Enabled         *bool  `json:"enabled"`
}

// PutSpace handles PUT /api/spaces/:space_id: provisioning or updating a
// space's device assignments.
func (h *Handler) PutSpace(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	var req putSpaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	space := model.Space{
		ID:              c.Param("space_id"),
		TenantID:        tenant,
		Label:           req.Label,
		SensorDeviceID:  req.SensorDeviceID,
		DisplayDeviceID: req.DisplayDeviceID,
		GatewayID:       req.GatewayID,
		Enabled:         req.Enabled == nil || *req.Enabled,
	}
	if err := h.db.Save(&space).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, space)
}

// ForceRecompute handles POST /api/spaces/:space_id/recompute: manual
// actuation, re-running the state engine without a new trigger event.
func (h *Handler) ForceRecompute(c *gin.Context) {
	tenant, ok := tenantID(c)
	if !ok {
		return
	}
	spaceID := c.Param("space_id")

	var space model.Space
	if err := h.db.Take(&space, "id = ? AND tenant_id = ?", spaceID, tenant).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "space not found"})
		return
	}

	if err := h.recomputer.Recompute(c.Request.Context(), spaceID); err != nil {
		if errors.Is(err, engine.ErrSpaceNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "space not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"space_id": spaceID, "status": "recompute_triggered"})
}
