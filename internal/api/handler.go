package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"parking-display-backend/internal/engine"
	"parking-display-backend/internal/ingest"
	"parking-display-backend/internal/ledger"
	"parking-display-backend/internal/policy"
	"parking-display-backend/internal/queue"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	db         *gorm.DB
	ledger     *ledger.Ledger
	intake     *ingest.Service
	recomputer *engine.Recomputer
	queue      *queue.Queue
	policies   *policy.Store
}

// NewHandler creates a new API handler.
func NewHandler(db *gorm.DB, l *ledger.Ledger, intake *ingest.Service, r *engine.Recomputer, q *queue.Queue, p *policy.Store) *Handler {
	return &Handler{
		db:         db,
		ledger:     l,
		intake:     intake,
		recomputer: r,
		queue:      q,
		policies:   p,
	}
}

// tenantID extracts the tenant from the request context. Auth and tenant
// resolution proper live in the gateway in front of this service; here the
// header is trusted.
func tenantID(c *gin.Context) (string, bool) {
	tenant := c.GetHeader("X-Tenant-ID")
	if tenant == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Tenant-ID header is required"})
		return "", false
	}
	return tenant, true
}
