package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"

	"parking-display-backend/internal/engine"
	"parking-display-backend/internal/model"
)

// Store serves per-tenant display policies, caching lookups so the recompute
// path does not hit the database for every uplink.
type Store struct {
	db    *gorm.DB
	cache *cache.Cache
}

// NewStore creates a policy store with a 5 minute lookup cache.
func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:    db,
		cache: cache.New(5*time.Minute, 10*time.Minute),
	}
}

// GetPolicy returns the tenant's display policy, falling back to the default
// when the tenant has none stored.
func (s *Store) GetPolicy(ctx context.Context, tenantID string) (engine.Policy, error) {
	if cached, found := s.cache.Get(tenantID); found {
		return cached.(engine.Policy), nil
	}

	var stored model.TenantPolicy
	err := s.db.WithContext(ctx).Take(&stored, "tenant_id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		policy := engine.DefaultPolicy()
		s.cache.Set(tenantID, policy, cache.DefaultExpiration)
		return policy, nil
	}
	if err != nil {
		return engine.Policy{}, fmt.Errorf("load policy for tenant %s: %w", tenantID, err)
	}

	policy := fromModel(stored)
	s.cache.Set(tenantID, policy, cache.DefaultExpiration)
	return policy, nil
}

// Invalidate drops the cached policy for a tenant after an update.
func (s *Store) Invalidate(tenantID string) {
	s.cache.Delete(tenantID)
}

func fromModel(stored model.TenantPolicy) engine.Policy {
	policy := engine.DefaultPolicy()
	policy.Colors = map[model.DisplayState]uint8{
		model.DisplayFree:     stored.FreeColor,
		model.DisplayOccupied: stored.OccupiedColor,
		model.DisplayReserved: stored.ReservedColor,
		model.DisplayUnknown:  stored.UnknownColor,
	}
	policy.Patterns = map[model.DisplayState]uint8{
		model.DisplayFree:     stored.FreePattern,
		model.DisplayOccupied: stored.OccupiedPattern,
		model.DisplayReserved: stored.ReservedPattern,
		model.DisplayUnknown:  stored.UnknownPattern,
	}
	if stored.OverrideExpirySeconds > 0 {
		policy.OverrideExpiry = time.Duration(stored.OverrideExpirySeconds) * time.Second
	}
	return policy
}
