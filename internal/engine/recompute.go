package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"parking-display-backend/internal/model"
	"parking-display-backend/internal/queue"
)

// ErrSpaceNotFound marks a recompute request for an unknown space.
var ErrSpaceNotFound = errors.New("space not found")

// PolicyStore supplies per-tenant display policies.
type PolicyStore interface {
	GetPolicy(ctx context.Context, tenantID string) (Policy, error)
}

// CommandQueue accepts computed display commands for delivery.
type CommandQueue interface {
	Enqueue(ctx context.Context, cmd queue.DisplayCommand) error
}

// ReservationSource answers which ACTIVE reservation covers a space at a
// given instant.
type ReservationSource interface {
	ActiveAt(ctx context.Context, tenantID, spaceID string, at time.Time) (*model.Reservation, error)
}

// Recomputer loads a space's current inputs, runs Compute, and enqueues the
// result. Every trigger source (uplink, booking change, override change,
// manual actuation) funnels through Recompute; the engine itself holds no
// mutable state between calls.
type Recomputer struct {
	db           *gorm.DB
	reservations ReservationSource
	policies     PolicyStore
	queue        CommandQueue
	now          func() time.Time
}

// NewRecomputer wires the state engine to its collaborators.
func NewRecomputer(db *gorm.DB, reservations ReservationSource, policies PolicyStore, q CommandQueue) *Recomputer {
	return &Recomputer{
		db:           db,
		reservations: reservations,
		policies:     policies,
		queue:        q,
		now:          time.Now,
	}
}

// Recompute rebuilds the display command for a space and hands it to the
// downlink queue. Spaces that are disabled or have no display assigned are
// skipped.
func (r *Recomputer) Recompute(ctx context.Context, spaceID string) error {
	var space model.Space
	if err := r.db.WithContext(ctx).Take(&space, "id = ?", spaceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSpaceNotFound
		}
		return fmt.Errorf("load space %s: %w", spaceID, err)
	}
	if !space.Enabled || space.DisplayDeviceID == "" {
		log.Printf("skipping recompute for space %s: disabled or no display assigned", spaceID)
		return nil
	}

	now := r.now().UTC()

	var occupancy *model.OccupancySnapshot
	var snapshot model.OccupancySnapshot
	err := r.db.WithContext(ctx).Take(&snapshot, "space_id = ?", spaceID).Error
	if err == nil {
		occupancy = &snapshot
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load occupancy for space %s: %w", spaceID, err)
	}

	var override *model.Override
	var stored model.Override
	err = r.db.WithContext(ctx).Take(&stored, "space_id = ?", spaceID).Error
	if err == nil {
		override = &stored
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load override for space %s: %w", spaceID, err)
	}

	reservation, err := r.reservations.ActiveAt(ctx, space.TenantID, spaceID, now)
	if err != nil {
		return fmt.Errorf("load reservation for space %s: %w", spaceID, err)
	}

	policy, err := r.policies.GetPolicy(ctx, space.TenantID)
	if err != nil {
		return fmt.Errorf("load policy for tenant %s: %w", space.TenantID, err)
	}

	cmd := Compute(space, policy, occupancy, reservation, override, now)
	if err := r.queue.Enqueue(ctx, cmd); err != nil {
		return fmt.Errorf("enqueue command for space %s: %w", spaceID, err)
	}
	return nil
}
