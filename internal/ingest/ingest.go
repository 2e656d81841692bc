package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"parking-display-backend/internal/model"
)

// ErrStaleFrame marks an uplink whose frame sequence is not newer than the
// stored snapshot from the same sensor. Duplicates and out-of-order frames
// are dropped, never applied.
var ErrStaleFrame = errors.New("stale or duplicate uplink frame")

// UplinkEvent is a normalized sensor reading handed in by the webhook layer.
type UplinkEvent struct {
	SpaceID    string               `json:"space_id"`
	DeviceID   string               `json:"device_id"`
	State      model.OccupancyState `json:"state"`
	ObservedAt time.Time            `json:"observed_at"`
	FrameSeq   uint32               `json:"frame_seq"`
}

// Recomputer re-derives and enqueues a space's display command.
type Recomputer interface {
	Recompute(ctx context.Context, spaceID string) error
}

// Service applies uplinks to the per-space occupancy snapshot and triggers a
// recompute for each accepted reading.
type Service struct {
	db         *gorm.DB
	recomputer Recomputer
}

// NewService creates the intake service.
func NewService(db *gorm.DB, recomputer Recomputer) *Service {
	return &Service{db: db, recomputer: recomputer}
}

// ApplyUplink stores the reading and recomputes the space's display. A frame
// sequence at or below the stored one from the same device returns
// ErrStaleFrame without touching the snapshot. A sensor reset (new device or
// a sequence far below the stored one after rejoin) is accepted when the
// device ID changes.
func (s *Service) ApplyUplink(ctx context.Context, ev UplinkEvent) error {
	if ev.SpaceID == "" || ev.DeviceID == "" {
		return fmt.Errorf("uplink missing space or device id")
	}
	if ev.ObservedAt.IsZero() {
		ev.ObservedAt = time.Now()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var snapshot model.OccupancySnapshot
		err := tx.Take(&snapshot, "space_id = ?", ev.SpaceID).Error
		if err == nil {
			if snapshot.DeviceID == ev.DeviceID && ev.FrameSeq <= snapshot.FrameSeq {
				return ErrStaleFrame
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		snapshot = model.OccupancySnapshot{
			SpaceID:    ev.SpaceID,
			State:      ev.State,
			ObservedAt: ev.ObservedAt.UTC(),
			DeviceID:   ev.DeviceID,
			FrameSeq:   ev.FrameSeq,
		}
		return tx.Save(&snapshot).Error
	})
	if err != nil {
		if errors.Is(err, ErrStaleFrame) {
			log.Printf("ingest: dropping stale frame %d for space %s", ev.FrameSeq, ev.SpaceID)
			return ErrStaleFrame
		}
		return fmt.Errorf("apply uplink: %w", err)
	}

	return s.recomputer.Recompute(ctx, ev.SpaceID)
}
