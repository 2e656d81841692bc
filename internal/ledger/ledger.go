package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"parking-display-backend/internal/model"
)

// MinDuration is the shortest bookable reservation.
const MinDuration = 15 * time.Minute

var (
	// ErrValidation marks a malformed booking request. Never retried.
	ErrValidation = errors.New("invalid reservation request")
	// ErrConflict marks an overlap with an existing active reservation.
	ErrConflict = errors.New("reservation conflicts with an active reservation")
	// ErrNotFound marks a lookup for a reservation that does not exist.
	ErrNotFound = errors.New("reservation not found")
)

// Ledger owns reservation records. Creation is serialized per (tenant, space)
// so the overlap check and insert are atomic; the unique
// (tenant_id, request_id) index is the durable idempotency backstop across
// processes.
type Ledger struct {
	db *gorm.DB

	mu         sync.Mutex
	spaceLocks map[string]*sync.Mutex
}

// New creates a reservation ledger backed by the given database.
func New(db *gorm.DB) *Ledger {
	return &Ledger{
		db:         db,
		spaceLocks: make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) spaceLock(tenantID, spaceID string) *sync.Mutex {
	key := tenantID + "/" + spaceID
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.spaceLocks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.spaceLocks[key] = lock
	}
	return lock
}

// CreateReservation books [start, end) for a space. A repeated call with the
// same (tenant, requestID) returns the original reservation unchanged, even
// if it has since been cancelled.
func (l *Ledger) CreateReservation(ctx context.Context, tenantID, spaceID string, start, end time.Time, requestID string) (*model.Reservation, error) {
	if requestID == "" {
		return nil, fmt.Errorf("%w: request_id is required", ErrValidation)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start must be before end", ErrValidation)
	}
	if end.Sub(start) < MinDuration {
		return nil, fmt.Errorf("%w: duration must be at least %s", ErrValidation, MinDuration)
	}

	lock := l.spaceLock(tenantID, spaceID)
	lock.Lock()
	defer lock.Unlock()

	reservation := model.Reservation{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		SpaceID:   spaceID,
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		RequestID: requestID,
		Status:    model.ReservationActive,
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.Reservation
		err := tx.Where("tenant_id = ? AND request_id = ?", tenantID, requestID).
			Take(&existing).Error
		if err == nil {
			reservation = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var overlapping int64
		if err := tx.Model(&model.Reservation{}).
			Where("space_id = ? AND status = ?", spaceID, model.ReservationActive).
			Where("start_time < ? AND end_time > ?", reservation.EndTime, reservation.StartTime).
			Count(&overlapping).Error; err != nil {
			return err
		}
		if overlapping > 0 {
			return ErrConflict
		}

		return tx.Create(&reservation).Error
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrConflict
		}
		// A concurrent retry of the same request may have won the unique
		// (tenant_id, request_id) index race; return its reservation.
		var existing model.Reservation
		if ferr := l.db.WithContext(ctx).
			Where("tenant_id = ? AND request_id = ?", tenantID, requestID).
			Take(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, fmt.Errorf("create reservation: %w", err)
	}
	return &reservation, nil
}

// CancelReservation transitions ACTIVE -> CANCELLED. Cancelling an already
// cancelled reservation is a no-op returning the current record.
func (l *Ledger) CancelReservation(ctx context.Context, tenantID, id string) (*model.Reservation, error) {
	var reservation model.Reservation
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tenant_id = ? AND id = ?", tenantID, id).
			Take(&reservation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if reservation.Status == model.ReservationCancelled {
			return nil
		}
		reservation.Status = model.ReservationCancelled
		return tx.Save(&reservation).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cancel reservation: %w", err)
	}
	return &reservation, nil
}

// ListActive returns the ACTIVE reservations for a space that overlap the
// [from, to) window, ordered by start time.
func (l *Ledger) ListActive(ctx context.Context, tenantID, spaceID string, from, to time.Time) ([]model.Reservation, error) {
	var reservations []model.Reservation
	err := l.db.WithContext(ctx).
		Where("tenant_id = ? AND space_id = ? AND status = ?", tenantID, spaceID, model.ReservationActive).
		Where("start_time < ? AND end_time > ?", to, from).
		Order("start_time ASC").
		Find(&reservations).Error
	if err != nil {
		return nil, fmt.Errorf("list active reservations: %w", err)
	}
	return reservations, nil
}

// ActiveAt returns the ACTIVE reservation covering the instant at, or nil if
// the space is unreserved at that time.
func (l *Ledger) ActiveAt(ctx context.Context, tenantID, spaceID string, at time.Time) (*model.Reservation, error) {
	var reservation model.Reservation
	err := l.db.WithContext(ctx).
		Where("tenant_id = ? AND space_id = ? AND status = ?", tenantID, spaceID, model.ReservationActive).
		Where("start_time <= ? AND end_time > ?", at, at).
		Order("start_time ASC").
		Take(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active reservation lookup: %w", err)
	}
	return &reservation, nil
}
