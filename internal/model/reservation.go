package model

import "time"

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "ACTIVE"
	ReservationCancelled ReservationStatus = "CANCELLED"
)

// Reservation is a booked time range for a space. Records are immutable
// after creation except for the ACTIVE -> CANCELLED transition.
type Reservation struct {
	ID        string            `gorm:"primaryKey;size:36" json:"id"`
	TenantID  string            `gorm:"size:64;not null;uniqueIndex:ux_reservation_request,priority:1" json:"tenant_id"`
	SpaceID   string            `gorm:"size:64;not null;index" json:"space_id"`
	StartTime time.Time         `gorm:"not null;index" json:"start_time"`
	EndTime   time.Time         `gorm:"not null;index" json:"end_time"`
	RequestID string            `gorm:"size:128;not null;uniqueIndex:ux_reservation_request,priority:2" json:"request_id"`
	Status    ReservationStatus `gorm:"size:16;not null;index" json:"status"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Overlaps reports whether the two reservations' half-open ranges [start, end)
// intersect. Ranges that merely touch do not overlap.
func (r Reservation) Overlaps(other Reservation) bool {
	return r.StartTime.Before(other.EndTime) && other.StartTime.Before(r.EndTime)
}

// Covers reports whether t falls inside the reservation's [start, end) range.
func (r Reservation) Covers(t time.Time) bool {
	return !t.Before(r.StartTime) && t.Before(r.EndTime)
}
