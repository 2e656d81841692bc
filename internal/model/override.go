package model

import "time"

// DisplayState is the state a sign is asked to show. It is a superset of
// OccupancyState: a display can also show RESERVED.
type DisplayState string

const (
	DisplayFree     DisplayState = "FREE"
	DisplayOccupied DisplayState = "OCCUPIED"
	DisplayReserved DisplayState = "RESERVED"
	DisplayUnknown  DisplayState = "UNKNOWN"
)

// Override is an admin-forced display state for a space. It wins over
// reservations and sensor readings until it expires or is deleted.
type Override struct {
	SpaceID   string       `gorm:"primaryKey;size:64" json:"space_id"`
	TenantID  string       `gorm:"size:64;not null;index" json:"tenant_id"`
	State     DisplayState `gorm:"size:16;not null" json:"state"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
	ExpiresAt time.Time    `gorm:"not null;index" json:"expires_at"`
}

// Expired reports whether the override is no longer in effect at t.
func (o Override) Expired(t time.Time) bool {
	return !t.Before(o.ExpiresAt)
}
