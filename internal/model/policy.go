package model

import "time"

// TenantPolicy maps display states to the color and pattern codes a tenant's
// signs understand, plus the lifetime of admin overrides.
type TenantPolicy struct {
	TenantID              string `gorm:"primaryKey;size:64"`
	FreeColor             uint8  `gorm:"not null"`
	OccupiedColor         uint8  `gorm:"not null"`
	ReservedColor         uint8  `gorm:"not null"`
	UnknownColor          uint8  `gorm:"not null"`
	FreePattern           uint8  `gorm:"not null"`
	OccupiedPattern       uint8  `gorm:"not null"`
	ReservedPattern       uint8  `gorm:"not null"`
	UnknownPattern        uint8  `gorm:"not null"`
	OverrideExpirySeconds int    `gorm:"not null"`
	UpdatedAt             time.Time
}
