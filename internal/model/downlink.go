package model

import "time"

// DownlinkStatus is the queue lifecycle state of a downlink item.
type DownlinkStatus string

const (
	DownlinkPending      DownlinkStatus = "PENDING"
	DownlinkInFlight     DownlinkStatus = "IN_FLIGHT"
	DownlinkDeadLettered DownlinkStatus = "DEAD_LETTERED"
)

// DownlinkItem is a queued display command for one device. DELIVERED is a
// terminal state represented by row removal; dead-lettered rows are retained
// for inspection until requeued or purged.
type DownlinkItem struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	DeviceID       string         `gorm:"size:64;not null;index" json:"device_id"`
	GatewayID      string         `gorm:"size:64;not null;index" json:"gateway_id"`
	SpaceID        string         `gorm:"size:64;not null" json:"space_id"`
	Payload        []byte         `gorm:"not null" json:"payload"`
	ContentHash    string         `gorm:"size:64;not null" json:"content_hash"`
	FPort          uint8          `gorm:"not null" json:"f_port"`
	Status         DownlinkStatus `gorm:"size:16;not null;index" json:"status"`
	Attempts       int            `gorm:"not null" json:"attempts"`
	NextEligibleAt time.Time      `gorm:"not null;index" json:"next_eligible_at"`
	LastError      string         `gorm:"size:512" json:"last_error,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DownlinkCursor records the content hash last confirmed delivered to a
// device, so an unchanged command is not retransmitted.
type DownlinkCursor struct {
	DeviceID    string    `gorm:"primaryKey;size:64" json:"device_id"`
	ContentHash string    `gorm:"size:64;not null" json:"content_hash"`
	DeliveredAt time.Time `gorm:"not null" json:"delivered_at"`
}
