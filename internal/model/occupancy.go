package model

import "time"

// OccupancyState is the sensor-reported state of a space.
type OccupancyState string

const (
	OccupancyFree     OccupancyState = "FREE"
	OccupancyOccupied OccupancyState = "OCCUPIED"
	OccupancyUnknown  OccupancyState = "UNKNOWN"
)

// OccupancySnapshot holds the latest sensor reading per space. The frame
// sequence number rejects duplicate and out-of-order uplinks.
type OccupancySnapshot struct {
	SpaceID    string         `gorm:"primaryKey;size:64" json:"space_id"`
	State      OccupancyState `gorm:"size:16;not null" json:"state"`
	ObservedAt time.Time      `gorm:"not null" json:"observed_at"`
	DeviceID   string         `gorm:"size:64;not null" json:"device_id"`
	FrameSeq   uint32         `gorm:"not null" json:"frame_seq"`
	UpdatedAt  time.Time      `json:"updated_at"`
}
