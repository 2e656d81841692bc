package model

import "time"

// Space represents a physical parking space and its assigned LoRaWAN devices.
type Space struct {
	ID              string    `gorm:"primaryKey;size:64" json:"id"`
	TenantID        string    `gorm:"index;size:64;not null" json:"tenant_id"`
	Label           string    `gorm:"size:128" json:"label"`
	SensorDeviceID  string    `gorm:"size:64;index" json:"sensor_device_id"`
	DisplayDeviceID string    `gorm:"size:64;index" json:"display_device_id"`
	GatewayID       string    `gorm:"size:64;index" json:"gateway_id"`
	Enabled         bool      `gorm:"not null;default:true" json:"enabled"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}
