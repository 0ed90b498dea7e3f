package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceBinding ties a user to the single device that reports their
// location. One binding per user; rebinding requires deleting the
// previous row first.
type DeviceBinding struct {
	ID               uuid.UUID `json:"id"`
	UserID           string    `json:"user_id"`
	DeviceIdentifier string    `json:"device_identifier"`
	Enabled          bool      `json:"enabled"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
