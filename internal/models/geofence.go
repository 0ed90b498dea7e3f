package models

import (
	"time"

	"github.com/google/uuid"
)

// Geofence is a named physical area (a dorm room) with a geographic
// center, radius and hysteresis band. Exactly one owner, set at creation
// and immutable afterwards.
type Geofence struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	InviteCode  string    `json:"invite_code"`
	CenterLat   float64   `json:"center_lat"`
	CenterLng   float64   `json:"center_lng"`
	RadiusM     float64   `json:"radius_m"`
	HysteresisM float64   `json:"hysteresis_m"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
