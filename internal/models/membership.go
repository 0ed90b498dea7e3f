package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is a member's role within a geofence.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Status is the presence state derived from device location updates.
// The geofencing math lives in the external location service; this layer
// only stores the resulting string.
type Status string

const (
	StatusInRoom Status = "IN_ROOM"
	StatusAway   Status = "AWAY"
)

// Membership links a user to a geofence. The (geofence, user) pair is
// the primary key; a geofence has exactly one owner row, created in the
// same transaction as the geofence itself.
type Membership struct {
	GeofenceID      uuid.UUID  `json:"geofence_id"`
	UserID          string     `json:"user_id"`
	Role            Role       `json:"role"`
	Status          Status     `json:"status"`
	StatusChangedAt time.Time  `json:"status_changed_at"`
	LastLocationAt  *time.Time `json:"last_location_at,omitempty"`
	JoinedAt        time.Time  `json:"joined_at"`
}
