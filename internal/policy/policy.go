// Package policy is the access-control layer: one predicate per entity
// per operation, each a pure function of (principal, candidate row,
// membership snapshot). Predicates never touch storage and never fail;
// they return a boolean, and every one of them denies the absent
// principal. Repositories evaluate them per row at the storage
// boundary so that no access path bypasses them.
package policy

import (
	"github.com/google/uuid"

	"github.com/roomsense/backend/internal/identity"
	"github.com/roomsense/backend/internal/models"
)

// Snapshot is the principal's membership set, keyed by geofence with
// the held role. It is built by a policy-exempt flat query over the
// memberships table only (see memberships.Repository.SnapshotFor), so
// evaluating a geofence predicate never re-enters policy evaluation.
type Snapshot map[uuid.UUID]models.Role

// Contains reports whether the snapshot covers the geofence.
func (s Snapshot) Contains(geofenceID uuid.UUID) bool {
	_, ok := s[geofenceID]
	return ok
}

// Owns reports whether the snapshot holds the owner role for the geofence.
func (s Snapshot) Owns(geofenceID uuid.UUID) bool {
	return s[geofenceID] == models.RoleOwner
}

// CanSelectUser allows a principal to read only their own user row.
func CanSelectUser(p identity.Principal, row *models.User) bool {
	return p.Valid() && row.ID == p.String()
}

// CanInsertUser allows creating only the row whose id is the principal.
func CanInsertUser(p identity.Principal, row *models.User) bool {
	return p.Valid() && row.ID == p.String()
}

// CanUpdateUser allows a principal to update only their own user row.
func CanUpdateUser(p identity.Principal, row *models.User) bool {
	return p.Valid() && row.ID == p.String()
}

// CanSelectGeofence allows reading a geofence iff the principal holds a
// membership in it, whatever the role.
func CanSelectGeofence(p identity.Principal, row *models.Geofence, snap Snapshot) bool {
	return p.Valid() && snap.Contains(row.ID)
}

// CanInsertGeofence allows creating a geofence only with the principal
// as owner.
func CanInsertGeofence(p identity.Principal, row *models.Geofence) bool {
	return p.Valid() && row.OwnerID == p.String()
}

// CanUpdateGeofence allows updates only by the owner.
func CanUpdateGeofence(p identity.Principal, row *models.Geofence) bool {
	return p.Valid() && row.OwnerID == p.String()
}

// CanDeleteGeofence allows deletion only by the owner.
func CanDeleteGeofence(p identity.Principal, row *models.Geofence) bool {
	return p.Valid() && row.OwnerID == p.String()
}

// CanSelectMembership allows reading membership rows of any geofence
// the principal belongs to.
func CanSelectMembership(p identity.Principal, row *models.Membership, snap Snapshot) bool {
	return p.Valid() && snap.Contains(row.GeofenceID)
}

// CanInsertMembership allows a principal to enroll only themselves.
func CanInsertMembership(p identity.Principal, row *models.Membership) bool {
	return p.Valid() && row.UserID == p.String()
}

// CanUpdateMembership allows a principal to update only their own row
// (presence reports).
func CanUpdateMembership(p identity.Principal, row *models.Membership) bool {
	return p.Valid() && row.UserID == p.String()
}

// CanDeleteMembership is the OR of the two delete rules: self-leave
// (own row, member role only — an owner cannot leave their own
// geofence) and owner-removes-other (someone else's row in a geofence
// the principal owns).
func CanDeleteMembership(p identity.Principal, row *models.Membership, snap Snapshot) bool {
	if !p.Valid() {
		return false
	}
	if row.UserID == p.String() {
		return row.Role == models.RoleMember
	}
	return snap.Owns(row.GeofenceID)
}

// CanAccessDevice gates every device-binding operation: only the bound
// user may see or touch it.
func CanAccessDevice(p identity.Principal, row *models.DeviceBinding) bool {
	return p.Valid() && row.UserID == p.String()
}
