package policy

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/roomsense/backend/internal/identity"
	"github.com/roomsense/backend/internal/models"
)

var (
	u1 = identity.Principal("u1")
	u2 = identity.Principal("u2")
)

func TestUserPredicates(t *testing.T) {
	own := &models.User{ID: "u1"}
	other := &models.User{ID: "u2"}

	require.True(t, CanSelectUser(u1, own))
	require.False(t, CanSelectUser(u1, other))
	require.True(t, CanUpdateUser(u1, own))
	require.False(t, CanUpdateUser(u1, other))
	require.True(t, CanInsertUser(u1, own))
	require.False(t, CanInsertUser(u1, other))

	require.False(t, CanSelectUser(identity.None, own))
	require.False(t, CanInsertUser(identity.None, own))
	require.False(t, CanUpdateUser(identity.None, own))
}

func TestGeofenceSelectIffMembership(t *testing.T) {
	gid := uuid.New()
	g := &models.Geofence{ID: gid, OwnerID: "u1"}

	member := Snapshot{gid: models.RoleMember}
	empty := Snapshot{}

	require.True(t, CanSelectGeofence(u2, g, member))
	require.False(t, CanSelectGeofence(u2, g, empty))
	// Even the owner sees nothing without their membership row; the
	// owner row is created with the geofence, so this only matters for
	// predicate purity.
	require.False(t, CanSelectGeofence(u1, g, empty))
	require.False(t, CanSelectGeofence(identity.None, g, member))
}

func TestGeofenceWritePredicates(t *testing.T) {
	g := &models.Geofence{ID: uuid.New(), OwnerID: "u1"}

	require.True(t, CanInsertGeofence(u1, g))
	require.False(t, CanInsertGeofence(u2, g))
	require.True(t, CanUpdateGeofence(u1, g))
	require.False(t, CanUpdateGeofence(u2, g))
	require.True(t, CanDeleteGeofence(u1, g))
	require.False(t, CanDeleteGeofence(u2, g))

	require.False(t, CanInsertGeofence(identity.None, &models.Geofence{OwnerID: ""}))
	require.False(t, CanUpdateGeofence(identity.None, g))
	require.False(t, CanDeleteGeofence(identity.None, g))
}

func TestMembershipSelectAndInsert(t *testing.T) {
	gid := uuid.New()
	row := &models.Membership{GeofenceID: gid, UserID: "u2", Role: models.RoleMember}

	require.True(t, CanSelectMembership(u1, row, Snapshot{gid: models.RoleMember}))
	require.False(t, CanSelectMembership(u1, row, Snapshot{}))

	require.True(t, CanInsertMembership(u2, row))
	require.False(t, CanInsertMembership(u1, row))
	require.False(t, CanInsertMembership(identity.None, &models.Membership{UserID: ""}))
}

func TestMembershipDeleteRules(t *testing.T) {
	gid := uuid.New()
	ownRow := func(role models.Role) *models.Membership {
		return &models.Membership{GeofenceID: gid, UserID: "u1", Role: role}
	}
	otherRow := func(role models.Role) *models.Membership {
		return &models.Membership{GeofenceID: gid, UserID: "u2", Role: role}
	}

	asMember := Snapshot{gid: models.RoleMember}
	asOwner := Snapshot{gid: models.RoleOwner}

	// Self-leave: a member may leave, an owner may not remove their
	// own owner row even while holding the owner role.
	require.True(t, CanDeleteMembership(u1, ownRow(models.RoleMember), asMember))
	require.False(t, CanDeleteMembership(u1, ownRow(models.RoleOwner), asOwner))

	// Owner-removes-other, including another geofence's owner row is
	// still someone else's row in a geofence u1 owns.
	require.True(t, CanDeleteMembership(u1, otherRow(models.RoleMember), asOwner))

	// A plain member cannot remove anyone else.
	require.False(t, CanDeleteMembership(u1, otherRow(models.RoleMember), asMember))

	// A stranger (no membership) cannot remove anyone.
	require.False(t, CanDeleteMembership(u1, otherRow(models.RoleMember), Snapshot{}))

	// u2 cannot delete the owner's row from below.
	require.False(t, CanDeleteMembership(u2, ownRow(models.RoleOwner), asMember))

	require.False(t, CanDeleteMembership(identity.None, otherRow(models.RoleMember), asOwner))
}

func TestDevicePredicate(t *testing.T) {
	d := &models.DeviceBinding{UserID: "u1"}
	require.True(t, CanAccessDevice(u1, d))
	require.False(t, CanAccessDevice(u2, d))
	require.False(t, CanAccessDevice(identity.None, d))
}

// The geofence select predicate takes a prebuilt snapshot, so its cost
// does not depend on recursive policy evaluation. A large membership
// set is a constant-time map lookup, not a stack excursion.
func TestGeofenceSelectLargeSnapshot(t *testing.T) {
	snap := make(Snapshot, 5000)
	var last uuid.UUID
	for i := 0; i < 5000; i++ {
		last = uuid.New()
		snap[last] = models.RoleMember
	}
	require.True(t, CanSelectGeofence(u1, &models.Geofence{ID: last}, snap))
	require.False(t, CanSelectGeofence(u1, &models.Geofence{ID: uuid.New()}, snap))
}

func BenchmarkCanSelectGeofence(b *testing.B) {
	snap := make(Snapshot, 1000)
	ids := make([]uuid.UUID, 1000)
	for i := range ids {
		ids[i] = uuid.New()
		snap[ids[i]] = models.RoleMember
	}
	g := &models.Geofence{ID: ids[500]}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if !CanSelectGeofence(u1, g, snap) {
			b.Fatal("expected visible")
		}
	}
}

func ExampleSnapshot_Owns() {
	gid := uuid.MustParse("6b1e4c1e-0000-0000-0000-000000000001")
	snap := Snapshot{gid: models.RoleOwner}
	fmt.Println(snap.Owns(gid))
	// Output: true
}
