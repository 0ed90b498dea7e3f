package geofences

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomsense/backend/internal/feed"
	"github.com/roomsense/backend/internal/identity"
	"github.com/roomsense/backend/internal/models"
	"github.com/roomsense/backend/internal/policy"
	"github.com/roomsense/backend/pkg/database"
	"github.com/roomsense/backend/pkg/utils"
)

const (
	inviteCodeLen = 8
	// createAttempts bounds retries when a generated invite code loses
	// the uniqueness lottery.
	createAttempts = 3
)

// Directory builds a principal's membership snapshot via a
// policy-exempt lookup. Implemented by memberships.Repository.
type Directory interface {
	SnapshotFor(ctx context.Context, p identity.Principal) (policy.Snapshot, error)
}

// Repository handles geofence persistence.
type Repository struct {
	pool      *pgxpool.Pool
	directory Directory
	broker    *feed.Broker
}

// NewRepository creates a geofences repository.
func NewRepository(pool *pgxpool.Pool, directory Directory, broker *feed.Broker) *Repository {
	return &Repository{pool: pool, directory: directory, broker: broker}
}

// Create inserts a geofence and its owner membership in one
// transaction. The owner row (role owner, status AWAY) is written
// unconditionally, bypassing the membership insert predicate: creating
// a geofence without its owner enrolled must be impossible, so the
// invariant does not depend on policy evaluation. Either both rows
// commit or neither does. A collision on a generated invite code is
// retried with a fresh code rather than surfaced to the caller.
func (r *Repository) Create(ctx context.Context, p identity.Principal, g *models.Geofence) error {
	g.OwnerID = p.String()
	if !policy.CanInsertGeofence(p, g) {
		return policy.ErrDenied
	}
	generated := g.InviteCode == ""
	if generated {
		g.InviteCode = utils.InviteCode(inviteCodeLen)
	}

	for attempt := 1; ; attempt++ {
		err := r.create(ctx, g)
		if err == nil {
			return nil
		}
		if generated && attempt < createAttempts && isInviteCollision(err) {
			g.InviteCode = utils.InviteCode(inviteCodeLen)
			continue
		}
		return err
	}
}

func (r *Repository) create(ctx context.Context, g *models.Geofence) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertGeofence = `INSERT INTO geofences (owner_id, name, invite_code, center_lat, center_lng, radius_m, hysteresis_m)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, insertGeofence,
		g.OwnerID, g.Name, g.InviteCode, g.CenterLat, g.CenterLng, g.RadiusM, g.HysteresisM).
		Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return database.MapError(err)
	}

	const insertOwner = `INSERT INTO memberships (geofence_id, user_id, role, status)
		VALUES ($1, $2, 'owner', 'AWAY')
		RETURNING status_changed_at, joined_at`
	owner := models.Membership{
		GeofenceID: g.ID,
		UserID:     g.OwnerID,
		Role:       models.RoleOwner,
		Status:     models.StatusAway,
	}
	if err := tx.QueryRow(ctx, insertOwner, g.ID, g.OwnerID).
		Scan(&owner.StatusChangedAt, &owner.JoinedAt); err != nil {
		return fmt.Errorf("create owner membership: %w", database.MapError(err))
	}

	return r.broker.PublishTx(ctx, func() ([]feed.Event, error) {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit: %w", err)
		}
		return []feed.Event{
			geofenceEvent(feed.OpInsert, g),
			ownerMembershipEvent(owner),
		}, nil
	})
}

// isInviteCollision reports whether err is the invite-code uniqueness
// constraint, as opposed to any other integrity violation.
func isInviteCollision(err error) bool {
	var constraint *database.ConstraintError
	return errors.As(err, &constraint) && constraint.Constraint == "geofences_invite_code_key"
}

// GetByID returns a geofence if the principal holds a membership in
// it; any other row reads as not found.
func (r *Repository) GetByID(ctx context.Context, p identity.Principal, id uuid.UUID) (*models.Geofence, error) {
	g, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	snap, err := r.directory.SnapshotFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if !policy.CanSelectGeofence(p, g, snap) {
		return nil, policy.ErrDenied
	}
	return g, nil
}

// List returns the geofences visible to the principal, checked row by
// row against the select predicate.
func (r *Repository) List(ctx context.Context, p identity.Principal) ([]models.Geofence, error) {
	snap, err := r.directory.SnapshotFor(ctx, p)
	if err != nil {
		return nil, err
	}

	const q = `SELECT g.id, g.owner_id, g.name, g.invite_code, g.center_lat, g.center_lng, g.radius_m, g.hysteresis_m, g.created_at, g.updated_at
		FROM geofences g
		JOIN memberships m ON m.geofence_id = g.id AND m.user_id = $1
		ORDER BY g.created_at`
	rows, err := r.pool.Query(ctx, q, p.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Geofence
	for rows.Next() {
		var g models.Geofence
		if err := rows.Scan(&g.ID, &g.OwnerID, &g.Name, &g.InviteCode, &g.CenterLat, &g.CenterLng, &g.RadiusM, &g.HysteresisM, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		if !policy.CanSelectGeofence(p, &g, snap) {
			continue
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

// UpdateParams are the caller-settable geofence fields. Ownership has
// no update path; timestamps are always set server-side.
type UpdateParams struct {
	Name        *string
	CenterLat   *float64
	CenterLng   *float64
	RadiusM     *float64
	HysteresisM *float64
}

// Update applies owner-only changes and refreshes updated_at.
func (r *Repository) Update(ctx context.Context, p identity.Principal, id uuid.UUID, params UpdateParams) (*models.Geofence, error) {
	g, err := r.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanUpdateGeofence(p, g) {
		return nil, policy.ErrDenied
	}

	const q = `UPDATE geofences
		SET name = COALESCE($2, name),
		    center_lat = COALESCE($3, center_lat),
		    center_lng = COALESCE($4, center_lng),
		    radius_m = COALESCE($5, radius_m),
		    hysteresis_m = COALESCE($6, hysteresis_m),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING name, center_lat, center_lng, radius_m, hysteresis_m, updated_at`
	err = r.broker.PublishTx(ctx, func() ([]feed.Event, error) {
		if err := r.pool.QueryRow(ctx, q, id, params.Name, params.CenterLat, params.CenterLng, params.RadiusM, params.HysteresisM).
			Scan(&g.Name, &g.CenterLat, &g.CenterLng, &g.RadiusM, &g.HysteresisM, &g.UpdatedAt); err != nil {
			return nil, database.MapError(err)
		}
		return []feed.Event{geofenceEvent(feed.OpUpdate, g)}, nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Delete removes a geofence (owner only). Membership rows go with it
// via the cascade; that is the only way an owner's own membership ends.
func (r *Repository) Delete(ctx context.Context, p identity.Principal, id uuid.UUID) error {
	g, err := r.get(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return policy.ErrDenied
		}
		return err
	}
	if !policy.CanDeleteGeofence(p, g) {
		return policy.ErrDenied
	}

	const q = `DELETE FROM geofences WHERE id = $1`
	return r.broker.PublishTx(ctx, func() ([]feed.Event, error) {
		if _, err := r.pool.Exec(ctx, q, id); err != nil {
			return nil, err
		}
		return []feed.Event{geofenceEvent(feed.OpDelete, g)}, nil
	})
}

// GetByInviteCode resolves an invite code to its geofence. Policy
// exempt: the join flow needs the id before any membership exists, and
// knowing a code is treated as authorization to see the target.
func (r *Repository) GetByInviteCode(ctx context.Context, code string) (*models.Geofence, error) {
	const q = `SELECT id, owner_id, name, invite_code, center_lat, center_lng, radius_m, hysteresis_m, created_at, updated_at
		FROM geofences WHERE invite_code = $1`
	var g models.Geofence
	err := r.pool.QueryRow(ctx, q, code).
		Scan(&g.ID, &g.OwnerID, &g.Name, &g.InviteCode, &g.CenterLat, &g.CenterLng, &g.RadiusM, &g.HysteresisM, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// get loads a row without policy checks; internal use only.
func (r *Repository) get(ctx context.Context, id uuid.UUID) (*models.Geofence, error) {
	const q = `SELECT id, owner_id, name, invite_code, center_lat, center_lng, radius_m, hysteresis_m, created_at, updated_at
		FROM geofences WHERE id = $1`
	var g models.Geofence
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&g.ID, &g.OwnerID, &g.Name, &g.InviteCode, &g.CenterLat, &g.CenterLng, &g.RadiusM, &g.HysteresisM, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func geofenceEvent(op feed.Op, g *models.Geofence) feed.Event {
	payload, _ := json.Marshal(g)
	return feed.Event{
		Entity:     feed.EntityGeofence,
		Op:         op,
		GeofenceID: g.ID,
		UserID:     g.OwnerID,
		Payload:    payload,
	}
}

func ownerMembershipEvent(m models.Membership) feed.Event {
	payload, _ := json.Marshal(m)
	return feed.Event{
		Entity:     feed.EntityMembership,
		Op:         feed.OpInsert,
		GeofenceID: m.GeofenceID,
		UserID:     m.UserID,
		Payload:    payload,
	}
}
