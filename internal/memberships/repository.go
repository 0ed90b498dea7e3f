package memberships

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomsense/backend/internal/feed"
	"github.com/roomsense/backend/internal/identity"
	"github.com/roomsense/backend/internal/models"
	"github.com/roomsense/backend/internal/policy"
	"github.com/roomsense/backend/pkg/database"
)

// Repository handles membership persistence and presence updates.
type Repository struct {
	pool   *pgxpool.Pool
	broker *feed.Broker
}

// NewRepository creates a memberships repository.
func NewRepository(pool *pgxpool.Pool, broker *feed.Broker) *Repository {
	return &Repository{pool: pool, broker: broker}
}

// SnapshotFor is the membership directory: a single flat query over
// the memberships table only, bypassing all access predicates. It is
// the lookup every predicate consults, so it must never itself trigger
// predicate evaluation (no joins against policy-protected tables, no
// call back into this repository's filtered methods). A missing
// principal yields an empty snapshot, not an error. Never expose this
// to callers directly.
func (r *Repository) SnapshotFor(ctx context.Context, p identity.Principal) (policy.Snapshot, error) {
	const q = `SELECT geofence_id, role FROM memberships WHERE user_id = $1`
	rows, err := r.pool.Query(ctx, q, p.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	snap := make(policy.Snapshot)
	for rows.Next() {
		var id uuid.UUID
		var role models.Role
		if err := rows.Scan(&id, &role); err != nil {
			return nil, err
		}
		snap[id] = role
	}
	return snap, rows.Err()
}

// ListByGeofence returns the membership rows of a geofence visible to
// the principal. Each row is checked against the select predicate; a
// geofence the principal does not belong to yields ErrDenied.
func (r *Repository) ListByGeofence(ctx context.Context, p identity.Principal, geofenceID uuid.UUID) ([]models.Membership, error) {
	snap, err := r.SnapshotFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if !snap.Contains(geofenceID) {
		return nil, policy.ErrDenied
	}

	const q = `SELECT geofence_id, user_id, role, status, status_changed_at, last_location_at, joined_at
		FROM memberships WHERE geofence_id = $1 ORDER BY joined_at`
	rows, err := r.pool.Query(ctx, q, geofenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Membership
	for rows.Next() {
		var m models.Membership
		if err := rows.Scan(&m.GeofenceID, &m.UserID, &m.Role, &m.Status, &m.StatusChangedAt, &m.LastLocationAt, &m.JoinedAt); err != nil {
			return nil, err
		}
		if !policy.CanSelectMembership(p, &m, snap) {
			continue
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// Get returns one membership row, subject to the select predicate.
func (r *Repository) Get(ctx context.Context, p identity.Principal, geofenceID uuid.UUID, userID string) (*models.Membership, error) {
	m, err := r.get(ctx, geofenceID, userID)
	if err != nil {
		return nil, err
	}
	snap, err := r.SnapshotFor(ctx, p)
	if err != nil {
		return nil, err
	}
	if !policy.CanSelectMembership(p, m, snap) {
		return nil, policy.ErrDenied
	}
	return m, nil
}

// get loads a row without policy checks; internal use only.
func (r *Repository) get(ctx context.Context, geofenceID uuid.UUID, userID string) (*models.Membership, error) {
	const q = `SELECT geofence_id, user_id, role, status, status_changed_at, last_location_at, joined_at
		FROM memberships WHERE geofence_id = $1 AND user_id = $2`
	var m models.Membership
	err := r.pool.QueryRow(ctx, q, geofenceID, userID).
		Scan(&m.GeofenceID, &m.UserID, &m.Role, &m.Status, &m.StatusChangedAt, &m.LastLocationAt, &m.JoinedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Join inserts a membership for the principal (role member, status
// AWAY). The insert predicate only allows self-enrollment; a duplicate
// join surfaces the primary-key constraint.
func (r *Repository) Join(ctx context.Context, p identity.Principal, geofenceID uuid.UUID) (*models.Membership, error) {
	m := &models.Membership{
		GeofenceID: geofenceID,
		UserID:     p.String(),
		Role:       models.RoleMember,
		Status:     models.StatusAway,
	}
	if !policy.CanInsertMembership(p, m) {
		return nil, policy.ErrDenied
	}

	const q = `INSERT INTO memberships (geofence_id, user_id, role, status)
		VALUES ($1, $2, 'member', 'AWAY')
		RETURNING status_changed_at, joined_at`
	err := r.broker.PublishTx(ctx, func() ([]feed.Event, error) {
		if err := r.pool.QueryRow(ctx, q, m.GeofenceID, m.UserID).
			Scan(&m.StatusChangedAt, &m.JoinedAt); err != nil {
			return nil, database.MapError(err)
		}
		return []feed.Event{membershipEvent(feed.OpInsert, m)}, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Delete removes a membership row under the OR of the two delete
// rules: self-leave (member role only) and owner-removes-other. A row
// the principal may not delete is indistinguishable from a missing one.
func (r *Repository) Delete(ctx context.Context, p identity.Principal, geofenceID uuid.UUID, userID string) error {
	m, err := r.get(ctx, geofenceID, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return policy.ErrDenied
		}
		return err
	}
	snap, err := r.SnapshotFor(ctx, p)
	if err != nil {
		return err
	}
	if !policy.CanDeleteMembership(p, m, snap) {
		return policy.ErrDenied
	}

	const q = `DELETE FROM memberships WHERE geofence_id = $1 AND user_id = $2`
	return r.broker.PublishTx(ctx, func() ([]feed.Event, error) {
		if _, err := r.pool.Exec(ctx, q, geofenceID, userID); err != nil {
			return nil, err
		}
		return []feed.Event{membershipEvent(feed.OpDelete, m)}, nil
	})
}

// UpdatePresence records a status string reported by the location
// service for the principal's own membership. status_changed_at moves
// only on actual transitions; last_location_at moves on every report.
func (r *Repository) UpdatePresence(ctx context.Context, p identity.Principal, geofenceID uuid.UUID, status models.Status) (*models.Membership, error) {
	m, err := r.get(ctx, geofenceID, p.String())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, policy.ErrDenied
		}
		return nil, err
	}
	if !policy.CanUpdateMembership(p, m) {
		return nil, policy.ErrDenied
	}

	const q = `UPDATE memberships
		SET status = $3,
		    status_changed_at = CASE WHEN status <> $3 THEN NOW() ELSE status_changed_at END,
		    last_location_at = NOW()
		WHERE geofence_id = $1 AND user_id = $2
		RETURNING status, status_changed_at, last_location_at`
	err = r.broker.PublishTx(ctx, func() ([]feed.Event, error) {
		if err := r.pool.QueryRow(ctx, q, geofenceID, p.String(), status).
			Scan(&m.Status, &m.StatusChangedAt, &m.LastLocationAt); err != nil {
			return nil, database.MapError(err)
		}
		return []feed.Event{membershipEvent(feed.OpUpdate, m)}, nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func membershipEvent(op feed.Op, m *models.Membership) feed.Event {
	payload, _ := json.Marshal(m)
	return feed.Event{
		Entity:     feed.EntityMembership,
		Op:         op,
		GeofenceID: m.GeofenceID,
		UserID:     m.UserID,
		Payload:    payload,
	}
}
