package devices

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomsense/backend/internal/feed"
	"github.com/roomsense/backend/internal/identity"
	"github.com/roomsense/backend/internal/models"
	"github.com/roomsense/backend/internal/policy"
	"github.com/roomsense/backend/pkg/database"
)

// Repository handles device-binding persistence. One binding per user;
// a second Bind without an Unbind surfaces the unique constraint.
type Repository struct {
	pool   *pgxpool.Pool
	broker *feed.Broker
}

// NewRepository creates a devices repository.
func NewRepository(pool *pgxpool.Pool, broker *feed.Broker) *Repository {
	return &Repository{pool: pool, broker: broker}
}

// Bind creates the principal's device binding.
func (r *Repository) Bind(ctx context.Context, p identity.Principal, deviceIdentifier string) (*models.DeviceBinding, error) {
	d := &models.DeviceBinding{UserID: p.String(), DeviceIdentifier: deviceIdentifier, Enabled: true}
	if !policy.CanAccessDevice(p, d) {
		return nil, policy.ErrDenied
	}

	const q = `INSERT INTO device_bindings (user_id, device_identifier)
		VALUES ($1, $2)
		RETURNING id, enabled, created_at, updated_at`
	err := r.broker.PublishTx(ctx, func() ([]feed.Event, error) {
		if err := r.pool.QueryRow(ctx, q, d.UserID, d.DeviceIdentifier).
			Scan(&d.ID, &d.Enabled, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, database.MapError(err)
		}
		return []feed.Event{deviceEvent(feed.OpInsert, d)}, nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Get returns the principal's binding.
func (r *Repository) Get(ctx context.Context, p identity.Principal) (*models.DeviceBinding, error) {
	d, err := r.get(ctx, p.String())
	if err != nil {
		return nil, err
	}
	if !policy.CanAccessDevice(p, d) {
		return nil, policy.ErrDenied
	}
	return d, nil
}

// SetEnabled toggles the principal's binding.
func (r *Repository) SetEnabled(ctx context.Context, p identity.Principal, enabled bool) (*models.DeviceBinding, error) {
	d, err := r.get(ctx, p.String())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, policy.ErrDenied
		}
		return nil, err
	}
	if !policy.CanAccessDevice(p, d) {
		return nil, policy.ErrDenied
	}

	const q = `UPDATE device_bindings SET enabled = $2, updated_at = NOW()
		WHERE user_id = $1
		RETURNING enabled, updated_at`
	err = r.broker.PublishTx(ctx, func() ([]feed.Event, error) {
		if err := r.pool.QueryRow(ctx, q, p.String(), enabled).
			Scan(&d.Enabled, &d.UpdatedAt); err != nil {
			return nil, database.MapError(err)
		}
		return []feed.Event{deviceEvent(feed.OpUpdate, d)}, nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Unbind removes the principal's binding so a new device can be bound.
func (r *Repository) Unbind(ctx context.Context, p identity.Principal) error {
	d, err := r.get(ctx, p.String())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return policy.ErrDenied
		}
		return err
	}
	if !policy.CanAccessDevice(p, d) {
		return policy.ErrDenied
	}

	const q = `DELETE FROM device_bindings WHERE user_id = $1`
	return r.broker.PublishTx(ctx, func() ([]feed.Event, error) {
		if _, err := r.pool.Exec(ctx, q, p.String()); err != nil {
			return nil, err
		}
		return []feed.Event{deviceEvent(feed.OpDelete, d)}, nil
	})
}

func (r *Repository) get(ctx context.Context, userID string) (*models.DeviceBinding, error) {
	const q = `SELECT id, user_id, device_identifier, enabled, created_at, updated_at
		FROM device_bindings WHERE user_id = $1`
	var d models.DeviceBinding
	err := r.pool.QueryRow(ctx, q, userID).
		Scan(&d.ID, &d.UserID, &d.DeviceIdentifier, &d.Enabled, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func deviceEvent(op feed.Op, d *models.DeviceBinding) feed.Event {
	payload, _ := json.Marshal(d)
	return feed.Event{
		Entity:  feed.EntityDevice,
		Op:      op,
		UserID:  d.UserID,
		Payload: payload,
	}
}
