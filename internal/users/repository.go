package users

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomsense/backend/internal/identity"
	"github.com/roomsense/backend/internal/models"
	"github.com/roomsense/backend/internal/policy"
	"github.com/roomsense/backend/pkg/database"
)

// Repository handles user persistence. Every method operates on the
// principal's own row only; there is no cross-user read path.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a users repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Upsert creates the principal's user row on first authenticated
// contact, or refreshes profile fields on later contacts. updated_at
// is always set server-side.
func (r *Repository) Upsert(ctx context.Context, p identity.Principal, email, displayName string) (*models.User, error) {
	u := &models.User{ID: p.String(), Email: email, DisplayName: displayName}
	if !policy.CanInsertUser(p, u) {
		return nil, policy.ErrDenied
	}

	const q = `INSERT INTO users (id, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET email = EXCLUDED.email, display_name = EXCLUDED.display_name, updated_at = NOW()
		RETURNING created_at, updated_at`
	if err := r.pool.QueryRow(ctx, q, u.ID, u.Email, u.DisplayName).
		Scan(&u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, database.MapError(err)
	}
	return u, nil
}

// GetSelf returns the principal's own row.
func (r *Repository) GetSelf(ctx context.Context, p identity.Principal) (*models.User, error) {
	u, err := r.get(ctx, p.String())
	if err != nil {
		return nil, err
	}
	if !policy.CanSelectUser(p, u) {
		return nil, policy.ErrDenied
	}
	return u, nil
}

// UpdateSelf updates the principal's own display name and/or email.
func (r *Repository) UpdateSelf(ctx context.Context, p identity.Principal, email, displayName *string) (*models.User, error) {
	u, err := r.get(ctx, p.String())
	if err != nil {
		return nil, err
	}
	if !policy.CanUpdateUser(p, u) {
		return nil, policy.ErrDenied
	}

	const q = `UPDATE users
		SET email = COALESCE($2, email),
		    display_name = COALESCE($3, display_name),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING email, display_name, updated_at`
	if err := r.pool.QueryRow(ctx, q, u.ID, email, displayName).
		Scan(&u.Email, &u.DisplayName, &u.UpdatedAt); err != nil {
		return nil, database.MapError(err)
	}
	return u, nil
}

func (r *Repository) get(ctx context.Context, id string) (*models.User, error) {
	const q = `SELECT id, email, display_name, created_at, updated_at FROM users WHERE id = $1`
	var u models.User
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&u.ID, &u.Email, &u.DisplayName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
