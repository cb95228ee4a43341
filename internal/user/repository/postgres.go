package repository

import (
	"context"
	"database/sql"
	"errors"

	"gym-frontdesk/backend/internal/user/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a profile repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the profile for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	var role string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, display_name, role, created_at, updated_at
		  FROM profiles
		 WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.DisplayName, &role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

// Upsert inserts the profile or updates email, display name and role of an existing one.
func (r *PostgresRepository) Upsert(ctx context.Context, u *domain.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO profiles (id, email, display_name, role)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		   SET email = EXCLUDED.email,
		       display_name = EXCLUDED.display_name,
		       role = EXCLUDED.role,
		       updated_at = now()`,
		u.ID, u.Email, u.DisplayName, string(u.Role))
	return err
}
