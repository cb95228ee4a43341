package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gym-frontdesk/backend/internal/device/domain"
)

const requestColumns = `id, user_id, fingerprint, status, requested_at, reviewed_at,
	coalesce(reviewed_by, ''), user_description, admin_notes`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a device repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// IsAuthorized reports whether (userID, fingerprint) is in authorized_devices.
func (r *PostgresRepository) IsAuthorized(ctx context.Context, userID, fingerprint string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM authorized_devices WHERE user_id = $1 AND fingerprint = $2)`,
		userID, fingerprint).Scan(&ok)
	return ok, err
}

// TouchLastUsed sets last_used_at for an authorized device. Missing rows are ignored.
func (r *PostgresRepository) TouchLastUsed(ctx context.Context, userID, fingerprint string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE authorized_devices SET last_used_at = $3 WHERE user_id = $1 AND fingerprint = $2`,
		userID, fingerprint, at)
	return err
}

// CreateOrReusePending calls upsert_device_authorization_request, which serializes on the
// (user, fingerprint) pair with an advisory lock.
func (r *PostgresRepository) CreateOrReusePending(ctx context.Context, userID, fingerprint, description string, window time.Duration) (int64, bool, error) {
	var (
		id     int64
		reused bool
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT request_id, reused FROM upsert_device_authorization_request($1, $2, $3, make_interval(secs => $4))`,
		userID, fingerprint, description, window.Seconds()).Scan(&id, &reused)
	if err != nil {
		return 0, false, err
	}
	return id, reused, nil
}

// GetRequest returns the request for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetRequest(ctx context.Context, id int64) (*domain.AuthorizationRequest, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM device_authorization_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// ListPending returns pending requests, oldest first.
func (r *PostgresRepository) ListPending(ctx context.Context) ([]*domain.AuthorizationRequest, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM device_authorization_requests
		 WHERE status = 'pending' ORDER BY requested_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.AuthorizationRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Approve calls execute_approve_device_request.
func (r *PostgresRepository) Approve(ctx context.Context, req *domain.AuthorizationRequest, adminID, notes string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT execute_approve_device_request($1, $2, $3, $4, $5, $6)`,
		req.ID, adminID, notes, req.Description, req.UserID, req.Fingerprint).Scan(&ok)
	return ok, err
}

// Deny calls deny_device_request.
func (r *PostgresRepository) Deny(ctx context.Context, id int64, adminID, notes string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT deny_device_request($1, $2, $3)`, id, adminID, notes).Scan(&ok)
	return ok, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*domain.AuthorizationRequest, error) {
	var (
		req        domain.AuthorizationRequest
		status     string
		reviewedAt sql.NullTime
	)
	if err := row.Scan(&req.ID, &req.UserID, &req.Fingerprint, &status, &req.RequestedAt,
		&reviewedAt, &req.ReviewerID, &req.Description, &req.AdminNotes); err != nil {
		return nil, err
	}
	req.Status = domain.RequestStatus(status)
	if reviewedAt.Valid {
		t := reviewedAt.Time
		req.ReviewedAt = &t
	}
	return &req, nil
}
