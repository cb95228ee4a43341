package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gym-frontdesk/backend/internal/shift/domain"
)

const shiftColumns = `id, user_id, user_role, created_at, ended_at, ip_address,
	cash_collection, qr_collection, bank_transfer_collection,
	system_cash, system_qr, system_bank_transfer,
	cash_variance, qr_variance, bank_transfer_variance`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a shift repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// StartShiftAttempt calls handle_start_shift_attempt, which holds an advisory transaction lock
// and relies on the shifts_single_open partial unique index.
func (r *PostgresRepository) StartShiftAttempt(ctx context.Context, userID, role, ipAddress string) (*domain.AttemptResponse, error) {
	var raw string
	err := r.db.QueryRowContext(ctx,
		`SELECT handle_start_shift_attempt($1, $2, $3)::text`, userID, role, ipAddress).Scan(&raw)
	if err != nil {
		return nil, err
	}
	var resp domain.AttemptResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil, fmt.Errorf("decode start attempt result: %w", err)
	}
	return &resp, nil
}

// GetByID returns the shift for id, or nil if not found.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Shift, error) {
	return r.one(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE id = $1`, id)
}

// FindOpenByUser returns the user's open shift, or nil.
func (r *PostgresRepository) FindOpenByUser(ctx context.Context, userID string) (*domain.Shift, error) {
	return r.one(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE user_id = $1 AND ended_at IS NULL
		ORDER BY created_at DESC LIMIT 1`, userID)
}

// FindOpen returns the open shift, or nil.
func (r *PostgresRepository) FindOpen(ctx context.Context) (*domain.Shift, error) {
	return r.one(ctx, `SELECT `+shiftColumns+` FROM shifts WHERE ended_at IS NULL LIMIT 1`)
}

// CountPaymentsByShift counts payments referencing shiftID.
func (r *PostgresRepository) CountPaymentsByShift(ctx context.Context, shiftID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM payments WHERE shift_id = $1`, shiftID).Scan(&n)
	return n, err
}

// EndShift sets ended_at when the shift is still open.
func (r *PostgresRepository) EndShift(ctx context.Context, shiftID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE shifts SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`, shiftID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *PostgresRepository) one(ctx context.Context, query string, args ...any) (*domain.Shift, error) {
	var (
		s       domain.Shift
		endedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&s.ID, &s.UserID, &s.UserRole, &s.CreatedAt, &endedAt, &s.IPAddress,
		&s.CashCollection, &s.QRCollection, &s.BankTransferCollection,
		&s.SystemCash, &s.SystemQR, &s.SystemBankTransfer,
		&s.CashVariance, &s.QRVariance, &s.BankTransferVariance)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return &s, nil
}
