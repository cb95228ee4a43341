package repository

import (
	"context"
	"time"

	"gym-frontdesk/backend/internal/shift/domain"
)

// Repository defines persistence for shifts and the payment counts the logout guard needs.
type Repository interface {
	// StartShiftAttempt resumes, opens or rejects a shift for userID in one atomic store operation.
	StartShiftAttempt(ctx context.Context, userID, role, ipAddress string) (*domain.AttemptResponse, error)
	GetByID(ctx context.Context, id string) (*domain.Shift, error)
	// FindOpenByUser returns userID's open shift, or nil.
	FindOpenByUser(ctx context.Context, userID string) (*domain.Shift, error)
	// FindOpen returns the open shift of any user, or nil.
	FindOpen(ctx context.Context) (*domain.Shift, error)
	CountPaymentsByShift(ctx context.Context, shiftID string) (int, error)
	// EndShift sets ended_at on an open shift. Returns false when the shift is missing or already ended.
	EndShift(ctx context.Context, shiftID string, at time.Time) (bool, error)
}
