package repository

import (
	"context"

	"gym-frontdesk/backend/internal/user/domain"
)

// Repository defines persistence for staff profiles.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	Upsert(ctx context.Context, u *domain.User) error
}
