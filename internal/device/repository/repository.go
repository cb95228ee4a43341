package repository

import (
	"context"
	"time"

	"gym-frontdesk/backend/internal/device/domain"
)

// Repository defines persistence for authorized devices and device authorization requests.
type Repository interface {
	IsAuthorized(ctx context.Context, userID, fingerprint string) (bool, error)
	TouchLastUsed(ctx context.Context, userID, fingerprint string, at time.Time) error
	// CreateOrReusePending returns the id of a pending request for (userID, fingerprint) requested
	// within window, refreshing its description, or inserts a new pending request.
	// The check and the insert are atomic.
	CreateOrReusePending(ctx context.Context, userID, fingerprint, description string, window time.Duration) (id int64, reused bool, err error)
	GetRequest(ctx context.Context, id int64) (*domain.AuthorizationRequest, error)
	ListPending(ctx context.Context) ([]*domain.AuthorizationRequest, error)
	// Approve moves req from pending to approved and registers its device.
	// Returns false when the request was no longer pending.
	Approve(ctx context.Context, req *domain.AuthorizationRequest, adminID, notes string) (bool, error)
	// Deny moves the request from pending to denied. Returns false when it was no longer pending.
	Deny(ctx context.Context, id int64, adminID, notes string) (bool, error)
}

// Subscription delivers status changes for one request until closed.
// Changes is closed when the subscription ends; Err then reports why (nil after Close).
type Subscription interface {
	Changes() <-chan domain.StatusChange
	Err() error
	Close() error
}

// Feed opens change-feed subscriptions scoped to a single request.
type Feed interface {
	Subscribe(ctx context.Context, requestID int64) (Subscription, error)
}
