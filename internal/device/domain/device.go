package domain

import (
	"errors"
	"time"
)

// RequestStatus is the review state of a device authorization request.
type RequestStatus string

const (
	StatusPending  RequestStatus = "pending"
	StatusApproved RequestStatus = "approved"
	StatusDenied   RequestStatus = "denied"
)

var (
	// ErrRequestNotFound is returned when a device authorization request does not exist.
	ErrRequestNotFound = errors.New("device authorization request not found")
	// ErrRequestNotPending is returned when a review targets a request that already left pending.
	ErrRequestNotPending = errors.New("device authorization request is not pending")
)

// IsTerminal reports whether s is approved or denied.
func (s RequestStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusDenied
}

// Valid reports whether s is one of the known statuses.
func (s RequestStatus) Valid() bool {
	return s == StatusPending || s.IsTerminal()
}

// CanTransitionTo reports whether a request in status s may move to next.
// Only pending -> approved and pending -> denied are allowed.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	return s == StatusPending && next.IsTerminal()
}

// AuthorizationRequest asks an administrator to trust a (user, fingerprint) pair.
type AuthorizationRequest struct {
	ID          int64
	UserID      string
	Fingerprint string
	Status      RequestStatus
	RequestedAt time.Time
	ReviewedAt  *time.Time
	ReviewerID  string
	Description string
	AdminNotes  string
}

// AuthorizedDevice is a (user, fingerprint) pair that may log in without review.
type AuthorizedDevice struct {
	UserID       string
	Fingerprint  string
	Description  string
	AuthorizedAt time.Time
	LastUsedAt   *time.Time
}

// StatusChange is one change-feed notification for a request.
type StatusChange struct {
	RequestID int64         `json:"id"`
	Status    RequestStatus `json:"status"`
}
