package service

import (
	"context"
	"errors"
	"fmt"

	"gym-frontdesk/backend/internal/device/domain"
	"gym-frontdesk/backend/internal/device/repository"
)

// ErrApprovalChannel is returned when the change feed fails or closes before the request resolves.
// The request stays pending; watching again is safe.
var ErrApprovalChannel = errors.New("approval channel unavailable")

// Outcome is how a watched request resolved.
type Outcome int

const (
	OutcomeUnresolved Outcome = iota
	OutcomeApproved
	OutcomeDenied
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApproved:
		return "approved"
	case OutcomeDenied:
		return "denied"
	default:
		return "unresolved"
	}
}

// ApprovalHandler reacts to the terminal transition of a watched request.
type ApprovalHandler interface {
	// Reestablish re-establishes the session after approval (refresh token, re-fetch profile, publish).
	Reestablish(ctx context.Context) error
	// MarkDenied publishes the terminal denied state for requestID.
	MarkDenied(requestID int64)
}

// RequestReader reads one device authorization request.
type RequestReader interface {
	GetRequest(ctx context.Context, id int64) (*domain.AuthorizationRequest, error)
}

// Watcher waits for an administrator to approve or deny a pending request, without polling.
type Watcher struct {
	feed     repository.Feed
	requests RequestReader
}

// NewWatcher returns a Watcher reading change notifications from feed and snapshots from requests.
func NewWatcher(feed repository.Feed, requests RequestReader) *Watcher {
	return &Watcher{feed: feed, requests: requests}
}

// Watch blocks until requestID becomes approved or denied, ctx is cancelled or the feed fails.
// It subscribes before reading the current status so a transition between the two is not missed.
// The subscription is closed on every return path.
func (w *Watcher) Watch(ctx context.Context, requestID int64, h ApprovalHandler) (Outcome, error) {
	ctx, span := tracer.Start(ctx, "device.watch_approval")
	defer span.End()

	sub, err := w.feed.Subscribe(ctx, requestID)
	if err != nil {
		return OutcomeUnresolved, fmt.Errorf("%w: %v", ErrApprovalChannel, err)
	}
	defer func() { _ = sub.Close() }()

	req, err := w.requests.GetRequest(ctx, requestID)
	if err != nil {
		return OutcomeUnresolved, fmt.Errorf("%w: read request: %v", ErrApprovalChannel, err)
	}
	if req == nil {
		return OutcomeUnresolved, domain.ErrRequestNotFound
	}
	if req.Status.IsTerminal() {
		return resolve(ctx, requestID, req.Status, h)
	}

	for {
		select {
		case <-ctx.Done():
			return OutcomeUnresolved, ctx.Err()
		case change, ok := <-sub.Changes():
			if !ok {
				if ctx.Err() != nil {
					return OutcomeUnresolved, ctx.Err()
				}
				if err := sub.Err(); err != nil {
					return OutcomeUnresolved, fmt.Errorf("%w: %v", ErrApprovalChannel, err)
				}
				return OutcomeUnresolved, fmt.Errorf("%w: subscription closed", ErrApprovalChannel)
			}
			if change.RequestID != requestID || !change.Status.IsTerminal() {
				continue
			}
			return resolve(ctx, requestID, change.Status, h)
		}
	}
}

func resolve(ctx context.Context, requestID int64, status domain.RequestStatus, h ApprovalHandler) (Outcome, error) {
	if status == domain.StatusDenied {
		h.MarkDenied(requestID)
		return OutcomeDenied, nil
	}
	if err := h.Reestablish(ctx); err != nil {
		return OutcomeApproved, fmt.Errorf("reestablish session: %w", err)
	}
	return OutcomeApproved, nil
}
