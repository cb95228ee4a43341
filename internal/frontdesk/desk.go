// Package frontdesk is the terminal-side policy around the session processor: it feeds auth events in,
// watches pending device approvals while the session waits on one, and gates shift start and logout.
package frontdesk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	deviceservice "gym-frontdesk/backend/internal/device/service"
	sessiondomain "gym-frontdesk/backend/internal/session/domain"
	shiftdomain "gym-frontdesk/backend/internal/shift/domain"
)

const defaultRetryDelay = 2 * time.Second

// ErrNotTrusted is returned by StartWork when the session is empty or its device is not trusted.
var ErrNotTrusted = errors.New("session cannot start work: not signed in on a trusted device")

// Provider is the auth provider as seen by the desk.
type Provider interface {
	Events() <-chan sessiondomain.AuthEvent
	SignOut(ctx context.Context) error
}

// Processor is the auth event processor.
type Processor interface {
	Admit(ctx context.Context, ev sessiondomain.AuthEvent) (func() error, error)
	Current() sessiondomain.Snapshot
	Subscribe() (<-chan sessiondomain.Snapshot, func())
	deviceservice.ApprovalHandler
}

// ApprovalWatcher waits for a device request to resolve.
type ApprovalWatcher interface {
	Watch(ctx context.Context, requestID int64, h deviceservice.ApprovalHandler) (deviceservice.Outcome, error)
}

// ShiftStarter runs the start-working attempt.
type ShiftStarter interface {
	AttemptStart(ctx context.Context, userID, role, ipAddress string) (shiftdomain.StartResult, error)
}

// LogoutChecker decides whether sign-out may proceed.
type LogoutChecker interface {
	CanLogout(ctx context.Context, userID string) shiftdomain.LogoutDecision
}

// Desk coordinates one terminal.
type Desk struct {
	provider  Provider
	processor Processor
	watcher   ApprovalWatcher
	shifts    ShiftStarter
	guard     LogoutChecker

	// RetryDelay is the pause before re-watching after the approval channel fails.
	RetryDelay time.Duration

	mu         sync.Mutex
	shift      *shiftdomain.Shift
	watchingID int64
	stopWatch  context.CancelFunc
	watchDone  chan struct{}
	inflight   sync.WaitGroup
}

// New returns a Desk.
func New(provider Provider, processor Processor, watcher ApprovalWatcher, shifts ShiftStarter, guard LogoutChecker) *Desk {
	return &Desk{
		provider:   provider,
		processor:  processor,
		watcher:    watcher,
		shifts:     shifts,
		guard:      guard,
		RetryDelay: defaultRetryDelay,
	}
}

// Run pumps provider events into the processor and follows published sessions until ctx ends.
// Events are admitted in the order they are read; a sign-out is applied in the loop itself, so it
// supersedes every event read before it. Admitted events are processed off the loop.
func (d *Desk) Run(ctx context.Context) error {
	snaps, unsubscribe := d.processor.Subscribe()
	defer unsubscribe()
	defer d.inflight.Wait()
	defer d.cancelWatch()

	events := d.provider.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			process, err := d.processor.Admit(ctx, ev)
			if err != nil {
				report(ev, err)
				continue
			}
			if process == nil {
				continue
			}
			d.inflight.Add(1)
			go func() {
				defer d.inflight.Done()
				report(ev, process())
			}()
		case snap := <-snaps:
			d.follow(ctx, snap)
		}
	}
}

func report(ev sessiondomain.AuthEvent, err error) {
	switch {
	case err == nil:
	case errors.Is(err, sessiondomain.ErrEventDropped), errors.Is(err, sessiondomain.ErrEventSuperseded):
		log.Printf("frontdesk: %s: %v", ev.Type, err)
	default:
		log.Printf("frontdesk: %s forced sign-out: %v", ev.Type, err)
	}
}

// follow starts or stops the approval watch to match snap and drops the shift on sign-out.
func (d *Desk) follow(ctx context.Context, snap sessiondomain.Snapshot) {
	s := snap.Session
	if s.IsEmpty() {
		d.mu.Lock()
		d.shift = nil
		d.mu.Unlock()
	}
	if s.DeviceTrustState != sessiondomain.TrustAwaitingApproval {
		d.cancelWatch()
		return
	}

	d.mu.Lock()
	if d.stopWatch != nil && d.watchingID == s.PendingRequestID {
		d.mu.Unlock()
		return
	}
	d.mu.Unlock()
	d.cancelWatch()

	wctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	d.mu.Lock()
	d.watchingID = s.PendingRequestID
	d.stopWatch = cancel
	d.watchDone = done
	d.mu.Unlock()

	go func() {
		defer close(done)
		d.watch(wctx, s.PendingRequestID)
	}()
}

// watch waits for requestID to resolve, re-subscribing after channel failures.
func (d *Desk) watch(ctx context.Context, requestID int64) {
	for {
		outcome, err := d.watcher.Watch(ctx, requestID, d.processor)
		if err == nil {
			log.Printf("frontdesk: device request %d %s", requestID, outcome)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !errors.Is(err, deviceservice.ErrApprovalChannel) {
			log.Printf("frontdesk: watch device request %d: %v", requestID, err)
			return
		}
		log.Printf("frontdesk: approval channel for request %d failed, retrying: %v", requestID, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(d.RetryDelay):
		}
	}
}

// cancelWatch stops the running watch, if any, and waits for it to exit.
func (d *Desk) cancelWatch() {
	d.mu.Lock()
	cancel, done := d.stopWatch, d.watchDone
	d.stopWatch, d.watchDone, d.watchingID = nil, nil, 0
	d.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Watching returns the request id being watched, or 0.
func (d *Desk) Watching() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.watchingID
}

// Session returns the current published session.
func (d *Desk) Session() sessiondomain.Session {
	return d.processor.Current().Session
}

// Shift returns the shift held since the last successful StartWork, or nil.
func (d *Desk) Shift() *shiftdomain.Shift {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shift
}

// StartWork starts or resumes the operator's shift. A rejection is returned as a result, not an error.
// When the shift state cannot be determined the operator is signed out.
func (d *Desk) StartWork(ctx context.Context, ipAddress string) (shiftdomain.StartResult, error) {
	s := d.Session()
	if !s.CanWork() {
		return shiftdomain.StartResult{}, ErrNotTrusted
	}
	res, err := d.shifts.AttemptStart(ctx, s.UserID, s.Role, ipAddress)
	if err != nil {
		if errors.Is(err, shiftdomain.ErrShiftDetermination) {
			if serr := d.provider.SignOut(ctx); serr != nil {
				log.Printf("frontdesk: sign out after shift failure: %v", serr)
			}
		}
		return shiftdomain.StartResult{}, err
	}
	if res.Shift != nil {
		d.mu.Lock()
		d.shift = res.Shift
		d.mu.Unlock()
	}
	return res, nil
}

// Logout signs the operator out unless the logout guard blocks it. A blocked decision is returned
// without error; the caller sends the operator to reconciliation.
func (d *Desk) Logout(ctx context.Context) (shiftdomain.LogoutDecision, error) {
	s := d.Session()
	decision := shiftdomain.LogoutDecision{Allowed: true}
	if !s.IsEmpty() {
		decision = d.guard.CanLogout(ctx, s.UserID)
		if !decision.Allowed {
			return decision, nil
		}
	}
	d.cancelWatch()
	if err := d.provider.SignOut(ctx); err != nil {
		return decision, fmt.Errorf("sign out: %w", err)
	}
	d.mu.Lock()
	d.shift = nil
	d.mu.Unlock()
	return decision, nil
}
