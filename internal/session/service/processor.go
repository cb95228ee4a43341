package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"gym-frontdesk/backend/internal/audit"
	deviceservice "gym-frontdesk/backend/internal/device/service"
	identitydomain "gym-frontdesk/backend/internal/identity/domain"
	"gym-frontdesk/backend/internal/session/domain"
	"gym-frontdesk/backend/internal/telemetry"
	telemetrydomain "gym-frontdesk/backend/internal/telemetry/domain"
	userdomain "gym-frontdesk/backend/internal/user/domain"
)

const (
	defaultProfileTimeout = 60 * time.Second
	signOutTimeout        = 5 * time.Second
)

var tracer = otel.Tracer("gym-frontdesk/session")

// AuthProvider is the auth provider session the processor re-establishes and clears.
type AuthProvider interface {
	// SetSession re-establishes s as the provider's current session and returns it.
	SetSession(ctx context.Context, s *identitydomain.ProviderSession) (*identitydomain.ProviderSession, error)
	// Refresh refreshes the current session's tokens.
	Refresh(ctx context.Context) (*identitydomain.ProviderSession, error)
	// ClearSession drops the provider session without emitting an event.
	ClearSession(ctx context.Context) error
}

// ProfileReader reads staff profiles.
type ProfileReader interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// DeviceGate evaluates device trust for a (user, fingerprint) pair.
type DeviceGate interface {
	Evaluate(ctx context.Context, userID, fingerprint, description string) (deviceservice.Decision, error)
}

// Terminal identifies the device this processor runs on.
type Terminal struct {
	Fingerprint string
	Description string
}

// Processor serializes auth events and publishes the resulting Session. Only one event is processed
// at a time; events arriving meanwhile are dropped, except sign-outs, which preempt.
type Processor struct {
	provider       AuthProvider
	profiles       ProfileReader
	gate           DeviceGate
	terminal       Terminal
	profileTimeout time.Duration
	audit          audit.AuditLogger
	emitter        telemetry.EventEmitter
	metrics        *telemetry.Metrics

	// guard holds one token while an event is processed.
	guard chan struct{}

	mu       sync.Mutex
	epoch    uint64
	cancel   context.CancelFunc
	current  domain.Snapshot
	nextSub  int
	watchers map[int]chan domain.Snapshot

	// guardedHook, when set, runs right after Admit takes the guard.
	guardedHook func()
}

// NewProcessor returns a Processor. profileTimeout <= 0 uses 60s. auditLogger, emitter and metrics may be nil.
func NewProcessor(
	provider AuthProvider,
	profiles ProfileReader,
	gate DeviceGate,
	terminal Terminal,
	profileTimeout time.Duration,
	auditLogger audit.AuditLogger,
	emitter telemetry.EventEmitter,
	metrics *telemetry.Metrics,
) *Processor {
	if profileTimeout <= 0 {
		profileTimeout = defaultProfileTimeout
	}
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Processor{
		provider:       provider,
		profiles:       profiles,
		gate:           gate,
		terminal:       terminal,
		profileTimeout: profileTimeout,
		audit:          auditLogger,
		emitter:        emitter,
		metrics:        metrics,
		guard:          make(chan struct{}, 1),
		current:        domain.Snapshot{Session: domain.Session{}},
		watchers:       make(map[int]chan domain.Snapshot),
	}
}

// Current returns the latest published snapshot.
func (p *Processor) Current() domain.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Subscribe returns a channel carrying the latest snapshot, starting with the current one.
// Slow readers skip intermediate snapshots. The returned func unsubscribes and closes the channel.
func (p *Processor) Subscribe() (<-chan domain.Snapshot, func()) {
	ch := make(chan domain.Snapshot, 1)
	p.mu.Lock()
	id := p.nextSub
	p.nextSub++
	p.watchers[id] = ch
	ch <- p.current
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.watchers, id)
			close(ch)
			p.mu.Unlock()
		})
	}
}

// Handle processes one auth event. Sign-outs (and events without a session) publish the empty session
// immediately and cancel any event in flight. Other events return ErrEventDropped when the processor is busy.
// Failures force the session empty and are returned after publishing.
func (p *Processor) Handle(ctx context.Context, ev domain.AuthEvent) error {
	process, err := p.Admit(ctx, ev)
	if err != nil || process == nil {
		return err
	}
	return process()
}

// Admit decides ev without blocking, so a caller reading events in order admits them in that order.
// A sign-out is applied before Admit returns and yields a nil func. Any other event either takes the
// single-flight guard, and the returned func processes it, or is dropped with ErrEventDropped.
// The returned func must be called exactly once; it releases the guard. A sign-out admitted after ev
// supersedes it even if the func has not started yet.
func (p *Processor) Admit(ctx context.Context, ev domain.AuthEvent) (func() error, error) {
	if ev.SignsOut() {
		p.signOut(ev.Type)
		return nil, nil
	}
	epoch := p.currentEpoch()
	select {
	case p.guard <- struct{}{}:
	default:
		p.metrics.AuthEventDropped(ctx, string(ev.Type))
		p.emit(telemetrydomain.TypeAuthEventDropped, ev.Session.UserID, map[string]any{"event": string(ev.Type)})
		return nil, domain.ErrEventDropped
	}
	if p.guardedHook != nil {
		p.guardedHook()
	}
	ctx, release, err := p.acquire(ctx, epoch)
	if err != nil {
		return nil, err
	}
	return func() error {
		defer release()
		return p.run(ctx, epoch, ev)
	}, nil
}

// Reestablish refreshes the provider session and reprocesses it, waiting for the guard instead of
// dropping. Used after a device request is approved. A sign-out at any point before the result is
// published supersedes it.
func (p *Processor) Reestablish(ctx context.Context) error {
	epoch := p.currentEpoch()
	select {
	case p.guard <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	ctx, release, err := p.acquire(ctx, epoch)
	if err != nil {
		return err
	}
	defer release()

	refreshed, err := p.provider.Refresh(ctx)
	if err != nil {
		if p.preempted(ctx, epoch) {
			p.clearStale()
			return domain.ErrEventSuperseded
		}
		return p.forceSignOut(epoch, domain.EventTokenRefreshed, "", fmt.Errorf("%w: %v", domain.ErrAuthSession, err))
	}
	return p.run(ctx, epoch, domain.AuthEvent{Type: domain.EventTokenRefreshed, Session: refreshed})
}

// MarkDenied publishes the denied state when the current session is waiting on requestID.
func (p *Processor) MarkDenied(requestID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.current.Session
	if s.IsEmpty() || s.DeviceTrustState != domain.TrustAwaitingApproval || s.PendingRequestID != requestID {
		return
	}
	s.DeviceTrustState = domain.TrustDenied
	p.publishLocked(domain.Snapshot{Session: s, Event: p.current.Event})
}

func (p *Processor) currentEpoch() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch
}

// acquire runs with the guard held. It installs the cancel func a sign-out uses to stop the work of
// epoch, or gives the guard back when a sign-out already happened after epoch was read.
func (p *Processor) acquire(ctx context.Context, epoch uint64) (context.Context, func(), error) {
	p.mu.Lock()
	if epoch != p.epoch {
		p.mu.Unlock()
		<-p.guard
		return nil, nil, domain.ErrEventSuperseded
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.mu.Unlock()

	return ctx, func() {
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
		cancel()
		<-p.guard
	}, nil
}

// run processes ev for epoch. The caller holds the guard.
func (p *Processor) run(ctx context.Context, epoch uint64, ev domain.AuthEvent) (err error) {
	ctx, span := tracer.Start(ctx, "session.process_event")
	defer span.End()
	span.SetAttributes(attribute.String("auth.event", string(ev.Type)))

	defer func() {
		if r := recover(); r != nil {
			err = p.forceSignOut(epoch, ev.Type, ev.Session.UserID, fmt.Errorf("%w: panic: %v", domain.ErrAuthSession, r))
		}
		if errors.Is(err, domain.ErrEventSuperseded) {
			p.clearStale()
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	return p.process(ctx, epoch, ev)
}

// clearStale drops a provider session re-established by work that a sign-out superseded.
func (p *Processor) clearStale() {
	ctx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
	defer cancel()
	if err := p.provider.ClearSession(ctx); err != nil {
		log.Printf("session: clear superseded provider session: %v", err)
	}
}

func (p *Processor) process(ctx context.Context, epoch uint64, ev domain.AuthEvent) error {
	sess, err := p.provider.SetSession(ctx, ev.Session)
	if err != nil {
		if p.preempted(ctx, epoch) {
			return domain.ErrEventSuperseded
		}
		return p.forceSignOut(epoch, ev.Type, ev.Session.UserID, fmt.Errorf("%w: %v", domain.ErrAuthSession, err))
	}

	u, err := p.fetchProfile(ctx, sess.UserID)
	if err != nil {
		if p.preempted(ctx, epoch) {
			return domain.ErrEventSuperseded
		}
		return p.forceSignOut(epoch, ev.Type, sess.UserID, err)
	}

	decision, err := p.gate.Evaluate(ctx, u.ID, p.terminal.Fingerprint, p.terminal.Description)
	if err != nil {
		if p.preempted(ctx, epoch) {
			return domain.ErrEventSuperseded
		}
		return p.forceSignOut(epoch, ev.Type, u.ID, fmt.Errorf("%w: %v", domain.ErrDeviceValidation, err))
	}

	next := domain.Session{
		UserID:           u.ID,
		Role:             string(u.Role),
		DisplayIdentity:  u.DisplayIdentity(),
		DeviceTrustState: domain.TrustTrusted,
	}
	if !decision.Trusted {
		next.DeviceTrustState = domain.TrustAwaitingApproval
		next.PendingRequestID = decision.RequestID
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if epoch != p.epoch {
		return domain.ErrEventSuperseded
	}
	if p.current.Err == nil && p.current.Session == next && ev.Type != domain.EventUserUpdated {
		return nil
	}
	p.publishLocked(domain.Snapshot{Session: next, Event: ev.Type})
	return nil
}

// fetchProfile reads the profile with a hard deadline that holds even if the reader ignores ctx.
func (p *Processor) fetchProfile(ctx context.Context, userID string) (*userdomain.User, error) {
	fctx, cancel := context.WithTimeout(ctx, p.profileTimeout)
	defer cancel()

	type result struct {
		u   *userdomain.User
		err error
	}
	done := make(chan result, 1)
	go func() {
		u, err := p.profiles.GetByID(fctx, userID)
		done <- result{u, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return nil, domain.ErrProfileFetchTimeout
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrProfileUnavailable, r.err)
		}
		if r.u == nil {
			return nil, domain.ErrProfileUnavailable
		}
		return r.u, nil
	case <-fctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.ErrProfileFetchTimeout
	}
}

func (p *Processor) preempted(ctx context.Context, epoch uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return epoch != p.epoch && ctx.Err() != nil
}

// signOut publishes the empty session unconditionally, invalidates the event in flight and cancels it.
func (p *Processor) signOut(ev domain.EventType) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.epoch++
	if p.cancel != nil {
		p.cancel()
	}
	p.publishLocked(domain.Snapshot{Event: ev})
}

// forceSignOut clears the provider session and publishes the empty session carrying cause.
// It returns cause so callers can surface it.
func (p *Processor) forceSignOut(epoch uint64, ev domain.EventType, userID string, cause error) error {
	log.Printf("session: forcing sign-out after %s: %v", ev, cause)
	ctx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
	defer cancel()
	if err := p.provider.ClearSession(ctx); err != nil {
		log.Printf("session: clear provider session: %v", err)
	}
	p.audit.LogEvent(ctx, userID, audit.ActionForcedSignOut, "session", cause.Error())
	p.emit(telemetrydomain.TypeSessionForcedSignOut, userID, map[string]any{"event": string(ev), "cause": cause.Error()})

	p.mu.Lock()
	defer p.mu.Unlock()
	if epoch != p.epoch {
		return domain.ErrEventSuperseded
	}
	p.publishLocked(domain.Snapshot{Event: ev, Err: cause})
	return cause
}

// publishLocked stores snap as current and hands it to every subscriber, replacing any unread snapshot.
// p.mu must be held.
func (p *Processor) publishLocked(snap domain.Snapshot) {
	snap.Seq = p.current.Seq + 1
	p.current = snap
	for _, ch := range p.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
	p.emit(telemetrydomain.TypeSessionPublished, snap.Session.UserID, map[string]any{
		"event":              string(snap.Event),
		"device_trust_state": string(snap.Session.DeviceTrustState),
	})
}

func (p *Processor) emit(eventType, userID string, metadata map[string]any) {
	if p.emitter == nil {
		return
	}
	telemetry.EmitAsync(p.emitter, telemetry.NewEvent(eventType, "session", userID, metadata))
}
