package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	identitydomain "gym-frontdesk/backend/internal/identity/domain"
	"gym-frontdesk/backend/internal/security"
	sessiondomain "gym-frontdesk/backend/internal/session/domain"
)

const eventBuffer = 16

// Sentinel errors for the token session provider.
var (
	ErrSubjectMismatch = errors.New("token subject does not match session user")
	ErrNoIssuer        = errors.New("token issuing not configured")
)

// TokenSessionProvider holds the operator's provider session, backed by JWTs from the auth provider.
// Operator actions (sign in, refresh, sign out) are published on Events for the session processor.
type TokenSessionProvider struct {
	validator *security.TokenValidator
	// issuer is optional. When set, Refresh rotates tokens locally and SignInAs is available.
	issuer *security.TokenIssuer

	mu      sync.Mutex
	current *identitydomain.ProviderSession
	events  chan sessiondomain.AuthEvent
}

// NewTokenSessionProvider returns a provider. issuer may be nil.
func NewTokenSessionProvider(validator *security.TokenValidator, issuer *security.TokenIssuer) *TokenSessionProvider {
	return &TokenSessionProvider{
		validator: validator,
		issuer:    issuer,
		events:    make(chan sessiondomain.AuthEvent, eventBuffer),
	}
}

// Events returns the auth event stream.
func (p *TokenSessionProvider) Events() <-chan sessiondomain.AuthEvent {
	return p.events
}

// Current returns a copy of the held session, or nil.
func (p *TokenSessionProvider) Current() *identitydomain.ProviderSession {
	p.mu.Lock()
	defer p.mu.Unlock()
	return clone(p.current)
}

// SetSession validates s's access token and makes it the held session.
func (p *TokenSessionProvider) SetSession(_ context.Context, s *identitydomain.ProviderSession) (*identitydomain.ProviderSession, error) {
	if !s.Valid() {
		return nil, identitydomain.ErrNoSession
	}
	id, err := p.validator.ValidateAccess(s.AccessToken)
	if err != nil {
		return nil, err
	}
	if id.UserID != s.UserID {
		return nil, ErrSubjectMismatch
	}
	next := clone(s)
	next.ExpiresAt = id.ExpiresAt

	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = next
	return clone(next), nil
}

// Refresh renews the held session. With an issuer the refresh token is exchanged for a new pair;
// otherwise the access token is re-validated and fails once expired.
func (p *TokenSessionProvider) Refresh(_ context.Context) (*identitydomain.ProviderSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil, identitydomain.ErrNoSession
	}
	if p.issuer == nil {
		id, err := p.validator.ValidateAccess(p.current.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("refresh: %w", err)
		}
		p.current.ExpiresAt = id.ExpiresAt
		return clone(p.current), nil
	}

	id, err := p.validator.ValidateRefresh(p.current.RefreshToken)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	if id.UserID != p.current.UserID {
		return nil, ErrSubjectMismatch
	}
	access, refresh, exp, err := p.issuer.Issue(id.UserID, id.Email)
	if err != nil {
		return nil, fmt.Errorf("refresh: %w", err)
	}
	p.current = &identitydomain.ProviderSession{UserID: id.UserID, AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}
	return clone(p.current), nil
}

// ClearSession drops the held session without publishing an event.
func (p *TokenSessionProvider) ClearSession(context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	return nil
}

// SignIn validates the token pair from the auth provider and publishes SIGNED_IN.
func (p *TokenSessionProvider) SignIn(ctx context.Context, accessToken, refreshToken string) error {
	id, err := p.validator.ValidateAccess(accessToken)
	if err != nil {
		return err
	}
	s := &identitydomain.ProviderSession{UserID: id.UserID, AccessToken: accessToken, RefreshToken: refreshToken, ExpiresAt: id.ExpiresAt}
	return p.publish(ctx, sessiondomain.AuthEvent{Type: sessiondomain.EventSignedIn, Session: s})
}

// SignInAs issues tokens for userID and signs in with them. Requires an issuer.
func (p *TokenSessionProvider) SignInAs(ctx context.Context, userID, email string) error {
	if p.issuer == nil {
		return ErrNoIssuer
	}
	access, refresh, _, err := p.issuer.Issue(userID, email)
	if err != nil {
		return err
	}
	return p.SignIn(ctx, access, refresh)
}

// RefreshNow refreshes the held session and publishes TOKEN_REFRESHED. A failed refresh publishes SIGNED_OUT.
func (p *TokenSessionProvider) RefreshNow(ctx context.Context) error {
	s, err := p.Refresh(ctx)
	if err != nil {
		_ = p.ClearSession(ctx)
		if perr := p.publish(ctx, sessiondomain.AuthEvent{Type: sessiondomain.EventSignedOut}); perr != nil {
			return perr
		}
		return err
	}
	return p.publish(ctx, sessiondomain.AuthEvent{Type: sessiondomain.EventTokenRefreshed, Session: s})
}

// SignOut drops the held session and publishes SIGNED_OUT.
func (p *TokenSessionProvider) SignOut(ctx context.Context) error {
	_ = p.ClearSession(ctx)
	return p.publish(ctx, sessiondomain.AuthEvent{Type: sessiondomain.EventSignedOut})
}

func (p *TokenSessionProvider) publish(ctx context.Context, ev sessiondomain.AuthEvent) error {
	select {
	case p.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func clone(s *identitydomain.ProviderSession) *identitydomain.ProviderSession {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
