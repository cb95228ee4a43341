package service

import (
	"context"
	"errors"
	"testing"
	"time"

	identitydomain "gym-frontdesk/backend/internal/identity/domain"
	"gym-frontdesk/backend/internal/security"
	sessiondomain "gym-frontdesk/backend/internal/session/domain"
)

func newProvider(t *testing.T, withIssuer bool) (*TokenSessionProvider, *security.TokenIssuer) {
	t.Helper()
	issuer, validator, err := security.NewTestTokens(15 * time.Minute)
	if err != nil {
		t.Fatalf("NewTestTokens: %v", err)
	}
	if withIssuer {
		return NewTokenSessionProvider(validator, issuer), issuer
	}
	return NewTokenSessionProvider(validator, nil), issuer
}

func nextEvent(t *testing.T, p *TokenSessionProvider) sessiondomain.AuthEvent {
	t.Helper()
	select {
	case ev := <-p.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("no auth event published")
		return sessiondomain.AuthEvent{}
	}
}

func TestSignIn_PublishesSignedIn(t *testing.T) {
	p, issuer := newProvider(t, false)
	access, refresh, _, err := issuer.Issue("u1", "ana@gym.test")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := p.SignIn(context.Background(), access, refresh); err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	ev := nextEvent(t, p)
	if ev.Type != sessiondomain.EventSignedIn || ev.Session.UserID != "u1" {
		t.Fatalf("event = %+v, want SIGNED_IN for u1", ev)
	}
	if p.Current() != nil {
		t.Error("SignIn should not hold the session until SetSession")
	}
}

func TestSignIn_InvalidToken(t *testing.T) {
	p, _ := newProvider(t, false)
	if err := p.SignIn(context.Background(), "garbage", ""); !errors.Is(err, security.ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	select {
	case ev := <-p.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestSetSession(t *testing.T) {
	p, issuer := newProvider(t, false)
	access, _, exp, _ := issuer.Issue("u1", "")
	ctx := context.Background()

	if _, err := p.SetSession(ctx, nil); !errors.Is(err, identitydomain.ErrNoSession) {
		t.Errorf("nil session err = %v, want ErrNoSession", err)
	}
	if _, err := p.SetSession(ctx, &identitydomain.ProviderSession{UserID: "u2", AccessToken: access}); !errors.Is(err, ErrSubjectMismatch) {
		t.Errorf("mismatched subject err = %v, want ErrSubjectMismatch", err)
	}

	got, err := p.SetSession(ctx, &identitydomain.ProviderSession{UserID: "u1", AccessToken: access})
	if err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if !got.ExpiresAt.Equal(exp.Truncate(time.Second)) {
		t.Errorf("ExpiresAt = %v, want %v", got.ExpiresAt, exp)
	}
	if cur := p.Current(); cur == nil || cur.UserID != "u1" {
		t.Fatalf("Current() = %+v, want u1", cur)
	}

	if err := p.ClearSession(ctx); err != nil {
		t.Fatalf("ClearSession: %v", err)
	}
	if p.Current() != nil {
		t.Error("Current() after ClearSession should be nil")
	}
	select {
	case ev := <-p.Events():
		t.Fatalf("ClearSession published %+v", ev)
	default:
	}
}

func TestRefresh_RotatesWithIssuer(t *testing.T) {
	p, issuer := newProvider(t, true)
	ctx := context.Background()
	if _, err := p.Refresh(ctx); !errors.Is(err, identitydomain.ErrNoSession) {
		t.Fatalf("Refresh without session err = %v, want ErrNoSession", err)
	}

	access, refresh, _, _ := issuer.Issue("u1", "")
	if _, err := p.SetSession(ctx, &identitydomain.ProviderSession{UserID: "u1", AccessToken: access, RefreshToken: refresh}); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	got, err := p.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got.UserID != "u1" || got.RefreshToken == refresh {
		t.Errorf("refreshed = %+v, want rotated tokens for u1", got)
	}
}

func TestRefreshNow_FailurePublishesSignedOut(t *testing.T) {
	p, _ := newProvider(t, false)
	err := p.RefreshNow(context.Background())
	if !errors.Is(err, identitydomain.ErrNoSession) {
		t.Fatalf("err = %v, want ErrNoSession", err)
	}
	if ev := nextEvent(t, p); ev.Type != sessiondomain.EventSignedOut {
		t.Fatalf("event = %s, want SIGNED_OUT", ev.Type)
	}
}

func TestSignInAs_And_SignOut(t *testing.T) {
	p, _ := newProvider(t, false)
	if err := p.SignInAs(context.Background(), "u1", ""); !errors.Is(err, ErrNoIssuer) {
		t.Fatalf("SignInAs without issuer err = %v, want ErrNoIssuer", err)
	}

	p, _ = newProvider(t, true)
	ctx := context.Background()
	if err := p.SignInAs(ctx, "u1", "ana@gym.test"); err != nil {
		t.Fatalf("SignInAs: %v", err)
	}
	ev := nextEvent(t, p)
	if _, err := p.SetSession(ctx, ev.Session); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if err := p.RefreshNow(ctx); err != nil {
		t.Fatalf("RefreshNow: %v", err)
	}
	if ev := nextEvent(t, p); ev.Type != sessiondomain.EventTokenRefreshed {
		t.Fatalf("event = %s, want TOKEN_REFRESHED", ev.Type)
	}

	if err := p.SignOut(ctx); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	if ev := nextEvent(t, p); ev.Type != sessiondomain.EventSignedOut || ev.Session != nil {
		t.Fatalf("event = %+v, want SIGNED_OUT without session", ev)
	}
	if p.Current() != nil {
		t.Error("session held after SignOut")
	}
}
