package domain

import (
	"testing"

	identitydomain "gym-frontdesk/backend/internal/identity/domain"
)

func TestAuthEvent_SignsOut(t *testing.T) {
	valid := &identitydomain.ProviderSession{UserID: "u1", AccessToken: "tok"}
	tests := []struct {
		name string
		ev   AuthEvent
		want bool
	}{
		{"signed out", AuthEvent{Type: EventSignedOut, Session: valid}, true},
		{"signed in", AuthEvent{Type: EventSignedIn, Session: valid}, false},
		{"refresh without session", AuthEvent{Type: EventTokenRefreshed}, true},
		{"initial without session", AuthEvent{Type: EventInitialSession}, true},
		{"recovery with session", AuthEvent{Type: EventPasswordRecovery, Session: valid}, false},
		{"session without token", AuthEvent{Type: EventSignedIn, Session: &identitydomain.ProviderSession{UserID: "u1"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ev.SignsOut(); got != tt.want {
				t.Errorf("SignsOut() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSession_CanWork(t *testing.T) {
	if (Session{}).CanWork() {
		t.Error("empty session cannot work")
	}
	for _, st := range []DeviceTrustState{TrustNone, TrustAwaitingApproval, TrustDenied} {
		if (Session{UserID: "u1", DeviceTrustState: st}).CanWork() {
			t.Errorf("%s session cannot work", st)
		}
	}
	if !(Session{UserID: "u1", DeviceTrustState: TrustTrusted}).CanWork() {
		t.Error("trusted session can work")
	}
}
