package domain

import (
	"errors"

	identitydomain "gym-frontdesk/backend/internal/identity/domain"
)

// Failures that force the session empty.
var (
	// ErrAuthSession means the provider session could not be established or refreshed.
	ErrAuthSession = errors.New("auth session could not be established")
	// ErrProfileFetchTimeout means the profile fetch hit its deadline.
	ErrProfileFetchTimeout = errors.New("profile fetch timed out")
	// ErrProfileUnavailable means the profile fetch failed or no profile row exists.
	ErrProfileUnavailable = errors.New("profile unavailable")
	// ErrDeviceValidation means the device trust gate failed; ambiguous trust is never allowed.
	ErrDeviceValidation = errors.New("device validation failed")
)

var (
	// ErrEventDropped is returned for an event that arrived while another was being processed.
	ErrEventDropped = errors.New("auth event dropped: processor busy")
	// ErrEventSuperseded is returned when a sign-out preempted the event being processed.
	ErrEventSuperseded = errors.New("auth event superseded by sign-out")
)

// EventType is an auth provider lifecycle event.
type EventType string

const (
	EventSignedIn         EventType = "SIGNED_IN"
	EventSignedOut        EventType = "SIGNED_OUT"
	EventTokenRefreshed   EventType = "TOKEN_REFRESHED"
	EventUserUpdated      EventType = "USER_UPDATED"
	EventInitialSession   EventType = "INITIAL_SESSION"
	EventPasswordRecovery EventType = "PASSWORD_RECOVERY"
)

// AuthEvent is one event from the auth provider. Session is nil when the provider holds no session.
type AuthEvent struct {
	Type    EventType
	Session *identitydomain.ProviderSession
}

// SignsOut reports whether the event empties the session: SIGNED_OUT, or any event without a session.
func (e AuthEvent) SignsOut() bool {
	return e.Type == EventSignedOut || !e.Session.Valid()
}

// DeviceTrustState is the device trust part of a Session.
type DeviceTrustState string

const (
	TrustNone             DeviceTrustState = "none"
	TrustTrusted          DeviceTrustState = "trusted"
	TrustAwaitingApproval DeviceTrustState = "awaitingApproval"
	TrustDenied           DeviceTrustState = "denied"
)

// Session is the published front-desk session. The zero value is the empty (signed-out) session.
type Session struct {
	UserID           string
	Role             string
	DisplayIdentity  string
	DeviceTrustState DeviceTrustState
	// PendingRequestID is the device authorization request being waited on, when awaiting approval or denied.
	PendingRequestID int64
}

// IsEmpty reports whether no operator is signed in.
func (s Session) IsEmpty() bool {
	return s.UserID == ""
}

// CanWork reports whether the session authorizes starting a shift.
func (s Session) CanWork() bool {
	return !s.IsEmpty() && s.DeviceTrustState == TrustTrusted
}

// Snapshot is one published state of the processor.
type Snapshot struct {
	Session Session
	// Event is the event type that produced this snapshot.
	Event EventType
	// Seq increases by one on every publish.
	Seq uint64
	// Err is the failure that forced the session empty, if any.
	Err error
}
