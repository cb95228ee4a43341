package domain

import (
	"errors"
	"strings"
	"time"
)

// ErrNoSession is returned when an operation needs a provider session and none is held.
var ErrNoSession = errors.New("no provider session")

// ProviderSession is the auth provider's session: the operator id and the tokens that prove it.
type ProviderSession struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Valid reports whether the session names a user and carries an access token.
func (s *ProviderSession) Valid() bool {
	return s != nil && strings.TrimSpace(s.UserID) != "" && s.AccessToken != ""
}

// Expired reports whether the access token has expired at now.
func (s *ProviderSession) Expired(now time.Time) bool {
	return s == nil || (!s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt))
}
