package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired or signed by someone else.
	ErrInvalidToken = errors.New("invalid token")
	// ErrCannotSign is returned by NewTokenIssuer for a verify-only key.
	ErrCannotSign = errors.New("key cannot sign tokens")
)

const (
	useAccess  = "access"
	useRefresh = "refresh"
)

// Claims are the provider token claims the front desk reads.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	// Use is "access" or "refresh".
	Use string `json:"token_use"`
}

// Identity is what a validated token proves.
type Identity struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// TokenValidator checks provider tokens: signature, exp, aud and (when set) iss.
type TokenValidator struct {
	key      Key
	issuer   string
	audience string
	now      func() time.Time
}

// NewTokenValidator returns a validator for tokens signed with key.
func NewTokenValidator(key Key, issuer, audience string) *TokenValidator {
	return &TokenValidator{key: key, issuer: issuer, audience: audience, now: time.Now}
}

// ValidateAccess validates an access token.
func (v *TokenValidator) ValidateAccess(token string) (Identity, error) {
	return v.validate(token, useAccess)
}

// ValidateRefresh validates a refresh token.
func (v *TokenValidator) ValidateRefresh(token string) (Identity, error) {
	return v.validate(token, useRefresh)
}

func (v *TokenValidator) validate(tokenString, use string) (Identity, error) {
	if v == nil || v.key.method == nil || tokenString == "" {
		return Identity{}, ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.key.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithAudience(v.audience),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return v.key.verify, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Use != use {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.Subject, Email: claims.Email, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// TokenIssuer signs access and refresh tokens. Used in development and by the admin CLI
// where no external auth provider is present.
type TokenIssuer struct {
	key        Key
	issuer     string
	audience   string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewTokenIssuer returns an issuer. key must be able to sign.
func NewTokenIssuer(key Key, issuer, audience string, accessTTL, refreshTTL time.Duration) (*TokenIssuer, error) {
	if !key.CanSign() {
		return nil, ErrCannotSign
	}
	return &TokenIssuer{
		key:        key,
		issuer:     issuer,
		audience:   audience,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}, nil
}

// Issue returns a fresh access/refresh pair for userID and the access token's expiry.
func (i *TokenIssuer) Issue(userID, email string) (access, refresh string, expiresAt time.Time, err error) {
	now := i.now().UTC()
	expiresAt = now.Add(i.accessTTL)
	if access, err = i.sign(userID, email, useAccess, now, expiresAt); err != nil {
		return "", "", time.Time{}, err
	}
	if refresh, err = i.sign(userID, email, useRefresh, now, now.Add(i.refreshTTL)); err != nil {
		return "", "", time.Time{}, err
	}
	return access, refresh, expiresAt, nil
}

func (i *TokenIssuer) sign(userID, email, use string, now, exp time.Time) (string, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", err
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			Issuer:    i.issuer,
			Audience:  jwt.ClaimStrings{i.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: email,
		Use:   use,
	}
	return jwt.NewWithClaims(i.key.method, claims).SignedString(i.key.sign)
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
