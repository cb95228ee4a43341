// Package rbac checks staff roles against the profile store.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gym-frontdesk/backend/internal/user/domain"
)

var (
	// ErrUnauthenticated is returned when no caller id is given or the caller has no profile.
	ErrUnauthenticated = errors.New("caller identity required")
	// ErrForbidden is returned when the caller's role is not allowed.
	ErrForbidden = errors.New("caller role not permitted")
)

// ProfileGetter returns a staff profile. Used to resolve the caller role.
type ProfileGetter interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// RequireAdmin ensures userID names an existing profile with role admin.
// Returns the profile on success.
func RequireAdmin(ctx context.Context, getter ProfileGetter, userID string) (*domain.User, error) {
	return RequireRole(ctx, getter, userID, domain.RoleAdmin)
}

// RequireRole ensures userID names an existing profile whose role is one of roles.
func RequireRole(ctx context.Context, getter ProfileGetter, userID string, roles ...domain.Role) (*domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	u, err := getter.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolve caller profile: %w", err)
	}
	if u == nil {
		return nil, ErrUnauthenticated
	}
	for _, r := range roles {
		if u.Role == r {
			return u, nil
		}
	}
	return nil, ErrForbidden
}
