package domain

import (
	"errors"
	"strings"
	"time"
)

// Role is a staff role as stored on the profile row.
type Role string

const (
	RoleAdmin        Role = "admin"
	RoleCashier      Role = "cashier"
	RoleReceptionist Role = "receptionist"
	RoleTrainer      Role = "trainer"
)

// User is the staff profile of an authenticated operator.
type User struct {
	ID          string
	Email       string
	DisplayName string
	Role        Role
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// DisplayIdentity returns the name shown to other operators: display name, then email, then id.
func (u *User) DisplayIdentity() string {
	if u == nil {
		return ""
	}
	if s := strings.TrimSpace(u.DisplayName); s != "" {
		return s
	}
	if s := strings.TrimSpace(u.Email); s != "" {
		return s
	}
	return u.ID
}

// IsAdmin reports whether the user may review device requests.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("id is required")
	}
	if strings.TrimSpace(string(u.Role)) == "" {
		return errors.New("role is required")
	}
	return nil
}
