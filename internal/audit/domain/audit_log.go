package domain

import "time"

// AuditLog is one security-relevant action: a device review, a trust bypass, a forced sign-out or
// an administrator ending a shift. Terminal is the fingerprint of the terminal that recorded it.
type AuditLog struct {
	ID        string
	UserID    string
	Action    string
	Resource  string
	Terminal  string
	Metadata  string
	CreatedAt time.Time
}
