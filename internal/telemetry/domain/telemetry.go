package domain

import (
	"encoding/json"
	"time"
)

// Event types emitted by the front desk.
const (
	TypeSessionPublished        = "session_published"
	TypeSessionForcedSignOut    = "session_forced_sign_out"
	TypeAuthEventDropped        = "auth_event_dropped"
	TypeDeviceApprovalRequested = "device_approval_requested"
	TypeDeviceTrustBypassed     = "device_trust_bypassed"
	TypeDeviceRequestApproved   = "device_request_approved"
	TypeDeviceRequestDenied     = "device_request_denied"
	TypeShiftStarted            = "shift_started"
	TypeShiftResumed            = "shift_resumed"
	TypeShiftConflict           = "shift_conflict"
	TypeLogoutBlocked           = "logout_blocked"
)

// Event is one business telemetry event. The JSON form is what the Kafka sink writes and the worker reads.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"eventType"`
	Source    string          `json:"source"`
	UserID    string          `json:"userId,omitempty"`
	ShiftID   string          `json:"shiftId,omitempty"`
	RequestID int64           `json:"requestId,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NeedsAttention reports whether events of eventType point at something an operator or
// administrator should look at: a forced sign-out, a shift conflict, a blocked logout or a denial.
func NeedsAttention(eventType string) bool {
	switch eventType {
	case TypeSessionForcedSignOut, TypeShiftConflict, TypeLogoutBlocked, TypeDeviceRequestDenied:
		return true
	}
	return false
}
