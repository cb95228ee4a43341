package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gym-frontdesk/backend/internal/audit"
	"gym-frontdesk/backend/internal/platform/rbac"
)

// ErrShiftNotOpen is returned when ending a shift that is missing or already ended.
var ErrShiftNotOpen = errors.New("shift is not open")

// ShiftEnder closes shifts.
type ShiftEnder interface {
	EndShift(ctx context.Context, shiftID string, at time.Time) (bool, error)
}

// Closer ends shifts on behalf of an administrator once reconciliation is done.
type Closer struct {
	shifts   ShiftEnder
	profiles rbac.ProfileGetter
	audit    audit.AuditLogger
	now      func() time.Time
}

// NewCloser returns a Closer. auditLogger may be nil.
func NewCloser(shifts ShiftEnder, profiles rbac.ProfileGetter, auditLogger audit.AuditLogger) *Closer {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	return &Closer{shifts: shifts, profiles: profiles, audit: auditLogger, now: func() time.Time { return time.Now().UTC() }}
}

// EndShift closes shiftID. Returns ErrShiftNotOpen if it is missing or already closed.
func (c *Closer) EndShift(ctx context.Context, adminID, shiftID string) error {
	if _, err := rbac.RequireAdmin(ctx, c.profiles, adminID); err != nil {
		return err
	}
	ok, err := c.shifts.EndShift(ctx, shiftID, c.now())
	if err != nil {
		return fmt.Errorf("end shift %s: %w", shiftID, err)
	}
	if !ok {
		return ErrShiftNotOpen
	}
	c.audit.LogEvent(ctx, adminID, audit.ActionShiftEnded, "shift:"+shiftID, "")
	return nil
}
