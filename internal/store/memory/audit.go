package memory

import (
	"context"

	"gym-frontdesk/backend/internal/audit/domain"
)

// Audit implements the audit log repository.
type Audit struct{ s *Store }

func (a *Audit) Create(ctx context.Context, entry *domain.AuditLog) error {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if err := a.s.faultLocked(ctx, OpCreateAuditLog); err != nil {
		return err
	}
	c := *entry
	a.s.audit = append(a.s.audit, &c)
	return nil
}

func (a *Audit) ListRecent(ctx context.Context, limit int) ([]*domain.AuditLog, error) {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([]*domain.AuditLog, 0, min(limit, len(a.s.audit)))
	for i := len(a.s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		c := *a.s.audit[i]
		out = append(out, &c)
	}
	return out, nil
}

// Actions returns the action of every entry, oldest first.
func (a *Audit) Actions() []string {
	a.s.mu.Lock()
	defer a.s.mu.Unlock()
	out := make([]string, len(a.s.audit))
	for i, e := range a.s.audit {
		out[i] = e.Action
	}
	return out
}
