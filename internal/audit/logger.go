package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"gym-frontdesk/backend/internal/audit/domain"
	auditrepo "gym-frontdesk/backend/internal/audit/repository"
)

// Audited actions.
const (
	ActionDeviceTrustBypassed = "device_trust_bypassed"
	ActionDeviceApproved      = "device_request_approved"
	ActionDeviceDenied        = "device_request_denied"
	ActionForcedSignOut       = "session_forced_sign_out"
	ActionFingerprintingSet   = "device_fingerprinting_set"
	ActionShiftEnded          = "shift_ended"
)

// writeTimeout bounds one audit insert. Entries outlive the caller's context so that a
// forced sign-out after a timed-out profile fetch is still recorded.
const writeTimeout = 5 * time.Second

// AuditLogger records who did what at the front desk.
type AuditLogger interface {
	LogEvent(ctx context.Context, userID, action, resource, metadata string)
}

// Logger implements AuditLogger using the audit repository.
type Logger struct {
	repo     auditrepo.Repository
	terminal string
}

// NewLogger returns an AuditLogger that persists to repo and stamps each entry with terminal.
// An empty terminal is recorded as "unknown".
func NewLogger(repo auditrepo.Repository, terminal string) *Logger {
	if terminal == "" {
		terminal = "unknown"
	}
	return &Logger{repo: repo, terminal: terminal}
}

// LogEvent writes one entry. Failures are logged, never returned.
func (l *Logger) LogEvent(ctx context.Context, userID, action, resource, metadata string) {
	if l == nil || l.repo == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		UserID:    userID,
		Action:    action,
		Resource:  resource,
		Terminal:  l.terminal,
		Metadata:  metadata,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		log.Printf("audit: %s on %s by %q not recorded: %v", action, resource, userID, err)
	}
}

// Nop discards every event.
type Nop struct{}

func (Nop) LogEvent(context.Context, string, string, string, string) {}
