// Package memory is an in-process implementation of every front-desk repository.
// All views share one mutex, so each operation is atomic the way the Postgres functions are.
// It backs development mode and the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	auditdomain "gym-frontdesk/backend/internal/audit/domain"
	devicedomain "gym-frontdesk/backend/internal/device/domain"
	platformdomain "gym-frontdesk/backend/internal/platformsettings/domain"
	shiftdomain "gym-frontdesk/backend/internal/shift/domain"
	userdomain "gym-frontdesk/backend/internal/user/domain"
)

// Op names an operation that can be made to fail with Fail.
type Op string

const (
	OpGetProfile     Op = "get_profile"
	OpGetSettings    Op = "get_settings"
	OpIsAuthorized   Op = "is_authorized"
	OpCreateRequest  Op = "create_request"
	OpGetRequest     Op = "get_request"
	OpSubscribe      Op = "subscribe"
	OpStartShift     Op = "start_shift"
	OpFindOpenShift  Op = "find_open_shift"
	OpCountPayments  Op = "count_payments"
	OpCreateAuditLog Op = "create_audit_log"
)

type payment struct {
	id      int64
	shiftID string
	amount  int64
	method  string
}

// Store holds all front-desk state in memory.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	users    map[string]*userdomain.User
	settings platformdomain.DeviceTrustSettings

	devices   map[deviceKey]*devicedomain.AuthorizedDevice
	requests  map[int64]*devicedomain.AuthorizationRequest
	nextReqID int64
	subs      map[*subscription]struct{}

	shifts    map[string]*shiftdomain.Shift
	payments  map[int64]*payment
	nextPayID int64

	audit []*auditdomain.AuditLog

	faults map[Op]error
	// attemptHook, when set, replaces the start-attempt response. Used to simulate a broken procedure.
	attemptHook func(*shiftdomain.AttemptResponse) *shiftdomain.AttemptResponse
}

type deviceKey struct{ userID, fingerprint string }

// New returns an empty store with default device trust settings.
func New() *Store {
	return &Store{
		now:      func() time.Time { return time.Now().UTC() },
		users:    make(map[string]*userdomain.User),
		settings: platformdomain.DefaultDeviceTrustSettings(),
		devices:  make(map[deviceKey]*devicedomain.AuthorizedDevice),
		requests: make(map[int64]*devicedomain.AuthorizationRequest),
		subs:     make(map[*subscription]struct{}),
		shifts:   make(map[string]*shiftdomain.Shift),
		payments: make(map[int64]*payment),
		faults:   make(map[Op]error),
	}
}

// SetClock replaces the store's clock.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// Fail makes op return err until Fail(op, nil) is called.
func (s *Store) Fail(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

// SetAttemptHook rewrites every start-attempt response with fn. nil removes the hook.
func (s *Store) SetAttemptHook(fn func(*shiftdomain.AttemptResponse) *shiftdomain.AttemptResponse) {
	s.mu.Lock()
	s.attemptHook = fn
	s.mu.Unlock()
}

// faultLocked returns the injected error for op, or ctx's error. s.mu must be held.
func (s *Store) faultLocked(ctx context.Context, op Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.faults[op]
}

// Users returns the profile repository view.
func (s *Store) Users() *Users { return &Users{s} }

// Settings returns the settings repository view.
func (s *Store) Settings() *Settings { return &Settings{s} }

// Devices returns the device repository view.
func (s *Store) Devices() *Devices { return &Devices{s} }

// Feed returns the change feed view.
func (s *Store) Feed() *Feed { return &Feed{s} }

// Shifts returns the shift repository view.
func (s *Store) Shifts() *Shifts { return &Shifts{s} }

// Audit returns the audit log repository view.
func (s *Store) Audit() *Audit { return &Audit{s} }
