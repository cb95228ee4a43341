package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gym-frontdesk/backend/internal/audit"
	"gym-frontdesk/backend/internal/policy/engine"
	"gym-frontdesk/backend/internal/store/memory"
	"gym-frontdesk/backend/internal/telemetry"
	telemetrydomain "gym-frontdesk/backend/internal/telemetry/domain"
	userdomain "gym-frontdesk/backend/internal/user/domain"
)

type recordingEmitter struct {
	mu     sync.Mutex
	events []*telemetrydomain.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev *telemetrydomain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingEmitter) waitFor(t *testing.T, eventType string) *telemetrydomain.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		for _, ev := range r.events {
			if ev.Type == eventType {
				r.mu.Unlock()
				return ev
			}
		}
		r.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no %s event emitted", eventType)
	return nil
}

func seedStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	ctx := context.Background()
	for _, u := range []*userdomain.User{
		{ID: "admin", Email: "boss@gym.test", Role: userdomain.RoleAdmin},
		{ID: "cashier", Email: "cash@gym.test", Role: userdomain.RoleCashier},
		{ID: "trainer", Email: "coach@gym.test", Role: userdomain.RoleTrainer},
	} {
		if err := s.Users().Upsert(ctx, u); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	return s
}

func newTestGate(s *memory.Store, emitter *recordingEmitter) *Gate {
	// Avoid wrapping a nil *recordingEmitter in a non-nil interface.
	var em telemetry.EventEmitter
	if emitter != nil {
		em = emitter
	}
	return NewGate(s.Devices(), s.Settings(), s.Users(), engine.NewOPAEvaluator(),
		audit.NewLogger(s.Audit(), "desk-1"), em, 10*time.Minute)
}

func TestEvaluate_UnknownDeviceCreatesRequestOnce(t *testing.T) {
	s := seedStore(t)
	em := &recordingEmitter{}
	g := newTestGate(s, em)
	ctx := context.Background()

	d1, err := g.Evaluate(ctx, "cashier", "fp-1", "front desk")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if d1.Trusted || d1.RequestID == 0 || d1.Reused {
		t.Fatalf("first decision = %+v, want new pending request", d1)
	}
	d2, err := g.Evaluate(ctx, "cashier", "fp-1", "front desk")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d2.Reused || d2.RequestID != d1.RequestID {
		t.Fatalf("second decision = %+v, want reuse of %d", d2, d1.RequestID)
	}
	pending, _ := s.Devices().ListPending(ctx)
	if len(pending) != 1 {
		t.Fatalf("pending requests = %d, want 1", len(pending))
	}
	ev := em.waitFor(t, telemetrydomain.TypeDeviceApprovalRequested)
	if ev.RequestID != d1.RequestID {
		t.Errorf("event RequestID = %d, want %d", ev.RequestID, d1.RequestID)
	}
}

func TestEvaluate_AuthorizedDeviceTouchesLastUsed(t *testing.T) {
	s := seedStore(t)
	g := newTestGate(s, nil)
	ctx := context.Background()

	d, _ := g.Evaluate(ctx, "cashier", "fp-1", "")
	req, _ := s.Devices().GetRequest(ctx, d.RequestID)
	if ok, err := s.Devices().Approve(ctx, req, "admin", ""); !ok || err != nil {
		t.Fatalf("Approve = %v, %v", ok, err)
	}

	got, err := g.Evaluate(ctx, "cashier", "fp-1", "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !got.Trusted {
		t.Fatalf("decision = %+v, want trusted", got)
	}
	g.Drain()
	if dev := s.Devices().Device("cashier", "fp-1"); dev == nil || dev.LastUsedAt == nil {
		t.Fatalf("device = %+v, want last_used_at set", dev)
	}
}

func TestEvaluate_RoleNotRequiringFingerprint(t *testing.T) {
	s := seedStore(t)
	g := newTestGate(s, nil)

	d, err := g.Evaluate(context.Background(), "trainer", "", "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Trusted || d.Bypassed {
		t.Fatalf("decision = %+v, want trusted without bypass", d)
	}
}

func TestEvaluate_FingerprintingDisabledBypassesAndAudits(t *testing.T) {
	s := seedStore(t)
	em := &recordingEmitter{}
	g := newTestGate(s, em)
	ctx := context.Background()
	_ = s.Settings().SetFingerprintingEnabled(ctx, false)

	d, err := g.Evaluate(ctx, "cashier", "", "")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !d.Trusted || !d.Bypassed {
		t.Fatalf("decision = %+v, want bypassed", d)
	}
	if got := s.Audit().Actions(); len(got) != 1 || got[0] != audit.ActionDeviceTrustBypassed {
		t.Fatalf("audit actions = %v, want one bypass entry", got)
	}
	em.waitFor(t, telemetrydomain.TypeDeviceTrustBypassed)

	// Refreshes of the same sign-in are not audited again.
	for i := 0; i < 3; i++ {
		if d, err := g.Evaluate(ctx, "cashier", "", ""); err != nil || !d.Bypassed {
			t.Fatalf("repeat Evaluate = %+v, %v; want bypassed", d, err)
		}
	}
	if got := s.Audit().Actions(); len(got) != 1 {
		t.Fatalf("audit actions after repeats = %v, want still one", got)
	}

	if _, err := g.Evaluate(ctx, "trainer", "", ""); err != nil {
		t.Fatalf("Evaluate(trainer): %v", err)
	}
	if got := s.Audit().Actions(); len(got) != 2 {
		t.Fatalf("audit actions after another user = %v, want two", got)
	}

	// Turning fingerprinting back on ends the run.
	_ = s.Settings().SetFingerprintingEnabled(ctx, true)
	if _, err := g.Evaluate(ctx, "trainer", "", ""); err != nil {
		t.Fatalf("Evaluate with fingerprinting on: %v", err)
	}
	_ = s.Settings().SetFingerprintingEnabled(ctx, false)
	if _, err := g.Evaluate(ctx, "trainer", "", ""); err != nil {
		t.Fatalf("Evaluate(trainer) after re-disable: %v", err)
	}
	if got := s.Audit().Actions(); len(got) != 3 {
		t.Fatalf("audit actions after re-disable = %v, want three", got)
	}
}

func TestEvaluate_FailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		user    string
		fp      string
		op      memory.Op
		wantErr error
	}{
		{name: "settings unreadable", user: "cashier", fp: "fp", op: memory.OpGetSettings},
		{name: "profile unreadable", user: "cashier", fp: "fp", op: memory.OpGetProfile},
		{name: "device lookup fails", user: "cashier", fp: "fp", op: memory.OpIsAuthorized},
		{name: "request insert fails", user: "cashier", fp: "fp", op: memory.OpCreateRequest},
		{name: "unknown user", user: "ghost", fp: "fp", wantErr: ErrUnknownUser},
		{name: "missing fingerprint", user: "cashier", fp: "  ", wantErr: ErrMissingFingerprint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := seedStore(t)
			boom := errors.New("store unavailable")
			if tt.op != "" {
				s.Fail(tt.op, boom)
				tt.wantErr = boom
			}
			d, err := newTestGate(s, nil).Evaluate(context.Background(), tt.user, tt.fp, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if d.Trusted {
				t.Fatal("failed evaluation must not be trusted")
			}
		})
	}
}

func TestEvaluate_PolicyErrorFailsClosed(t *testing.T) {
	s := seedStore(t)
	g := NewGate(s.Devices(), s.Settings(), s.Users(), engine.NewOPAEvaluatorWithModule("package broken\nnot rego"),
		nil, nil, time.Minute)
	d, err := g.Evaluate(context.Background(), "cashier", "fp", "")
	if err == nil || d.Trusted {
		t.Fatalf("decision = %+v, err = %v; want error", d, err)
	}
}
