package service

import (
	"context"
	"errors"
	"testing"

	"gym-frontdesk/backend/internal/shift/domain"
	"gym-frontdesk/backend/internal/store/memory"
)

func TestCanLogout_NoOpenShift(t *testing.T) {
	s := newStore(t)
	d := NewGuard(s.Shifts(), nil, nil).CanLogout(context.Background(), "ana")
	if !d.Allowed || d.Err != nil {
		t.Fatalf("decision = %+v, want Allowed", d)
	}
}

func TestCanLogout_UnsettledPaymentsThenSettled(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	res, err := NewController(s.Shifts(), nil, nil).AttemptStart(ctx, "ana", "cashier", "")
	if err != nil {
		t.Fatalf("AttemptStart: %v", err)
	}
	g := NewGuard(s.Shifts(), nil, nil)

	if d := g.CanLogout(ctx, "ana"); !d.Allowed || d.ShiftID != res.Shift.ID {
		t.Fatalf("empty shift decision = %+v, want Allowed", d)
	}

	pay := s.Shifts().AddPayment(res.Shift.ID, 2500, "cash")
	d := g.CanLogout(ctx, "ana")
	if d.Allowed || d.Reason != domain.ReasonUnsettledPayments || d.Payments != 1 || d.Err != nil {
		t.Fatalf("decision = %+v, want Blocked(unsettled payments)", d)
	}

	// Another user's logout is unaffected by ana's shift.
	if d := g.CanLogout(ctx, "bo"); !d.Allowed {
		t.Fatalf("bo decision = %+v, want Allowed", d)
	}

	s.Shifts().RemovePayment(pay)
	if d := g.CanLogout(ctx, "ana"); !d.Allowed {
		t.Fatalf("after settling decision = %+v, want Allowed", d)
	}
}

func TestCanLogout_FailsClosed(t *testing.T) {
	for _, op := range []memory.Op{memory.OpFindOpenShift, memory.OpCountPayments} {
		t.Run(string(op), func(t *testing.T) {
			s := newStore(t)
			ctx := context.Background()
			_, _ = NewController(s.Shifts(), nil, nil).AttemptStart(ctx, "ana", "cashier", "")
			boom := errors.New("store down")
			s.Fail(op, boom)

			d := NewGuard(s.Shifts(), nil, nil).CanLogout(ctx, "ana")
			if d.Allowed {
				t.Fatal("guard allowed logout on store failure")
			}
			if d.Reason != domain.ReasonGuardError || !errors.Is(d.Err, boom) {
				t.Fatalf("decision = %+v, want guard error wrapping boom", d)
			}
		})
	}
}
