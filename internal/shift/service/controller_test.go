package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"gym-frontdesk/backend/internal/shift/domain"
	"gym-frontdesk/backend/internal/store/memory"
	userdomain "gym-frontdesk/backend/internal/user/domain"
)

func newStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New()
	for _, u := range []*userdomain.User{
		{ID: "ana", DisplayName: "Ana", Role: userdomain.RoleCashier},
		{ID: "bo", Email: "bo@gym.test", Role: userdomain.RoleCashier},
		{ID: "admin", Role: userdomain.RoleAdmin},
	} {
		if err := s.Users().Upsert(context.Background(), u); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}
	return s
}

func TestAttemptStart_StartResumeReject(t *testing.T) {
	s := newStore(t)
	c := NewController(s.Shifts(), nil, nil)
	ctx := context.Background()

	first, err := c.AttemptStart(ctx, "ana", "cashier", "10.0.0.5")
	if err != nil {
		t.Fatalf("AttemptStart: %v", err)
	}
	if first.Kind != domain.StartStarted || first.Shift == nil {
		t.Fatalf("first = %+v, want Started", first)
	}

	again, err := c.AttemptStart(ctx, "ana", "cashier", "10.0.0.6")
	if err != nil {
		t.Fatalf("AttemptStart: %v", err)
	}
	if again.Kind != domain.StartResumed || again.Shift.ID != first.Shift.ID {
		t.Fatalf("again = %+v, want Resumed(%s)", again, first.Shift.ID)
	}
	if again.Shift.IPAddress != "10.0.0.5" {
		t.Errorf("resumed IPAddress = %q, want the original", again.Shift.IPAddress)
	}

	other, err := c.AttemptStart(ctx, "bo", "cashier", "10.0.0.7")
	if err != nil {
		t.Fatalf("AttemptStart: %v", err)
	}
	if other.Kind != domain.StartRejected || other.Conflict == nil {
		t.Fatalf("other = %+v, want Rejected", other)
	}
	if other.Conflict.ActiveCashierName != "Ana" || other.Conflict.ActiveCashierIP != "10.0.0.5" {
		t.Errorf("conflict = %+v", other.Conflict)
	}
	if !other.Conflict.ActiveShiftStartedAt.Equal(first.Shift.CreatedAt) {
		t.Errorf("conflict start = %v, want %v", other.Conflict.ActiveShiftStartedAt, first.Shift.CreatedAt)
	}
}

func TestAttemptStart_ConcurrentUsersOneWinner(t *testing.T) {
	s := newStore(t)
	c := NewController(s.Shifts(), nil, nil)

	users := []string{"ana", "bo", "ana", "bo", "ana", "bo"}
	results := make([]domain.StartResult, len(users))
	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			results[i], errs[i] = c.AttemptStart(context.Background(), u, "cashier", "")
		}(i, u)
	}
	wg.Wait()

	var started int
	var winner string
	for i, r := range results {
		if errs[i] != nil {
			t.Fatalf("AttemptStart: %v", errs[i])
		}
		if r.Kind == domain.StartStarted {
			started++
			winner = users[i]
		}
	}
	if started != 1 {
		t.Fatalf("started = %d, want 1", started)
	}
	for i, r := range results {
		if users[i] == winner && r.Kind == domain.StartRejected {
			t.Errorf("winner %s was rejected", winner)
		}
		if users[i] != winner && r.Kind != domain.StartRejected {
			t.Errorf("loser %s got %s", users[i], r.Kind)
		}
	}
}

func TestAttemptStart_DeterminationErrors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*memory.Store)
	}{
		{"store failure", func(s *memory.Store) { s.Fail(memory.OpStartShift, errors.New("connection reset")) }},
		{"procedure error", func(s *memory.Store) {
			s.SetAttemptHook(func(*domain.AttemptResponse) *domain.AttemptResponse {
				return &domain.AttemptResponse{Status: domain.AttemptError, Message: "boom"}
			})
		}},
		{"unknown status", func(s *memory.Store) {
			s.SetAttemptHook(func(*domain.AttemptResponse) *domain.AttemptResponse {
				return &domain.AttemptResponse{Status: "maybe"}
			})
		}},
		{"started without shift id", func(s *memory.Store) {
			s.SetAttemptHook(func(r *domain.AttemptResponse) *domain.AttemptResponse {
				r.ShiftID = ""
				return r
			})
		}},
		{"nil response", func(s *memory.Store) {
			s.SetAttemptHook(func(*domain.AttemptResponse) *domain.AttemptResponse { return nil })
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			tt.setup(s)
			res, err := NewController(s.Shifts(), nil, nil).AttemptStart(context.Background(), "ana", "cashier", "")
			if !errors.Is(err, domain.ErrShiftDetermination) {
				t.Fatalf("err = %v, want ErrShiftDetermination", err)
			}
			if res.Shift != nil {
				t.Errorf("result carries shift %+v on error", res.Shift)
			}
		})
	}
}

func TestCloser_EndShift(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	res, _ := NewController(s.Shifts(), nil, nil).AttemptStart(ctx, "ana", "cashier", "")
	closer := NewCloser(s.Shifts(), s.Users(), nil)

	if err := closer.EndShift(ctx, "bo", res.Shift.ID); err == nil {
		t.Fatal("non-admin ended a shift")
	}
	if err := closer.EndShift(ctx, "admin", res.Shift.ID); err != nil {
		t.Fatalf("EndShift: %v", err)
	}
	if err := closer.EndShift(ctx, "admin", res.Shift.ID); !errors.Is(err, ErrShiftNotOpen) {
		t.Fatalf("second EndShift err = %v, want ErrShiftNotOpen", err)
	}

	next, err := NewController(s.Shifts(), nil, nil).AttemptStart(ctx, "bo", "cashier", "")
	if err != nil || next.Kind != domain.StartStarted {
		t.Fatalf("after end: %+v, %v; want Started for bo", next, err)
	}
}
