package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"gym-frontdesk/backend/internal/db/dbtest"
	"gym-frontdesk/backend/internal/shift/domain"
)

func setup(t *testing.T) *PostgresRepository {
	t.Helper()
	conn, _ := dbtest.Start(t)
	dbtest.Exec(t, conn,
		`INSERT INTO profiles (id, email, display_name, role) VALUES
			('ana', 'ana@gym.test', 'Ana', 'cashier'),
			('bo', 'bo@gym.test', '', 'receptionist')`)
	return NewPostgresRepository(conn)
}

func TestPostgres_StartShiftAttempt(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()

	first, err := repo.StartShiftAttempt(ctx, "ana", "cashier", "10.0.0.5")
	if err != nil {
		t.Fatalf("StartShiftAttempt: %v", err)
	}
	if first.Status != domain.AttemptNewShiftStarted || first.ShiftID == "" || first.CreatedAt == nil {
		t.Fatalf("first attempt = %+v, want new shift", first)
	}

	again, err := repo.StartShiftAttempt(ctx, "ana", "cashier", "10.0.0.6")
	if err != nil {
		t.Fatalf("StartShiftAttempt: %v", err)
	}
	if again.Status != domain.AttemptExistingShiftResumed || again.ShiftID != first.ShiftID {
		t.Errorf("second attempt = %+v, want resume of %s", again, first.ShiftID)
	}

	other, err := repo.StartShiftAttempt(ctx, "bo", "receptionist", "")
	if err != nil {
		t.Fatalf("StartShiftAttempt: %v", err)
	}
	if other.Status != domain.AttemptAnotherCashierActive {
		t.Fatalf("other attempt status = %s, want %s", other.Status, domain.AttemptAnotherCashierActive)
	}
	if other.ActiveCashierName != "Ana" {
		t.Errorf("ActiveCashierName = %q, want Ana", other.ActiveCashierName)
	}
	if other.ActiveCashierIP == nil || *other.ActiveCashierIP != "10.0.0.5" {
		t.Errorf("ActiveCashierIP = %v, want 10.0.0.5", other.ActiveCashierIP)
	}

	res, err := other.Result("bo", "receptionist")
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if res.Kind != domain.StartRejected {
		t.Errorf("Kind = %s, want rejected", res.Kind)
	}
}

func TestPostgres_StartShiftAttempt_RequiresUserAndRole(t *testing.T) {
	repo := setup(t)
	resp, err := repo.StartShiftAttempt(context.Background(), "ana", "", "")
	if err != nil {
		t.Fatalf("StartShiftAttempt: %v", err)
	}
	if resp.Status != domain.AttemptError {
		t.Errorf("Status = %s, want error", resp.Status)
	}
}

func TestPostgres_ConcurrentAttemptsOpenOneShift(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()

	users := []string{"ana", "bo"}
	results := make([]*domain.AttemptResponse, len(users))
	errs := make([]error, len(users))
	var wg sync.WaitGroup
	for i, u := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = repo.StartShiftAttempt(ctx, u, "cashier", "")
		}()
	}
	wg.Wait()

	started := 0
	for i := range users {
		if errs[i] != nil {
			t.Fatalf("attempt %s: %v", users[i], errs[i])
		}
		switch results[i].Status {
		case domain.AttemptNewShiftStarted:
			started++
		case domain.AttemptAnotherCashierActive:
		default:
			t.Errorf("attempt %s status = %s", users[i], results[i].Status)
		}
	}
	if started != 1 {
		t.Errorf("started = %d, want exactly 1", started)
	}
}

func TestPostgres_FindCountEnd(t *testing.T) {
	repo := setup(t)
	ctx := context.Background()

	if s, err := repo.FindOpen(ctx); err != nil || s != nil {
		t.Fatalf("FindOpen on empty table = %v, %v; want nil, nil", s, err)
	}

	resp, err := repo.StartShiftAttempt(ctx, "ana", "cashier", "")
	if err != nil {
		t.Fatalf("StartShiftAttempt: %v", err)
	}
	open, err := repo.FindOpenByUser(ctx, "ana")
	if err != nil || open == nil || open.ID != resp.ShiftID {
		t.Fatalf("FindOpenByUser = %+v, %v; want shift %s", open, err, resp.ShiftID)
	}
	if s, err := repo.FindOpenByUser(ctx, "bo"); err != nil || s != nil {
		t.Errorf("FindOpenByUser(bo) = %v, %v; want nil, nil", s, err)
	}

	n, err := repo.CountPaymentsByShift(ctx, open.ID)
	if err != nil || n != 0 {
		t.Fatalf("CountPaymentsByShift = %d, %v; want 0", n, err)
	}
	dbtest.Exec(t, repo.db, `INSERT INTO payments (shift_id, amount, method) VALUES ('`+open.ID+`', 2500, 'cash')`)
	if n, _ := repo.CountPaymentsByShift(ctx, open.ID); n != 1 {
		t.Errorf("CountPaymentsByShift after payment = %d, want 1", n)
	}

	ended, err := repo.EndShift(ctx, open.ID, time.Now().UTC())
	if err != nil || !ended {
		t.Fatalf("EndShift = %v, %v; want true", ended, err)
	}
	if ended, _ := repo.EndShift(ctx, open.ID, time.Now().UTC()); ended {
		t.Error("second EndShift = true, want false")
	}
	got, err := repo.GetByID(ctx, open.ID)
	if err != nil || got == nil || got.IsOpen() {
		t.Errorf("GetByID after end = %+v, %v; want closed shift", got, err)
	}
}
