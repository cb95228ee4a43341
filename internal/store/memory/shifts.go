package memory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"gym-frontdesk/backend/internal/shift/domain"
)

// Shifts implements the shift repository and records payments against shifts.
type Shifts struct{ s *Store }

// StartShiftAttempt resumes the caller's open shift, rejects when another user holds one,
// or opens a new shift. The whole decision runs under the store lock.
func (sh *Shifts) StartShiftAttempt(ctx context.Context, userID, role, ipAddress string) (*domain.AttemptResponse, error) {
	sh.s.mu.Lock()
	defer sh.s.mu.Unlock()
	if err := sh.s.faultLocked(ctx, OpStartShift); err != nil {
		return nil, err
	}
	resp := sh.s.attemptLocked(userID, role, ipAddress)
	if sh.s.attemptHook != nil {
		resp = sh.s.attemptHook(resp)
	}
	return resp, nil
}

func (s *Store) attemptLocked(userID, role, ip string) *domain.AttemptResponse {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(role) == "" {
		return &domain.AttemptResponse{Status: domain.AttemptError, Message: "user_id and user_role are required"}
	}
	if open := s.openShiftLocked(); open != nil {
		created := open.CreatedAt
		if open.UserID == userID {
			return &domain.AttemptResponse{
				Status:    domain.AttemptExistingShiftResumed,
				ShiftID:   open.ID,
				CreatedAt: &created,
				IPAddress: open.IPAddress,
			}
		}
		resp := &domain.AttemptResponse{
			Status:               domain.AttemptAnotherCashierActive,
			ActiveCashierName:    s.displayNameLocked(open.UserID),
			ActiveShiftCreatedAt: &created,
		}
		if open.IPAddress != "" {
			ip := open.IPAddress
			resp.ActiveCashierIP = &ip
		}
		return resp
	}

	created := s.now()
	sh := &domain.Shift{
		ID:        uuid.New().String(),
		UserID:    userID,
		UserRole:  role,
		CreatedAt: created,
		IPAddress: ip,
	}
	s.shifts[sh.ID] = sh
	return &domain.AttemptResponse{
		Status:    domain.AttemptNewShiftStarted,
		ShiftID:   sh.ID,
		CreatedAt: &created,
		IPAddress: ip,
	}
}

func (s *Store) openShiftLocked() *domain.Shift {
	for _, sh := range s.shifts {
		if sh.IsOpen() {
			return sh
		}
	}
	return nil
}

func (s *Store) displayNameLocked(userID string) string {
	if u, ok := s.users[userID]; ok {
		return u.DisplayIdentity()
	}
	return userID
}

func (sh *Shifts) GetByID(ctx context.Context, id string) (*domain.Shift, error) {
	sh.s.mu.Lock()
	defer sh.s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return cloneShift(sh.s.shifts[id]), nil
}

func (sh *Shifts) FindOpenByUser(ctx context.Context, userID string) (*domain.Shift, error) {
	sh.s.mu.Lock()
	defer sh.s.mu.Unlock()
	if err := sh.s.faultLocked(ctx, OpFindOpenShift); err != nil {
		return nil, err
	}
	if open := sh.s.openShiftLocked(); open != nil && open.UserID == userID {
		return cloneShift(open), nil
	}
	return nil, nil
}

func (sh *Shifts) FindOpen(ctx context.Context) (*domain.Shift, error) {
	sh.s.mu.Lock()
	defer sh.s.mu.Unlock()
	if err := sh.s.faultLocked(ctx, OpFindOpenShift); err != nil {
		return nil, err
	}
	return cloneShift(sh.s.openShiftLocked()), nil
}

func (sh *Shifts) CountPaymentsByShift(ctx context.Context, shiftID string) (int, error) {
	sh.s.mu.Lock()
	defer sh.s.mu.Unlock()
	if err := sh.s.faultLocked(ctx, OpCountPayments); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range sh.s.payments {
		if p.shiftID == shiftID {
			n++
		}
	}
	return n, nil
}

func (sh *Shifts) EndShift(ctx context.Context, shiftID string, at time.Time) (bool, error) {
	sh.s.mu.Lock()
	defer sh.s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s, ok := sh.s.shifts[shiftID]
	if !ok || !s.IsOpen() {
		return false, nil
	}
	t := at
	s.EndedAt = &t
	return true, nil
}

// AddPayment records a payment against shiftID and returns its id.
func (sh *Shifts) AddPayment(shiftID string, amount int64, method string) int64 {
	sh.s.mu.Lock()
	defer sh.s.mu.Unlock()
	sh.s.nextPayID++
	sh.s.payments[sh.s.nextPayID] = &payment{id: sh.s.nextPayID, shiftID: shiftID, amount: amount, method: method}
	return sh.s.nextPayID
}

// RemovePayment deletes a payment. Unknown ids are ignored.
func (sh *Shifts) RemovePayment(id int64) {
	sh.s.mu.Lock()
	defer sh.s.mu.Unlock()
	delete(sh.s.payments, id)
}

func cloneShift(s *domain.Shift) *domain.Shift {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndedAt != nil {
		t := *s.EndedAt
		c.EndedAt = &t
	}
	return &c
}
