package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrShiftDetermination is returned when the shift state cannot be proven. The caller must not proceed
// to cash-handling work.
var ErrShiftDetermination = errors.New("shift state could not be determined")

// Shift is one operator's accountability period at the cash drawer. Amounts are in minor currency units.
type Shift struct {
	ID                     string
	UserID                 string
	UserRole               string
	CreatedAt              time.Time
	EndedAt                *time.Time
	IPAddress              string
	CashCollection         int64
	QRCollection           int64
	BankTransferCollection int64
	SystemCash             int64
	SystemQR               int64
	SystemBankTransfer     int64
	CashVariance           int64
	QRVariance             int64
	BankTransferVariance   int64
}

// IsOpen reports whether the shift has not ended.
func (s *Shift) IsOpen() bool {
	return s != nil && s.EndedAt == nil
}

// ConflictInfo describes the open shift that blocked a start attempt. Not persisted.
type ConflictInfo struct {
	ActiveCashierName    string
	ActiveShiftStartedAt time.Time
	ActiveCashierIP      string
}

// StartKind is the outcome of a start attempt.
type StartKind int

const (
	StartStarted StartKind = iota + 1
	StartResumed
	StartRejected
)

func (k StartKind) String() string {
	switch k {
	case StartStarted:
		return "started"
	case StartResumed:
		return "resumed"
	case StartRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// StartResult is Started(shift), Resumed(shift) or Rejected(conflict).
type StartResult struct {
	Kind     StartKind
	Shift    *Shift
	Conflict *ConflictInfo
}

// AttemptStatus is the status field of the start-attempt procedure result.
type AttemptStatus string

const (
	AttemptNewShiftStarted      AttemptStatus = "new_shift_started"
	AttemptExistingShiftResumed AttemptStatus = "existing_shift_resumed"
	AttemptAnotherCashierActive AttemptStatus = "another_cashier_active"
	AttemptError                AttemptStatus = "error"
)

// AttemptResponse is the JSON document returned by handle_start_shift_attempt.
type AttemptResponse struct {
	Status               AttemptStatus `json:"status"`
	ShiftID              string        `json:"shift_id,omitempty"`
	CreatedAt            *time.Time    `json:"created_at,omitempty"`
	IPAddress            string        `json:"ip_address,omitempty"`
	ActiveCashierName    string        `json:"active_cashier_name,omitempty"`
	ActiveShiftCreatedAt *time.Time    `json:"active_shift_created_at,omitempty"`
	ActiveCashierIP      *string       `json:"active_cashier_ip,omitempty"`
	Message              string        `json:"message,omitempty"`
}

// Result converts the procedure response into a StartResult for userID. Error statuses, unknown
// statuses and incomplete documents all wrap ErrShiftDetermination.
func (r *AttemptResponse) Result(userID, role string) (StartResult, error) {
	if r == nil {
		return StartResult{}, fmt.Errorf("%w: empty response", ErrShiftDetermination)
	}
	switch r.Status {
	case AttemptNewShiftStarted, AttemptExistingShiftResumed:
		if strings.TrimSpace(r.ShiftID) == "" || r.CreatedAt == nil {
			return StartResult{}, fmt.Errorf("%w: %s without shift", ErrShiftDetermination, r.Status)
		}
		kind := StartStarted
		if r.Status == AttemptExistingShiftResumed {
			kind = StartResumed
		}
		return StartResult{Kind: kind, Shift: &Shift{
			ID:        r.ShiftID,
			UserID:    userID,
			UserRole:  role,
			CreatedAt: *r.CreatedAt,
			IPAddress: r.IPAddress,
		}}, nil
	case AttemptAnotherCashierActive:
		if r.ActiveShiftCreatedAt == nil {
			return StartResult{}, fmt.Errorf("%w: conflict without shift start time", ErrShiftDetermination)
		}
		c := &ConflictInfo{ActiveCashierName: r.ActiveCashierName, ActiveShiftStartedAt: *r.ActiveShiftCreatedAt}
		if r.ActiveCashierIP != nil {
			c.ActiveCashierIP = *r.ActiveCashierIP
		}
		return StartResult{Kind: StartRejected, Conflict: c}, nil
	case AttemptError:
		msg := r.Message
		if msg == "" {
			msg = "procedure reported an error"
		}
		return StartResult{}, fmt.Errorf("%w: %s", ErrShiftDetermination, msg)
	default:
		return StartResult{}, fmt.Errorf("%w: unknown status %q", ErrShiftDetermination, r.Status)
	}
}

// Logout guard reasons.
const (
	ReasonUnsettledPayments = "open shift has unsettled payments; settle the shift before signing out"
	ReasonGuardError        = "could not verify the open shift; settle the shift before signing out"
)

// LogoutDecision is Allowed or Blocked(Reason). A blocked decision sends the operator to end-of-shift
// reconciliation instead of signing out.
type LogoutDecision struct {
	Allowed bool
	Reason  string
	// ShiftID is the open shift that was checked, if any.
	ShiftID string
	// Payments is the number of payments referencing ShiftID.
	Payments int
	// Err is the failure that caused a fail-closed block.
	Err error
}
