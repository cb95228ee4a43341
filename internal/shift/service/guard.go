package service

import (
	"context"
	"fmt"
	"log"

	"go.opentelemetry.io/otel/attribute"

	"gym-frontdesk/backend/internal/shift/domain"
	"gym-frontdesk/backend/internal/telemetry"
	telemetrydomain "gym-frontdesk/backend/internal/telemetry/domain"
)

// OpenShiftCounter is the part of the shift repository the guard reads.
type OpenShiftCounter interface {
	FindOpenByUser(ctx context.Context, userID string) (*domain.Shift, error)
	CountPaymentsByShift(ctx context.Context, shiftID string) (int, error)
}

// Guard blocks sign-out while the caller's open shift has payments to settle.
type Guard struct {
	shifts  OpenShiftCounter
	emitter telemetry.EventEmitter
	metrics *telemetry.Metrics
}

// NewGuard returns a Guard. emitter and metrics may be nil.
func NewGuard(shifts OpenShiftCounter, emitter telemetry.EventEmitter, metrics *telemetry.Metrics) *Guard {
	return &Guard{shifts: shifts, emitter: emitter, metrics: metrics}
}

// CanLogout returns Allowed when userID has no open shift or its open shift has no payments.
// Any error resolves to Blocked.
//
// The check is not atomic with the sign-out that follows: a payment recorded in between is not seen.
func (g *Guard) CanLogout(ctx context.Context, userID string) domain.LogoutDecision {
	ctx, span := tracer.Start(ctx, "shift.can_logout")
	defer span.End()

	d := g.decide(ctx, userID)
	span.SetAttributes(attribute.Bool("logout.allowed", d.Allowed), attribute.Int("logout.payments", d.Payments))
	if d.Err != nil {
		span.RecordError(d.Err)
	}
	if !d.Allowed {
		g.metrics.LogoutBlocked(ctx, d.Err != nil)
		if g.emitter != nil {
			ev := telemetry.NewEvent(telemetrydomain.TypeLogoutBlocked, "shift", userID, map[string]any{
				"payments": d.Payments,
				"reason":   d.Reason,
			})
			ev.ShiftID = d.ShiftID
			telemetry.EmitAsync(g.emitter, ev)
		}
	}
	return d
}

func (g *Guard) decide(ctx context.Context, userID string) domain.LogoutDecision {
	open, err := g.shifts.FindOpenByUser(ctx, userID)
	if err != nil {
		log.Printf("shift: logout guard: find open shift for %s: %v", userID, err)
		return blocked("", fmt.Errorf("find open shift: %w", err))
	}
	if open == nil {
		return domain.LogoutDecision{Allowed: true}
	}
	n, err := g.shifts.CountPaymentsByShift(ctx, open.ID)
	if err != nil {
		log.Printf("shift: logout guard: count payments for shift %s: %v", open.ID, err)
		return blocked(open.ID, fmt.Errorf("count payments: %w", err))
	}
	if n > 0 {
		return domain.LogoutDecision{Reason: domain.ReasonUnsettledPayments, ShiftID: open.ID, Payments: n}
	}
	return domain.LogoutDecision{Allowed: true, ShiftID: open.ID}
}

func blocked(shiftID string, err error) domain.LogoutDecision {
	return domain.LogoutDecision{Reason: domain.ReasonGuardError, ShiftID: shiftID, Err: err}
}
