package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"gym-frontdesk/backend/internal/shift/domain"
	"gym-frontdesk/backend/internal/shift/repository"
	"gym-frontdesk/backend/internal/telemetry"
	telemetrydomain "gym-frontdesk/backend/internal/telemetry/domain"
)

var tracer = otel.Tracer("gym-frontdesk/shift")

// Controller resolves "start working" into Started, Resumed or Rejected.
type Controller struct {
	shifts  repository.Repository
	emitter telemetry.EventEmitter
	metrics *telemetry.Metrics
}

// NewController returns a Controller. emitter and metrics may be nil.
func NewController(shifts repository.Repository, emitter telemetry.EventEmitter, metrics *telemetry.Metrics) *Controller {
	return &Controller{shifts: shifts, emitter: emitter, metrics: metrics}
}

// AttemptStart runs the atomic start-attempt procedure for userID. A user who already owns the open
// shift always gets Resumed with the same shift. Store failures and malformed results wrap
// domain.ErrShiftDetermination; the caller is never granted a shift in that case.
func (c *Controller) AttemptStart(ctx context.Context, userID, role, ipAddress string) (domain.StartResult, error) {
	ctx, span := tracer.Start(ctx, "shift.attempt_start")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID), attribute.String("user.role", role))

	resp, err := c.shifts.StartShiftAttempt(ctx, userID, role, ipAddress)
	if err != nil {
		err = fmt.Errorf("%w: %v", domain.ErrShiftDetermination, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.StartResult{}, err
	}
	res, err := resp.Result(userID, role)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return domain.StartResult{}, err
	}
	span.SetAttributes(attribute.String("shift.outcome", res.Kind.String()))

	switch res.Kind {
	case domain.StartStarted:
		c.emit(telemetrydomain.TypeShiftStarted, userID, res.Shift.ID, map[string]any{"ip_address": ipAddress})
	case domain.StartResumed:
		c.emit(telemetrydomain.TypeShiftResumed, userID, res.Shift.ID, nil)
	case domain.StartRejected:
		c.metrics.ShiftConflict(ctx)
		c.emit(telemetrydomain.TypeShiftConflict, userID, "", map[string]any{
			"active_cashier_name":     res.Conflict.ActiveCashierName,
			"active_shift_started_at": res.Conflict.ActiveShiftStartedAt,
		})
	}
	return res, nil
}

func (c *Controller) emit(eventType, userID, shiftID string, metadata map[string]any) {
	if c.emitter == nil {
		return
	}
	ev := telemetry.NewEvent(eventType, "shift", userID, metadata)
	ev.ShiftID = shiftID
	telemetry.EmitAsync(c.emitter, ev)
}
