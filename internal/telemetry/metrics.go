package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "gym-frontdesk"

// Metrics holds the coordinator's counters. A nil *Metrics records nothing.
type Metrics struct {
	authEventsDropped metric.Int64Counter
	shiftConflicts    metric.Int64Counter
	logoutBlocked     metric.Int64Counter
}

// NewMetrics registers the counters on meter. If meter is nil the global MeterProvider is used.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}
	dropped, err := meter.Int64Counter("frontdesk.auth_events.dropped",
		metric.WithDescription("Auth events dropped by the single-flight guard"))
	if err != nil {
		return nil, err
	}
	conflicts, err := meter.Int64Counter("frontdesk.shift.conflicts",
		metric.WithDescription("Shift start attempts rejected because another operator holds the open shift"))
	if err != nil {
		return nil, err
	}
	blocked, err := meter.Int64Counter("frontdesk.logout.blocked",
		metric.WithDescription("Logouts blocked by the logout guard"))
	if err != nil {
		return nil, err
	}
	return &Metrics{authEventsDropped: dropped, shiftConflicts: conflicts, logoutBlocked: blocked}, nil
}

// AuthEventDropped counts one dropped event of the given type.
func (m *Metrics) AuthEventDropped(ctx context.Context, eventType string) {
	if m == nil {
		return
	}
	m.authEventsDropped.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

// ShiftConflict counts one rejected shift start.
func (m *Metrics) ShiftConflict(ctx context.Context) {
	if m == nil {
		return
	}
	m.shiftConflicts.Add(ctx, 1)
}

// LogoutBlocked counts one blocked logout. failed marks blocks caused by a guard error.
func (m *Metrics) LogoutBlocked(ctx context.Context, failed bool) {
	if m == nil {
		return
	}
	m.logoutBlocked.Add(ctx, 1, metric.WithAttributes(attribute.Bool("guard_error", failed)))
}
