package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"gym-frontdesk/backend/internal/telemetry"
	"gym-frontdesk/backend/internal/telemetry/domain"
)

const loggerName = "gym-frontdesk.telemetry"

// RecordEmitter is the part of otellog.Logger the adapter needs.
type RecordEmitter interface {
	Emit(ctx context.Context, record otellog.Record)
}

// NewEventEmitter returns an EventEmitter writing OTel log records through provider.
// A nil provider yields a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &recordEmitter{logger: provider.Logger(loggerName)}
}

// NewEventEmitterWithLogger returns an EventEmitter writing to logger.
func NewEventEmitterWithLogger(logger RecordEmitter) telemetry.EventEmitter {
	if logger == nil {
		return noopEmitter{}
	}
	return &recordEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.Event) error { return nil }

type recordEmitter struct {
	logger RecordEmitter
}

func (e *recordEmitter) Emit(ctx context.Context, event *domain.Event) error {
	if event != nil {
		e.logger.Emit(ctx, toRecord(event))
	}
	return nil
}

// toRecord maps an event onto a log record: metadata is the body, identifiers are attributes and
// events that need attention are logged at WARN.
func toRecord(event *domain.Event) otellog.Record {
	var rec otellog.Record
	ts := event.CreatedAt
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.SetTimestamp(ts)
	rec.SetObservedTimestamp(time.Now().UTC())
	if domain.NeedsAttention(event.Type) {
		rec.SetSeverity(otellog.SeverityWarn)
		rec.SetSeverityText("WARN")
	} else {
		rec.SetSeverity(otellog.SeverityInfo)
		rec.SetSeverityText("INFO")
	}
	if len(event.Metadata) > 0 {
		rec.SetBody(otellog.BytesValue(event.Metadata))
	}

	attrs := make([]otellog.KeyValue, 0, 6)
	for _, kv := range []struct{ key, value string }{
		{"event_id", event.ID},
		{"event_type", event.Type},
		{"source", event.Source},
		{"user_id", event.UserID},
		{"shift_id", event.ShiftID},
	} {
		if kv.value != "" {
			attrs = append(attrs, otellog.String(kv.key, kv.value))
		}
	}
	if event.RequestID != 0 {
		attrs = append(attrs, otellog.Int64("request_id", event.RequestID))
	}
	rec.AddAttributes(attrs...)
	return rec
}
