package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"gym-frontdesk/backend/internal/telemetry/domain"
)

type recordCapture struct {
	records []otellog.Record
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.records = append(r.records, rec)
}

func (r *recordCapture) last(t *testing.T) otellog.Record {
	t.Helper()
	if len(r.records) == 0 {
		t.Fatal("no record emitted")
	}
	return r.records[len(r.records)-1]
}

func attrsOf(rec otellog.Record) map[string]otellog.Value {
	attrs := make(map[string]otellog.Value)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value
		return true
	})
	return attrs
}

func TestNewEventEmitter_NilProviderIsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if err := em.Emit(context.Background(), &domain.Event{Type: domain.TypeShiftStarted}); err != nil {
		t.Errorf("noop Emit: %v", err)
	}
	if NewEventEmitterWithLogger(nil).Emit(context.Background(), nil) != nil {
		t.Error("noop Emit(nil) should return nil")
	}
}

func TestNewEventEmitter_SDKProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(nil): %v", err)
	}
	if err := em.Emit(context.Background(), &domain.Event{Type: domain.TypeSessionPublished}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

func TestEmit_MapsEventOntoRecord(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	err := em.Emit(context.Background(), &domain.Event{
		ID:        "ev-1",
		Type:      domain.TypeDeviceApprovalRequested,
		Source:    "device",
		UserID:    "ana",
		RequestID: 42,
		Metadata:  []byte(`{"reused":true}`),
		CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.last(t)

	if got := string(rec.Body().AsBytes()); got != `{"reused":true}` {
		t.Errorf("body = %q", got)
	}
	if !rec.Timestamp().Equal(created) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), created)
	}
	if rec.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v, want INFO", rec.Severity())
	}
	attrs := attrsOf(rec)
	for k, want := range map[string]string{"event_id": "ev-1", "event_type": domain.TypeDeviceApprovalRequested, "source": "device", "user_id": "ana"} {
		if got := attrs[k].AsString(); got != want {
			t.Errorf("attr %s = %q, want %q", k, got, want)
		}
	}
	if got := attrs["request_id"].AsInt64(); got != 42 {
		t.Errorf("request_id = %d, want 42", got)
	}
	if _, ok := attrs["shift_id"]; ok {
		t.Error("empty shift_id should not be set")
	}
}

func TestEmit_SeverityFollowsEventType(t *testing.T) {
	tests := []struct {
		eventType string
		want      otellog.Severity
	}{
		{domain.TypeSessionForcedSignOut, otellog.SeverityWarn},
		{domain.TypeShiftConflict, otellog.SeverityWarn},
		{domain.TypeLogoutBlocked, otellog.SeverityWarn},
		{domain.TypeDeviceRequestDenied, otellog.SeverityWarn},
		{domain.TypeShiftStarted, otellog.SeverityInfo},
		{domain.TypeDeviceRequestApproved, otellog.SeverityInfo},
	}
	for _, tt := range tests {
		t.Run(tt.eventType, func(t *testing.T) {
			capture := &recordCapture{}
			_ = NewEventEmitterWithLogger(capture).Emit(context.Background(), &domain.Event{Type: tt.eventType})
			rec := capture.last(t)
			if got := rec.Severity(); got != tt.want {
				t.Errorf("severity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEmit_ZeroCreatedAtUsesNow(t *testing.T) {
	capture := &recordCapture{}
	before := time.Now().UTC()
	_ = NewEventEmitterWithLogger(capture).Emit(context.Background(), &domain.Event{Type: "test"})
	rec := capture.last(t)
	ts := rec.Timestamp()
	if ts.Before(before) || ts.After(time.Now().UTC()) {
		t.Errorf("timestamp = %v, want about now", ts)
	}
	if !rec.Body().Empty() {
		t.Error("body should be empty without metadata")
	}
}
