package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"gym-frontdesk/backend/internal/telemetry/domain"
)

// EventEmitter emits telemetry events (e.g. to OTel Logs or Kafka). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// NewEvent returns an event with a fresh id and the current time. metadata may be nil;
// values that cannot be marshaled are dropped.
func NewEvent(eventType, source, userID string, metadata map[string]any) *domain.Event {
	ev := &domain.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Source:    source,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	}
	if len(metadata) > 0 {
		if b, err := json.Marshal(metadata); err == nil {
			ev.Metadata = b
		}
	}
	return ev
}

// Multi fans an event out to every non-nil emitter. All emitters are called; their errors are joined.
type Multi []EventEmitter

func (m Multi) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
