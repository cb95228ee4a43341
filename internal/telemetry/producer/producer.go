// Package producer publishes front-desk telemetry events to a message broker for the relay worker.
package producer

import (
	"context"

	"gym-frontdesk/backend/internal/telemetry/domain"
)

// Producer is a broker-backed telemetry sink. It satisfies telemetry.EventEmitter.
type Producer interface {
	Emit(ctx context.Context, event *domain.Event) error
	Close() error
}
