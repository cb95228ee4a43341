package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"gym-frontdesk/backend/internal/telemetry/domain"
)

// emitTimeout bounds one background emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is the longest Drain needs to wait: every background emit finishes or
// times out within it.
const ShutdownDrainDuration = emitTimeout

var inflight sync.WaitGroup

// EmitAsync emits event on a goroutine detached from the caller's context, bounded by emitTimeout.
// Failures are logged. A nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, event *domain.Event) {
	if emitter == nil || event == nil {
		return
	}
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(ctx, event); err != nil {
			log.Printf("telemetry: emit %s: %v", event.Type, err)
		}
	}()
}

// Drain waits until background emits started by EmitAsync have finished, or until timeout.
// It reports whether everything finished. Call it before shutting the exporters down.
func Drain(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		inflight.Wait()
		close(done)
	}()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-done:
		return true
	case <-t.C:
		return false
	}
}
