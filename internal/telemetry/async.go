package telemetry

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/noahsadir/courseman/internal/logging"
)

// emitTimeout bounds one background emit.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long the server waits, after it stops accepting requests,
// before closing the OTel providers. It is never shorter than emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync stamps event with an id and timestamp if it lacks them, then emits it on a
// separate goroutine. The emit keeps ctx's values (trace span, request logger) but not its
// cancellation, so a finished request does not drop its audit events. Failures are logged.
// A nil emitter or event is a no-op.
func EmitAsync(emitter EventEmitter, ctx context.Context, event *Event) {
	if emitter == nil || event == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	detached := context.WithoutCancel(ctx)
	go func() {
		emitCtx, cancel := context.WithTimeout(detached, emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, event); err != nil {
			logging.ExtractLogger(detached).Warn().
				Err(err).
				Str("event_type", event.Type).
				Str("event_id", event.ID).
				Msg("failed to emit telemetry event")
		}
	}()
}
