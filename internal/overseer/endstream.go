package overseer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/zapengine/internal/models"
)

// EndStream implements spec.md §4.5's end_stream contract: transition to
// Ended, stamp ends_at, publish the terminal event, remove the stream
// from the viewer tracker, and drop the registry handle. Calling
// EndStream twice on the same stream is a no-op on the second call
// (spec.md §8).
func (o *Overseer) EndStream(ctx context.Context, streamID uuid.UUID, reason string) error {
	row, err := o.streams.Get(ctx, streamID)
	if err != nil {
		return fmt.Errorf("overseer: end_stream: loading user_stream: %w", err)
	}
	if row.State == models.StreamStateEnded {
		return nil
	}

	endsAt := time.Now()
	if err := o.streams.MarkEnded(ctx, streamID, endsAt); err != nil {
		return fmt.Errorf("overseer: end_stream: marking ended: %w", err)
	}

	if o.viewers != nil {
		if err := o.viewers.Remove(ctx, streamID); err != nil {
			o.logger.Warn("removing viewer set failed", slog.String("stream_id", streamID.String()), slog.String("error", err.Error()))
		}
	}

	if o.publisher != nil {
		go o.publishEndedEvent(context.WithoutCancel(ctx), streamID, row.StartsAt.Unix(), endsAt.Unix())
	}

	o.mu.Lock()
	delete(o.lastEventAt, streamID)
	o.mu.Unlock()

	o.registry.Remove(streamID)

	o.logger.Info("stream ended",
		slog.String("stream_id", streamID.String()),
		slog.String("reason", reason),
	)
	return nil
}
