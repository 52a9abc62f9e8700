package overseer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/zapengine/internal/models"
)

// OnSegment implements spec.md §4.5's segment callback: debit balance
// proportional to segment duration, update the user_stream row, update
// the viewer tracker, periodically republish the Nostr live event, and
// emit at most one low-balance DM per stream session.
func (o *Overseer) OnSegment(ctx context.Context, streamID uuid.UUID, segment models.SegmentInfo, viewerID string) error {
	row, err := o.streams.Get(ctx, streamID)
	if err != nil {
		return fmt.Errorf("overseer: on_segment: loading user_stream: %w", err)
	}

	endpoint, err := o.endpoints.GetByID(ctx, row.EndpointID)
	if err != nil {
		return fmt.Errorf("overseer: on_segment: loading endpoint: %w", err)
	}

	cost := models.Money(int64(float64(endpoint.CostMsatPerMin) * float64(segment.DurationSeconds) / 60))

	if err := o.streams.AddProgress(ctx, streamID, float64(segment.DurationSeconds), cost); err != nil {
		return fmt.Errorf("overseer: on_segment: recording progress: %w", err)
	}

	var newBalance models.Money
	if cost.MinorUnits() > 0 {
		newBalance, err = o.users.DebitBalance(ctx, row.UserID, cost)
		if err != nil {
			return fmt.Errorf("overseer: on_segment: debiting balance: %w", err)
		}
	} else {
		user, err := o.users.GetByID(ctx, row.UserID)
		if err != nil {
			return fmt.Errorf("overseer: on_segment: loading user: %w", err)
		}
		newBalance = user.BalanceMsat
	}

	if viewerID != "" && o.viewers != nil {
		if err := o.viewers.Touch(ctx, streamID, viewerID); err != nil {
			o.logger.Warn("viewer touch failed", slog.String("stream_id", streamID.String()), slog.String("error", err.Error()))
		}
	}

	if !newBalance.Positive() {
		if handle, ok := o.registry.Get(streamID); ok {
			handle.RequestStop("balance exhausted")
		}
	}

	o.maybePublishEvent(ctx, streamID, row.StartsAt.Unix())
	o.maybeNotifyLowBalance(ctx, streamID, row, newBalance)

	return nil
}

// maybePublishEvent republishes the live event if MIN_EVENT_INTERVAL has
// elapsed since the last publish for this stream.
func (o *Overseer) maybePublishEvent(ctx context.Context, streamID uuid.UUID, startsUnix int64) {
	if o.publisher == nil {
		return
	}

	o.mu.Lock()
	last, ok := o.lastEventAt[streamID]
	interval := o.cfg.MinEventInterval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	due := !ok || time.Since(last) >= interval
	if due {
		o.lastEventAt[streamID] = time.Now()
	}
	o.mu.Unlock()

	if !due {
		return
	}

	viewerCount := 0
	if o.viewers != nil {
		if count, err := o.viewers.Count(ctx, streamID); err == nil {
			viewerCount = int(count)
		}
	}

	go o.publishLiveEvent(context.WithoutCancel(ctx), streamID, startsUnix, viewerCount)
}

// maybeNotifyLowBalance emits the single per-session low-balance DM once
// balance crosses below the configured threshold.
func (o *Overseer) maybeNotifyLowBalance(ctx context.Context, streamID uuid.UUID, row *models.UserStream, balance models.Money) {
	if o.publisher == nil || row.LowBalanceNotified {
		return
	}
	if o.cfg.LowBalanceThresholdMsat == 0 || balance.MinorUnits() > o.cfg.LowBalanceThresholdMsat.MinorUnits() {
		return
	}

	user, err := o.users.GetByID(ctx, row.UserID)
	if err != nil {
		o.logger.Warn("loading user for low balance notify failed", slog.String("error", err.Error()))
		return
	}

	go func() {
		o.notifyLowBalance(context.WithoutCancel(ctx), streamID, user.Pubkey, balance.MinorUnits())
		if err := o.streams.MarkLowBalanceNotified(context.WithoutCancel(ctx), streamID); err != nil {
			o.logger.Warn("marking low balance notified failed", slog.String("error", err.Error()))
		}
	}()
}
