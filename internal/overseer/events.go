package overseer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jmylchreest/zapengine/internal/nostr"
)

// publishLiveEvent builds and publishes the current kind:30311 status for
// a stream. Retry/backoff is handled inside internal/nostr; failures here
// are logged but never gate any database or pipeline operation, per
// spec.md §4.5.
func (o *Overseer) publishLiveEvent(ctx context.Context, streamID uuid.UUID, startsUnix int64, viewerCount int) {
	ev := nostr.LiveEvent{
		StreamID:            streamID.String(),
		Status:              nostr.StatusLive,
		StartsUnix:          startsUnix,
		StreamingURL:        fmt.Sprintf("%s/%s/live.m3u8", o.cfg.PublicURL, streamID.String()),
		CurrentParticipants: viewerCount,
	}
	if err := o.publisher.PublishLiveEvent(ctx, ev); err != nil {
		o.logger.Warn("publishing live nostr event failed",
			slog.String("stream_id", streamID.String()), slog.String("error", err.Error()))
	}
}

// publishEndedEvent publishes the terminal status=ended event with no
// streaming tag, per spec.md §4.5's end_stream contract.
func (o *Overseer) publishEndedEvent(ctx context.Context, streamID uuid.UUID, startsUnix, endsUnix int64) {
	ev := nostr.LiveEvent{
		StreamID:   streamID.String(),
		Status:     nostr.StatusEnded,
		StartsUnix: startsUnix,
		EndsUnix:   endsUnix,
	}
	if err := o.publisher.PublishLiveEvent(ctx, ev); err != nil {
		o.logger.Warn("publishing ended nostr event failed",
			slog.String("stream_id", streamID.String()), slog.String("error", err.Error()))
	}
}

// notifyLowBalance sends the single per-session encrypted low-balance DM
// to the streaming user's pubkey, and to the configured admin pubkey if
// set, per spec.md §4.5.
func (o *Overseer) notifyLowBalance(ctx context.Context, streamID uuid.UUID, userPubkey string, balanceMsat int64) {
	message := fmt.Sprintf("Your stream %s balance is low: %d msat remaining.", streamID.String(), balanceMsat)

	if userPubkey != "" {
		if err := o.publisher.PublishEncryptedDM(ctx, userPubkey, message); err != nil {
			o.logger.Warn("low balance dm to user failed",
				slog.String("stream_id", streamID.String()), slog.String("error", err.Error()))
		}
	}
	if o.cfg.AdminPubkey != "" {
		adminMessage := fmt.Sprintf("User stream %s is low on balance: %d msat remaining.", streamID.String(), balanceMsat)
		if err := o.publisher.PublishEncryptedDM(ctx, o.cfg.AdminPubkey, adminMessage); err != nil {
			o.logger.Warn("low balance dm to admin failed",
				slog.String("stream_id", streamID.String()), slog.String("error", err.Error()))
		}
	}
}
