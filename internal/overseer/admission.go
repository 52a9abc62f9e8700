package overseer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/zapengine/internal/models"
	"github.com/jmylchreest/zapengine/internal/overseer/store"
)

// StartStreamResult is returned on successful admission.
type StartStreamResult struct {
	StreamID uuid.UUID
	Config   models.PipelineConfig
	Handle   *StreamHandle
}

// StartStream implements spec.md §4.5's admission contract: lookup
// endpoint by case-insensitive name; lookup user by stream key; check
// blocked/balance; allocate a stream id; persist a user_stream row;
// return the computed PipelineConfig.
func (o *Overseer) StartStream(ctx context.Context, endpointName, streamKey, remoteIP, ingressKind string, source models.SourceMeta) (*StartStreamResult, error) {
	endpoint, err := o.endpoints.GetByName(ctx, endpointName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: endpoint %q", ErrEndpointNotFound, endpointName)
		}
		return nil, fmt.Errorf("overseer: looking up endpoint: %w", err)
	}

	user, err := o.users.GetByStreamKey(ctx, streamKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w", ErrUserNotFound)
		}
		return nil, fmt.Errorf("overseer: looking up user: %w", err)
	}

	if user.IsBlocked {
		return nil, fmt.Errorf("%w", ErrBlocked)
	}

	if endpoint.CostMsatPerMin > 0 {
		minCost := models.Money(int64(endpoint.CostMsatPerMin))
		if !user.BalanceMsat.Positive() || user.BalanceMsat.MinorUnits() < minCost.MinorUnits() {
			return nil, fmt.Errorf("%w", ErrInsufficientBalance)
		}
	}

	config, err := o.engine.Compute(*endpoint, source)
	if err != nil {
		return nil, fmt.Errorf("overseer: computing pipeline config: %w", err)
	}

	streamID := uuid.New()
	now := time.Now()

	row := &models.UserStream{
		ID:         streamID,
		UserID:     user.ID,
		EndpointID: endpoint.ID,
		NodeName:   o.cfg.NodeName,
		State:      models.StreamStateLive,
		StartsAt:   now,
	}
	if err := o.streams.Create(ctx, row); err != nil {
		return nil, fmt.Errorf("overseer: persisting user_stream: %w", err)
	}

	handle := &StreamHandle{
		StreamID:   streamID,
		UserID:     user.ID,
		EndpointID: endpoint.ID,
		NodeName:   o.cfg.NodeName,
		StartedAt:  now,
	}
	o.registry.Add(handle)

	o.logger.Info("stream admitted",
		slog.String("stream_id", streamID.String()),
		slog.String("endpoint", endpointName),
		slog.String("ingress_kind", ingressKind),
		slog.String("remote_ip", remoteIP),
	)

	if o.publisher != nil {
		go o.publishLiveEvent(context.WithoutCancel(ctx), streamID, now.Unix(), 0)
	}

	return &StartStreamResult{StreamID: streamID, Config: config, Handle: handle}, nil
}
