package cmd

import (
	"context"

	"github.com/google/uuid"

	"github.com/jmylchreest/zapengine/internal/models"
	"github.com/jmylchreest/zapengine/internal/overseer"
	"github.com/jmylchreest/zapengine/internal/storage"
)

// overseerAdapter narrows *overseer.Overseer to internal/pipeline.Overseer,
// closing over the process-wide storage sandbox so OnThumbnail can satisfy
// the real Overseer.OnThumbnail's extra *storage.Sandbox argument without
// internal/pipeline importing internal/storage.
type overseerAdapter struct {
	overseer *overseer.Overseer
	sandbox  *storage.Sandbox
}

func (a overseerAdapter) OnSegment(ctx context.Context, streamID uuid.UUID, segment models.SegmentInfo, viewerID string) error {
	return a.overseer.OnSegment(ctx, streamID, segment, viewerID)
}

func (a overseerAdapter) OnThumbnail(ctx context.Context, streamID uuid.UUID, jpeg []byte) error {
	return a.overseer.OnThumbnail(ctx, a.sandbox, streamID, jpeg)
}

func (a overseerAdapter) EndStream(ctx context.Context, streamID uuid.UUID, reason string) error {
	return a.overseer.EndStream(ctx, streamID, reason)
}
