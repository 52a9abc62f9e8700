package overseer

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/jmylchreest/zapengine/internal/storage"
)

// OnThumbnail implements spec.md §4.5's thumbnail contract: write
// {output_dir}/{stream_id}/thumb.jpg atomically (write-temp-then-rename),
// reusing the teacher's internal/storage.Sandbox.AtomicWrite.
func (o *Overseer) OnThumbnail(ctx context.Context, sandbox *storage.Sandbox, streamID uuid.UUID, jpeg []byte) error {
	relPath := filepath.Join(streamID.String(), "thumb.jpg")
	if err := sandbox.AtomicWrite(relPath, jpeg); err != nil {
		return fmt.Errorf("overseer: on_thumbnail: writing thumbnail: %w", err)
	}

	o.logger.Debug("thumbnail written", slog.String("stream_id", streamID.String()), slog.Int("bytes", len(jpeg)))
	return nil
}
