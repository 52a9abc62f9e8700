// Package pipeline drives one live stream from first ingest packet to
// terminal event: decode/transcode (via ffmpeg subprocesses) or copy
// each configured variant, reorder and PTS-normalize video packets, and
// forward encoded output to a segment writer, reporting finalized
// segments and thumbnails to an overseer. Grounded throughout on
// internal/relay/session.go and internal/relay/ffmpeg_transcoder.go's
// one-thread-per-stream, subprocess-based transcoding architecture.
package pipeline

import (
	"context"

	"github.com/google/uuid"

	"github.com/jmylchreest/zapengine/internal/ingest"
	"github.com/jmylchreest/zapengine/internal/models"
)

// SegmentWriter receives encoded packets for one variant and returns any
// segments that were sealed as a result, per spec.md §4.4's IDR-aligned
// segmentation policy. Implemented by internal/muxer.Writer.
type SegmentWriter interface {
	WritePacket(ctx context.Context, variantID uuid.UUID, pkt *ingest.Packet) ([]models.SegmentInfo, error)
	// Finalize flushes any in-progress partial segment as a whole segment
	// and writes the terminal playlist marker, called once on Draining.
	Finalize(ctx context.Context) ([]models.SegmentInfo, error)
	Close() error
}

// Overseer is the subset of internal/overseer.Overseer's callback
// contract the runner needs. The real Overseer.OnThumbnail also takes a
// *internal/storage.Sandbox; wiring code adapts that extra argument with
// a closure bound to the stream's output directory, keeping this
// package free of a storage.Sandbox dependency.
type Overseer interface {
	OnSegment(ctx context.Context, streamID uuid.UUID, segment models.SegmentInfo, viewerID string) error
	OnThumbnail(ctx context.Context, streamID uuid.UUID, jpeg []byte) error
	EndStream(ctx context.Context, streamID uuid.UUID, reason string) error
}

// StopChecker reports externally requested termination, satisfied
// structurally by *internal/overseer.StreamHandle.
type StopChecker interface {
	ShouldStop() (bool, string)
}
