package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jmylchreest/zapengine/internal/ingest"
	"github.com/jmylchreest/zapengine/internal/models"
	"github.com/jmylchreest/zapengine/internal/muxer"
	"github.com/jmylchreest/zapengine/internal/overseer"
	"github.com/jmylchreest/zapengine/internal/pipeline"
	"github.com/jmylchreest/zapengine/internal/storage"
)

// sessionDeps carries the process-wide collaborators a per-publish
// session needs to admit, mux, and run a stream.
type sessionDeps struct {
	overseer   *overseer.Overseer
	sandbox    *storage.Sandbox
	outputDir  string
	ffmpegPath string
	segmentSec float64
	reorder    int
	thumbSec   int
	logger     *slog.Logger
}

// handleSession implements internal/ingest.Handler: admits the stream via
// the overseer, builds its on-disk muxer and pipeline runner, and blocks
// until the runner drains, per spec.md §4.1's publish-to-terminal-event
// lifecycle.
func (d *sessionDeps) handleSession(ctx context.Context, endpointName, streamKey, remoteAddr string, source ingest.Source) error {
	first, err := source.NextPacket(ctx)
	if err != nil {
		return fmt.Errorf("session: reading first packet: %w", err)
	}

	meta := source.Metadata()

	result, err := d.overseer.StartStream(ctx, endpointName, streamKey, remoteAddr, "rtmp", meta)
	if err != nil {
		d.logger.Warn("stream admission refused",
			slog.String("endpoint", endpointName),
			slog.String("remote_addr", remoteAddr),
			slog.String("error", err.Error()),
		)
		return err
	}
	streamID := result.StreamID

	streamDir := filepath.Join(d.outputDir, streamID.String())
	writer := muxer.NewWriter(muxer.WriterConfig{
		OutputDir:        streamDir,
		SegmentLengthSec: d.segmentSec,
		Logger:           d.logger,
	})

	videoVariants, audioVariants := registerVariants(writer, result.Config.Variants)
	if err := writeMasterPlaylist(streamDir, videoVariants, audioVariants); err != nil {
		d.logger.Warn("writing master playlist failed", slog.String("stream_id", streamID.String()), slog.String("error", err.Error()))
	}

	runner := pipeline.NewRunner(pipeline.RunnerConfig{
		StreamID:          streamID,
		Source:            &replaySource{first: first, Source: source},
		Config:            result.Config,
		Writer:            writer,
		Overseer:          overseerAdapter{overseer: d.overseer, sandbox: d.sandbox},
		Stop:              result.Handle,
		FFmpegPath:        d.ffmpegPath,
		ReorderSize:       d.reorder,
		ThumbnailInterval: time.Duration(d.thumbSec) * time.Second,
		Logger:            d.logger,
	})

	return runner.Run(ctx)
}

// registerVariants declares every variant with the writer and returns the
// models.VideoVariant/AudioVariant slices, for building the master
// playlist.
func registerVariants(writer *muxer.Writer, variants []models.Variant) ([]models.VideoVariant, []models.AudioVariant) {
	var video []models.VideoVariant
	var audio []models.AudioVariant
	for _, v := range variants {
		switch vv := v.(type) {
		case models.VideoVariant:
			video = append(video, vv)
			audioCodec := ""
			if hasGroupAudio(variants, vv.VariantGroupID) {
				audioCodec = "aac"
			}
			_ = writer.RegisterVariant(vv.ID, vv.Codec, audioCodec)
		case models.AudioVariant:
			audio = append(audio, vv)
			_ = writer.RegisterVariant(vv.ID, "", vv.Codec)
		}
	}
	return video, audio
}

func hasGroupAudio(variants []models.Variant, groupID uint8) bool {
	for _, v := range variants {
		if a, ok := v.(models.AudioVariant); ok && a.VariantGroupID == groupID {
			return true
		}
	}
	return false
}

func writeMasterPlaylist(streamDir string, video []models.VideoVariant, audio []models.AudioVariant) error {
	variants := make([]models.Variant, 0, len(video))
	for _, v := range video {
		variants = append(variants, v)
	}
	mpVariants := muxer.BuildMasterPlaylistVariants(variants, nil, nil)

	var renditions []muxer.MasterPlaylistAudioRendition
	for i, a := range audio {
		renditions = append(renditions, muxer.MasterPlaylistAudioRendition{
			GroupID:   fmt.Sprintf("audio-%d", a.VariantGroupID),
			VariantID: a.ID.String(),
			Default:   i == 0,
		})
	}

	mp := muxer.MasterPlaylist{Path: filepath.Join(streamDir, "live.m3u8")}
	return mp.Write(mpVariants, renditions)
}

// replaySource replays the first packet consumed to discover source
// metadata before the pipeline runner is constructed, then delegates to
// the underlying source.
type replaySource struct {
	ingest.Source
	first    *ingest.Packet
	replayed bool
}

func (r *replaySource) NextPacket(ctx context.Context) (*ingest.Packet, error) {
	if !r.replayed {
		r.replayed = true
		return r.first, nil
	}
	return r.Source.NextPacket(ctx)
}
