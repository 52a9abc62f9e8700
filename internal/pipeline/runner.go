package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jmylchreest/zapengine/internal/ingest"
	"github.com/jmylchreest/zapengine/internal/models"
)

// defaultThumbnailInterval mirrors spec.md §4.3's THUMBNAIL_INTERVAL
// default of five minutes.
const defaultThumbnailInterval = 5 * time.Minute

// RunnerConfig configures one Runner for the lifetime of a single live
// stream session.
type RunnerConfig struct {
	StreamID uuid.UUID
	Source   ingest.Source
	Config   models.PipelineConfig
	Writer   SegmentWriter
	Overseer Overseer
	Stop     StopChecker

	FFmpegPath        string
	ReorderSize       int
	ThumbnailInterval time.Duration
	Logger            *slog.Logger
}

// variantRoute is the per-variant runtime state: either a direct
// passthrough (video copy variants) or a dedicated ffmpeg subprocess fed
// through its own tsMux, with a background goroutine demuxing its output
// back into ingest.Packets.
type variantRoute struct {
	id   uuid.UUID
	copy bool
	norm PTSNormalizer

	transcoder *Transcoder
	mux        *tsMux
}

// Runner drives one pipeline (one live stream) through the
// Starting/Running/Draining/Ended lifecycle of spec.md §4.3, grounded on
// internal/relay/session.go's per-stream goroutine loop: pull packets
// from the ingest Source, reorder and PTS-normalize video, fan each
// packet out to every configured variant (direct passthrough for copy
// variants, through a dedicated ffmpeg subprocess for transcoded ones),
// forward encoded output to the SegmentWriter, and report finalized
// segments and periodic thumbnails to the Overseer.
type Runner struct {
	cfg    RunnerConfig
	logger *slog.Logger

	state atomic.Int32

	reorder *ReorderBuffer
	video   []*variantRoute
	audio   []*variantRoute

	sourceVideoCodec string
	lastThumbnailAt  time.Time

	wg sync.WaitGroup
}

// NewRunner constructs a Runner. It does not start any subprocess or
// read from Source until Run is called.
func NewRunner(cfg RunnerConfig) *Runner {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ThumbnailInterval <= 0 {
		cfg.ThumbnailInterval = defaultThumbnailInterval
	}
	return &Runner{
		cfg:     cfg,
		logger:  cfg.Logger,
		reorder: NewReorderBuffer(cfg.ReorderSize),
	}
}

func (r *Runner) setState(s State) {
	r.state.Store(int32(s))
	r.logger.Info("pipeline state change",
		slog.String("stream_id", r.cfg.StreamID.String()), slog.String("state", s.String()))
}

// State returns the runner's current lifecycle state.
func (r *Runner) State() State {
	return State(r.state.Load())
}

// Run executes the full lifecycle and blocks until the stream ends,
// either because the source reached EOF, the context was canceled, or
// StopChecker reported an externally requested stop. The returned error
// is nil for a clean end-of-stream. Run locks its goroutine to one OS
// thread for its whole duration.
func (r *Runner) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	r.setState(StateStarting)
	if err := r.start(ctx); err != nil {
		r.setState(StateEnded)
		return fmt.Errorf("pipeline: starting: %w", err)
	}

	r.setState(StateRunning)
	r.sourceVideoCodec = r.cfg.Source.Metadata().VideoCodec

	loopErr := r.loop(ctx)
	reason := endReason(loopErr)

	r.setState(StateDraining)
	r.drain(ctx, reason)

	r.setState(StateEnded)
	return loopErr
}

func endReason(err error) string {
	switch {
	case err == nil || errors.Is(err, io.EOF):
		return "source closed"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return err.Error()
	}
}

// start opens a Transcoder (and its feed tsMux) for every non-copy
// variant in the configuration; copy video variants need no subprocess.
func (r *Runner) start(ctx context.Context) error {
	for _, v := range r.cfg.Config.Variants {
		switch variant := v.(type) {
		case models.VideoVariant:
			route := &variantRoute{id: variant.ID, copy: variant.Copy}
			if !variant.Copy {
				if err := r.startVideoTranscoder(ctx, route, variant); err != nil {
					return err
				}
			}
			r.video = append(r.video, route)
		case models.AudioVariant:
			route := &variantRoute{id: variant.ID}
			if err := r.startAudioTranscoder(ctx, route, variant); err != nil {
				return err
			}
			r.audio = append(r.audio, route)
		}
	}
	return nil
}

func (r *Runner) startVideoTranscoder(ctx context.Context, route *variantRoute, v models.VideoVariant) error {
	cfg := TranscoderConfig{
		FFmpegPath:       r.cfg.FFmpegPath,
		VideoCodec:       v.Codec,
		VideoBitrateKbps: int(v.BitrateBps / 1000),
		VideoPreset:      "veryfast",
		Logger:           r.logger,
	}
	if v.Width > 0 && v.Height > 0 {
		cfg.VideoFilter = fmt.Sprintf("scale=%d:-2", v.Width)
	}

	tc := NewTranscoder(v.ID.String(), cfg)
	if err := tc.Start(ctx); err != nil {
		return fmt.Errorf("video variant %s: %w", v.ID, err)
	}

	route.transcoder = tc
	route.mux = newTSMux(tc, v.Codec, true, false)

	r.wg.Add(1)
	go r.pumpTranscoderOutput(ctx, route)
	return nil
}

func (r *Runner) startAudioTranscoder(ctx context.Context, route *variantRoute, v models.AudioVariant) error {
	cfg := TranscoderConfig{
		FFmpegPath:       r.cfg.FFmpegPath,
		AudioCodec:       v.Codec,
		AudioBitrateKbps: int(v.BitrateBps / 1000),
		Logger:           r.logger,
	}

	tc := NewTranscoder(v.ID.String(), cfg)
	if err := tc.Start(ctx); err != nil {
		return fmt.Errorf("audio variant %s: %w", v.ID, err)
	}

	route.transcoder = tc
	route.mux = newTSMux(tc, "", false, true)

	r.wg.Add(1)
	go r.pumpTranscoderOutput(ctx, route)
	return nil
}

// pumpTranscoderOutput demuxes one variant's ffmpeg stdout back into
// ingest.Packets and forwards each to the SegmentWriter, running until
// the process's stdout is closed (EOF on Stop/CloseStdin).
func (r *Runner) pumpTranscoderOutput(ctx context.Context, route *variantRoute) {
	defer r.wg.Done()

	demux := ingest.NewTSDemux(ctx, route.transcoder.Stdout(), r.logger)
	for {
		pkt, err := demux.NextPacket(ctx)
		if err != nil {
			return
		}
		normalized, ok := route.norm.Normalize(pkt.PTS)
		if !ok {
			continue
		}
		pkt.DTS += route.norm.Offset()
		pkt.PTS = normalized
		r.forward(ctx, route.id, pkt)
	}
}

// loop is the Running-state main loop: pull one packet at a time from
// the source, route video through the reorder buffer, and fan out each
// ready packet to every configured variant.
func (r *Runner) loop(ctx context.Context) error {
	for {
		if stop, reason := r.cfg.Stop.ShouldStop(); stop {
			r.logger.Info("pipeline stop requested",
				slog.String("stream_id", r.cfg.StreamID.String()), slog.String("reason", reason))
			return nil
		}

		pkt, err := r.cfg.Source.NextPacket(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		switch pkt.Kind {
		case ingest.KindVideo:
			if ready := r.reorder.Push(pkt); ready != nil {
				r.handleVideo(ctx, ready)
			}
		case ingest.KindAudio:
			r.handleAudio(ctx, pkt)
		}
	}
}

func (r *Runner) handleVideo(ctx context.Context, pkt *ingest.Packet) {
	if pkt.KeyFrame && time.Since(r.lastThumbnailAt) >= r.cfg.ThumbnailInterval {
		r.lastThumbnailAt = time.Now()
		r.captureThumbnail(ctx, pkt)
	}

	for _, route := range r.video {
		if route.copy {
			normalized, ok := route.norm.Normalize(pkt.PTS)
			if !ok {
				continue
			}
			out := *pkt
			out.DTS += route.norm.Offset()
			out.PTS = normalized
			r.forward(ctx, route.id, &out)
			continue
		}
		if err := route.mux.WritePacket(pkt); err != nil {
			r.logger.Warn("muxing video packet for transcoder failed",
				slog.String("variant_id", route.id.String()), slog.String("error", err.Error()))
		}
	}
}

func (r *Runner) handleAudio(ctx context.Context, pkt *ingest.Packet) {
	for _, route := range r.audio {
		if err := route.mux.WritePacket(pkt); err != nil {
			r.logger.Warn("muxing audio packet for transcoder failed",
				slog.String("variant_id", route.id.String()), slog.String("error", err.Error()))
		}
	}
}

// captureThumbnail runs a one-shot ffmpeg JPEG extraction off the main
// loop so a slow encode never stalls packet delivery. pkt.Data is
// copied since the packet's backing array may be reused downstream.
func (r *Runner) captureThumbnail(ctx context.Context, pkt *ingest.Packet) {
	keyframe := make([]byte, len(pkt.Data))
	copy(keyframe, pkt.Data)
	codec := r.sourceVideoCodec

	go func() {
		jpeg, err := extractThumbnail(context.WithoutCancel(ctx), r.cfg.FFmpegPath, codec, keyframe)
		if err != nil {
			r.logger.Warn("thumbnail extraction failed",
				slog.String("stream_id", r.cfg.StreamID.String()), slog.String("error", err.Error()))
			return
		}
		if err := r.cfg.Overseer.OnThumbnail(context.WithoutCancel(ctx), r.cfg.StreamID, jpeg); err != nil {
			r.logger.Warn("reporting thumbnail failed",
				slog.String("stream_id", r.cfg.StreamID.String()), slog.String("error", err.Error()))
		}
	}()
}

// forward writes an encoded packet to the segment writer and reports any
// newly sealed segments to the overseer. viewerID is left empty: viewer
// attribution happens on the HTTP playback path, not the ingest path.
func (r *Runner) forward(ctx context.Context, variantID uuid.UUID, pkt *ingest.Packet) {
	segments, err := r.cfg.Writer.WritePacket(ctx, variantID, pkt)
	if err != nil {
		r.logger.Warn("writing packet failed",
			slog.String("variant_id", variantID.String()), slog.String("error", err.Error()))
		return
	}
	for _, seg := range segments {
		if err := r.cfg.Overseer.OnSegment(ctx, r.cfg.StreamID, seg, ""); err != nil {
			r.logger.Warn("reporting segment failed",
				slog.String("variant_id", variantID.String()), slog.String("error", err.Error()))
		}
	}
}

// drain implements the Draining state: flush the reorder buffer, close
// every transcoder's stdin so ffmpeg flushes its remaining frames, wait
// for the output pumps to observe EOF, finalize the segment writer, and
// report end-of-stream.
func (r *Runner) drain(ctx context.Context, reason string) {
	for _, pkt := range r.reorder.Flush() {
		r.handleVideo(ctx, pkt)
	}

	// Stop closes stdin and, if ffmpeg does not exit promptly on its own,
	// escalates to SIGINT/SIGKILL (see Transcoder.waitWithTimeout) — this
	// must run before wg.Wait() below, since that wait only completes once
	// each transcoder's stdout pipe closes (process exit).
	for _, route := range r.video {
		if route.transcoder != nil {
			route.transcoder.Stop()
		}
	}
	for _, route := range r.audio {
		route.transcoder.Stop()
	}

	r.wg.Wait()

	segments, err := r.cfg.Writer.Finalize(ctx)
	if err != nil {
		r.logger.Warn("finalizing segment writer failed",
			slog.String("stream_id", r.cfg.StreamID.String()), slog.String("error", err.Error()))
	}
	for _, seg := range segments {
		if err := r.cfg.Overseer.OnSegment(ctx, r.cfg.StreamID, seg, ""); err != nil {
			r.logger.Warn("reporting final segment failed", slog.String("error", err.Error()))
		}
	}
	if err := r.cfg.Writer.Close(); err != nil {
		r.logger.Warn("closing segment writer failed", slog.String("error", err.Error()))
	}

	if err := r.cfg.Overseer.EndStream(context.WithoutCancel(ctx), r.cfg.StreamID, reason); err != nil {
		r.logger.Warn("reporting end of stream failed", slog.String("error", err.Error()))
	}
}
