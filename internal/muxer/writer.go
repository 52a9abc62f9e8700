// Package muxer writes each variant's encoded packets to on-disk HLS
// fMP4 (CMAF) segments plus their media playlists, and generates the
// stream's master playlist. Modeled on internal/daemon/fmp4_muxer.go's
// FMP4Muxer (the only complete example of bluenviron/mediacommon/v2/pkg/
// formats/fmp4 usage in the retrieval pack) and on internal/relay/
// processor_hls_fmp4.go's segment-accumulation and playlist-generation
// logic, adapted from in-memory HTTP serving to on-disk files written
// with an atomic write-temp-then-rename discipline, and from
// flush-on-request semantics to spec.md §4.4's strict IDR-exact
// segmentation boundary.
package muxer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mp4"
	"github.com/google/uuid"

	"github.com/jmylchreest/zapengine/internal/ingest"
	"github.com/jmylchreest/zapengine/internal/models"
)

const (
	videoTimeScale = 90000
	defaultAudioTimeScale = 48000
)

// WriterConfig configures an on-disk segment Writer for one stream.
type WriterConfig struct {
	// OutputDir is the stream's root directory; each variant gets its
	// own subdirectory OutputDir/<variantID>/.
	OutputDir string
	// SegmentLengthSec is spec.md §4.4's SEGMENT_LENGTH, the minimum
	// elapsed PTS duration (in seconds) before the next IDR seals a
	// segment.
	SegmentLengthSec float64
	Logger           *slog.Logger
}

// Writer implements internal/pipeline.SegmentWriter: one fMP4 init
// segment and a rolling set of media segments per variant, with an
// accompanying HLS media playlist kept current after every sealed
// segment.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger

	mu       sync.Mutex
	variants map[uuid.UUID]*variantState
}

// NewWriter constructs a Writer. Variants must be registered with
// RegisterVariant before any packet for them is written.
func NewWriter(cfg WriterConfig) *Writer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SegmentLengthSec <= 0 {
		cfg.SegmentLengthSec = 6
	}
	return &Writer{
		cfg:      cfg,
		logger:   cfg.Logger,
		variants: make(map[uuid.UUID]*variantState),
	}
}

// RegisterVariant declares one output variant and its codecs ahead of
// any WritePacket call for it. videoCodec/audioCodec are "" for a
// variant that carries only the other media type (e.g. an audio-only
// rendition, or a video variant with no associated audio track).
func (w *Writer) RegisterVariant(variantID uuid.UUID, videoCodec, audioCodec string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Join(w.cfg.OutputDir, variantID.String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("muxer: creating variant directory: %w", err)
	}

	w.variants[variantID] = &variantState{
		id:             variantID,
		dir:            dir,
		videoCodec:     videoCodec,
		audioCodec:     audioCodec,
		videoTrackID:   1,
		audioTrackID:   2,
		audioTimeScale: defaultAudioTimeScale,
		segStartPTS:    -1,
		playlist: NewPlaylist(PlaylistConfig{
			Path:              filepath.Join(dir, "live.m3u8"),
			TargetDurationSec: int(w.cfg.SegmentLengthSec + 0.5),
		}),
	}
	return nil
}

// variantState accumulates one variant's in-flight fragment and tracks
// the codec parameters needed to build its init segment, directly
// mirroring daemon.FMP4Muxer's per-track bookkeeping.
type variantState struct {
	mu sync.Mutex

	id         uuid.UUID
	dir        string
	videoCodec string
	audioCodec string

	videoTrackID, audioTrackID int
	audioTimeScale             uint32

	h264SPS, h264PPS          []byte
	h265VPS, h265SPS, h265PPS []byte
	audioConfig               *mpeg4audio.AudioSpecificConfig

	initWritten bool

	sequenceNo  uint64
	segStartPTS int64
	lastPTS     int64

	videoSamples []*fmp4.Sample
	audioSamples []*fmp4.Sample

	playlist *Playlist
}

// WritePacket implements internal/pipeline.SegmentWriter. It buffers one
// fMP4 sample per packet and seals a segment per spec.md §4.4's
// IDR-exact boundary: a keyframe video packet (or, for audio-only
// variants, any audio packet) whose PTS has advanced at least
// SegmentLengthSec past the open segment's start PTS.
func (w *Writer) WritePacket(_ context.Context, variantID uuid.UUID, pkt *ingest.Packet) ([]models.SegmentInfo, error) {
	w.mu.Lock()
	vs, ok := w.variants[variantID]
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("muxer: variant %s not registered", variantID)
	}

	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.segStartPTS < 0 {
		vs.segStartPTS = pkt.PTS
	}

	seals := pkt.Kind == ingest.KindVideo && pkt.KeyFrame ||
		(pkt.Kind == ingest.KindAudio && vs.videoCodec == "")
	crossedBoundary := float64(pkt.PTS-vs.segStartPTS)/videoTimeScale >= w.cfg.SegmentLengthSec
	hasSamples := len(vs.videoSamples) > 0 || len(vs.audioSamples) > 0

	var sealed []models.SegmentInfo
	if seals && crossedBoundary && hasSamples {
		seg, err := w.sealSegment(vs)
		if err != nil {
			return nil, err
		}
		if seg != nil {
			sealed = append(sealed, *seg)
		}
		vs.segStartPTS = pkt.PTS
	}

	if err := w.appendSample(vs, pkt); err != nil {
		return sealed, err
	}
	vs.lastPTS = pkt.PTS
	return sealed, nil
}

func (w *Writer) appendSample(vs *variantState, pkt *ingest.Packet) error {
	switch pkt.Kind {
	case ingest.KindVideo:
		if pkt.KeyFrame {
			w.extractVideoParams(vs, pkt.Data)
		}
		sample, err := w.buildVideoSample(vs, pkt)
		if err != nil {
			return fmt.Errorf("muxer: building video sample: %w", err)
		}
		vs.videoSamples = append(vs.videoSamples, sample)
	case ingest.KindAudio:
		if vs.audioConfig == nil {
			vs.audioConfig = &mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   defaultAudioTimeScale,
				ChannelCount: 2,
			}
			vs.audioTimeScale = uint32(vs.audioConfig.SampleRate)
		}
		vs.audioSamples = append(vs.audioSamples, &fmp4.Sample{
			Duration: 1024,
			Payload:  extractRawAAC(pkt.Data),
		})
	}
	return nil
}

func (w *Writer) buildVideoSample(vs *variantState, pkt *ingest.Packet) (*fmp4.Sample, error) {
	au, err := ingest.SplitAnnexB(pkt.Data)
	if err != nil || len(au) == 0 {
		au = [][]byte{pkt.Data}
	}

	ptsOffset := int32(pkt.PTS - pkt.DTS)
	sample := &fmp4.Sample{
		Duration:        3000,
		PTSOffset:       ptsOffset,
		IsNonSyncSample: !pkt.KeyFrame,
	}
	if vs.lastPTS > 0 && pkt.PTS > vs.lastPTS {
		sample.Duration = uint32(pkt.PTS - vs.lastPTS)
	}

	switch vs.videoCodec {
	case "h265":
		err = sample.FillH265(ptsOffset, au)
	default:
		err = sample.FillH264(ptsOffset, au)
	}
	return sample, err
}

// extractVideoParams caches SPS/PPS (and VPS for H.265) from a keyframe
// access unit, grounded on daemon.FMP4Muxer.extractH264Params/
// extractH265Params.
func (w *Writer) extractVideoParams(vs *variantState, data []byte) {
	au, err := ingest.SplitAnnexB(data)
	if err != nil {
		return
	}
	for _, nal := range au {
		if len(nal) == 0 {
			continue
		}
		if vs.videoCodec == "h265" {
			if len(nal) < 2 {
				continue
			}
			switch h265.NALUType((nal[0] >> 1) & 0x3F) {
			case h265.NALUType_VPS_NUT:
				vs.h265VPS = cloneBytes(nal)
			case h265.NALUType_SPS_NUT:
				vs.h265SPS = cloneBytes(nal)
			case h265.NALUType_PPS_NUT:
				vs.h265PPS = cloneBytes(nal)
			}
			continue
		}
		switch h264.NALUType(nal[0] & 0x1F) {
		case h264.NALUTypeSPS:
			vs.h264SPS = cloneBytes(nal)
		case h264.NALUTypePPS:
			vs.h264PPS = cloneBytes(nal)
		}
	}
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// extractRawAAC strips ADTS framing when present, grounded on
// internal/relay/ts_muxer.go's extractADTSFrames.
func extractRawAAC(data []byte) []byte {
	if len(data) >= 7 && data[0] == 0xFF && (data[1]&0xF0) == 0xF0 {
		headerSize := 7
		if data[1]&0x01 == 0 {
			headerSize = 9
		}
		if len(data) > headerSize {
			return data[headerSize:]
		}
	}
	return data
}

// sealSegment writes the init segment (once) and the current fragment as
// a new .m4s file, updates the variant's playlist, and returns the
// resulting models.SegmentInfo.
func (w *Writer) sealSegment(vs *variantState) (*models.SegmentInfo, error) {
	if !vs.initWritten {
		if err := w.writeInit(vs); err != nil {
			return nil, err
		}
		vs.initWritten = true
	}

	part := &fmp4.Part{SequenceNumber: uint32(vs.sequenceNo)}
	if len(vs.videoSamples) > 0 {
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{ID: vs.videoTrackID, Samples: vs.videoSamples})
	}
	if len(vs.audioSamples) > 0 {
		part.Tracks = append(part.Tracks, &fmp4.PartTrack{ID: vs.audioTrackID, Samples: vs.audioSamples})
	}
	if len(part.Tracks) == 0 {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := part.Marshal(&seekableBuffer{Buffer: &buf}); err != nil {
		return nil, fmt.Errorf("muxer: marshaling fragment: %w", err)
	}

	segPath := filepath.Join(vs.dir, fmt.Sprintf("%d.m4s", vs.sequenceNo))
	if err := atomicWrite(segPath, buf.Bytes()); err != nil {
		return nil, err
	}

	durationSec := float32(vs.lastPTS-vs.segStartPTS) / videoTimeScale
	if len(vs.videoSamples) > 0 {
		last := vs.videoSamples[len(vs.videoSamples)-1]
		durationSec += float32(last.Duration) / videoTimeScale
	}

	info := models.SegmentInfo{
		VariantID:       vs.id,
		SequenceNo:      vs.sequenceNo,
		StartPTS90k:     vs.segStartPTS,
		DurationSeconds: durationSec,
		ByteSize:        uint64(buf.Len()),
		Path:            segPath,
		ContainsIDR:     len(vs.videoSamples) > 0 && !vs.videoSamples[0].IsNonSyncSample,
	}

	vs.playlist.AppendSegment(PlaylistSegment{
		SequenceNo: vs.sequenceNo,
		Filename:   filepath.Base(segPath),
		DurationSec: float64(durationSec),
	})
	if err := vs.playlist.Flush(); err != nil {
		w.logger.Warn("writing media playlist failed", slog.String("path", vs.playlist.cfg.Path), slog.String("error", err.Error()))
	}

	vs.sequenceNo++
	vs.videoSamples = nil
	vs.audioSamples = nil
	return &info, nil
}

func (w *Writer) writeInit(vs *variantState) error {
	init := &fmp4.Init{}

	if vs.videoCodec != "" {
		videoCodec, err := w.videoInitCodec(vs)
		if err != nil {
			return fmt.Errorf("muxer: video init codec: %w", err)
		}
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{ID: vs.videoTrackID, TimeScale: videoTimeScale, Codec: videoCodec})
	}
	if vs.audioCodec != "" || vs.audioConfig != nil {
		config := vs.audioConfig
		if config == nil {
			config = &mpeg4audio.AudioSpecificConfig{Type: mpeg4audio.ObjectTypeAACLC, SampleRate: defaultAudioTimeScale, ChannelCount: 2}
		}
		init.Tracks = append(init.Tracks, &fmp4.InitTrack{
			ID:        vs.audioTrackID,
			TimeScale: uint32(config.SampleRate),
			Codec:     &mp4.CodecMPEG4Audio{Config: *config},
		})
	}

	var buf bytes.Buffer
	if err := init.Marshal(&seekableBuffer{Buffer: &buf}); err != nil {
		return fmt.Errorf("muxer: marshaling init segment: %w", err)
	}
	return atomicWrite(filepath.Join(vs.dir, "init.mp4"), buf.Bytes())
}

func (w *Writer) videoInitCodec(vs *variantState) (mp4.Codec, error) {
	switch vs.videoCodec {
	case "h265":
		if len(vs.h265VPS) == 0 || len(vs.h265SPS) == 0 || len(vs.h265PPS) == 0 {
			return nil, fmt.Errorf("h265 vps/sps/pps not available yet")
		}
		return &mp4.CodecH265{VPS: vs.h265VPS, SPS: vs.h265SPS, PPS: vs.h265PPS}, nil
	default:
		if len(vs.h264SPS) == 0 || len(vs.h264PPS) == 0 {
			return nil, fmt.Errorf("h264 sps/pps not available yet")
		}
		return &mp4.CodecH264{SPS: vs.h264SPS, PPS: vs.h264PPS}, nil
	}
}

// Finalize seals any in-progress fragment as a final segment for every
// registered variant and writes the terminal #EXT-X-ENDLIST marker,
// called once when the pipeline transitions to Draining.
func (w *Writer) Finalize(_ context.Context) ([]models.SegmentInfo, error) {
	w.mu.Lock()
	variants := make([]*variantState, 0, len(w.variants))
	for _, vs := range w.variants {
		variants = append(variants, vs)
	}
	w.mu.Unlock()

	var out []models.SegmentInfo
	for _, vs := range variants {
		vs.mu.Lock()
		if len(vs.videoSamples) > 0 || len(vs.audioSamples) > 0 {
			seg, err := w.sealSegment(vs)
			if err == nil && seg != nil {
				out = append(out, *seg)
			}
		}
		vs.playlist.Close()
		if err := vs.playlist.Flush(); err != nil {
			w.logger.Warn("writing final media playlist failed", slog.String("error", err.Error()))
		}
		vs.mu.Unlock()
	}
	return out, nil
}

// VideoSPS returns the most recently captured SPS bytes for a video
// variant (H.264 or H.265, whichever it encodes), for building the
// master playlist's RFC 6381 CODECS= attribute. Returns nil before the
// first keyframe has been parsed.
func (w *Writer) VideoSPS(variantID uuid.UUID) []byte {
	w.mu.Lock()
	vs, ok := w.variants[variantID]
	w.mu.Unlock()
	if !ok {
		return nil
	}
	vs.mu.Lock()
	defer vs.mu.Unlock()
	if vs.videoCodec == "h265" {
		return vs.h265SPS
	}
	return vs.h264SPS
}

// Close releases any resources held by the Writer. The current
// implementation holds no open file handles between WritePacket calls
// (every segment and playlist write is a complete, atomic file write),
// so Close is a no-op kept to satisfy internal/pipeline.SegmentWriter.
func (w *Writer) Close() error {
	return nil
}

// atomicWrite mirrors the overseer's write-temp-then-rename thumbnail
// convention (spec.md §4.5), used here for both segment files and init
// segments so a reader never observes a partially written file.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("muxer: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("muxer: writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("muxer: closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("muxer: renaming temp file: %w", err)
	}
	return nil
}

// seekableBuffer wraps bytes.Buffer to provide the io.WriteSeeker
// fmp4.Init/fmp4.Part.Marshal require, adapted verbatim from
// daemon.FMP4Muxer's seekableBuffer.
type seekableBuffer struct {
	*bytes.Buffer
	pos int64
}

func (s *seekableBuffer) Write(p []byte) (int, error) {
	if int(s.pos) > s.Buffer.Len() {
		s.Buffer.Write(make([]byte, int(s.pos)-s.Buffer.Len()))
	}
	if int(s.pos) == s.Buffer.Len() {
		n, err := s.Buffer.Write(p)
		s.pos += int64(n)
		return n, err
	}
	b := s.Buffer.Bytes()
	n := copy(b[s.pos:], p)
	if n < len(p) {
		m, err := s.Buffer.Write(p[n:])
		if err != nil {
			return n, err
		}
		n += m
	}
	s.pos += int64(n)
	return n, nil
}

func (s *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = s.pos + offset
	case io.SeekEnd:
		newPos = int64(s.Buffer.Len()) + offset
	default:
		return 0, fmt.Errorf("muxer: invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("muxer: negative seek position")
	}
	s.pos = newPos
	return newPos, nil
}
