// Package variant implements the variant/egress configuration engine: it
// derives the concrete set of encoded variants and egresses for a stream
// from an ingest endpoint's capability list and the discovered source
// characteristics, applying anti-upscaling and encoder deduplication.
package variant

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmylchreest/zapengine/internal/models"
)

const (
	// DefaultSegmentLengthSeconds is used when the caller does not
	// override segment_length_seconds.
	DefaultSegmentLengthSeconds = 2.0
	// DefaultFPS is assumed when the source's frame rate could not be
	// detected.
	DefaultFPS = 30.0
	// DefaultAudioCodec is the always-transcoded audio codec absent a
	// capability override.
	DefaultAudioCodec = "aac"
	// DefaultAudioBitrateBps is the default AAC-LC bitrate.
	DefaultAudioBitrateBps = 128_000
)

// Engine computes PipelineConfig values from an endpoint and source.
// Grounded on the teacher's config-derivation style in
// internal/relay/types.go's ClassificationResult computation: a []string
// of skip/dedup diagnostics accompanies the decision, mirroring
// EligibleForCollapse/Reasons.
type Engine struct {
	logger           *slog.Logger
	segmentLengthSec float64
}

// New creates a variant engine. segmentLengthSec of 0 uses the default.
func New(logger *slog.Logger, segmentLengthSec float64) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if segmentLengthSec <= 0 {
		segmentLengthSec = DefaultSegmentLengthSeconds
	}
	return &Engine{logger: logger, segmentLengthSec: segmentLengthSec}
}

// Compute implements spec.md §4.2's compute_config(endpoint, source) ->
// PipelineConfig algorithm.
func (e *Engine) Compute(endpoint models.IngestEndpoint, source models.SourceMeta) (models.PipelineConfig, error) {
	caps, skipped := endpoint.ParsedCapabilities()
	for _, s := range skipped {
		e.logger.Warn("skipping unrecognized capability", slog.String("entry", s), slog.String("endpoint", endpoint.Name))
	}

	if !models.HasVariant(caps) {
		return models.PipelineConfig{}, fmt.Errorf("variant: endpoint %q has no variant:* capability", endpoint.Name)
	}

	srcFPS := source.VideoFPS
	if srcFPS <= 0 {
		srcFPS = DefaultFPS
	}

	var reasons []string
	var videoVariants []models.VideoVariant
	// group_id buckets variants that share an audio track (spec.md §3): all
	// variants derived from the same source share one group, so groupID is
	// keyed by src_index and only introduced once per distinct source, never
	// once per video variant. This engine handles a single ingest source
	// (src_index 0), so every variant below shares group 0.
	const groupID = uint8(0)

	for _, c := range caps {
		switch c.Kind {
		case models.CapabilityKindVariantSource:
			videoVariants = append(videoVariants, models.VideoVariant{
				ID:                     uuid.New(),
				VariantGroupID:         groupID,
				SrcIndex:               0,
				Codec:                  source.VideoCodec,
				Width:                  source.VideoWidth,
				Height:                 source.VideoHeight,
				FPSNumerator:           int(srcFPS * 1000),
				FPSDenominator:         1000,
				BitrateBps:             0,
				KeyframeIntervalFrames: keyframeInterval(srcFPS, e.segmentLengthSec),
				PixelFormat:            source.VideoPixFmt,
				ColorSpace:             source.VideoColorSpace,
				ColorRange:             source.VideoColorRange,
				Copy:                   true,
			})

		case models.CapabilityKindVariant:
			// Step 3: anti-upscaling. Source-resolution sensitive, so this
			// cannot be decided from capabilities alone ahead of the
			// source's first parsed video packet.
			if source.VideoHeight > 0 && c.Height > source.VideoHeight {
				reason := fmt.Sprintf("skipping variant %d (upscale)", c.Height)
				reasons = append(reasons, reason)
				e.logger.Info(reason, slog.String("endpoint", endpoint.Name), slog.Int("source_height", source.VideoHeight))
				continue
			}

			width := targetWidth(source.VideoWidth, source.VideoHeight, c.Height)
			videoVariants = append(videoVariants, models.VideoVariant{
				ID:                     uuid.New(),
				VariantGroupID:         groupID,
				SrcIndex:               0,
				Codec:                  "h264",
				Width:                  width,
				Height:                 c.Height,
				FPSNumerator:           int(srcFPS * 1000),
				FPSDenominator:         1000,
				BitrateBps:             c.BitrateBps,
				KeyframeIntervalFrames: keyframeInterval(srcFPS, e.segmentLengthSec),
				PixelFormat:            source.VideoPixFmt,
				ColorSpace:             source.VideoColorSpace,
				ColorRange:             source.VideoColorRange,
				Copy:                   false,
			})

		case models.CapabilityKindDVR:
			// DVR recording capability does not itself contribute a video
			// variant; it is consumed by the overseer's egress selection.
		}
	}

	// Step 6: one audio variant per audio-bearing group, shared across every
	// video variant of that group. All video variants above share group 0
	// (one ingest source), so this collapses to exactly one AudioVariant.
	var audioVariants []models.AudioVariant
	if source.AudioCodec != "" || source.AudioSampleRate > 0 {
		seen := make(map[uint8]bool)
		for _, v := range videoVariants {
			if seen[v.VariantGroupID] {
				continue
			}
			seen[v.VariantGroupID] = true
			audioVariants = append(audioVariants, models.AudioVariant{
				ID:             uuid.New(),
				VariantGroupID: v.VariantGroupID,
				SrcIndex:       0,
				Codec:          DefaultAudioCodec,
				BitrateBps:     DefaultAudioBitrateBps,
				SampleRateHz:   48000,
				Channels:       2,
				SampleFormat:   "fltp",
			})
		}
	}

	// Step 7: collapse video variants sharing (height, bitrate, codec),
	// keeping the first and recording a reason for each one dropped.
	videoVariants, dedupReasons := dedupeVideoVariants(videoVariants)
	reasons = append(reasons, dedupReasons...)

	variants := make([]models.Variant, 0, len(videoVariants)+len(audioVariants))
	for _, v := range videoVariants {
		variants = append(variants, v)
	}
	for _, a := range audioVariants {
		variants = append(variants, a)
	}

	egress := []models.EgressKind{models.EgressKindHLS}
	for _, c := range caps {
		if c.Kind == models.CapabilityKindDVR {
			egress = append(egress, models.EgressKindDVR)
			break
		}
	}

	return models.PipelineConfig{
		Variants:         variants,
		Egress:           egress,
		SegmentLengthSec: e.segmentLengthSec,
		SkipReasons:      reasons,
	}, nil
}

// keyframeInterval rounds fps * segment length to the nearest natural
// number >= 1, per spec.md §3.
func keyframeInterval(fps, segmentLengthSec float64) int {
	n := int(fps*segmentLengthSec + 0.5)
	if n < 1 {
		n = 1
	}
	return n
}

// targetWidth picks a target width preserving source aspect ratio,
// rounded to even, per spec.md §4.2 step 5.
func targetWidth(srcW, srcH, targetH int) int {
	if srcW <= 0 || srcH <= 0 || targetH <= 0 {
		return 0
	}
	w := int(float64(srcW) * float64(targetH) / float64(srcH))
	if w%2 != 0 {
		w++
	}
	return w
}

// dedupKey identifies variants that would produce an identical encode.
type dedupKey struct {
	height  int
	bitrate int64
	codec   string
}

// dedupeVideoVariants collapses variants that share (height, bitrate,
// codec), keeping the first occurrence.
func dedupeVideoVariants(in []models.VideoVariant) ([]models.VideoVariant, []string) {
	seen := make(map[dedupKey]bool, len(in))
	out := make([]models.VideoVariant, 0, len(in))
	var reasons []string
	for _, v := range in {
		key := dedupKey{height: v.Height, bitrate: v.BitrateBps, codec: v.Codec}
		if seen[key] {
			reasons = append(reasons, fmt.Sprintf("deduplicated variant height=%d bitrate=%d codec=%s", v.Height, v.BitrateBps, v.Codec))
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out, reasons
}
