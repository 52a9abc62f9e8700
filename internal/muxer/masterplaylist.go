package muxer

import (
	"fmt"
	"strings"

	"github.com/jmylchreest/zapengine/internal/models"
)

// MasterPlaylistVariant is one #EXT-X-STREAM-INF entry's worth of
// information, gathered by the caller from models.VideoVariant/
// AudioVariant and the codec parameter sets captured during muxing.
type MasterPlaylistVariant struct {
	VariantID  string // relative path segment, e.g. the variant UUID
	BandwidthBps int64
	Width, Height int
	VideoCodec string // "h264" or "h265"
	H264SPS    []byte // set when VideoCodec == "h264"
	H265SPS    []byte // set when VideoCodec == "h265"
	AudioGroup string // group_id as a string, empty if this variant carries no audio
}

// MasterPlaylistAudioRendition is one #EXT-X-MEDIA audio rendition
// shared by every video variant in the same group.
type MasterPlaylistAudioRendition struct {
	GroupID  string
	VariantID string
	Default  bool
}

// MasterPlaylist generates and atomically writes a stream's top-level
// HLS playlist: one #EXT-X-STREAM-INF per video variant plus one
// #EXT-X-MEDIA audio rendition per audio group, per spec.md §4.4's
// master-playlist contract. New code — the teacher's gohlslib-based
// internal/relay/hls_muxer.go delegates master-playlist text generation
// to gohlslib.Muxer's internals, which are not invoked here since this
// package writes playlist files directly rather than running an HTTP
// muxer; the RFC 6381 CODECS= string is therefore computed directly from
// SPS bytes below rather than through gohlslib's codecs package, whose
// public surface (observed in hls_muxer.go) exposes Track/Codec value
// types for gohlslib.Muxer's own internal use, not a standalone
// codec-string formatter.
type MasterPlaylist struct {
	Path string
}

// Write renders and atomically writes the master playlist.
func (m MasterPlaylist) Write(variants []MasterPlaylistVariant, audio []MasterPlaylistAudioRendition) error {
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:7\n")

	for _, a := range audio {
		fmt.Fprintf(&b, "#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID=%q,NAME=%q,AUTOSELECT=YES", a.GroupID, "audio-"+a.GroupID)
		if a.Default {
			b.WriteString(",DEFAULT=YES")
		}
		fmt.Fprintf(&b, ",URI=%q\n", a.VariantID+"/live.m3u8")
	}

	for _, v := range variants {
		codecs := videoCodecString(v)
		fmt.Fprintf(&b, "#EXT-X-STREAM-INF:BANDWIDTH=%d", v.BandwidthBps)
		if v.Width > 0 && v.Height > 0 {
			fmt.Fprintf(&b, ",RESOLUTION=%dx%d", v.Width, v.Height)
		}
		if codecs != "" {
			fmt.Fprintf(&b, ",CODECS=%q", codecs)
		}
		if v.AudioGroup != "" {
			fmt.Fprintf(&b, ",AUDIO=%q", v.AudioGroup)
		}
		b.WriteByte('\n')
		fmt.Fprintf(&b, "%s/live.m3u8\n", v.VariantID)
	}

	return atomicWrite(m.Path, []byte(b.String()))
}

// videoCodecString computes the RFC 6381 codec parameter
// ("avc1.PPCCLL" / "hvc1.P.T.L") from the variant's cached SPS, falling
// back to the bare codec family tag when SPS bytes are not yet captured.
func videoCodecString(v MasterPlaylistVariant) string {
	switch v.VideoCodec {
	case "h264":
		if len(v.H264SPS) >= 4 {
			return fmt.Sprintf("avc1.%02X%02X%02X", v.H264SPS[1], v.H264SPS[2], v.H264SPS[3])
		}
		return "avc1"
	case "h265":
		if len(v.H265SPS) >= 4 {
			// General profile/level space is complex; report the
			// common Main profile, general tier flag 0.
			return fmt.Sprintf("hvc1.1.6.L%d.B0", v.H265SPS[3])
		}
		return "hvc1"
	default:
		return ""
	}
}

// BuildMasterPlaylistVariants is a convenience constructor for the
// common case where the caller already has the stream's
// models.PipelineConfig and per-variant codec parameter sets gathered
// from the Writer during encoding.
func BuildMasterPlaylistVariants(variants []models.Variant, h264SPS, h265SPS map[string][]byte) []MasterPlaylistVariant {
	out := make([]MasterPlaylistVariant, 0, len(variants))
	for _, v := range variants {
		vv, ok := v.(models.VideoVariant)
		if !ok {
			continue
		}
		id := vv.ID.String()
		mv := MasterPlaylistVariant{
			VariantID:    id,
			BandwidthBps: vv.BitrateBps,
			Width:        vv.Width,
			Height:       vv.Height,
			VideoCodec:   vv.Codec,
			H264SPS:      h264SPS[id],
			H265SPS:      h265SPS[id],
			AudioGroup:   fmt.Sprintf("audio-%d", vv.VariantGroupID),
		}
		out = append(out, mv)
	}
	return out
}
