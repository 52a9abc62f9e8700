package pipeline

import (
	"fmt"
	"io"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/mpeg4audio"
	"github.com/bluenviron/mediacommon/v2/pkg/formats/mpegts"

	"github.com/jmylchreest/zapengine/internal/ingest"
)

// tsMuxerVideoPID/tsMuxerAudioPID mirror internal/relay/ts_muxer.go's
// fixed PID assignment.
const (
	tsMuxerVideoPID = 0x0100
	tsMuxerAudioPID = 0x0101
)

// tsMux feeds ingest.Packets (Annex-B video, raw or ADTS-framed AAC
// audio) into a bluenviron/mediacommon mpegts.Writer, producing the
// stdin stream for a Transcoder's ffmpeg subprocess. Grounded directly
// on internal/relay/ts_muxer.go's TSMuxer (track setup, keyframe
// parameter-set prepending, WriteH264/WriteH265/WriteMPEG4Audio
// dispatch), trimmed to this package's single-direction (encode-feed)
// use case and re-targeted at ingest.Packet instead of the teacher's ES
// sample types.
type tsMux struct {
	mu          sync.Mutex
	initialized bool

	videoCodec string // "h264" or "h265"
	sps, pps   []byte
	vps        []byte

	writer     *mpegts.Writer
	videoTrack *mpegts.Track
	audioTrack *mpegts.Track
}

// newTSMux constructs a tsMux writing to w. videoCodec is "h264" or
// "h265" and is ignored when hasVideo is false. One feed mux exists per
// transcoded variant: a video-only mux for a transcoded video variant's
// ffmpeg instance, or an audio-only mux for the shared audio-group
// transcoder, since spec.md §4.2 computes audio variants independently
// of video variants.
func newTSMux(w io.Writer, videoCodec string, hasVideo, hasAudio bool) *tsMux {
	if videoCodec == "" {
		videoCodec = "h264"
	}

	m := &tsMux{videoCodec: videoCodec}
	var tracks []*mpegts.Track

	if hasVideo {
		var videoCodecImpl mpegts.Codec
		if videoCodec == "h265" {
			videoCodecImpl = &mpegts.CodecH265{}
		} else {
			videoCodecImpl = &mpegts.CodecH264{}
		}
		m.videoTrack = &mpegts.Track{PID: tsMuxerVideoPID, Codec: videoCodecImpl}
		tracks = append(tracks, m.videoTrack)
	}

	if hasAudio {
		m.audioTrack = &mpegts.Track{
			PID: tsMuxerAudioPID,
			Codec: &mpegts.CodecMPEG4Audio{Config: mpeg4audio.AudioSpecificConfig{
				Type:         mpeg4audio.ObjectTypeAACLC,
				SampleRate:   48000,
				ChannelCount: 2,
			}},
		}
		tracks = append(tracks, m.audioTrack)
	}

	m.writer = &mpegts.Writer{W: w, Tracks: tracks}
	return m
}

func (m *tsMux) ensureInitialized() error {
	if m.initialized {
		return nil
	}
	if err := m.writer.Initialize(); err != nil {
		return fmt.Errorf("pipeline: initializing mpegts writer: %w", err)
	}
	m.initialized = true
	return nil
}

// WritePacket muxes one ingest.Packet. Video keyframes have SPS/PPS
// (and VPS for H.265) prepended if not already present in the access
// unit, mirroring ts_muxer.go's per-keyframe parameter-set insurance.
func (m *tsMux) WritePacket(pkt *ingest.Packet) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureInitialized(); err != nil {
		return err
	}

	switch pkt.Kind {
	case ingest.KindVideo:
		return m.writeVideo(pkt)
	case ingest.KindAudio:
		return m.writeAudio(pkt)
	default:
		return nil
	}
}

func (m *tsMux) writeVideo(pkt *ingest.Packet) error {
	au, err := ingest.SplitAnnexB(pkt.Data)
	if err != nil || len(au) == 0 {
		au = [][]byte{pkt.Data}
	}

	m.rememberParamSets(au)
	if pkt.KeyFrame {
		au = m.prependParamSets(au)
	}

	if m.videoCodec == "h265" {
		return m.writer.WriteH265(m.videoTrack, pkt.PTS, pkt.DTS, au)
	}
	return m.writer.WriteH264(m.videoTrack, pkt.PTS, pkt.DTS, au)
}

func (m *tsMux) writeAudio(pkt *ingest.Packet) error {
	if m.audioTrack == nil || len(pkt.Data) == 0 {
		return nil
	}
	frames := extractRawAACFrames(pkt.Data)
	if len(frames) == 0 {
		return nil
	}
	return m.writer.WriteMPEG4Audio(m.audioTrack, pkt.PTS, frames)
}

// rememberParamSets caches the most recent VPS/SPS/PPS seen, so
// prependParamSets can reinsert them on later keyframes that omit them
// (common with encoders that only send parameter sets once).
func (m *tsMux) rememberParamSets(au [][]byte) {
	for _, nal := range au {
		if len(nal) == 0 {
			continue
		}
		if m.videoCodec == "h265" {
			if len(nal) < 2 {
				continue
			}
			switch (nal[0] >> 1) & 0x3F {
			case 32: // VPS_NUT
				m.vps = nal
			case 33: // SPS_NUT
				m.sps = nal
			case 34: // PPS_NUT
				m.pps = nal
			}
			continue
		}
		switch nal[0] & 0x1F {
		case 7:
			m.sps = nal
		case 8:
			m.pps = nal
		}
	}
}

func (m *tsMux) prependParamSets(au [][]byte) [][]byte {
	var paramSets [][]byte
	if m.videoCodec == "h265" {
		if m.vps != nil {
			paramSets = append(paramSets, m.vps)
		}
	}
	if m.sps != nil {
		paramSets = append(paramSets, m.sps)
	}
	if m.pps != nil {
		paramSets = append(paramSets, m.pps)
	}
	if len(paramSets) == 0 {
		return au
	}
	return append(paramSets, au...)
}

// extractRawAACFrames strips ADTS framing if present, grounded on
// internal/relay/ts_muxer.go's extractADTSFrames; returns the input
// unchanged (wrapped in a single-element slice) if it is already raw.
func extractRawAACFrames(data []byte) [][]byte {
	if len(data) < 7 || data[0] != 0xFF || (data[1]&0xF0) != 0xF0 {
		return [][]byte{data}
	}

	var frames [][]byte
	offset := 0
	for offset+7 <= len(data) {
		if data[offset] != 0xFF || (data[offset+1]&0xF0) != 0xF0 {
			offset++
			continue
		}
		protectionAbsent := data[offset+1]&0x01 != 0
		headerSize := 7
		if !protectionAbsent {
			headerSize = 9
		}
		frameLen := int(data[offset+3]&0x03)<<11 | int(data[offset+4])<<3 | int(data[offset+5]>>5)
		if frameLen < headerSize || offset+frameLen > len(data) {
			break
		}
		frames = append(frames, data[offset+headerSize:offset+frameLen])
		offset += frameLen
	}
	return frames
}
