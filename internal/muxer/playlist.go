package muxer

import (
	"fmt"
	"strings"
	"sync"
)

// defaultPlaylistWindow is the number of most-recent segments kept in a
// rolling media playlist, per spec.md §4.4's "N most recent segments"
// (the teacher's equivalent, processor_hls_fmp4.go's PlaylistSegments,
// defaults to 3-5; this package defaults slightly higher since on-disk
// segments are cheaper to retain than in-memory ones).
const defaultPlaylistWindow = 10

// PlaylistSegment is one line pair (#EXTINF + filename) in a media
// playlist.
type PlaylistSegment struct {
	SequenceNo  uint64
	Filename    string
	DurationSec float64
}

// PlaylistConfig configures one variant's rolling media playlist.
type PlaylistConfig struct {
	// Path is the absolute file path the playlist is written to, via
	// atomic write-temp-then-rename on every Flush.
	Path string
	// TargetDurationSec is the HLS #EXT-X-TARGETDURATION value.
	TargetDurationSec int
	// Window bounds how many of the most recent segments are listed.
	// Defaults to defaultPlaylistWindow.
	Window int
}

// Playlist is one variant's rolling HLS media playlist, grounded
// line-for-line on internal/relay/processor_hls_fmp4.go's ServeManifest,
// adapted from in-memory HTTP serving to a file kept current with an
// atomic write-temp-then-rename on every sealed segment (mirroring the
// overseer's own thumbnail-write convention, spec.md §4.5).
type Playlist struct {
	cfg PlaylistConfig

	mu       sync.Mutex
	segments []PlaylistSegment
	firstSeq uint64
	ended    bool
}

// NewPlaylist constructs a Playlist. Nothing is written to disk until
// the first AppendSegment/Flush call.
func NewPlaylist(cfg PlaylistConfig) *Playlist {
	if cfg.Window <= 0 {
		cfg.Window = defaultPlaylistWindow
	}
	if cfg.TargetDurationSec <= 0 {
		cfg.TargetDurationSec = 6
	}
	return &Playlist{cfg: cfg}
}

// AppendSegment records a newly sealed segment, evicting the oldest once
// the window is exceeded. #EXT-X-MEDIA-SEQUENCE tracks the first segment
// still listed, per spec.md §4.4 "incrementing with each drop".
func (p *Playlist) AppendSegment(seg PlaylistSegment) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.segments = append(p.segments, seg)
	for len(p.segments) > p.cfg.Window {
		p.segments = p.segments[1:]
	}
	p.firstSeq = p.segments[0].SequenceNo
}

// Close marks the playlist terminal: the next Flush writes
// #EXT-X-ENDLIST, per spec.md §4.3's Draining shutdown and §9's
// "late viewers see #EXT-X-ENDLIST rather than a stall" property.
func (p *Playlist) Close() {
	p.mu.Lock()
	p.ended = true
	p.mu.Unlock()
}

// Flush (re)writes the playlist file from current state.
func (p *Playlist) Flush() error {
	p.mu.Lock()
	var b strings.Builder
	b.WriteString("#EXTM3U\n")
	b.WriteString("#EXT-X-VERSION:7\n")
	fmt.Fprintf(&b, "#EXT-X-TARGETDURATION:%d\n", p.cfg.TargetDurationSec)
	fmt.Fprintf(&b, "#EXT-X-MEDIA-SEQUENCE:%d\n", p.firstSeq)
	b.WriteString("#EXT-X-MAP:URI=\"init.mp4\"\n")
	for _, seg := range p.segments {
		fmt.Fprintf(&b, "#EXTINF:%.3f,\n", seg.DurationSec)
		b.WriteString(seg.Filename)
		b.WriteByte('\n')
	}
	if p.ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	content := b.String()
	p.mu.Unlock()

	return atomicWrite(p.cfg.Path, []byte(content))
}
