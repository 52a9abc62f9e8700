package muxer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlaylist_WindowEviction(t *testing.T) {
	p := NewPlaylist(PlaylistConfig{Path: filepath.Join(t.TempDir(), "live.m3u8"), Window: 2})

	p.AppendSegment(PlaylistSegment{SequenceNo: 0, Filename: "seg-000000.m4s", DurationSec: 6})
	p.AppendSegment(PlaylistSegment{SequenceNo: 1, Filename: "seg-000001.m4s", DurationSec: 6})
	p.AppendSegment(PlaylistSegment{SequenceNo: 2, Filename: "seg-000002.m4s", DurationSec: 6})

	require.Len(t, p.segments, 2)
	assert.Equal(t, uint64(1), p.firstSeq)
	assert.Equal(t, "seg-000001.m4s", p.segments[0].Filename)
}

func TestPlaylist_FlushWritesExpectedTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.m3u8")
	p := NewPlaylist(PlaylistConfig{Path: path, TargetDurationSec: 6, Window: 10})
	p.AppendSegment(PlaylistSegment{SequenceNo: 0, Filename: "seg-000000.m4s", DurationSec: 5.994})

	require.NoError(t, p.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	assert.Contains(t, content, "#EXTM3U")
	assert.Contains(t, content, "#EXT-X-TARGETDURATION:6")
	assert.Contains(t, content, "#EXT-X-MEDIA-SEQUENCE:0")
	assert.Contains(t, content, `#EXT-X-MAP:URI="init.mp4"`)
	assert.Contains(t, content, "#EXTINF:5.994,")
	assert.Contains(t, content, "seg-000000.m4s")
	assert.NotContains(t, content, "#EXT-X-ENDLIST")
}

func TestPlaylist_CloseAddsEndlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.m3u8")
	p := NewPlaylist(PlaylistConfig{Path: path})
	p.AppendSegment(PlaylistSegment{SequenceNo: 0, Filename: "seg-000000.m4s", DurationSec: 6})
	p.Close()

	require.NoError(t, p.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "#EXT-X-ENDLIST")
}
