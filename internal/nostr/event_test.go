package nostr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLiveEvent_Build_PlannedOmitsStreamingAndEnds(t *testing.T) {
	ev := LiveEvent{
		StreamID:   "abc123",
		Title:      "Test Stream",
		Summary:    "A test",
		Status:     StatusPlanned,
		StartsUnix: 1000,
		Hashtags:   []string{"gaming", "live"},
	}
	built := ev.Build("deadbeef")

	assert.Equal(t, KindStreaming, built.Kind)
	assert.Equal(t, "deadbeef", built.PubKey)

	var hasEnds, hasStreaming bool
	var dTag, statusTag string
	tCount := 0
	for _, tag := range built.Tags {
		switch tag[0] {
		case "d":
			dTag = tag[1]
		case "status":
			statusTag = tag[1]
		case "ends":
			hasEnds = true
		case "streaming":
			hasStreaming = true
		case "t":
			tCount++
		}
	}

	assert.Equal(t, "abc123", dTag)
	assert.Equal(t, "planned", statusTag)
	assert.False(t, hasEnds)
	assert.False(t, hasStreaming)
	assert.Equal(t, 2, tCount)
}

func TestLiveEvent_Build_LiveIncludesStreamingURL(t *testing.T) {
	ev := LiveEvent{
		StreamID:     "abc123",
		Status:       StatusLive,
		StartsUnix:   1000,
		StreamingURL: "https://example.com/live/abc123/master.m3u8",
	}
	built := ev.Build("deadbeef")

	var streamingURL string
	for _, tag := range built.Tags {
		if tag[0] == "streaming" {
			streamingURL = tag[1]
		}
	}
	assert.Equal(t, ev.StreamingURL, streamingURL)
}

func TestLiveEvent_Build_EndedIncludesEndsTag(t *testing.T) {
	ev := LiveEvent{
		StreamID:   "abc123",
		Status:     StatusEnded,
		StartsUnix: 1000,
		EndsUnix:   2000,
	}
	built := ev.Build("deadbeef")

	var endsTag string
	for _, tag := range built.Tags {
		if tag[0] == "ends" {
			endsTag = tag[1]
		}
	}
	assert.Equal(t, "2000", endsTag)
}
