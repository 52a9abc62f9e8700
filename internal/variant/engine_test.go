package variant

import (
	"testing"

	"github.com/jmylchreest/zapengine/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func endpoint(caps ...string) models.IngestEndpoint {
	return models.IngestEndpoint{Name: "Basic", Capabilities: caps}
}

func TestEngine_HappyPath_SourceOnly(t *testing.T) {
	e := New(nil, 0)
	source := models.SourceMeta{VideoWidth: 1280, VideoHeight: 720, VideoFPS: 30, VideoCodec: "h264", AudioCodec: "aac"}

	cfg, err := e.Compute(endpoint("variant:source"), source)
	require.NoError(t, err)
	assert.Equal(t, DefaultSegmentLengthSeconds, cfg.SegmentLengthSec)

	var video []models.VideoVariant
	for _, v := range cfg.Variants {
		if vv, ok := v.(models.VideoVariant); ok {
			video = append(video, vv)
		}
	}
	require.Len(t, video, 1)
	assert.True(t, video[0].Copy)
	assert.Equal(t, 720, video[0].Height)
	assert.Equal(t, 1280, video[0].Width)
}

func TestEngine_UpscalePrevention(t *testing.T) {
	e := New(nil, 0)
	source := models.SourceMeta{VideoWidth: 854, VideoHeight: 480, VideoFPS: 30, VideoCodec: "h264"}

	cfg, err := e.Compute(endpoint("variant:source", "variant:1080:5000000", "variant:480:1500000"), source)
	require.NoError(t, err)

	var video []models.VideoVariant
	for _, v := range cfg.Variants {
		if vv, ok := v.(models.VideoVariant); ok {
			video = append(video, vv)
		}
	}
	require.Len(t, video, 2)
	for _, v := range video {
		assert.LessOrEqual(t, v.Height, source.VideoHeight)
	}
	assert.Contains(t, cfg.SkipReasons, "skipping variant 1080 (upscale)")
}

func TestEngine_NoVariantCapability_Fails(t *testing.T) {
	e := New(nil, 0)
	_, err := e.Compute(endpoint("dvr:720"), models.SourceMeta{})
	assert.Error(t, err)
}

func TestEngine_UndetectedFPSDefaultsTo30(t *testing.T) {
	e := New(nil, 2)
	source := models.SourceMeta{VideoWidth: 1920, VideoHeight: 1080, VideoFPS: 0}

	cfg, err := e.Compute(endpoint("variant:source"), source)
	require.NoError(t, err)

	vv := cfg.Variants[0].(models.VideoVariant)
	assert.Equal(t, 60, vv.KeyframeIntervalFrames)
}

func TestEngine_AudioVariantSharedPerGroup(t *testing.T) {
	e := New(nil, 0)
	source := models.SourceMeta{VideoWidth: 1920, VideoHeight: 1080, VideoFPS: 30, AudioCodec: "aac", AudioSampleRate: 48000}

	cfg, err := e.Compute(endpoint("variant:source", "variant:720:2500000"), source)
	require.NoError(t, err)

	var video []models.VideoVariant
	var audio []models.AudioVariant
	for _, v := range cfg.Variants {
		switch vv := v.(type) {
		case models.VideoVariant:
			video = append(video, vv)
		case models.AudioVariant:
			audio = append(audio, vv)
		}
	}
	require.Len(t, video, 2)
	require.Len(t, audio, 1, "one audio variant must be shared across every video variant of the group")
	assert.Equal(t, DefaultAudioCodec, audio[0].Codec)
	for _, v := range video {
		assert.Equal(t, audio[0].VariantGroupID, v.VariantGroupID, "video variants from the same source must share the audio variant's group")
	}
}

func TestEngine_DeduplicatesIdenticalEncodes(t *testing.T) {
	e := New(nil, 0)
	source := models.SourceMeta{VideoWidth: 1920, VideoHeight: 1080, VideoFPS: 30}

	cfg, err := e.Compute(endpoint("variant:720:2500000", "variant:720:2500000"), source)
	require.NoError(t, err)

	var video []models.VideoVariant
	for _, v := range cfg.Variants {
		if vv, ok := v.(models.VideoVariant); ok {
			video = append(video, vv)
		}
	}
	assert.Len(t, video, 1)
	assert.NotEmpty(t, cfg.SkipReasons)
}
