package srt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamID_EndpointAndStreamKey(t *testing.T) {
	endpoint, streamKey, err := parseStreamID("basic/secret-key")
	require.NoError(t, err)
	assert.Equal(t, "basic", endpoint)
	assert.Equal(t, "secret-key", streamKey)
}

func TestParseStreamID_RejectsBareStreamKey(t *testing.T) {
	_, _, err := parseStreamID("only-one-segment")
	assert.Error(t, err)
}

func TestParseStreamID_RejectsExtraComponents(t *testing.T) {
	_, _, err := parseStreamID("basic/nested/secret-key")
	assert.Error(t, err)
}

func TestParseStreamID_RejectsEmptyComponents(t *testing.T) {
	_, _, err := parseStreamID("/secret-key")
	assert.Error(t, err)

	_, _, err = parseStreamID("basic/")
	assert.Error(t, err)
}
