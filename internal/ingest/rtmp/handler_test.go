package rtmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePublishingName_EndpointAndStreamKey(t *testing.T) {
	streamKey, endpoint, err := parsePublishingName("basic/secret-key")
	require.NoError(t, err)
	assert.Equal(t, "secret-key", streamKey)
	assert.Equal(t, "basic", endpoint)
}

func TestParsePublishingName_RejectsBareStreamKey(t *testing.T) {
	_, _, err := parsePublishingName("only-one-segment")
	assert.Error(t, err)
}

func TestParsePublishingName_RejectsExtraComponents(t *testing.T) {
	_, _, err := parsePublishingName("basic/nested/secret-key")
	assert.Error(t, err)
}

func TestParsePublishingName_RejectsEmptyComponents(t *testing.T) {
	_, _, err := parsePublishingName("/secret-key")
	assert.Error(t, err)

	_, _, err = parsePublishingName("basic/")
	assert.Error(t, err)
}
