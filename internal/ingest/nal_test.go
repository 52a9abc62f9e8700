package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func annexB(nals ...[]byte) []byte {
	var out []byte
	for _, nal := range nals {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, nal...)
	}
	return out
}

func TestSplitAnnexB(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1F}
	idr := []byte{0x65, 0xAB, 0xCD}

	units, err := SplitAnnexB(annexB(sps, idr))
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, sps, units[0])
	assert.Equal(t, idr, units[1])
}

func TestIsKeyframeAnnexB_H264(t *testing.T) {
	idr := []byte{0x65, 0xAB} // NAL type 5 = IDR
	nonIDR := []byte{0x61, 0xAB} // NAL type 1 = non-IDR slice

	assert.True(t, IsKeyframeAnnexB([][]byte{idr}, "h264"))
	assert.False(t, IsKeyframeAnnexB([][]byte{nonIDR}, "h264"))
}

func TestIsKeyframeAnnexB_H265(t *testing.T) {
	// NAL header is 2 bytes; type occupies bits 1-6 of the first byte.
	idrWRADL := []byte{19 << 1, 0x00, 0xAB} // IDR_W_RADL (19) -> IRAP
	trailR := []byte{0 << 1, 0x00, 0xAB}    // TRAIL_R (0) -> not IRAP
	rasl := []byte{9 << 1, 0x00, 0xAB}      // RASL_R (9) -> not IRAP

	assert.True(t, IsKeyframeAnnexB([][]byte{idrWRADL}, "h265"))
	assert.False(t, IsKeyframeAnnexB([][]byte{trailR}, "h265"))
	assert.False(t, IsKeyframeAnnexB([][]byte{rasl}, "h265"))
}

func TestIsKeyframeAnnexB_Empty(t *testing.T) {
	assert.False(t, IsKeyframeAnnexB(nil, "h264"))
	assert.False(t, IsKeyframeAnnexB([][]byte{{}}, "h264"))
}
