package rtmp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFLVVideoPacket_Keyframe(t *testing.T) {
	// frame-type=1 (key), codec-id=7 (AVC); AVCPacketType=1 (NALU); composition time=0
	data := []byte{0x17, 0x01, 0x00, 0x00, 0x00, 0xDE, 0xAD, 0xBE, 0xEF}

	pkt, err := parseFLVVideoPacket(data)
	require.NoError(t, err)
	assert.True(t, pkt.IsKeyFrame)
	assert.False(t, pkt.IsSequenceHeader)
	assert.Equal(t, int32(0), pkt.CompositionTime)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, pkt.AVCC)
}

func TestParseFLVVideoPacket_SequenceHeader(t *testing.T) {
	// frame-type=1 (key), codec-id=7 (AVC); AVCPacketType=0 (sequence header)
	data := []byte{0x17, 0x00, 0x00, 0x00, 0x00, 0x01, 0x02, 0x03}

	pkt, err := parseFLVVideoPacket(data)
	require.NoError(t, err)
	assert.True(t, pkt.IsSequenceHeader)
}

func TestParseFLVVideoPacket_NegativeCompositionTime(t *testing.T) {
	// composition time -1 encoded as a signed 24-bit value (0xFFFFFF)
	data := []byte{0x27, 0x01, 0xFF, 0xFF, 0xFF, 0x00}

	pkt, err := parseFLVVideoPacket(data)
	require.NoError(t, err)
	assert.False(t, pkt.IsKeyFrame)
	assert.Equal(t, int32(-1), pkt.CompositionTime)
}

func TestParseFLVVideoPacket_UnsupportedCodec(t *testing.T) {
	data := []byte{0x12, 0x01, 0x00, 0x00, 0x00, 0xAA}

	_, err := parseFLVVideoPacket(data)
	assert.Error(t, err)
}

func TestParseFLVVideoPacket_TooShort(t *testing.T) {
	_, err := parseFLVVideoPacket([]byte{0x17, 0x01})
	assert.Error(t, err)
}

func TestParseAVCDecoderConfigurationRecord(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1F}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}

	data := []byte{
		0x01,       // configurationVersion
		0x42, 0x00, 0x1F, // profile/compat/level
		0xFF, // reserved(6) | lengthSizeMinusOne(2) = 0b11 -> length 4
		0xE1, // reserved(3) | numSPS(5) = 1
	}
	data = append(data, byte(len(sps)>>8), byte(len(sps)))
	data = append(data, sps...)
	data = append(data, 0x01) // numPPS = 1
	data = append(data, byte(len(pps)>>8), byte(len(pps)))
	data = append(data, pps...)

	cfg, err := parseAVCDecoderConfigurationRecord(data)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.NALUnitLength)
	require.Len(t, cfg.SPS, 1)
	require.Len(t, cfg.PPS, 1)
	assert.Equal(t, sps, cfg.SPS[0])
	assert.Equal(t, pps, cfg.PPS[0])
}

func TestParseAVCDecoderConfigurationRecord_TooShort(t *testing.T) {
	_, err := parseAVCDecoderConfigurationRecord([]byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestPrependAnnexB(t *testing.T) {
	frame := []byte{0xAA, 0xBB}
	sps := []byte{0x67, 0x01}
	pps := []byte{0x68, 0x02}

	out := prependAnnexB(frame, sps, pps)

	expected := []byte{
		0x00, 0x00, 0x00, 0x01, 0x67, 0x01,
		0x00, 0x00, 0x00, 0x01, 0x68, 0x02,
		0xAA, 0xBB,
	}
	assert.Equal(t, expected, out)
}

func TestParseFLVAudioPacket_AAC(t *testing.T) {
	// soundFormat=10 (AAC); AACPacketType=1 (raw)
	data := []byte{0xAF, 0x01, 0x11, 0x22, 0x33}

	pkt, err := parseFLVAudioPacket(data)
	require.NoError(t, err)
	assert.False(t, pkt.IsSequenceHeader)
	assert.Equal(t, []byte{0x11, 0x22, 0x33}, pkt.AACRaw)
}

func TestParseFLVAudioPacket_SequenceHeader(t *testing.T) {
	data := []byte{0xAF, 0x00, 0x12, 0x10}

	pkt, err := parseFLVAudioPacket(data)
	require.NoError(t, err)
	assert.True(t, pkt.IsSequenceHeader)
}

func TestParseFLVAudioPacket_UnsupportedFormat(t *testing.T) {
	// soundFormat=2 (MP3)
	data := []byte{0x2F, 0x00}

	_, err := parseFLVAudioPacket(data)
	assert.Error(t, err)
}

func TestParseFLVAudioPacket_TooShort(t *testing.T) {
	_, err := parseFLVAudioPacket([]byte{0xAF})
	assert.Error(t, err)
}
