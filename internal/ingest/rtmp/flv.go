package rtmp

import (
	"encoding/binary"
	"fmt"
)

// videoPacket is the result of parsing one FLV VIDEODATA tag payload (the
// bytes go-rtmp's OnVideo delivers), per the FLV spec's AVCVIDEOPACKET
// layout: 1 byte frame-type|codec-id, 1 byte AVCPacketType, 3 bytes
// composition time, then either an AVCDecoderConfigurationRecord
// (AVCPacketType==0) or AVCC NAL data (AVCPacketType==1).
type videoPacket struct {
	IsKeyFrame       bool
	IsSequenceHeader bool
	CompositionTime  int32
	AVCC             []byte
}

const (
	avcPacketTypeSequenceHeader = 0
	avcPacketTypeNALU           = 1
)

// parseFLVVideoPacket parses a raw FLV VIDEODATA tag body, grounded on
// the teacher-selected other_examples/adarshm11-RapidRTMP handler's
// muxer.ParseFLVVideoPacket call shape (frame-type/codec-id byte, then
// AVCPacketType + composition time + payload).
func parseFLVVideoPacket(data []byte) (videoPacket, error) {
	if len(data) < 5 {
		return videoPacket{}, fmt.Errorf("rtmp: video packet too short (%d bytes)", len(data))
	}

	frameType := (data[0] >> 4) & 0x0F
	codecID := data[0] & 0x0F
	if codecID != 7 && codecID != 12 {
		return videoPacket{}, fmt.Errorf("rtmp: unsupported video codec id %d (only AVC/HEVC supported)", codecID)
	}

	avcPacketType := data[1]
	compositionTime := int32(data[2])<<16 | int32(data[3])<<8 | int32(data[4])
	// Composition time is a signed 24-bit value; sign-extend if needed.
	if compositionTime&0x800000 != 0 {
		compositionTime |= ^int32(0xFFFFFF)
	}

	return videoPacket{
		IsKeyFrame:       frameType == 1,
		IsSequenceHeader: avcPacketType == avcPacketTypeSequenceHeader,
		CompositionTime:  compositionTime,
		AVCC:             data[5:],
	}, nil
}

// avcDecoderConfig holds the SPS/PPS extracted from an
// AVCDecoderConfigurationRecord (the sequence-header payload).
type avcDecoderConfig struct {
	NALUnitLength int
	SPS           [][]byte
	PPS           [][]byte
}

// parseAVCDecoderConfigurationRecord parses ISO 14496-15's
// AVCDecoderConfigurationRecord, delivered as the FLV sequence-header
// payload.
func parseAVCDecoderConfigurationRecord(data []byte) (avcDecoderConfig, error) {
	if len(data) < 6 {
		return avcDecoderConfig{}, fmt.Errorf("rtmp: AVCDecoderConfigurationRecord too short")
	}

	cfg := avcDecoderConfig{NALUnitLength: int(data[4]&0x03) + 1}
	offset := 5

	numSPS := int(data[offset] & 0x1F)
	offset++
	for i := 0; i < numSPS && offset+2 <= len(data); i++ {
		length := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+length > len(data) {
			break
		}
		cfg.SPS = append(cfg.SPS, data[offset:offset+length])
		offset += length
	}

	if offset >= len(data) {
		return cfg, nil
	}
	numPPS := int(data[offset])
	offset++
	for i := 0; i < numPPS && offset+2 <= len(data); i++ {
		length := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if offset+length > len(data) {
			break
		}
		cfg.PPS = append(cfg.PPS, data[offset:offset+length])
		offset += length
	}

	return cfg, nil
}

// prependAnnexB prepends the given NAL units (already Annex-B start-code
// delimited via the caller) ahead of frameData. Used to carry SPS/PPS on
// every keyframe, since HLS players expect in-band parameter sets.
func prependAnnexB(frameData []byte, nalUnits ...[]byte) []byte {
	startCode := []byte{0x00, 0x00, 0x00, 0x01}
	var out []byte
	for _, nal := range nalUnits {
		out = append(out, startCode...)
		out = append(out, nal...)
	}
	out = append(out, frameData...)
	return out
}

// audioPacket is the result of parsing one FLV AUDIODATA tag payload.
type audioPacket struct {
	IsSequenceHeader bool
	AACRaw           []byte
}

const (
	soundFormatAAC      = 10
	aacPacketTypeSeqHdr = 0
)

// parseFLVAudioPacket parses a raw FLV AUDIODATA tag body. Only AAC
// (SoundFormat 10) is supported; all other formats return an error so the
// caller can drop the packet with a warning.
func parseFLVAudioPacket(data []byte) (audioPacket, error) {
	if len(data) < 2 {
		return audioPacket{}, fmt.Errorf("rtmp: audio packet too short (%d bytes)", len(data))
	}

	soundFormat := (data[0] >> 4) & 0x0F
	if soundFormat != soundFormatAAC {
		return audioPacket{}, fmt.Errorf("rtmp: unsupported audio sound format %d (only AAC supported)", soundFormat)
	}

	return audioPacket{
		IsSequenceHeader: data[1] == aacPacketTypeSeqHdr,
		AACRaw:           data[2:],
	}, nil
}
