package ingest

import (
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h265"
)

// AVCCToAnnexB converts a length-prefixed (AVCC) access unit, as delivered
// by RTMP's FLV video tags, to start-code-delimited Annex-B, the wire
// format Packet.Data always carries. Grounded on
// internal/relay/fmp4_adapter.go's extractNALUnitsFromData AVCC branch.
func AVCCToAnnexB(data []byte) ([]byte, error) {
	var avcc h264.AVCC
	if err := avcc.Unmarshal(data); err != nil {
		return nil, err
	}
	return h264.AnnexB(avcc).Marshal()
}

// SplitAnnexB splits an Annex-B access unit into its constituent NAL
// units.
func SplitAnnexB(data []byte) ([][]byte, error) {
	var au h264.AnnexB
	if err := au.Unmarshal(data); err != nil {
		return nil, err
	}
	return au, nil
}

// IsKeyframeAnnexB reports whether an Annex-B access unit contains an IDR
// (H.264) or an IRAP VCL NAL unit (H.265), grounded on
// internal/relay/video_params.go's IsH265IDR: the IRAP range runs from
// BLA_W_LP (16) through CRA_NUT (21) inclusive; the reserved IRAP types
// RSV_IRAP_VCL22 and RSV_IRAP_VCL23 (22, 23) are not treated as keyframes.
func IsKeyframeAnnexB(units [][]byte, codec string) bool {
	for _, nal := range units {
		if len(nal) == 0 {
			continue
		}
		switch codec {
		case "h265":
			if len(nal) < 2 {
				continue
			}
			naluType := h265.NALUType((nal[0] >> 1) & 0x3F)
			if naluType >= h265.NALUType_BLA_W_LP && naluType <= h265.NALUType_CRA_NUT {
				return true
			}
		default:
			naluType := h264.NALUType(nal[0] & 0x1F)
			if naluType == h264.NALUTypeIDR {
				return true
			}
		}
	}
	return false
}
