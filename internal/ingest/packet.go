package ingest

// Kind distinguishes the elementary stream a Packet belongs to.
type Kind uint8

const (
	KindVideo Kind = iota
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// Packet is one demuxed elementary-stream access unit, timestamped on a
// 90kHz clock regardless of the wire transport it arrived on (RTMP's
// millisecond timestamps are rescaled at the FLV boundary, MPEG-TS PTS/DTS
// pass through unchanged).
type Packet struct {
	Kind Kind
	// PTS and DTS are in 90kHz ticks.
	PTS int64
	DTS int64
	// Data holds the access unit payload. For video this is Annex-B
	// formatted (start-code delimited NAL units); callers that need AVCC
	// use internal/ingest/rtmp's conversion helpers explicitly.
	Data []byte
	// KeyFrame is true for a video access unit containing an IDR NAL.
	KeyFrame bool
}
