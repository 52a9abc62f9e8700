package models

// SourceMeta describes the A/V characteristics of an ingress source,
// discovered from the first parsed packets (or known pre-connect for some
// transports).
type SourceMeta struct {
	VideoWidth      int
	VideoHeight     int
	VideoFPS        float64 // 0 if undetected; callers default to 30
	VideoCodec      string
	VideoPixFmt     string
	VideoColorSpace string
	VideoColorRange string
	AudioSampleRate int
	AudioChannels   int
	AudioCodec      string
}

// PipelineConfig is the result of the variant/egress configuration engine:
// the concrete set of variants and egresses a pipeline runner should build
// for a stream.
type PipelineConfig struct {
	Variants         []Variant
	Egress           []EgressKind
	SegmentLengthSec float64
	SkipReasons      []string
}
