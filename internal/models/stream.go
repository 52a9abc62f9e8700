package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StreamState is the overseer-side lifecycle state of a live stream.
type StreamState int

const (
	// StreamStateUnknown is a legacy read state; never assigned on write.
	StreamStateUnknown StreamState = iota
	// StreamStatePlanned marks a stream row created ahead of first publish.
	StreamStatePlanned
	// StreamStateLive marks an actively publishing stream.
	StreamStateLive
	// StreamStateEnded is terminal.
	StreamStateEnded
)

func (s StreamState) String() string {
	switch s {
	case StreamStatePlanned:
		return "planned"
	case StreamStateLive:
		return "live"
	case StreamStateEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ParseStreamState parses the string form produced by String().
func ParseStreamState(s string) StreamState {
	switch s {
	case "planned":
		return StreamStatePlanned
	case "live":
		return StreamStateLive
	case "ended":
		return StreamStateEnded
	default:
		return StreamStateUnknown
	}
}

// Value implements driver.Valuer for database storage.
func (s StreamState) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner for database retrieval.
func (s *StreamState) Scan(value any) error {
	if value == nil {
		*s = StreamStateUnknown
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = ParseStreamState(v)
	case []byte:
		*s = ParseStreamState(string(v))
	default:
		return fmt.Errorf("streamstate: unsupported scan type %T", value)
	}
	return nil
}

// EgressKind is one output sink for a variant.
type EgressKind string

const (
	EgressKindHLS      EgressKind = "hls"
	EgressKindDVR      EgressKind = "dvr"
	EgressKindRecorder EgressKind = "recorder"
)

// StreamInfo is the overseer's in-memory record for one live stream.
// Created at admission, mutated only by the overseer, destroyed on
// end-of-stream.
type StreamInfo struct {
	StreamID   uuid.UUID
	UserID     string
	EndpointID string
	StartedAt  time.Time
	EndedAt    *time.Time
	Variants   []Variant
	Egress     []EgressKind
	NodeName   string
	State      StreamState
}

// Variant is a tagged sum type over VideoVariant and AudioVariant,
// mirroring the teacher's polymorphism-over-sum-types idiom.
type Variant interface {
	isVariant()
	VariantID() uuid.UUID
	GroupID() uint8
}

// VideoVariant is one encoded video rendition of the source. The group_id
// buckets variants that share an audio track in an HLS master playlist.
type VideoVariant struct {
	ID                     uuid.UUID
	VariantGroupID         uint8
	SrcIndex               int
	Codec                  string
	Width                  int
	Height                 int
	FPSNumerator           int
	FPSDenominator         int
	BitrateBps             int64
	KeyframeIntervalFrames int
	PixelFormat            string
	SampleAspect           string
	ColorSpace             string
	ColorRange             string
	Copy                   bool
}

func (VideoVariant) isVariant()             {}
func (v VideoVariant) VariantID() uuid.UUID { return v.ID }
func (v VideoVariant) GroupID() uint8       { return v.VariantGroupID }

// FPS returns the frame rate as a float64 ratio.
func (v VideoVariant) FPS() float64 {
	if v.FPSDenominator == 0 {
		return 0
	}
	return float64(v.FPSNumerator) / float64(v.FPSDenominator)
}

// AudioVariant is one encoded audio rendition of the source. Audio is
// always re-encoded, never copied, for codec-compatibility across variants.
type AudioVariant struct {
	ID             uuid.UUID
	VariantGroupID uint8
	SrcIndex       int
	Codec          string
	BitrateBps     int64
	SampleRateHz   int
	Channels       int
	SampleFormat   string
}

func (AudioVariant) isVariant()             {}
func (a AudioVariant) VariantID() uuid.UUID { return a.ID }
func (a AudioVariant) GroupID() uint8       { return a.VariantGroupID }
