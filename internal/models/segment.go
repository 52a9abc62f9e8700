package models

import "github.com/google/uuid"

// SegmentInfo describes one finalized fMP4 media segment. sequence_no is
// strictly increasing per variant starting at 0. A segment is only
// finalized on a keyframe boundary and therefore always starts with an IDR
// except the init segment.
type SegmentInfo struct {
	VariantID       uuid.UUID
	SequenceNo      uint64
	StartPTS90k     int64
	DurationSeconds float32
	ByteSize        uint64
	Path            string
	ContainsIDR     bool
}
