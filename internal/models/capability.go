package models

import (
	"fmt"
	"strconv"
	"strings"
)

// CapabilityKind tags which variant of Capability is set.
type CapabilityKind int

const (
	// CapabilityKindVariantSource requests a copy-through variant of the
	// source, untranscoded.
	CapabilityKindVariantSource CapabilityKind = iota
	// CapabilityKindVariant requests a transcoded variant at a target
	// height and video bitrate.
	CapabilityKindVariant
	// CapabilityKindDVR requests the given height be recorded.
	CapabilityKindDVR
)

func (k CapabilityKind) String() string {
	switch k {
	case CapabilityKindVariantSource:
		return "variant:source"
	case CapabilityKindVariant:
		return "variant"
	case CapabilityKindDVR:
		return "dvr"
	default:
		return "unknown"
	}
}

// Capability is one parsed entry of an IngestEndpoint's capability list:
// "variant:source", "variant:{height}:{bitrate_bps}", or "dvr:{height}".
type Capability struct {
	Kind       CapabilityKind
	Height     int
	BitrateBps int64
}

// String renders the capability back to its wire form. Round-tripping
// ParseCapability(c.String()) yields an equal Capability.
func (c Capability) String() string {
	switch c.Kind {
	case CapabilityKindVariantSource:
		return "variant:source"
	case CapabilityKindVariant:
		return fmt.Sprintf("variant:%d:%d", c.Height, c.BitrateBps)
	case CapabilityKindDVR:
		return fmt.Sprintf("dvr:%d", c.Height)
	default:
		return ""
	}
}

// ParseCapability parses a single capability string. An error is returned
// both for a recognized prefix with a malformed body and for an entirely
// unknown prefix; ParseCapabilities skips either kind rather than failing.
func ParseCapability(s string) (Capability, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) == 0 {
		return Capability{}, fmt.Errorf("capability: empty entry")
	}

	switch parts[0] {
	case "variant":
		if len(parts) == 2 && parts[1] == "source" {
			return Capability{Kind: CapabilityKindVariantSource}, nil
		}
		if len(parts) == 3 {
			height, err := strconv.Atoi(parts[1])
			if err != nil {
				return Capability{}, fmt.Errorf("capability: bad height in %q: %w", s, err)
			}
			bitrate, err := strconv.ParseInt(parts[2], 10, 64)
			if err != nil {
				return Capability{}, fmt.Errorf("capability: bad bitrate in %q: %w", s, err)
			}
			return Capability{Kind: CapabilityKindVariant, Height: height, BitrateBps: bitrate}, nil
		}
		return Capability{}, fmt.Errorf("capability: malformed variant entry %q", s)
	case "dvr":
		if len(parts) != 2 {
			return Capability{}, fmt.Errorf("capability: malformed dvr entry %q", s)
		}
		height, err := strconv.Atoi(parts[1])
		if err != nil {
			return Capability{}, fmt.Errorf("capability: bad height in %q: %w", s, err)
		}
		return Capability{Kind: CapabilityKindDVR, Height: height}, nil
	default:
		return Capability{}, fmt.Errorf("capability: unrecognized prefix %q", s)
	}
}

// ParseCapabilities parses a list of capability strings, skipping (not
// erroring on) entries that fail to parse, whether for an unrecognized
// prefix or a malformed body. The skipped entries are
// returned alongside the parsed set so the caller can log them.
func ParseCapabilities(entries []string) (caps []Capability, skipped []string) {
	for _, entry := range entries {
		cap, err := ParseCapability(entry)
		if err != nil {
			skipped = append(skipped, entry)
			continue
		}
		caps = append(caps, cap)
	}
	return caps, skipped
}

// HasVariant reports whether the capability set has at least one
// variant:* entry (variant:source or variant:{h}:{br}).
func HasVariant(caps []Capability) bool {
	for _, c := range caps {
		if c.Kind == CapabilityKindVariantSource || c.Kind == CapabilityKindVariant {
			return true
		}
	}
	return false
}
