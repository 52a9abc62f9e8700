package nostr

import (
	"fmt"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
)

// LiveEventStatus is the status tag value of a kind:30311 event.
type LiveEventStatus string

const (
	StatusPlanned LiveEventStatus = "planned"
	StatusLive    LiveEventStatus = "live"
	StatusEnded   LiveEventStatus = "ended"
)

// KindStreaming is the parameterized-replaceable live-streaming event
// kind defined by NIP-53.
const KindStreaming = 30311

// LiveEvent is the set of fields needed to build a kind:30311 event per
// spec.md §6's Nostr event contract.
type LiveEvent struct {
	StreamID         string
	Title            string
	Summary          string
	ImageURL         string
	Status           LiveEventStatus
	StartsUnix       int64
	EndsUnix         int64 // 0 if not ended
	StreamingURL     string
	CurrentParticipants int
	Hashtags         []string
}

// Build constructs the unsigned event for e, tagged as a parameterized
// replaceable event keyed by (pubkey, kind, d).
func (e LiveEvent) Build(pubkey string) nostr.Event {
	tags := nostr.Tags{
		nostr.Tag{"d", e.StreamID},
		nostr.Tag{"status", string(e.Status)},
		nostr.Tag{"starts", strconv.FormatInt(e.StartsUnix, 10)},
	}
	if e.Title != "" {
		tags = append(tags, nostr.Tag{"title", e.Title})
	}
	if e.Summary != "" {
		tags = append(tags, nostr.Tag{"summary", e.Summary})
	}
	if e.ImageURL != "" {
		tags = append(tags, nostr.Tag{"image", e.ImageURL})
	}
	if e.Status == StatusEnded && e.EndsUnix > 0 {
		tags = append(tags, nostr.Tag{"ends", strconv.FormatInt(e.EndsUnix, 10)})
	}
	if e.Status == StatusLive && e.StreamingURL != "" {
		tags = append(tags, nostr.Tag{"streaming", e.StreamingURL})
	}
	tags = append(tags, nostr.Tag{"current_participants", strconv.Itoa(e.CurrentParticipants)})
	for _, tag := range e.Hashtags {
		tags = append(tags, nostr.Tag{"t", tag})
	}

	return nostr.Event{
		PubKey:    pubkey,
		CreatedAt: nostr.Now(),
		Kind:      KindStreaming,
		Tags:      tags,
		Content:   fmt.Sprintf("%s: %s", e.Title, e.Summary),
	}
}
