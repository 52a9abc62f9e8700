package overseer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// StreamHandle is the overseer's process-wide handle to one live pipeline
// runner. Per spec.md §3 ("The overseer holds only handles to streams...
// it never holds codec state"), it carries only coordination state.
type StreamHandle struct {
	StreamID   uuid.UUID
	UserID     uuid.UUID
	EndpointID string
	NodeName   string
	StartedAt  time.Time

	shouldStop atomic.Bool
	stopReason atomic.Value // string
}

// RequestStop sets the should_stop flag observed by the pipeline runner
// at each loop head, per spec.md §5's cancellation model.
func (h *StreamHandle) RequestStop(reason string) {
	h.stopReason.Store(reason)
	h.shouldStop.Store(true)
}

// ShouldStop reports whether termination has been requested, and why.
func (h *StreamHandle) ShouldStop() (bool, string) {
	if !h.shouldStop.Load() {
		return false, ""
	}
	reason, _ := h.stopReason.Load().(string)
	return true, reason
}

// Registry is the process-wide, lock-guarded table of live streams,
// grounded on the teacher's RWMutex-guarded concurrency idiom in
// internal/relay/session.go and internal/relay/types.go.
type Registry struct {
	mu      sync.RWMutex
	streams map[uuid.UUID]*StreamHandle
}

// NewRegistry creates an empty stream registry.
func NewRegistry() *Registry {
	return &Registry{streams: make(map[uuid.UUID]*StreamHandle)}
}

// Add registers a new live stream handle.
func (r *Registry) Add(h *StreamHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streams[h.StreamID] = h
}

// Remove deregisters a stream, called once the runner has fully drained.
func (r *Registry) Remove(streamID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams, streamID)
}

// Get returns the handle for a stream id, if live.
func (r *Registry) Get(streamID uuid.UUID) (*StreamHandle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.streams[streamID]
	return h, ok
}

// ForUser returns the handles of every stream currently live for userID,
// used to fan out admin-block termination.
func (r *Registry) ForUser(userID uuid.UUID) []*StreamHandle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*StreamHandle
	for _, h := range r.streams {
		if h.UserID == userID {
			out = append(out, h)
		}
	}
	return out
}

// LiveCount reports the number of currently live pipeline runners.
// Satisfies internal/http/handlers.LiveStreamCounter.
func (r *Registry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}
