package pipeline

import (
	"container/heap"

	"github.com/jmylchreest/zapengine/internal/ingest"
)

// maxReorderDefault is spec.md §9's Design Notes bound: the reorder
// buffer flushes once it holds more than 16 packets, bounding worst-case
// reorder latency to 16 frames.
const maxReorderDefault = 16

// pktHeap is a container/heap min-heap over *ingest.Packet keyed by PTS.
type pktHeap []*ingest.Packet

func (h pktHeap) Len() int            { return len(h) }
func (h pktHeap) Less(i, j int) bool  { return h[i].PTS < h[j].PTS }
func (h pktHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *pktHeap) Push(x any)         { *h = append(*h, x.(*ingest.Packet)) }
func (h *pktHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// ReorderBuffer emits video packets in presentation order despite an
// ingress that may deliver them in decode order, per spec.md §4.3/§9: a
// priority queue keyed by PTS, flushed once it exceeds maxReorder
// packets. It is a stdlib container/heap implementation — no example
// repo in the pack implements a PTS reorder buffer, and the data
// structure is a textbook bounded priority queue, for which pulling in a
// third-party heap/queue library would add a dependency with no
// behavior stdlib's container/heap cannot express.
type ReorderBuffer struct {
	h          pktHeap
	maxReorder int
}

// NewReorderBuffer constructs a ReorderBuffer. maxReorder <= 0 defaults
// to maxReorderDefault.
func NewReorderBuffer(maxReorder int) *ReorderBuffer {
	if maxReorder <= 0 {
		maxReorder = maxReorderDefault
	}
	rb := &ReorderBuffer{maxReorder: maxReorder}
	heap.Init(&rb.h)
	return rb
}

// Push adds pkt to the buffer. If the buffer now exceeds maxReorder
// packets, the lowest-PTS packet is popped and returned for emission.
func (b *ReorderBuffer) Push(pkt *ingest.Packet) *ingest.Packet {
	heap.Push(&b.h, pkt)
	if b.h.Len() <= b.maxReorder {
		return nil
	}
	return heap.Pop(&b.h).(*ingest.Packet)
}

// Flush drains every remaining packet in PTS order, called when the
// runner transitions to Draining.
func (b *ReorderBuffer) Flush() []*ingest.Packet {
	out := make([]*ingest.Packet, 0, b.h.Len())
	for b.h.Len() > 0 {
		out = append(out, heap.Pop(&b.h).(*ingest.Packet))
	}
	return out
}

// Len reports the number of packets currently buffered.
func (b *ReorderBuffer) Len() int {
	return b.h.Len()
}
