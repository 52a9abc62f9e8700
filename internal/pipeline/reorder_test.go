package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/zapengine/internal/ingest"
)

func TestReorderBuffer_EmitsInPTSOrder(t *testing.T) {
	rb := NewReorderBuffer(2)

	var emitted []int64
	push := func(pts int64) {
		if out := rb.Push(&ingest.Packet{Kind: ingest.KindVideo, PTS: pts}); out != nil {
			emitted = append(emitted, out.PTS)
		}
	}

	push(300)
	push(100)
	push(200) // buffer now holds 3 > maxReorder 2, lowest (100) pops
	push(400) // 200 pops

	assert.Equal(t, []int64{100, 200}, emitted)
	assert.Equal(t, 2, rb.Len())
}

func TestReorderBuffer_DefaultsMaxReorder(t *testing.T) {
	rb := NewReorderBuffer(0)
	for i := 0; i < maxReorderDefault; i++ {
		out := rb.Push(&ingest.Packet{Kind: ingest.KindVideo, PTS: int64(i)})
		require.Nil(t, out)
	}
	out := rb.Push(&ingest.Packet{Kind: ingest.KindVideo, PTS: int64(maxReorderDefault)})
	require.NotNil(t, out)
	assert.Equal(t, int64(0), out.PTS)
}

func TestReorderBuffer_Flush(t *testing.T) {
	rb := NewReorderBuffer(16)
	rb.Push(&ingest.Packet{PTS: 30})
	rb.Push(&ingest.Packet{PTS: 10})
	rb.Push(&ingest.Packet{PTS: 20})

	flushed := rb.Flush()
	require.Len(t, flushed, 3)
	assert.Equal(t, []int64{10, 20, 30}, []int64{flushed[0].PTS, flushed[1].PTS, flushed[2].PTS})
	assert.Equal(t, 0, rb.Len())
}
