package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultDispatcher_RegistersAllSchemes(t *testing.T) {
	d := NewDefaultDispatcher()
	for _, scheme := range []string{"rtmp", "srt", "tcp", "test-pattern"} {
		_, ok := d.factories[scheme]
		assert.True(t, ok, "expected scheme %q to be registered", scheme)
	}
}
