// Package ingest provides the listener framework for zapengine's ingress
// transports: a common Listener/Source interface implemented by the
// rtmp, srt, rawts, and testpattern subpackages, and a Dispatcher that
// constructs the right listener from a listen URI.
package ingest

import (
	"context"

	"github.com/jmylchreest/zapengine/internal/models"
)

// Listener accepts inbound publish connections for one ingress transport
// and hands each accepted stream to the configured Handler.
type Listener interface {
	// Listen blocks accepting connections until ctx is canceled or a
	// fatal listener error occurs.
	Listen(ctx context.Context) error
	// Close stops accepting new connections and releases the listener's
	// socket. Safe to call concurrently with Listen.
	Close() error
}

// Source is the spec's packet_source: a single publishing session's
// demuxed elementary stream, readable one access unit at a time.
type Source interface {
	// NextPacket blocks until the next access unit is available, ctx is
	// canceled, or the session ends (io.EOF).
	NextPacket(ctx context.Context) (*Packet, error)
	// Metadata returns the source characteristics discovered from the
	// stream so far. Safe to call before the first packet, when the
	// returned SourceMeta may still be partly or fully zero-valued.
	Metadata() models.SourceMeta
}

// Handler is invoked by a Listener for every accepted publish session. It
// receives the endpoint name the client targeted, the stream key, the
// remote address, and the demuxed Source; it should return once the
// session ends.
type Handler func(ctx context.Context, endpointName, streamKey, remoteAddr string, source Source) error
