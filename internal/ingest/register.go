package ingest

import (
	"log/slog"

	"github.com/jmylchreest/zapengine/internal/ingest/rawts"
	"github.com/jmylchreest/zapengine/internal/ingest/rtmp"
	"github.com/jmylchreest/zapengine/internal/ingest/srt"
	"github.com/jmylchreest/zapengine/internal/ingest/testpattern"
)

// NewDefaultDispatcher returns a Dispatcher with the rtmp, srt, rawts
// (tcp), and testpattern listeners registered under their respective URI
// schemes, grounded on internal/ingestor/factory.go's "register every
// default handler in the constructor" idiom.
func NewDefaultDispatcher() *Dispatcher {
	d := NewDispatcher()
	d.Register("rtmp", func(cfg Config, handler Handler, logger *slog.Logger) (Listener, error) {
		return rtmp.New(cfg, handler, logger)
	})
	d.Register("srt", func(cfg Config, handler Handler, logger *slog.Logger) (Listener, error) {
		return srt.New(cfg, handler, logger)
	})
	d.Register("tcp", func(cfg Config, handler Handler, logger *slog.Logger) (Listener, error) {
		return rawts.New(cfg, handler, logger)
	})
	d.Register("test-pattern", func(cfg Config, handler Handler, logger *slog.Logger) (Listener, error) {
		return testpattern.New(cfg, handler, logger)
	})
	return d
}
