package ingest

import (
	"fmt"
	"log/slog"
	"net/url"
)

// Config describes one listen address to dispatch, e.g.
// "rtmp://0.0.0.0:1935", "srt://0.0.0.0:9710", "tcp://0.0.0.0:9000"
// (raw MPEG-TS), or "test-pattern://" (synthetic source, no listening
// socket).
type Config struct {
	ListenURI string
}

// Factory constructs a Listener for one transport scheme.
type Factory func(cfg Config, handler Handler, logger *slog.Logger) (Listener, error)

// Dispatcher parses listen URIs and constructs the matching Listener,
// grounded on the teacher's handler-factory registration pattern in
// internal/ingestor/factory.go (register-by-key, lookup-by-key), adapted
// from a type-keyed map to a URI-scheme-keyed one.
type Dispatcher struct {
	factories map[string]Factory
}

// NewDispatcher creates a Dispatcher with no registered schemes.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{factories: make(map[string]Factory)}
}

// Register associates a URI scheme (without "://") with a Factory.
func (d *Dispatcher) Register(scheme string, factory Factory) {
	d.factories[scheme] = factory
}

// Build parses cfg.ListenURI and invokes the registered factory for its
// scheme.
func (d *Dispatcher) Build(cfg Config, handler Handler, logger *slog.Logger) (Listener, error) {
	u, err := url.Parse(cfg.ListenURI)
	if err != nil {
		return nil, fmt.Errorf("ingest: parsing listen uri %q: %w", cfg.ListenURI, err)
	}

	factory, ok := d.factories[u.Scheme]
	if !ok {
		return nil, fmt.Errorf("ingest: no listener registered for scheme %q", u.Scheme)
	}
	return factory(cfg, handler, logger)
}
