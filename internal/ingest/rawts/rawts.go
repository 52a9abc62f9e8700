// Package rawts implements the ingest.Listener for raw MPEG-TS-over-TCP
// publish connections ("tcp://" listen URIs), demuxing with the same
// internal/ingest.TSDemux path srt and testpattern use.
package rawts

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/jmylchreest/zapengine/internal/ingest"
)

// Listener accepts raw MPEG-TS connections over TCP.
type Listener struct {
	addr    string
	handler ingest.Handler
	logger  *slog.Logger
	ln      net.Listener
}

// New constructs a raw-TS Listener. Satisfies ingest.Factory.
func New(cfg ingest.Config, handler ingest.Handler, logger *slog.Logger) (ingest.Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{addr: strings.TrimPrefix(cfg.ListenURI, "tcp://"), handler: handler, logger: logger}, nil
}

// Listen implements ingest.Listener.
func (l *Listener) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.addr)
	if err != nil {
		return fmt.Errorf("rawts: listening on %s: %w", l.addr, err)
	}
	l.ln = ln
	l.logger.Info("raw mpeg-ts listener started", slog.String("addr", l.addr))

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("rawts: accept: %w", err)
		}
		go l.serve(ctx, conn)
	}
}

func (l *Listener) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	remoteAddr := conn.RemoteAddr().String()
	endpoint, streamKey := parseConnectionTarget(conn)

	demux := ingest.NewTSDemux(ctx, conn, l.logger)
	if err := l.handler(ctx, endpoint, streamKey, remoteAddr, demux); err != nil {
		l.logger.Warn("rawts session handler returned error",
			slog.String("remote_addr", remoteAddr),
			slog.String("error", err.Error()),
		)
	}
}

// parseConnectionTarget always returns an empty endpoint name and stream
// key: raw TCP carries no stream-key channel and this listener has no
// per-port mapping, so every session reaches the handler with both empty.
func parseConnectionTarget(conn net.Conn) (endpoint, streamKey string) {
	return "", ""
}

// Close implements ingest.Listener.
func (l *Listener) Close() error {
	if l.ln != nil {
		return l.ln.Close()
	}
	return nil
}
