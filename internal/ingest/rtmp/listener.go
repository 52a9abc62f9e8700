// Package rtmp implements the ingest.Listener/ingest.Source pair for RTMP
// publish connections, built on github.com/yutopp/go-rtmp. Grounded on
// other_examples/adarshm11-RapidRTMP's server bootstrap
// (net.Listen + rtmp.NewServer + rtmp.DefaultHandler-embedding
// ConnHandler) and internal/relay/fmp4_adapter.go's NAL-handling helpers
// for the AVCC-to-Annex-B conversion done in flv.go.
package rtmp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"

	"github.com/yutopp/go-rtmp"

	"github.com/jmylchreest/zapengine/internal/ingest"
)

// Config configures the RTMP listener.
type Config struct {
	Addr string
}

// Listener accepts RTMP publish connections and dispatches each to the
// configured ingest.Handler.
type Listener struct {
	cfg     Config
	handler ingest.Handler
	logger  *slog.Logger

	server *rtmp.Server
	ln     net.Listener
}

// New constructs an RTMP Listener. Satisfies ingest.Factory.
func New(cfg ingest.Config, handler ingest.Handler, logger *slog.Logger) (ingest.Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{cfg: Config{Addr: addrFromURI(cfg.ListenURI)}, handler: handler, logger: logger}
	l.server = rtmp.NewServer(&rtmp.ServerConfig{
		OnConnect: l.onConnect,
	})
	return l, nil
}

func (l *Listener) onConnect(conn net.Conn) (io.ReadWriteCloser, *rtmp.ConnConfig) {
	h := &connHandler{
		listener:   l,
		conn:       conn,
		remoteAddr: conn.RemoteAddr().String(),
		packets:    make(chan *ingest.Packet, 256),
		done:       make(chan struct{}),
	}
	return conn, &rtmp.ConnConfig{
		Handler: h,
		ControlState: rtmp.StreamControlStateConfig{
			DefaultBandwidthWindowSize: 6 * 1024 * 1024,
		},
	}
}

// Listen implements ingest.Listener.
func (l *Listener) Listen(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return fmt.Errorf("rtmp: listening on %s: %w", l.cfg.Addr, err)
	}
	l.ln = ln

	l.logger.Info("rtmp listener started", slog.String("addr", l.cfg.Addr))

	errCh := make(chan error, 1)
	go func() { errCh <- l.server.Serve(ln) }()

	select {
	case <-ctx.Done():
		_ = l.Close()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close implements ingest.Listener.
func (l *Listener) Close() error {
	if l.server != nil {
		return l.server.Close()
	}
	return nil
}

func addrFromURI(uri string) string {
	return strings.TrimPrefix(uri, "rtmp://")
}
