// Package testpattern implements a synthetic ingest.Listener for the
// "test-pattern://" scheme: rather than accepting network connections, it
// spawns ffmpeg with lavfi's testsrc (SMPTE-like bars) and sine-wave audio
// filters and demuxes the resulting MPEG-TS over the same
// internal/ingest.TSDemux path as srt/rawts, grounded on
// internal/relay/multiformat_e2e_test.go's synthetic-fixture approach
// (generating test media via ffmpeg's lavfi sources rather than
// hand-encoding raw bitstreams).
package testpattern

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/jmylchreest/zapengine/internal/ffmpeg"
	"github.com/jmylchreest/zapengine/internal/ingest"
)

const (
	// DefaultResolution is a common HD test resolution; DefaultFPS
	// matches variant.DefaultFPS's assumed frame rate.
	DefaultResolution = "1280x720"
	DefaultFPS        = 30
)

// Config configures the synthetic source.
type Config struct {
	FFmpegPath string
	Endpoint   string
	StreamKey  string
	Resolution string
	FPS        int
}

// Listener generates one synthetic publish session per Listen call.
type Listener struct {
	cfg     Config
	handler ingest.Handler
	logger  *slog.Logger
}

// New constructs a testpattern Listener. Satisfies ingest.Factory. The
// ListenURI's query-less form ("test-pattern://endpoint/streamKey") names
// the endpoint and stream key the synthetic session authenticates as.
func New(cfg ingest.Config, handler ingest.Handler, logger *slog.Logger) (ingest.Listener, error) {
	if logger == nil {
		logger = slog.Default()
	}
	endpoint, streamKey := parseTarget(cfg.ListenURI)
	return &Listener{
		cfg: Config{
			FFmpegPath: "ffmpeg",
			Endpoint:   endpoint,
			StreamKey:  streamKey,
			Resolution: DefaultResolution,
			FPS:        DefaultFPS,
		},
		handler: handler,
		logger:  logger,
	}, nil
}

func parseTarget(uri string) (endpoint, streamKey string) {
	rest := strings.TrimPrefix(uri, "test-pattern://")
	if idx := strings.Index(rest, "/"); idx >= 0 {
		return rest[:idx], rest[idx+1:]
	}
	return rest, "test-pattern"
}

// Listen implements ingest.Listener: spawns ffmpeg once and blocks until
// the handler session ends or ctx is canceled.
func (l *Listener) Listen(ctx context.Context) error {
	// CommandBuilder.Build appends exactly one trailing "-i <Input()>", so
	// the first lavfi source is assembled entirely within InputArgs and
	// the second is supplied via Input, preserving ffmpeg's expected
	// "-f lavfi -i A -f lavfi -i B" multi-input ordering. Build only
	// assembles the argv; internal/ffmpeg.Command.Start starts the
	// process immediately, which is too late to grab a stdout pipe, so
	// the process itself is started here instead.
	built := ffmpeg.NewCommandBuilder(l.cfg.FFmpegPath).
		HideBanner().
		LogLevel("error").
		InputArgs(
			"-f", "lavfi", "-i", fmt.Sprintf("testsrc=size=%s:rate=%d", l.cfg.Resolution, l.cfg.FPS),
			"-f", "lavfi",
		).
		Input("sine=frequency=440:sample_rate=48000").
		VideoCodec("libx264").
		AudioCodec("aac").
		MpegtsArgs().
		Output("pipe:1").
		Build()

	cmd := exec.CommandContext(ctx, built.Binary, built.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("testpattern: opening ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("testpattern: starting ffmpeg: %w", err)
	}

	demux := ingest.NewTSDemux(ctx, stdout, l.logger)

	handlerErr := make(chan error, 1)
	go func() {
		handlerErr <- l.handler(ctx, l.cfg.Endpoint, l.cfg.StreamKey, "test-pattern", demux)
	}()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ctx.Err()
	case err := <-handlerErr:
		_ = cmd.Process.Kill()
		return err
	}
}

// Close implements ingest.Listener. Listen's own ctx cancellation is the
// normal shutdown path; Close is a no-op since there is no listening
// socket to release.
func (l *Listener) Close() error {
	return nil
}
