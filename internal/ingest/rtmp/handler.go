package rtmp

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/yutopp/go-rtmp"
	rtmpmsg "github.com/yutopp/go-rtmp/message"

	"github.com/jmylchreest/zapengine/internal/ingest"
	"github.com/jmylchreest/zapengine/internal/models"
)

// connHandler implements rtmp.Handler for one RTMP connection, demuxing
// FLV audio/video tags into ingest.Packets and handing the session to the
// configured ingest.Handler once a publish begins.
type connHandler struct {
	rtmp.DefaultHandler

	listener   *Listener
	conn       net.Conn
	remoteAddr string

	mu         sync.Mutex
	streamKey  string
	endpoint   string
	sps        [][]byte
	pps        [][]byte
	videoCodec string

	meta models.SourceMeta

	packets chan *ingest.Packet
	done    chan struct{}
	closed  bool
}

// NextPacket implements ingest.Source.
func (h *connHandler) NextPacket(ctx context.Context) (*ingest.Packet, error) {
	select {
	case p, ok := <-h.packets:
		if !ok {
			return nil, io.EOF
		}
		return p, nil
	case <-h.done:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Metadata implements ingest.Source.
func (h *connHandler) Metadata() models.SourceMeta {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.meta
}

func (h *connHandler) OnPublish(ctx *rtmp.StreamContext, timestamp uint32, cmd *rtmpmsg.NetStreamPublish) error {
	streamKey, endpoint, err := parsePublishingName(cmd.PublishingName)
	if err != nil {
		h.listener.logger.Warn("rejecting rtmp publish: bad name",
			slog.String("publishing_name", cmd.PublishingName),
			slog.String("remote_addr", h.remoteAddr),
			slog.String("error", err.Error()),
		)
		// NetStream.Publish.BadName: the path has other than two
		// components. Returning a non-nil error here is how go-rtmp
		// itself rejects the publish and tears down the connection.
		return fmt.Errorf("rtmp: bad publishing name %q: %w", cmd.PublishingName, err)
	}

	h.mu.Lock()
	h.streamKey, h.endpoint = streamKey, endpoint
	h.mu.Unlock()

	h.listener.logger.Info("rtmp publish started",
		slog.String("endpoint", endpoint),
		slog.String("remote_addr", h.remoteAddr),
	)

	go func() {
		if err := h.listener.handler(context.Background(), endpoint, streamKey, h.remoteAddr, h); err != nil {
			h.listener.logger.Warn("rtmp session handler returned error, closing connection",
				slog.String("remote_addr", h.remoteAddr),
				slog.String("error", err.Error()),
			)
			// NetStream.Publish.Rejected: start_stream refused admission
			// (unknown endpoint, blocked user, insufficient balance). The
			// session handler has already returned, so OnPublish's return
			// value can no longer reject the publish; close the
			// connection directly to tear it down per spec.
			_ = h.conn.Close()
		}
	}()

	return nil
}

func (h *connHandler) OnVideo(timestamp uint32, payload io.Reader) error {
	data, err := io.ReadAll(payload)
	if err != nil {
		return err
	}

	pkt, err := parseFLVVideoPacket(data)
	if err != nil {
		h.listener.logger.Warn("dropping unparseable video tag", slog.String("error", err.Error()))
		return nil
	}

	if pkt.IsSequenceHeader {
		cfg, err := parseAVCDecoderConfigurationRecord(pkt.AVCC)
		if err != nil {
			h.listener.logger.Warn("dropping unparseable avc sequence header", slog.String("error", err.Error()))
			return nil
		}
		h.mu.Lock()
		h.sps, h.pps = cfg.SPS, cfg.PPS
		h.videoCodec = "h264"
		h.meta.VideoCodec = "h264"
		h.mu.Unlock()

		if len(cfg.SPS) > 0 {
			var sps h264.SPS
			if err := sps.Unmarshal(cfg.SPS[0]); err == nil {
				h.mu.Lock()
				h.meta.VideoWidth = sps.Width()
				h.meta.VideoHeight = sps.Height()
				h.mu.Unlock()
			} else {
				h.listener.logger.Warn("dropping unparseable sps, width/height unknown", slog.String("error", err.Error()))
			}
		}
		return nil
	}

	annexB, err := avccToAnnexB(pkt.AVCC)
	if err != nil {
		h.listener.logger.Warn("dropping unconvertible avcc payload", slog.String("error", err.Error()))
		return nil
	}

	if pkt.IsKeyFrame {
		h.mu.Lock()
		sps, pps := h.sps, h.pps
		h.mu.Unlock()
		if len(sps) > 0 && len(pps) > 0 {
			paramSets := make([][]byte, 0, len(sps)+len(pps))
			paramSets = append(paramSets, sps...)
			paramSets = append(paramSets, pps...)
			annexB = prependAnnexB(annexB, paramSets...)
		}
	}

	pts90 := int64(timestamp) * 90
	h.emit(&ingest.Packet{
		Kind:     ingest.KindVideo,
		PTS:      pts90 + int64(pkt.CompositionTime)*90,
		DTS:      pts90,
		Data:     annexB,
		KeyFrame: pkt.IsKeyFrame,
	})
	return nil
}

func (h *connHandler) OnAudio(timestamp uint32, payload io.Reader) error {
	data, err := io.ReadAll(payload)
	if err != nil {
		return err
	}

	pkt, err := parseFLVAudioPacket(data)
	if err != nil {
		h.listener.logger.Warn("dropping unsupported audio tag", slog.String("error", err.Error()))
		return nil
	}
	if pkt.IsSequenceHeader {
		h.mu.Lock()
		h.meta.AudioCodec = "aac"
		h.mu.Unlock()
		return nil
	}

	ts90 := int64(timestamp) * 90
	h.emit(&ingest.Packet{Kind: ingest.KindAudio, PTS: ts90, DTS: ts90, Data: pkt.AACRaw})
	return nil
}

func (h *connHandler) OnClose() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.mu.Unlock()

	close(h.done)
	close(h.packets)
}

func (h *connHandler) emit(pkt *ingest.Packet) {
	select {
	case h.packets <- pkt:
	case <-h.done:
	}
}

// parsePublishingName splits an RTMP publishing name into its two required
// path components, "endpoint/streamKey". Any other number of components
// (a bare stream key, or a path with extra segments) is rejected with
// NetStream.Publish.BadName per spec.md.
func parsePublishingName(name string) (streamKey, endpoint string, err error) {
	parts := strings.Split(name, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("rtmp: publishing name must have exactly two path components, got %q", name)
	}
	return parts[1], parts[0], nil
}

func avccToAnnexB(data []byte) ([]byte, error) {
	return ingest.AVCCToAnnexB(data)
}
