package ingest

import (
	"context"
	"io"
	"log/slog"

	"github.com/asticode/go-astits"

	"github.com/jmylchreest/zapengine/internal/models"
)

// TSDemux demuxes an MPEG-TS byte stream into ingest.Packets using
// github.com/asticode/go-astits, grounded on internal/relay/
// ts_demuxer.go's PES-reassembly loop shape (a single demux goroutine
// feeding a channel, tracking video/audio PIDs discovered from the PMT).
// Shared by the srt, rawts, and testpattern listeners, all of which
// differ only in how the underlying io.Reader is produced.
type TSDemux struct {
	logger *slog.Logger

	packets chan *Packet
	done    chan struct{}

	videoPID   uint16
	audioPID   uint16
	videoCodec string
}

// NewTSDemux starts demuxing r in a background goroutine. Packets become
// available via NextPacket as PES payloads are reassembled; the goroutine
// exits (closing the packet channel) when r returns an error or ctx is
// canceled.
func NewTSDemux(ctx context.Context, r io.Reader, logger *slog.Logger) *TSDemux {
	if logger == nil {
		logger = slog.Default()
	}
	d := &TSDemux{
		logger:  logger,
		packets: make(chan *Packet, 256),
		done:    make(chan struct{}),
	}
	go d.run(ctx, r)
	return d
}

func (d *TSDemux) run(ctx context.Context, r io.Reader) {
	defer close(d.packets)
	defer close(d.done)

	demuxer := astits.NewDemuxer(ctx, r)

	for {
		data, err := demuxer.NextData()
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				d.logger.Warn("ts demux stopped", slog.String("error", err.Error()))
			}
			return
		}

		switch {
		case data.PMT != nil:
			d.onPMT(data.PMT)
		case data.PES != nil:
			d.onPES(data.PID, data.PES)
		}
	}
}

func (d *TSDemux) onPMT(pmt *astits.PMTData) {
	for _, es := range pmt.ElementaryStreams {
		switch es.StreamType {
		case astits.StreamTypeH264Video:
			d.videoPID = es.ElementaryPID
			d.videoCodec = "h264"
		case astits.StreamTypeH265Video:
			d.videoPID = es.ElementaryPID
			d.videoCodec = "h265"
		case astits.StreamTypeAACAudio, astits.StreamTypeADTSAudio:
			d.audioPID = es.ElementaryPID
		}
	}
}

func (d *TSDemux) onPES(pid uint16, pes *astits.PESData) {
	if pes.Header == nil || pes.Header.OptionalHeader == nil {
		return
	}

	pts := clockReferenceTicks(pes.Header.OptionalHeader.PTS)
	dts := pts
	if pes.Header.OptionalHeader.DTS != nil {
		dts = clockReferenceTicks(pes.Header.OptionalHeader.DTS)
	}

	switch pid {
	case d.videoPID:
		units, err := SplitAnnexB(pes.Data)
		if err != nil {
			units = [][]byte{pes.Data}
		}
		d.emit(&Packet{
			Kind:     KindVideo,
			PTS:      pts,
			DTS:      dts,
			Data:     pes.Data,
			KeyFrame: IsKeyframeAnnexB(units, d.videoCodec),
		})
	case d.audioPID:
		d.emit(&Packet{Kind: KindAudio, PTS: pts, DTS: dts, Data: pes.Data})
	}
}

func (d *TSDemux) emit(pkt *Packet) {
	select {
	case d.packets <- pkt:
	case <-d.done:
	}
}

func clockReferenceTicks(cr *astits.ClockReference) int64 {
	if cr == nil {
		return 0
	}
	return cr.Base
}

// NextPacket implements Source.
func (d *TSDemux) NextPacket(ctx context.Context) (*Packet, error) {
	select {
	case p, ok := <-d.packets:
		if !ok {
			return nil, io.EOF
		}
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Metadata implements Source. TSDemux does not track full SourceMeta
// (resolution/FPS); callers relying on that should probe with ffprobe
// before admission, per internal/ffmpeg.CodecDetector.
func (d *TSDemux) Metadata() models.SourceMeta {
	return models.SourceMeta{VideoCodec: d.videoCodec}
}
