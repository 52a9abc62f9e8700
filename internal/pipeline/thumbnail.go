package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/jmylchreest/zapengine/internal/ffmpeg"
)

// extractThumbnail runs a short-lived ffmpeg process that decodes a
// single Annex-B keyframe access unit and re-encodes it as a JPEG still,
// grounded on internal/ffmpeg.CommandBuilder for argv assembly and on
// Transcoder.Start's stdin/stdout-before-Start pipe ordering for the
// one-shot process itself (there is no teacher example of a one-shot
// frame-to-JPEG conversion, but the pipe discipline is identical).
func extractThumbnail(ctx context.Context, ffmpegPath, videoCodec string, keyframe []byte) ([]byte, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	inputFormat := "h264"
	if videoCodec == "h265" {
		inputFormat = "hevc"
	}

	built := ffmpeg.NewCommandBuilder(ffmpegPath).
		HideBanner().
		LogLevel("warning").
		InputArgs("-f", inputFormat).
		Input("pipe:0").
		OutputArgs("-frames:v", "1", "-f", "image2", "-vcodec", "mjpeg").
		Output("pipe:1").
		Build()

	runCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(runCtx, built.Binary, built.Args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: thumbnail: creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipeline: thumbnail: creating stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pipeline: thumbnail: starting ffmpeg: %w", err)
	}

	var out bytes.Buffer
	readDone := make(chan error, 1)
	go func() {
		_, copyErr := io.Copy(&out, stdout)
		readDone <- copyErr
	}()

	_, writeErr := stdin.Write(keyframe)
	_ = stdin.Close()

	waitErr := cmd.Wait()
	<-readDone

	if writeErr != nil {
		return nil, fmt.Errorf("pipeline: thumbnail: writing keyframe to ffmpeg stdin: %w", writeErr)
	}
	if waitErr != nil {
		return nil, fmt.Errorf("pipeline: thumbnail: ffmpeg exited with error: %w", waitErr)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("pipeline: thumbnail: ffmpeg produced no output")
	}
	return out.Bytes(), nil
}
