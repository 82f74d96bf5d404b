// Package snd holds the streaming audio plumbing between the media source
// and the transcription service.
package snd

import (
	"context"
	"fmt"
	"io"
	"os/exec"

	"github.com/charmbracelet/log"
)

// Transcoder turns the raw media container into a transcription-compatible
// codec in a continuous pass-through. No stage buffers the whole call.
type Transcoder interface {
	Transcode(ctx context.Context, src io.Reader) (io.ReadCloser, error)
}

// FFmpegTranscoder shells out to ffmpeg with stdin/stdout pipes. The child
// process is bound to the pipeline context, so cancelling the call kills it.
type FFmpegTranscoder struct {
	log *log.Logger
}

func NewFFmpegTranscoder(logger *log.Logger) *FFmpegTranscoder {
	return &FFmpegTranscoder{log: logger}
}

func (t *FFmpegTranscoder) Transcode(
	ctx context.Context,
	src io.Reader,
) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", "pipe:0",
		"-vn",
		"-c:a", "libopus",
		"-f", "ogg",
		"-ar", "48000",
		"-ac", "2",
		"-fflags", "nobuffer+flush_packets",
		"-")
	cmd.Stdin = src

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open transcoder stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start transcoder: %w", err)
	}

	t.log.Debug("transcoder started", "pid", cmd.Process.Pid)

	return &transcodeStream{cmd: cmd, out: stdout, log: t.log}, nil
}

type transcodeStream struct {
	cmd *exec.Cmd
	out io.ReadCloser
	log *log.Logger
}

func (s *transcodeStream) Read(p []byte) (int, error) {
	return s.out.Read(p)
}

func (s *transcodeStream) Close() error {
	err := s.out.Close()
	if waitErr := s.cmd.Wait(); waitErr != nil {
		s.log.Debug("transcoder exited", "error", waitErr)
	}
	return err
}
