package snd

import (
	"context"
	"errors"
	"io"
)

// DefaultChunkSize is 100ms of 16-bit stereo audio at 16kHz, a comfortable
// event size for streaming transcription.
const DefaultChunkSize = 3200

// Pump copies src into send in fixed-size chunks until src is drained or ctx
// is cancelled. send is called synchronously, so a slow consumer blocks the
// next read from src and backpressure propagates upstream instead of
// buffering: at most one chunk is in flight at any time.
func Pump(
	ctx context.Context,
	src io.Reader,
	send func([]byte) error,
	chunkSize int,
) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		buf := make([]byte, chunkSize)
		n, err := src.Read(buf)

		if n > 0 {
			if sendErr := send(buf[:n]); sendErr != nil {
				return sendErr
			}
		}

		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
