// Package stt streams call audio to a transcription capability and hands
// back transcript segments.
package stt

import "context"

// Segment is one unit emitted by the transcription engine. Only finalized
// segments are actionable; partials are advisory and must never trigger a
// response.
type Segment struct {
	Text        string
	IsPartial   bool
	ResultIndex int64
}

// LiveTranscriptionSession is one open transcription stream. SendAudio
// blocks while the service is busy, which is what propagates backpressure
// back through the transcode stage. Segments is closed when the stream ends,
// including on transcription errors.
type LiveTranscriptionSession interface {
	SendAudio(data []byte) error
	Segments() <-chan Segment
	Close() error
}

type Transcription interface {
	Start(ctx context.Context) (LiveTranscriptionSession, error)
}
