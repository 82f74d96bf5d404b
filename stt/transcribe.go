package stt

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"github.com/charmbracelet/log"
)

const sampleRateHertz = 48000

// TranscribeClient speaks the streaming transcription service: ogg/opus in
// at a fixed sample rate, transcript events out.
type TranscribeClient struct {
	client *transcribestreaming.Client
	log    *log.Logger
}

func NewTranscribeClient(
	client *transcribestreaming.Client,
	logger *log.Logger,
) *TranscribeClient {
	return &TranscribeClient{client: client, log: logger}
}

func (c *TranscribeClient) Start(
	ctx context.Context,
) (LiveTranscriptionSession, error) {
	out, err := c.client.StartStreamTranscription(
		ctx,
		&transcribestreaming.StartStreamTranscriptionInput{
			LanguageCode:         types.LanguageCodeEnUs,
			MediaEncoding:        types.MediaEncodingOggOpus,
			MediaSampleRateHertz: aws.Int32(sampleRateHertz),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("start transcription stream: %w", err)
	}

	session := &transcribeSession{
		ctx:      ctx,
		stream:   out.GetStream(),
		segments: make(chan Segment),
		log:      c.log,
	}

	go session.readLoop()

	return session, nil
}

type transcribeSession struct {
	ctx      context.Context
	stream   *transcribestreaming.StartStreamTranscriptionEventStream
	segments chan Segment
	log      *log.Logger
}

func (s *transcribeSession) SendAudio(data []byte) error {
	chunk := make([]byte, len(data))
	copy(chunk, data)

	err := s.stream.Send(s.ctx, &types.AudioStreamMemberAudioEvent{
		Value: types.AudioEvent{AudioChunk: chunk},
	})
	if err != nil {
		return fmt.Errorf("send audio event: %w", err)
	}

	return nil
}

func (s *transcribeSession) Segments() <-chan Segment {
	return s.segments
}

func (s *transcribeSession) Close() error {
	return s.stream.Close()
}

// readLoop converts transcript events into segments. No reconnect here: a
// stream error ends the bot's ability to respond for this call without
// disconnecting the conference itself.
func (s *transcribeSession) readLoop() {
	defer close(s.segments)

	var index int64

	for event := range s.stream.Events() {
		transcriptEvent, ok :=
			event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok || transcriptEvent.Value.Transcript == nil {
			continue
		}

		for _, result := range transcriptEvent.Value.Transcript.Results {
			if len(result.Alternatives) == 0 {
				continue
			}

			text := strings.TrimSpace(
				aws.ToString(result.Alternatives[0].Transcript),
			)
			if text == "" {
				continue
			}

			segment := Segment{
				Text:        text,
				IsPartial:   result.IsPartial,
				ResultIndex: index,
			}
			index++

			if result.IsPartial {
				s.log.Debug("hear", "tmp", text)
			} else {
				s.log.Info("hear", "txt", text)
			}

			select {
			case s.segments <- segment:
			case <-s.ctx.Done():
				return
			}
		}
	}

	if err := s.stream.Err(); err != nil {
		s.log.Error("transcription stream ended", "error", err)
	}
}
