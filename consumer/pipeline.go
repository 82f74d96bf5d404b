package consumer

import (
	"context"
	"errors"
	"fmt"

	"parley/conf"
	"parley/db"
	"parley/snd"
	"parley/stt"
)

// Run executes one call's pipeline end to end: open the live media read,
// transcode, stream to transcription, and answer each finalized utterance.
// It returns when the source stream closes, the transcode fails, or ctx is
// cancelled. Per-utterance failures never end the pipeline.
func (s *Service) Run(ctx context.Context, req StartRequest) error {
	s.log.Info(
		"pipeline starting",
		"meeting", req.MeetingID,
		"stream", req.CallerStreamARN,
	)

	media, err := s.ingester.Open(ctx, req.CallerStreamARN)
	if err != nil {
		return fmt.Errorf("open media source: %w", err)
	}
	defer media.Close()

	audio, err := s.transcoder.Transcode(ctx, media)
	if err != nil {
		return fmt.Errorf("start transcode: %w", err)
	}
	defer audio.Close()

	session, err := s.transcription.Start(ctx)
	if err != nil {
		return fmt.Errorf("start transcription: %w", err)
	}
	defer session.Close()

	// Responder work runs beside ingestion so a slow model call never
	// stalls the audio stream. The worker context is detached: in-flight
	// answers may still deliver best-effort after the stream ends, but
	// nothing waits for them.
	go s.consumeSegments(
		context.WithoutCancel(ctx),
		req.MeetingID,
		session.Segments(),
	)

	err = snd.Pump(ctx, audio, session.SendAudio, s.chunkSize)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stream audio: %w", err)
	}

	s.log.Info("pipeline finished", "meeting", req.MeetingID)
	return nil
}

// consumeSegments fans finalized segments into a single per-call worker.
// One worker per call keeps segments in arrival order and guarantees a
// segment's thinking/response pair never interleaves with another's.
func (s *Service) consumeSegments(
	ctx context.Context,
	meetingID string,
	segments <-chan stt.Segment,
) {
	queue := make(chan stt.Segment, s.segmentQueue)

	go func() {
		for segment := range queue {
			s.respondToSegment(ctx, meetingID, segment)
		}
	}()

	for segment := range segments {
		if segment.IsPartial {
			continue
		}

		select {
		case queue <- segment:
		default:
			s.log.Warn(
				"segment queue full, dropping segment",
				"meeting", meetingID,
				"index", segment.ResultIndex,
			)
		}
	}

	close(queue)
}

// respondToSegment runs the two-step update pair for one finalized
// utterance: announce thinking before the model call so the caller hears
// hold audio right away, then deliver the spoken answer.
func (s *Service) respondToSegment(
	ctx context.Context,
	meetingID string,
	segment stt.Segment,
) {
	session, err := s.store.GetByMeetingID(ctx, meetingID)
	if errors.Is(err, db.ErrSessionNotFound) {
		// The call already ended; late segments are expected and dropped.
		s.log.Debug(
			"no session for segment, dropping",
			"meeting", meetingID,
			"index", segment.ResultIndex,
		)
		return
	}
	if err != nil {
		s.log.Error("look up session", "meeting", meetingID, "error", err)
		return
	}

	err = s.updater.Update(
		ctx,
		session.TransactionID,
		conf.FunctionThinking,
		"",
	)
	if err != nil {
		s.log.Error(
			"send thinking update",
			"transaction", session.TransactionID,
			"error", err,
		)
	}

	answer, err := s.responder.Answer(ctx, segment.Text)
	if err != nil {
		s.log.Error(
			"generate answer",
			"transaction", session.TransactionID,
			"error", err,
		)
		return
	}

	err = s.updater.Update(
		ctx,
		session.TransactionID,
		conf.FunctionResponse,
		answer,
	)
	if err != nil {
		s.log.Error(
			"send response update",
			"transaction", session.TransactionID,
			"error", err,
		)
	}
}
