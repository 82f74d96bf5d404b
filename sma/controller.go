package sma

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"parley/conf"
	"parley/db"
)

const onboardingPrompt = "Please wait while we connect you with a bot. " +
	"You can ask a question and the bot will answer it."

const holdAudioRepeat = 2

// Controller answers telephony events for a SIP media application. It keeps
// no memory of its own: per-call state rides in the round-tripped transaction
// attributes, and everything durable goes through the session store and the
// call counter.
type Controller struct {
	meetings conf.Meetings
	store    db.SessionStore
	counter  db.Counter
	log      *log.Logger

	holdAudioBucket string
	holdAudioKey    string
}

func NewController(
	meetings conf.Meetings,
	store db.SessionStore,
	counter db.Counter,
	logger *log.Logger,
	holdAudioBucket, holdAudioKey string,
) *Controller {
	return &Controller{
		meetings:        meetings,
		store:           store,
		counter:         counter,
		log:             logger,
		holdAudioBucket: holdAudioBucket,
		holdAudioKey:    holdAudioKey,
	}
}

// Handle processes one telephony event. A meeting create/delete or session
// store failure is fatal for the invocation and propagates; the hosting
// layer owns retries.
func (c *Controller) Handle(ctx context.Context, event Event) (Response, error) {
	attrs := Attributes{}
	if event.CallDetails.TransactionAttributes != nil {
		attrs = *event.CallDetails.TransactionAttributes
	}

	c.log.Info(
		"event",
		"type", event.InvocationEventType,
		"transaction", event.CallDetails.TransactionID,
	)

	var actions []Action
	var err error

	switch event.InvocationEventType {
	case EventNewOutboundCall, EventRinging:
		// Nothing to do until the far end answers.

	case EventNewInboundCall, EventCallAnswered:
		actions, err = c.admitCall(ctx, event, &attrs)
		if err != nil {
			return Response{}, err
		}

	case EventActionSuccessful:
		actions = c.actionSucceeded(event, &attrs)

	case EventCallUpdateRequested:
		actions = c.updateRequested(event, attrs)

	case EventHangup:
		actions, err = c.hangup(ctx, event, &attrs)
		if err != nil {
			return Response{}, err
		}

	default:
		c.log.Warn("unrecognized event", "type", event.InvocationEventType)
	}

	return Response{
		SchemaVersion:         schemaVersion,
		Actions:               actions,
		TransactionAttributes: attrs,
	}, nil
}

// admitCall bridges a new call into a fresh conferencing session. Inbound
// calls and answered outbound calls share this path.
func (c *Controller) admitCall(
	ctx context.Context,
	event Event,
	attrs *Attributes,
) ([]Action, error) {
	meeting, err := c.meetings.Create(ctx)
	if err != nil {
		return nil, fmt.Errorf("create conferencing session: %w", err)
	}

	err = c.store.Put(ctx, db.Session{
		MeetingID:     meeting.ID,
		TransactionID: event.CallDetails.TransactionID,
	})
	if err != nil {
		return nil, fmt.Errorf("persist session: %w", err)
	}

	if _, err := c.counter.Add(ctx, db.CurrentCalls, 1); err != nil {
		c.log.Error("increment call counter", "error", err)
	}

	attrs.MeetingID = meeting.ID

	var callID string
	if len(event.CallDetails.Participants) > 0 {
		callID = event.CallDetails.Participants[0].CallID
	}

	c.log.Info(
		"admitted call",
		"transaction", event.CallDetails.TransactionID,
		"meeting", meeting.ID,
	)

	return []Action{
		JoinChimeMeeting(meeting.JoinToken, callID, meeting.ID),
	}, nil
}

func (c *Controller) actionSucceeded(event Event, attrs *Attributes) []Action {
	// Leg ids are recorded whenever they show up; a missing leg stays an
	// empty string so downstream actions degrade to no-ops.
	attrs.LegA = event.CallDetails.participant(LegATag)
	attrs.LegB = event.CallDetails.participant(LegBTag)

	if event.ActionData == nil {
		return nil
	}

	switch event.ActionData.Type {
	case ActionTypeJoinChimeMeeting:
		return []Action{Speak(onboardingPrompt, attrs.LegA)}
	default:
		return nil
	}
}

func (c *Controller) updateRequested(event Event, attrs Attributes) []Action {
	if event.ActionData == nil {
		return nil
	}

	switch event.ActionData.Parameters.Arguments.Function {
	case conf.FunctionResponse:
		return []Action{
			Speak(event.ActionData.Parameters.Arguments.Text, attrs.LegA),
		}
	case conf.FunctionThinking:
		return []Action{
			PlayAudio(
				attrs.LegA,
				c.holdAudioBucket,
				c.holdAudioKey,
				holdAudioRepeat,
			),
		}
	default:
		return nil
	}
}

// hangup tears the conferencing session down exactly once. Teardown and the
// counter decrement run regardless of which leg hung up; only the Hangup
// action target depends on the leg. A hangup for a transaction whose session
// is already gone is a no-op so the counter can never go negative.
func (c *Controller) hangup(
	ctx context.Context,
	event Event,
	attrs *Attributes,
) ([]Action, error) {
	if attrs.MeetingID == "" {
		c.log.Info(
			"hangup with no live session",
			"transaction", event.CallDetails.TransactionID,
		)
		return nil, nil
	}

	var actions []Action
	if event.ActionData != nil &&
		event.ActionData.Parameters.ParticipantTag == LegATag {
		actions = []Action{Hangup(attrs.LegB)}
	}

	if err := c.meetings.Delete(ctx, attrs.MeetingID); err != nil {
		return nil, fmt.Errorf("delete conferencing session: %w", err)
	}

	err := c.store.Delete(ctx, attrs.MeetingID)
	if err != nil && !errors.Is(err, db.ErrSessionNotFound) {
		c.log.Error("delete session row", "error", err)
	}

	if _, err := c.counter.Add(ctx, db.CurrentCalls, -1); err != nil {
		c.log.Error("decrement call counter", "error", err)
	}

	c.log.Info(
		"tore down call",
		"transaction", event.CallDetails.TransactionID,
		"meeting", attrs.MeetingID,
	)

	attrs.MeetingID = ""

	return actions, nil
}
