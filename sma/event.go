// Package sma implements the call-control state machine behind a SIP media
// application. The controller is a pure function from one telephony event
// plus round-tripped transaction attributes to an action list plus updated
// attributes; all durable state lives in the session store and call counter.
package sma

import "encoding/json"

// Telephony invocation event types. Anything else resolves to the
// unrecognized no-op branch.
const (
	EventNewOutboundCall     = "NEW_OUTBOUND_CALL"
	EventRinging             = "RINGING"
	EventNewInboundCall      = "NEW_INBOUND_CALL"
	EventActionSuccessful    = "ACTION_SUCCESSFUL"
	EventCallUpdateRequested = "CALL_UPDATE_REQUESTED"
	EventHangup              = "HANGUP"
	EventCallAnswered        = "CALL_ANSWERED"
)

// Participant leg tags. Leg A is the caller, leg B the bot's voice leg.
const (
	LegATag = "LEG-A"
	LegBTag = "LEG-B"
)

const schemaVersion = "1.0"

// Attributes is the controller's entire working memory for one call. The
// telephony platform replays it opaquely on every invocation, which is how a
// stateless handler stays stateful across a call's event sequence.
type Attributes struct {
	MeetingID string `json:"MeetingId"`
	LegA      string `json:"CallIdLegA"`
	LegB      string `json:"CallIdLegB"`
}

type Participant struct {
	CallID         string `json:"CallId"`
	ParticipantTag string `json:"ParticipantTag"`
}

type CallDetails struct {
	TransactionID         string        `json:"TransactionId"`
	TransactionAttributes *Attributes   `json:"TransactionAttributes,omitempty"`
	Participants          []Participant `json:"Participants"`
}

type Arguments struct {
	Function string `json:"Function"`
	Text     string `json:"Text,omitempty"`
}

type ActionDataParameters struct {
	ParticipantTag string    `json:"ParticipantTag,omitempty"`
	Arguments      Arguments `json:"Arguments"`
}

// ActionData describes the action a prior response asked for, echoed back on
// ACTION_SUCCESSFUL, or the arguments of an out-of-band update request.
type ActionData struct {
	Type       string               `json:"Type"`
	Parameters ActionDataParameters `json:"Parameters"`
}

type Event struct {
	InvocationEventType string      `json:"InvocationEventType"`
	CallDetails         CallDetails `json:"CallDetails"`
	ActionData          *ActionData `json:"ActionData,omitempty"`
}

type Response struct {
	SchemaVersion         string     `json:"SchemaVersion"`
	Actions               []Action   `json:"Actions"`
	TransactionAttributes Attributes `json:"TransactionAttributes"`
}

func (r Response) MarshalJSON() ([]byte, error) {
	type wire struct {
		SchemaVersion         string     `json:"SchemaVersion"`
		Actions               []Action   `json:"Actions"`
		TransactionAttributes Attributes `json:"TransactionAttributes"`
	}

	w := wire(r)
	if w.Actions == nil {
		w.Actions = []Action{}
	}

	return json.Marshal(w)
}

// participant returns the call id of the participant carrying tag, or the
// empty string when no participant matches. Downstream actions targeting an
// empty call id are treated by the conferencing service as no-ops.
func (d CallDetails) participant(tag string) string {
	for _, p := range d.Participants {
		if p.ParticipantTag == tag {
			return p.CallID
		}
	}
	return ""
}
