package sma

// Action type discriminators on the telephony wire.
const (
	ActionTypeJoinChimeMeeting = "JoinChimeMeeting"
	ActionTypeSpeak            = "Speak"
	ActionTypePlayAudio        = "PlayAudio"
	ActionTypeHangup           = "Hangup"
)

// Speech synthesis parameters for Speak actions.
const (
	speakEngine       = "neural"
	speakLanguageCode = "en-US"
	speakTextType     = "text"
	speakVoiceID      = "Joanna"
)

// Action is one instruction to the conferencing service. Exactly one
// variant per action kind; each variant carries its full wire shape.
type Action interface {
	isAction()
}

type JoinChimeMeetingParameters struct {
	JoinToken string `json:"JoinToken"`
	CallID    string `json:"CallId"`
	MeetingID string `json:"MeetingId"`
}

type JoinChimeMeetingAction struct {
	Type       string                     `json:"Type"`
	Parameters JoinChimeMeetingParameters `json:"Parameters"`
}

func (JoinChimeMeetingAction) isAction() {}

func JoinChimeMeeting(joinToken, callID, meetingID string) JoinChimeMeetingAction {
	return JoinChimeMeetingAction{
		Type: ActionTypeJoinChimeMeeting,
		Parameters: JoinChimeMeetingParameters{
			JoinToken: joinToken,
			CallID:    callID,
			MeetingID: meetingID,
		},
	}
}

type SpeakParameters struct {
	Text         string `json:"Text"`
	CallID       string `json:"CallId"`
	Engine       string `json:"Engine"`
	LanguageCode string `json:"LanguageCode"`
	TextType     string `json:"TextType"`
	VoiceID      string `json:"VoiceId"`
}

type SpeakAction struct {
	Type       string          `json:"Type"`
	Parameters SpeakParameters `json:"Parameters"`
}

func (SpeakAction) isAction() {}

func Speak(text, callID string) SpeakAction {
	return SpeakAction{
		Type: ActionTypeSpeak,
		Parameters: SpeakParameters{
			Text:         text,
			CallID:       callID,
			Engine:       speakEngine,
			LanguageCode: speakLanguageCode,
			TextType:     speakTextType,
			VoiceID:      speakVoiceID,
		},
	}
}

type AudioSource struct {
	Type       string `json:"Type"`
	BucketName string `json:"BucketName"`
	Key        string `json:"Key"`
}

type PlayAudioParameters struct {
	Repeat      int         `json:"Repeat"`
	AudioSource AudioSource `json:"AudioSource"`
}

type PlayAudioAction struct {
	Type       string              `json:"Type"`
	CallID     string              `json:"CallId"`
	Parameters PlayAudioParameters `json:"Parameters"`
}

func (PlayAudioAction) isAction() {}

func PlayAudio(callID, bucket, key string, repeat int) PlayAudioAction {
	return PlayAudioAction{
		Type:   ActionTypePlayAudio,
		CallID: callID,
		Parameters: PlayAudioParameters{
			Repeat: repeat,
			AudioSource: AudioSource{
				Type:       "S3",
				BucketName: bucket,
				Key:        key,
			},
		},
	}
}

type HangupParameters struct {
	SipResponseCode string `json:"SipResponseCode"`
	CallID          string `json:"CallId"`
}

type HangupAction struct {
	Type       string           `json:"Type"`
	Parameters HangupParameters `json:"Parameters"`
}

func (HangupAction) isAction() {}

func Hangup(callID string) HangupAction {
	return HangupAction{
		Type: ActionTypeHangup,
		Parameters: HangupParameters{
			SipResponseCode: "0",
			CallID:          callID,
		},
	}
}
