package conf

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/chimesdkmeetings"
	meetingtypes "github.com/aws/aws-sdk-go-v2/service/chimesdkmeetings/types"
	"github.com/aws/aws-sdk-go-v2/service/chimesdkvoice"
	"github.com/google/uuid"
)

// externalMeetingID tags meetings created for phone calls so they are
// recognizable in the conferencing service's own console.
const externalMeetingID = "MediaStreams"

type ChimeMeetings struct {
	client      *chimesdkmeetings.Client
	mediaRegion string
}

func NewChimeMeetings(
	client *chimesdkmeetings.Client,
	mediaRegion string,
) *ChimeMeetings {
	return &ChimeMeetings{client: client, mediaRegion: mediaRegion}
}

func (m *ChimeMeetings) Create(ctx context.Context) (Meeting, error) {
	out, err := m.client.CreateMeetingWithAttendees(
		ctx,
		&chimesdkmeetings.CreateMeetingWithAttendeesInput{
			ClientRequestToken: aws.String(uuid.NewString()),
			MediaRegion:        aws.String(m.mediaRegion),
			ExternalMeetingId:  aws.String(externalMeetingID),
			Attendees: []meetingtypes.CreateAttendeeRequestItem{
				{ExternalUserId: aws.String(uuid.NewString())},
			},
		},
	)
	if err != nil {
		return Meeting{}, fmt.Errorf("create meeting: %w", err)
	}

	if out.Meeting == nil || len(out.Attendees) == 0 {
		return Meeting{}, fmt.Errorf("create meeting: incomplete response")
	}

	return Meeting{
		ID:        aws.ToString(out.Meeting.MeetingId),
		JoinToken: aws.ToString(out.Attendees[0].JoinToken),
	}, nil
}

func (m *ChimeMeetings) Delete(ctx context.Context, meetingID string) error {
	_, err := m.client.DeleteMeeting(ctx, &chimesdkmeetings.DeleteMeetingInput{
		MeetingId: aws.String(meetingID),
	})
	if err != nil {
		return fmt.Errorf("delete meeting %s: %w", meetingID, err)
	}

	return nil
}

// ChimeCallUpdater reaches a live call through the SIP media application's
// update mechanism, which re-invokes the controller with CALL_UPDATE_REQUESTED.
type ChimeCallUpdater struct {
	client        *chimesdkvoice.Client
	applicationID string
}

func NewChimeCallUpdater(
	client *chimesdkvoice.Client,
	applicationID string,
) *ChimeCallUpdater {
	return &ChimeCallUpdater{client: client, applicationID: applicationID}
}

func (u *ChimeCallUpdater) Update(
	ctx context.Context,
	transactionID, function, text string,
) error {
	arguments := map[string]string{"Function": function}
	if text != "" {
		arguments["Text"] = text
	}

	_, err := u.client.UpdateSipMediaApplicationCall(
		ctx,
		&chimesdkvoice.UpdateSipMediaApplicationCallInput{
			SipMediaApplicationId: aws.String(u.applicationID),
			TransactionId:         aws.String(transactionID),
			Arguments:             arguments,
		},
	)
	if err != nil {
		return fmt.Errorf("update call %s: %w", transactionID, err)
	}

	return nil
}
