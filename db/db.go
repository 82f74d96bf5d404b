package db

import (
	"context"
	"errors"
)

// CurrentCalls is the fixed counter key tracking how many calls are live.
const CurrentCalls = "currentCalls"

var ErrSessionNotFound = errors.New("session not found")

// Session links one phone call's transaction to the conferencing session it
// was bridged into. There is at most one live session per transaction.
type Session struct {
	MeetingID     string `json:"meetingId"     dynamodbav:"meetingId"`
	TransactionID string `json:"transactionId" dynamodbav:"transactionId"`
}

type SessionStore interface {
	Put(ctx context.Context, session Session) error
	GetByMeetingID(ctx context.Context, meetingID string) (Session, error)
	Delete(ctx context.Context, meetingID string) error
}

// Counter is a shared durable integer. Add must be a single atomic add at
// the storage layer, never a read-modify-write on the caller's side.
type Counter interface {
	Add(ctx context.Context, name string, delta int64) (int64, error)
}
