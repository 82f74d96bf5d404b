package conf

import (
	"context"
)

// Update functions understood by the call-control state machine's
// out-of-band update entry point. Thinking carries no text.
const (
	FunctionThinking = "Thinking"
	FunctionResponse = "Response"
)

// Meeting is one conferencing session a call gets bridged into.
type Meeting struct {
	ID        string
	JoinToken string
}

// Meetings is the conferencing capability consumed by the call controller.
// The mixing engine itself lives behind this interface.
type Meetings interface {
	Create(ctx context.Context) (Meeting, error)
	Delete(ctx context.Context, meetingID string) error
}

// CallUpdater delivers pipeline-detected events back into the call
// controller as out-of-band updates on a live transaction.
type CallUpdater interface {
	Update(ctx context.Context, transactionID, function, text string) error
}
