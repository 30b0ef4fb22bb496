package telephony

import (
	"context"
	"errors"
)

// Common errors returned by controllers.
var (
	ErrMissingCredentials = errors.New("telephony: missing account credentials")
	ErrCallNotFound       = errors.New("telephony: call not found")
)

// Stream is one side of an active media-stream socket. Read blocks until the
// next controller message arrives; Send queues a message toward the caller.
// Close tears the socket down, unblocking any pending Read.
type Stream interface {
	Read() (*Message, error)
	Send(*Message) error
	Close() error
}

// Controller is the call-control surface of the telephony provider. The
// bridge uses it to hang up once a conversation has run its course.
type Controller interface {
	// EndCall completes (hangs up) an in-progress call.
	EndCall(ctx context.Context, callSID string) error
}
