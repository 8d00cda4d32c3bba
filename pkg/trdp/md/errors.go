package md

import (
	"errors"
	"fmt"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

var (
	// ErrPayloadTooLarge indicates the payload exceeds trdp.MaxMDDataSize.
	ErrPayloadTooLarge = errors.New("md: payload too large")
	// ErrNoSession indicates no open transaction matches the id.
	ErrNoSession = errors.New("md: no such session")
	// ErrClosed indicates the session is closed.
	ErrClosed = errors.New("md: session closed")
	// ErrNoHandler indicates a listener without a handler.
	ErrNoHandler = errors.New("md: no handler")
)

// SendError wraps a failure to transmit a message.
type SendError struct {
	Type  trdp.MsgType
	ComID trdp.ComID
	Dest  trdp.Addr
	Err   error
}

// Error implements error.
func (e *SendError) Error() string {
	return fmt.Sprintf("md: send %s comId %d to %s: %v", e.Type, e.ComID, e.Dest, e.Err)
}

// Unwrap returns the underlying error.
func (e *SendError) Unwrap() error {
	return e.Err
}
