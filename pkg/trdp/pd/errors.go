package pd

import (
	"errors"
	"fmt"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

var (
	// ErrNoData indicates nothing was received yet.
	ErrNoData = errors.New("pd: no data")
	// ErrTimeout indicates the last sample is older than the timeout.
	ErrTimeout = errors.New("pd: timeout")
	// ErrPayloadTooLarge indicates the payload exceeds trdp.MaxPDDataSize.
	ErrPayloadTooLarge = errors.New("pd: payload too large")
	// ErrClosed indicates the session is closed.
	ErrClosed = errors.New("pd: session closed")
)

// SendError wraps a failure to transmit a sample.
type SendError struct {
	ComID trdp.ComID
	Dest  trdp.Addr
	Err   error
}

// Error implements error.
func (e *SendError) Error() string {
	return fmt.Sprintf("pd: send comId %d to %s: %v", e.ComID, e.Dest, e.Err)
}

// Unwrap returns the underlying error.
func (e *SendError) Unwrap() error {
	return e.Err
}
