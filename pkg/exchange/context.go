// Package exchange drives TRDP message exchanges: the per-session
// context, the event dispatcher deciding protocol transitions and the
// cooperative scheduler that runs the transport.
package exchange

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

// Role is the part an endpoint plays in an exchange.
type Role int

// Roles.
const (
	// Requester sends one notification or request and terminates.
	Requester Role = iota
	// Responder listens for the lifetime of the process.
	Responder
)

func (r Role) String() string {
	switch r {
	case Requester:
		return "requester"
	case Responder:
		return "responder"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Flags are the mode switches of a session.
type Flags struct {
	NotifyOnly       bool
	ConfirmRequested bool
	Blocking         bool
	SafetyEnabled    bool
}

// SessionContext is the configuration of one exchange plus its
// termination flag. Everything except the flag is written once during
// setup; the flag is cleared by the Dispatcher.
type SessionContext struct {
	Role     Role
	OwnAddr  trdp.Addr
	DestAddr trdp.Addr
	ComID    trdp.ComID
	Flags
	ExpectedReplies int
	// Timeout is the reply timeout of a request and bounds the wait.
	Timeout time.Duration

	finished atomic.Bool
	replies  atomic.Int32
}

// NewSessionContext creates an active context.
func NewSessionContext(role Role, comID trdp.ComID) *SessionContext {
	return &SessionContext{Role: role, ComID: comID, Flags: Flags{Blocking: true}}
}

// Active tells whether the exchange is still running.
func (c *SessionContext) Active() bool {
	return !c.finished.Load()
}

// Finish clears the active flag. It reports whether this call made the
// transition.
func (c *SessionContext) Finish() bool {
	return c.finished.CompareAndSwap(false, true)
}

// Replies returns the number of replies received so far.
func (c *SessionContext) Replies() int {
	return int(c.replies.Load())
}

func (c *SessionContext) addReply() int {
	return int(c.replies.Add(1))
}

// RepliesToFinish is the number of replies ending a request.
func (c *SessionContext) RepliesToFinish() int {
	if c.ExpectedReplies > 1 {
		return c.ExpectedReplies
	}
	return 1
}
