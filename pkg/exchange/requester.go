package exchange

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/trdp.go/pkg/safety"
	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/md"
)

// Default request payloads.
const (
	DefaultNotifyText  = "Hello, World"
	DefaultRequestText = "How are you?"
)

const demoPattern = "TRDP message data test pattern 0123456789 abcdefghijklmnopqrstuvwxyz "

// PayloadMode selects the payload a requester sends.
type PayloadMode int

// Payload modes.
const (
	PayloadDefault PayloadMode = iota
	PayloadNone
	PayloadGenerated
)

// RequestPayload builds the payload for mode: the default text, nothing,
// or size bytes of repeated demo pattern.
func RequestPayload(mode PayloadMode, notify bool, size int) []byte {
	switch mode {
	case PayloadNone:
		return nil
	case PayloadGenerated:
		buf := make([]byte, size)
		for i := range buf {
			buf[i] = demoPattern[i%len(demoPattern)]
		}
		return buf
	}
	if notify {
		return []byte(DefaultNotifyText)
	}
	return []byte(DefaultRequestText)
}

// MDSender is the part of the transport a requester sends through.
type MDSender interface {
	Notify(comID trdp.ComID, dest trdp.Addr, payload []byte) error
	Request(comID trdp.ComID, dest trdp.Addr, payload []byte,
		expectedReplies int, timeout time.Duration, handler trdp.Handler) (trdp.CorrelationID, error)
}

// MDListener is the part of the transport a responder listens on.
type MDListener interface {
	AddListener(comID trdp.ComID, filter trdp.Addr, handler trdp.Handler) (*md.Listener, error)
}

// replyTimeouter is implemented by transports applying a default timeout
// to requests sent without one.
type replyTimeouter interface {
	ReplyTimeout(timeout time.Duration) time.Duration
}

// MaxRequestPayload returns the largest payload StartRequest accepts,
// leaving room for the safety trailer when safety is enabled.
func MaxRequestPayload(safetyEnabled bool) int {
	if safetyEnabled {
		return safety.MaxPayload(trdp.MaxMDDataSize)
	}
	return trdp.MaxMDDataSize
}

// StartRequest sends the notification or request described by the
// dispatcher's context. A notification, or a failed send, finishes the
// context immediately. A zero timeout is replaced by the one the
// transport applies, so the scheduler budget covers it.
func StartRequest(sender MDSender, d *Dispatcher, payload []byte) error {
	ctx := d.Ctx
	if max := MaxRequestPayload(ctx.SafetyEnabled); len(payload) > max {
		ctx.Finish()
		return fmt.Errorf("payload of %d bytes exceeds %d: %w", len(payload), max, md.ErrPayloadTooLarge)
	}
	if ctx.SafetyEnabled {
		payload = d.framer().FrameMD(payload)
	}
	if ctx.NotifyOnly {
		glog.Infof("-> sending MR Notification %d", ctx.ComID)
		err := sender.Notify(ctx.ComID, ctx.DestAddr, payload)
		ctx.Finish()
		return err
	}
	if ctx.Timeout <= 0 {
		ctx.Timeout = md.DefaultReplyTimeout
		if t, ok := sender.(replyTimeouter); ok {
			ctx.Timeout = t.ReplyTimeout(0)
		}
	}
	glog.Infof("-> sending MR Request with reply %d", ctx.ComID)
	if _, err := sender.Request(ctx.ComID, ctx.DestAddr, payload, ctx.ExpectedReplies, ctx.Timeout, d); err != nil {
		ctx.Finish()
		return err
	}
	glog.Info("waiting for an answer...")
	return nil
}

// Listen installs the dispatcher as listener for the context's ComID.
func Listen(listener MDListener, d *Dispatcher) (*md.Listener, error) {
	return listener.AddListener(d.Ctx.ComID, trdp.AddrAny, d)
}
