package exchange

import (
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/trdp.go/pkg/metrics"
	"github.com/robotalks/trdp.go/pkg/safety"
	"github.com/robotalks/trdp.go/pkg/trdp"
)

// Reply texts of the responder.
const (
	DefaultReplyText      = "I'm fine, thanx!"
	DefaultQueryReplyText = "I'm fine, how are you?"
)

// DefaultConfirmTimeout is how long a responder waits for a confirm.
const DefaultConfirmTimeout = 10 * time.Second

// Replier is the part of the transport the Dispatcher answers through.
type Replier interface {
	Reply(id trdp.CorrelationID, payload []byte) error
	ReplyQuery(id trdp.CorrelationID, payload []byte, confirmTimeout time.Duration) error
	Confirm(id trdp.CorrelationID) error
}

// Dispatcher interprets message data events for one SessionContext.
// It implements trdp.Handler and never lets a fault escape.
type Dispatcher struct {
	Ctx       *SessionContext
	Transport Replier
	// Framer and Validator are used when safety is enabled; defaults are
	// created on demand.
	Framer    *safety.Framer
	Validator *safety.Validator
	// Validators, when set, selects the validator by the source of an
	// event instead of Validator.
	Validators *safety.Registry

	ReplyText      string
	QueryReplyText string
	ConfirmTimeout time.Duration

	// OnEvent, when set, is called for every event after it is handled.
	OnEvent func(*trdp.Event)
}

// NewDispatcher creates a Dispatcher with default reply texts.
func NewDispatcher(ctx *SessionContext, transport Replier) *Dispatcher {
	return &Dispatcher{
		Ctx:            ctx,
		Transport:      transport,
		ReplyText:      DefaultReplyText,
		QueryReplyText: DefaultQueryReplyText,
		ConfirmTimeout: DefaultConfirmTimeout,
	}
}

// HandleEvent implements trdp.Handler.
func (d *Dispatcher) HandleEvent(ev *trdp.Event) {
	if ev == nil {
		glog.Warning("### nil event ignored")
		return
	}
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("### Fault handling %s (ComID %d): %v", ev.Type, ev.ComID, r)
		}
	}()
	metrics.RecordMDEvent(ev.Type.String(), ev.Result.String())
	if ev.Result != trdp.ResultOK {
		d.handleFailure(ev)
	} else {
		d.handleMessage(ev)
	}
	if d.OnEvent != nil {
		d.OnEvent(ev)
	}
}

func (d *Dispatcher) handleMessage(ev *trdp.Event) {
	switch ev.Type {
	case trdp.MsgNotification:
		glog.Infof("<- MD Notification %d", ev.ComID)
		d.inbound(ev)
	case trdp.MsgRequest:
		glog.Infof("<- MR Request with reply %d", ev.ComID)
		d.inbound(ev)
		d.reply(ev)
	case trdp.MsgReply:
		glog.Infof("<- MR Reply received %d", ev.ComID)
		d.inbound(ev)
		d.replied()
	case trdp.MsgReplyQuery:
		glog.Infof("<- MR Reply with confirmation received %d", ev.ComID)
		d.inbound(ev)
		glog.Info("-> sending confirmation")
		if err := d.Transport.Confirm(ev.ID); err != nil {
			glog.Errorf("### Confirm failed (ComID %d): %v", ev.ComID, err)
			metrics.RecordSendFailure("confirm")
		}
		d.replied()
	case trdp.MsgConfirm:
		glog.Infof("<- MR Confirmation received %d", ev.ComID)
		d.finish()
	case trdp.MsgError:
		glog.Warningf("### Error report received (ComID %d, SrcIP: %s), status = %d", ev.ComID, ev.Source, ev.ReplyStatus)
		d.finish()
	default:
		glog.V(2).Infof("ignore %s (ComID %d)", ev.Type, ev.ComID)
	}
}

func (d *Dispatcher) handleFailure(ev *trdp.Event) {
	switch {
	case ev.Result == trdp.ResultListenTimeout:
		glog.Warningf("### Packet timed out (ComID %d, SrcIP: %s)", ev.ComID, ev.Source)
	case ev.Result.IsExchangeTimeout():
		glog.Warningf("### No reply within time out for ComID %d, destIP: %s, err = %s (%d)",
			ev.ComID, ev.Dest, ev.Result, int(ev.Result))
		d.finish()
	default:
		glog.Errorf("### Error on packet received (ComID %d), err = %s (%d)", ev.ComID, ev.Result, int(ev.Result))
		d.finish()
	}
}

// inbound logs the payload and validates it when safety is enabled.
func (d *Dispatcher) inbound(ev *trdp.Event) {
	if len(ev.Payload) > 0 {
		glog.Infof("   Data[%dB]: %.80q...", len(ev.Payload), ev.Payload)
	}
	if d.Ctx.SafetyEnabled {
		d.validatorFor(ev.Source).CheckLogged(uint32(ev.ComID), ev.Payload)
	}
}

func (d *Dispatcher) reply(ev *trdp.Event) {
	var err error
	if d.Ctx.ConfirmRequested {
		glog.Info("-> sending reply with query")
		err = d.Transport.ReplyQuery(ev.ID, d.outbound(d.QueryReplyText), d.ConfirmTimeout)
	} else {
		glog.Info("-> sending reply")
		err = d.Transport.Reply(ev.ID, d.outbound(d.ReplyText))
	}
	if err != nil {
		glog.Errorf("### Reply failed (ComID %d): %v", ev.ComID, err)
		metrics.RecordSendFailure("reply")
	}
}

func (d *Dispatcher) outbound(text string) []byte {
	payload := []byte(text)
	if d.Ctx.SafetyEnabled {
		payload = d.framer().FrameMD(payload)
	}
	return payload
}

func (d *Dispatcher) replied() {
	if n := d.Ctx.addReply(); n >= d.Ctx.RepliesToFinish() {
		d.finish()
	}
}

// finish ends a requester's exchange. Responders never finish.
func (d *Dispatcher) finish() {
	if d.Ctx.Role == Requester && d.Ctx.Finish() {
		glog.V(2).Infof("exchange ComID %d finished", d.Ctx.ComID)
	}
}

func (d *Dispatcher) framer() *safety.Framer {
	if d.Framer == nil {
		d.Framer = safety.DefaultFramer()
	}
	return d.Framer
}

func (d *Dispatcher) validatorFor(src trdp.Addr) *safety.Validator {
	if d.Validators != nil {
		return d.Validators.For(src)
	}
	if d.Validator == nil {
		d.Validator = safety.NewMDValidator(safety.DefaultFlow())
	}
	return d.Validator
}
