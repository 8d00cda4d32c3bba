// Package md implements the TRDP message data service: notifications,
// request/reply with optional confirmation, and their timeouts.
//
// A Session is driven by a single goroutine calling Interval and Process.
// Handlers are invoked synchronously from Process and may call back into
// the Session, e.g. to Reply or Confirm.
package md

import (
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/comm"
	"github.com/robotalks/trdp.go/pkg/trdp/wire"
)

// Reply status values carried in Me messages.
const (
	ReplyStatusOK         int32 = 0
	ReplyStatusNoListener int32 = -1
)

// Default timeouts.
const (
	DefaultReplyTimeout   = time.Second
	DefaultConfirmTimeout = time.Second
)

// NoDeadline is reported by Interval when no timer is pending.
const NoDeadline = time.Duration(math.MaxInt64)

// Config is the configuration of a Session.
type Config struct {
	OwnAddr   trdp.Addr
	SourceURI string
	// DefaultReplyTimeout applies to requests sent without a timeout and
	// to received requests which carry none.
	DefaultReplyTimeout time.Duration
	// ConfirmTimeout applies to query replies sent without a timeout.
	ConfirmTimeout time.Duration
	QueueDepth     int
	// Now overrides the clock.
	Now func() time.Time
}

// Listener receives notifications and requests for a ComID.
type Listener struct {
	ComID trdp.ComID
	// Filter restricts the accepted source, trdp.AddrAny accepts all.
	Filter  trdp.Addr
	Handler trdp.Handler
}

// accepts reports whether the listener takes a message.
func (l *Listener) accepts(comID trdp.ComID, src trdp.Addr) bool {
	return l.ComID == comID && src.Matches(l.Filter)
}

// caller is an outstanding request.
type caller struct {
	comID    trdp.ComID
	dest     trdp.Addr
	expected int
	received int
	deadline time.Time
	handler  trdp.Handler
}

// confirmWait is a query reply the requester has not confirmed yet.
type confirmWait struct {
	comID    trdp.ComID
	peer     trdp.Addr
	deadline time.Time
	handler  trdp.Handler
}

type replierState int

const (
	awaitReply replierState = iota
	awaitConfirm
)

// replier is a received request the application has to answer.
type replier struct {
	comID    trdp.ComID
	peer     trdp.Addr
	peerURI  string
	listener *Listener
	state    replierState
	deadline time.Time
}

// Session is a message data session on one link.
type Session struct {
	config Config
	port   *comm.Port
	seq    uint32
	closed bool

	listeners []*Listener
	callers   map[trdp.CorrelationID]*caller
	confirms  map[trdp.CorrelationID]*confirmWait
	repliers  map[trdp.CorrelationID]*replier
}

// Open starts a Session on link.
func Open(link comm.Link, config Config) (*Session, error) {
	if link == nil {
		return nil, comm.ErrClosed
	}
	if config.DefaultReplyTimeout <= 0 {
		config.DefaultReplyTimeout = DefaultReplyTimeout
	}
	if config.ConfirmTimeout <= 0 {
		config.ConfirmTimeout = DefaultConfirmTimeout
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Session{
		config:   config,
		port:     comm.NewPort(link, config.QueueDepth),
		callers:  make(map[trdp.CorrelationID]*caller),
		confirms: make(map[trdp.CorrelationID]*confirmWait),
		repliers: make(map[trdp.CorrelationID]*replier),
	}, nil
}

// OwnAddr returns the address of the session.
func (s *Session) OwnAddr() trdp.Addr {
	return s.config.OwnAddr
}

// AddListener registers handler for comID from sources matching filter.
// The first matching listener receives a message.
func (s *Session) AddListener(comID trdp.ComID, filter trdp.Addr, handler trdp.Handler) (*Listener, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if handler == nil {
		return nil, ErrNoHandler
	}
	l := &Listener{ComID: comID, Filter: filter, Handler: handler}
	s.listeners = append(s.listeners, l)
	return l, nil
}

// RemoveListener unregisters l and drops its pending requests.
func (s *Session) RemoveListener(l *Listener) {
	for i, item := range s.listeners {
		if item == l {
			s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
			break
		}
	}
	for id, r := range s.repliers {
		if r.listener == l {
			delete(s.repliers, id)
		}
	}
}

// Notify sends a notification. No reply is expected.
func (s *Session) Notify(comID trdp.ComID, dest trdp.Addr, payload []byte) error {
	if len(payload) > trdp.MaxMDDataSize {
		return ErrPayloadTooLarge
	}
	return s.send(&wire.MDHeader{Type: trdp.MsgNotification, ComID: comID}, payload, dest)
}

// ReplyTimeout returns how long a request sent with timeout waits for
// replies.
func (s *Session) ReplyTimeout(timeout time.Duration) time.Duration {
	if timeout <= 0 {
		return s.config.DefaultReplyTimeout
	}
	return timeout
}

// Request sends a request and registers handler for its replies. With
// expectedReplies > 0 the request completes after that many replies,
// otherwise it stays open until timeout and reports ReplyTimeout only if
// no reply arrived.
func (s *Session) Request(comID trdp.ComID, dest trdp.Addr, payload []byte,
	expectedReplies int, timeout time.Duration, handler trdp.Handler) (trdp.CorrelationID, error) {
	id := trdp.NewCorrelationID()
	if handler == nil {
		return id, ErrNoHandler
	}
	if len(payload) > trdp.MaxMDDataSize {
		return id, ErrPayloadTooLarge
	}
	timeout = s.ReplyTimeout(timeout)
	err := s.send(&wire.MDHeader{
		Type:         trdp.MsgRequest,
		ComID:        comID,
		SessionID:    id,
		ReplyTimeout: micros(timeout),
	}, payload, dest)
	if err != nil {
		return id, err
	}
	s.callers[id] = &caller{
		comID:    comID,
		dest:     dest,
		expected: expectedReplies,
		deadline: s.config.Now().Add(timeout),
		handler:  handler,
	}
	return id, nil
}

// Reply answers a received request.
func (s *Session) Reply(id trdp.CorrelationID, payload []byte) error {
	r, err := s.pendingRequest(id, payload)
	if err != nil {
		return err
	}
	delete(s.repliers, id)
	return s.send(&wire.MDHeader{
		Type:      trdp.MsgReply,
		ComID:     r.comID,
		SessionID: id,
		DestURI:   r.peerURI,
	}, payload, r.peer)
}

// ReplyQuery answers a received request and asks the requester to
// confirm within confirmTimeout.
func (s *Session) ReplyQuery(id trdp.CorrelationID, payload []byte, confirmTimeout time.Duration) error {
	r, err := s.pendingRequest(id, payload)
	if err != nil {
		return err
	}
	if confirmTimeout <= 0 {
		confirmTimeout = s.config.ConfirmTimeout
	}
	err = s.send(&wire.MDHeader{
		Type:         trdp.MsgReplyQuery,
		ComID:        r.comID,
		SessionID:    id,
		ReplyTimeout: micros(confirmTimeout),
		DestURI:      r.peerURI,
	}, payload, r.peer)
	if err != nil {
		delete(s.repliers, id)
		return err
	}
	r.state, r.deadline = awaitConfirm, s.config.Now().Add(confirmTimeout)
	return nil
}

// Confirm confirms a received query reply.
func (s *Session) Confirm(id trdp.CorrelationID) error {
	cw, ok := s.confirms[id]
	if !ok {
		return ErrNoSession
	}
	delete(s.confirms, id)
	return s.send(&wire.MDHeader{Type: trdp.MsgConfirm, ComID: cw.comID, SessionID: id}, nil, cw.peer)
}

// Pending returns the number of open transactions.
func (s *Session) Pending() int {
	return len(s.callers) + len(s.confirms) + len(s.repliers)
}

// Interval implements trdp.Processor.
func (s *Session) Interval() (time.Duration, trdp.WatchSet) {
	var next time.Time
	earliest := func(t time.Time) {
		if next.IsZero() || t.Before(next) {
			next = t
		}
	}
	for _, c := range s.callers {
		earliest(c.deadline)
	}
	for _, cw := range s.confirms {
		earliest(cw.deadline)
	}
	for _, r := range s.repliers {
		earliest(r.deadline)
	}
	if next.IsZero() {
		return NoDeadline, s.port
	}
	d := next.Sub(s.config.Now())
	if d < 0 {
		d = 0
	}
	return d, s.port
}

// Process implements trdp.Processor. It handles all queued packets and
// then expired timers; the watch set is not consulted.
func (s *Session) Process(trdp.WatchSet) {
	for !s.closed {
		d, ok := s.port.Poll()
		if !ok {
			break
		}
		s.receive(d)
	}
	if !s.closed {
		s.expire(s.config.Now())
	}
}

// Close closes the link. Pending transactions are dropped silently.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.listeners = nil
	return s.port.Close()
}

func (s *Session) pendingRequest(id trdp.CorrelationID, payload []byte) (*replier, error) {
	r, ok := s.repliers[id]
	if !ok || r.state != awaitReply {
		return nil, ErrNoSession
	}
	if len(payload) > trdp.MaxMDDataSize {
		return nil, ErrPayloadTooLarge
	}
	return r, nil
}

func (s *Session) listenerFor(comID trdp.ComID, src trdp.Addr) *Listener {
	for _, l := range s.listeners {
		if l.accepts(comID, src) {
			return l
		}
	}
	return nil
}

func (s *Session) send(h *wire.MDHeader, payload []byte, dest trdp.Addr) error {
	if s.closed {
		return ErrClosed
	}
	s.seq++
	h.Seq = s.seq
	h.SourceURI = s.config.SourceURI
	if err := s.port.Send(wire.EncodeMD(h, payload), dest); err != nil {
		return &SendError{Type: h.Type, ComID: h.ComID, Dest: dest, Err: err}
	}
	glog.V(4).Infof("md: -> %s comId %d to %s (%dB)", h.Type, h.ComID, dest, len(payload))
	return nil
}

func (s *Session) receive(d comm.Datagram) {
	pkt, err := wire.DecodeMD(d.Data)
	if err != nil {
		glog.V(2).Infof("md: drop packet from %s: %v", d.From, err)
		return
	}
	h := &pkt.Header
	glog.V(4).Infof("md: <- %s comId %d from %s (%dB)", h.Type, h.ComID, d.From, len(pkt.Data))
	ev := &trdp.Event{
		Result:      trdp.ResultOK,
		Type:        h.Type,
		ComID:       h.ComID,
		ID:          h.SessionID,
		Source:      d.From,
		Dest:        s.config.OwnAddr,
		SourceURI:   h.SourceURI,
		ReplyStatus: h.ReplyStatus,
		Payload:     pkt.Data,
	}
	switch h.Type {
	case trdp.MsgNotification:
		if l := s.listenerFor(ev.ComID, ev.Source); l != nil {
			l.Handler.HandleEvent(ev)
		} else {
			glog.V(2).Infof("md: no listener for notification comId %d from %s", ev.ComID, ev.Source)
		}
	case trdp.MsgRequest:
		s.onRequest(ev, h.ReplyTimeout)
	case trdp.MsgReply, trdp.MsgReplyQuery, trdp.MsgError:
		s.onReply(ev, h.ReplyTimeout)
	case trdp.MsgConfirm:
		s.onConfirm(ev)
	}
}

func (s *Session) onRequest(ev *trdp.Event, replyTimeout uint32) {
	l := s.listenerFor(ev.ComID, ev.Source)
	if l == nil {
		glog.Warningf("md: no listener for request comId %d from %s", ev.ComID, ev.Source)
		err := s.send(&wire.MDHeader{
			Type:        trdp.MsgError,
			ComID:       ev.ComID,
			SessionID:   ev.ID,
			ReplyStatus: ReplyStatusNoListener,
			DestURI:     ev.SourceURI,
		}, nil, ev.Source)
		if err != nil {
			glog.Errorf("%v", err)
		}
		return
	}
	if _, dup := s.repliers[ev.ID]; dup {
		glog.V(2).Infof("md: duplicate request comId %d from %s", ev.ComID, ev.Source)
		return
	}
	timeout := duration(replyTimeout)
	if timeout <= 0 {
		timeout = s.config.DefaultReplyTimeout
	}
	s.repliers[ev.ID] = &replier{
		comID:    ev.ComID,
		peer:     ev.Source,
		peerURI:  ev.SourceURI,
		listener: l,
		deadline: s.config.Now().Add(timeout),
	}
	l.Handler.HandleEvent(ev)
}

func (s *Session) onReply(ev *trdp.Event, replyTimeout uint32) {
	c, ok := s.callers[ev.ID]
	if !ok {
		glog.V(2).Infof("md: unexpected %s comId %d from %s", ev.Type, ev.ComID, ev.Source)
		return
	}
	if ev.Type == trdp.MsgError {
		delete(s.callers, ev.ID)
		ev.Result = trdp.ResultPeerError
		if ev.ReplyStatus == ReplyStatusNoListener {
			ev.Result = trdp.ResultNoListener
		}
		c.handler.HandleEvent(ev)
		return
	}
	c.received++
	if c.expected > 0 && c.received >= c.expected {
		delete(s.callers, ev.ID)
	}
	if ev.Type == trdp.MsgReplyQuery {
		timeout := duration(replyTimeout)
		if timeout <= 0 {
			timeout = s.config.ConfirmTimeout
		}
		s.confirms[ev.ID] = &confirmWait{
			comID:    ev.ComID,
			peer:     ev.Source,
			deadline: s.config.Now().Add(timeout),
			handler:  c.handler,
		}
	}
	c.handler.HandleEvent(ev)
}

func (s *Session) onConfirm(ev *trdp.Event) {
	r, ok := s.repliers[ev.ID]
	if !ok || r.state != awaitConfirm {
		glog.V(2).Infof("md: unexpected confirm comId %d from %s", ev.ComID, ev.Source)
		return
	}
	delete(s.repliers, ev.ID)
	r.listener.Handler.HandleEvent(ev)
}

// expire collects all expired timers first so handlers can modify the
// session freely.
func (s *Session) expire(now time.Time) {
	type timeout struct {
		handler trdp.Handler
		ev      *trdp.Event
	}
	var fired []timeout
	for id, c := range s.callers {
		if now.Before(c.deadline) {
			continue
		}
		delete(s.callers, id)
		if c.expected <= 0 && c.received > 0 {
			continue
		}
		fired = append(fired, timeout{c.handler, &trdp.Event{
			Result: trdp.ResultReplyTimeout,
			Type:   trdp.MsgRequest,
			ComID:  c.comID,
			ID:     id,
			Source: s.config.OwnAddr,
			Dest:   c.dest,
		}})
	}
	for id, cw := range s.confirms {
		if now.Before(cw.deadline) {
			continue
		}
		delete(s.confirms, id)
		fired = append(fired, timeout{cw.handler, &trdp.Event{
			Result: trdp.ResultRequestConfirmTimeout,
			Type:   trdp.MsgReplyQuery,
			ComID:  cw.comID,
			ID:     id,
			Source: cw.peer,
			Dest:   cw.peer,
		}})
	}
	for id, r := range s.repliers {
		if now.Before(r.deadline) {
			continue
		}
		delete(s.repliers, id)
		ev := &trdp.Event{
			Result: trdp.ResultListenTimeout,
			Type:   trdp.MsgRequest,
			ComID:  r.comID,
			ID:     id,
			Source: r.peer,
			Dest:   s.config.OwnAddr,
		}
		if r.state == awaitConfirm {
			ev.Result, ev.Type = trdp.ResultConfirmTimeout, trdp.MsgReplyQuery
		}
		fired = append(fired, timeout{r.listener.Handler, ev})
	}
	for _, t := range fired {
		t.handler.HandleEvent(t.ev)
	}
}

func micros(d time.Duration) uint32 {
	us := d / time.Microsecond
	if us > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(us)
}

func duration(us uint32) time.Duration {
	return time.Duration(us) * time.Microsecond
}
