// Package pd implements the TRDP process data service: cyclic
// publications and subscriptions holding the latest received sample.
package pd

import (
	"math"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/comm"
	"github.com/robotalks/trdp.go/pkg/trdp/wire"
)

// NoDeadline is reported by Interval when nothing is published.
const NoDeadline = time.Duration(math.MaxInt64)

// Config is the configuration of a Session.
type Config struct {
	OwnAddr    trdp.Addr
	QueueDepth int
	Now        func() time.Time
}

// Publication is a cyclically sent dataset.
type Publication struct {
	ComID trdp.ComID
	Dest  trdp.Addr
	// Interval is the cycle time; zero sends on every Put only.
	Interval time.Duration

	data []byte
	next time.Time
	seq  uint32
}

// Info describes the last received sample.
type Info struct {
	ComID    trdp.ComID
	Source   trdp.Addr
	Seq      uint32
	Received time.Time
}

// Subscription holds the latest sample of a ComID.
type Subscription struct {
	ComID trdp.ComID
	// Filter restricts the accepted source, trdp.AddrAny accepts all.
	Filter trdp.Addr
	// Timeout is the maximum age of a sample, zero disables it.
	Timeout time.Duration

	info Info
	data []byte
	has  bool
}

// Session is a process data session on one link.
type Session struct {
	config Config
	port   *comm.Port
	closed bool

	pubs []*Publication
	subs []*Subscription
}

// Open starts a Session on link.
func Open(link comm.Link, config Config) (*Session, error) {
	if link == nil {
		return nil, comm.ErrClosed
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Session{config: config, port: comm.NewPort(link, config.QueueDepth)}, nil
}

// Publish starts publishing payload on comID. The first sample is sent
// on the next Process.
func (s *Session) Publish(comID trdp.ComID, dest trdp.Addr, interval time.Duration, payload []byte) (*Publication, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if len(payload) > trdp.MaxPDDataSize {
		return nil, ErrPayloadTooLarge
	}
	pub := &Publication{
		ComID:    comID,
		Dest:     dest,
		Interval: interval,
		data:     append([]byte(nil), payload...),
		next:     s.config.Now(),
	}
	s.pubs = append(s.pubs, pub)
	return pub, nil
}

// Put replaces the dataset of pub. Publications without interval are
// sent immediately.
func (s *Session) Put(pub *Publication, payload []byte) error {
	if s.closed {
		return ErrClosed
	}
	if len(payload) > trdp.MaxPDDataSize {
		return ErrPayloadTooLarge
	}
	pub.data = append(pub.data[:0], payload...)
	if pub.Interval <= 0 {
		return s.send(pub)
	}
	return nil
}

// Unpublish stops publishing pub.
func (s *Session) Unpublish(pub *Publication) {
	for i, item := range s.pubs {
		if item == pub {
			s.pubs = append(s.pubs[:i], s.pubs[i+1:]...)
			return
		}
	}
}

// Subscribe starts collecting samples of comID.
func (s *Session) Subscribe(comID trdp.ComID, filter trdp.Addr, timeout time.Duration) (*Subscription, error) {
	if s.closed {
		return nil, ErrClosed
	}
	sub := &Subscription{ComID: comID, Filter: filter, Timeout: timeout}
	s.subs = append(s.subs, sub)
	return sub, nil
}

// Unsubscribe stops collecting samples for sub.
func (s *Session) Unsubscribe(sub *Subscription) {
	for i, item := range s.subs {
		if item == sub {
			s.subs = append(s.subs[:i], s.subs[i+1:]...)
			return
		}
	}
}

// Get returns the latest sample of sub. An expired sample is returned
// together with ErrTimeout.
func (s *Session) Get(sub *Subscription) (Info, []byte, error) {
	if !sub.has {
		return Info{ComID: sub.ComID}, nil, ErrNoData
	}
	data := append([]byte(nil), sub.data...)
	if sub.Timeout > 0 && s.config.Now().Sub(sub.info.Received) > sub.Timeout {
		return sub.info, data, ErrTimeout
	}
	return sub.info, data, nil
}

// Interval implements trdp.Processor.
func (s *Session) Interval() (time.Duration, trdp.WatchSet) {
	var next time.Time
	for _, pub := range s.pubs {
		if pub.Interval > 0 && (next.IsZero() || pub.next.Before(next)) {
			next = pub.next
		}
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

// Process implements trdp.Processor: it stores received samples and sends
// due publications.
func (s *Session) Process(trdp.WatchSet) {
	for !s.closed {
		d, ok := s.port.Poll()
		if !ok {
			break
		}
		s.receive(d)
	}
	now := s.config.Now()
	for _, pub := range s.pubs {
		if pub.Interval <= 0 || now.Before(pub.next) {
			continue
		}
		if err := s.send(pub); err != nil {
			glog.Errorf("%v", err)
		}
		if pub.next = pub.next.Add(pub.Interval); pub.next.Before(now) {
			pub.next = now.Add(pub.Interval)
		}
	}
}

// Close closes the link.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

func (s *Session) send(pub *Publication) error {
	if s.closed {
		return ErrClosed
	}
	pub.seq++
	pkt := wire.EncodePD(&wire.PDHeader{Seq: pub.seq, ComID: pub.ComID}, pub.data)
	if err := s.port.Send(pkt, pub.Dest); err != nil {
		return &SendError{ComID: pub.ComID, Dest: pub.Dest, Err: err}
	}
	glog.V(4).Infof("pd: -> comId %d to %s seq %d (%dB)", pub.ComID, pub.Dest, pub.seq, len(pub.data))
	return nil
}

func (s *Session) receive(d comm.Datagram) {
	pkt, err := wire.DecodePD(d.Data)
	if err != nil {
		glog.V(2).Infof("pd: drop packet from %s: %v", d.From, err)
		return
	}
	h := &pkt.Header
	if h.Type != trdp.MsgPDData && h.Type != trdp.MsgPDReply {
		return
	}
	now := s.config.Now()
	for _, sub := range s.subs {
		if sub.ComID != h.ComID || !d.From.Matches(sub.Filter) {
			continue
		}
		sub.data = append(sub.data[:0], pkt.Data...)
		sub.info = Info{ComID: h.ComID, Source: d.From, Seq: h.Seq, Received: now}
		sub.has = true
	}
}
