package mqtt

import (
	"strings"
	"sync"

	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/comm"
)

// Link implements comm.Link on top of a Queue. A packet from src to dst
// is published on SERVICE/DST/SRC; a link subscribes to its own address
// and to the broadcast address.
type Link struct {
	Queue   *Queue
	Own     trdp.Addr
	Service string

	packetCh  chan comm.Datagram
	closed    chan struct{}
	closeOnce sync.Once
	subs      []*Subscription
}

// NewLink creates a Link for own on service ("md" or "pd") and
// subscribes. The queue should be connected.
func NewLink(q *Queue, own trdp.Addr, service string) *Link {
	l := &Link{
		Queue:    q,
		Own:      own,
		Service:  service,
		packetCh: make(chan comm.Datagram, comm.DefaultQueueDepth),
		closed:   make(chan struct{}),
	}
	for _, dst := range []trdp.Addr{own, comm.BroadcastAddr} {
		l.subs = append(l.subs, q.Sub(Topic(service, dst, nil), Handler(l.handleMsg)))
	}
	return l
}

// Topic builds the topic for packets to dst. A nil src yields the
// single-level wildcard.
func Topic(service string, dst trdp.Addr, src *trdp.Addr) string {
	from := "+"
	if src != nil {
		from = src.String()
	}
	return service + "/" + dst.String() + "/" + from
}

// ParseTopic extracts service, destination and source from a topic.
func ParseTopic(topic string) (service string, dst, src trdp.Addr, ok bool) {
	items := strings.Split(topic, "/")
	if len(items) != 3 {
		return
	}
	var err error
	if dst, err = trdp.ParseAddr(items[1]); err != nil {
		return
	}
	if src, err = trdp.ParseAddr(items[2]); err != nil {
		return
	}
	return items[0], dst, src, true
}

// ReadPacket implements comm.PacketReader.
func (l *Link) ReadPacket() ([]byte, trdp.Addr, error) {
	select {
	case d := <-l.packetCh:
		return d.Data, d.From, nil
	case <-l.closed:
		return nil, trdp.AddrAny, comm.ErrClosed
	}
}

// WritePacket implements comm.PacketWriter.
func (l *Link) WritePacket(pkt []byte, to trdp.Addr) error {
	token := l.Queue.Pub(Topic(l.Service, to, &l.Own), pkt)
	token.Wait()
	return token.Error()
}

// Close unsubscribes. The Queue stays open.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.closed)
		for _, sub := range l.subs {
			if e := sub.Close(); e != nil && err == nil {
				err = e
			}
		}
	})
	return err
}

func (l *Link) handleMsg(topic string, payload []byte) {
	_, _, src, ok := ParseTopic(topic)
	if !ok || src == l.Own {
		return
	}
	select {
	case l.packetCh <- comm.Datagram{Data: payload, From: src}:
	case <-l.closed:
	}
}
