package comm

import (
	"sync"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

// Network is an in-memory packet network routing by address.
// It loses packets like UDP does: unknown destinations and full
// inboxes drop silently.
type Network struct {
	// Drop, when set, is consulted for every packet and drops it on true.
	Drop func(from, to trdp.Addr, pkt []byte) bool

	lock  sync.RWMutex
	links map[trdp.Addr]*PipeLink
}

// PipeLink is the Link of one node on a Network.
type PipeLink struct {
	Addr trdp.Addr

	net       *Network
	inbox     chan Datagram
	closed    chan struct{}
	closeOnce sync.Once
}

// NewNetwork creates an empty Network.
func NewNetwork() *Network {
	return &Network{links: make(map[trdp.Addr]*PipeLink)}
}

// Link attaches a node at addr, replacing any existing one.
func (n *Network) Link(addr trdp.Addr) *PipeLink {
	l := &PipeLink{
		Addr:   addr,
		net:    n,
		inbox:  make(chan Datagram, DefaultQueueDepth),
		closed: make(chan struct{}),
	}
	n.lock.Lock()
	n.links[addr] = l
	n.lock.Unlock()
	return l
}

func (n *Network) route(from trdp.Addr, to trdp.Addr, pkt []byte) {
	if drop := n.Drop; drop != nil && drop(from, to, pkt) {
		return
	}
	n.lock.RLock()
	var targets []*PipeLink
	if to == BroadcastAddr {
		for addr, l := range n.links {
			if addr != from {
				targets = append(targets, l)
			}
		}
	} else if l := n.links[to]; l != nil {
		targets = append(targets, l)
	}
	n.lock.RUnlock()
	for _, l := range targets {
		l.deliver(Datagram{Data: append([]byte(nil), pkt...), From: from})
	}
}

func (n *Network) detach(l *PipeLink) {
	n.lock.Lock()
	if n.links[l.Addr] == l {
		delete(n.links, l.Addr)
	}
	n.lock.Unlock()
}

func (l *PipeLink) deliver(d Datagram) {
	select {
	case <-l.closed:
	case l.inbox <- d:
	default:
	}
}

// ReadPacket implements PacketReader.
func (l *PipeLink) ReadPacket() ([]byte, trdp.Addr, error) {
	select {
	case d := <-l.inbox:
		return d.Data, d.From, nil
	case <-l.closed:
		return nil, trdp.AddrAny, ErrClosed
	}
}

// WritePacket implements PacketWriter.
func (l *PipeLink) WritePacket(pkt []byte, to trdp.Addr) error {
	select {
	case <-l.closed:
		return ErrClosed
	default:
	}
	l.net.route(l.Addr, to, pkt)
	return nil
}

// Close implements io.Closer.
func (l *PipeLink) Close() error {
	l.closeOnce.Do(func() {
		close(l.closed)
		l.net.detach(l)
	})
	return nil
}
