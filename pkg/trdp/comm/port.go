package comm

import (
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

// DefaultQueueDepth is the number of datagrams a Port buffers.
const DefaultQueueDepth = 64

// Port decouples blocking link reads from the session goroutine. A
// background reader queues datagrams and signals readiness; the session
// drains them with Poll. Port implements trdp.WatchSet.
type Port struct {
	Link Link

	queue chan Datagram
	ready chan struct{}
	done  chan struct{}

	lock   sync.Mutex
	err    error
	closed bool
}

// NewPort wraps a link and starts reading from it.
func NewPort(link Link, depth int) *Port {
	if depth <= 0 {
		depth = DefaultQueueDepth
	}
	p := &Port{
		Link:  link,
		queue: make(chan Datagram, depth),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go p.readLoop()
	return p
}

// Ready implements trdp.WatchSet.
func (p *Port) Ready() <-chan struct{} {
	return p.ready
}

// Err implements trdp.WatchSet.
func (p *Port) Err() error {
	p.lock.Lock()
	defer p.lock.Unlock()
	return p.err
}

// Poll returns the next queued datagram without blocking.
func (p *Port) Poll() (Datagram, bool) {
	select {
	case d := <-p.queue:
		return d, true
	default:
		return Datagram{}, false
	}
}

// Send writes a packet to the link.
func (p *Port) Send(pkt []byte, to trdp.Addr) error {
	p.lock.Lock()
	closed := p.closed
	p.lock.Unlock()
	if closed {
		return ErrClosed
	}
	return p.Link.WritePacket(pkt, to)
}

// Close closes the link and waits for the reader to exit.
func (p *Port) Close() error {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return nil
	}
	p.closed = true
	p.lock.Unlock()
	err := p.Link.Close()
	<-p.done
	return err
}

func (p *Port) readLoop() {
	defer close(p.done)
	for {
		pkt, from, err := p.Link.ReadPacket()
		if err != nil {
			p.lock.Lock()
			closed := p.closed
			if !closed {
				p.err = err
			}
			p.lock.Unlock()
			if !closed {
				glog.Warningf("link read error: %v", err)
				p.signal()
			}
			return
		}
		select {
		case p.queue <- Datagram{Data: pkt, From: from}:
		default:
			glog.V(2).Infof("queue full, packet from %s dropped", from)
		}
		p.signal()
	}
}

func (p *Port) signal() {
	select {
	case p.ready <- struct{}{}:
	default:
	}
}
