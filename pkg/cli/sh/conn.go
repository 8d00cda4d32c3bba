package sh

import (
	"context"
	"sync"
	"time"

	"github.com/robotalks/trdp.go/pkg/exchange"
	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/md"
)

// ConnLoop is an open MD session driven by a background scheduler. Calls
// from the shell are serialized with the loop; handlers run inside the
// loop and use Session directly.
type ConnLoop struct {
	Session *md.Session
	Cancel  func()

	lock      sync.Mutex
	done      chan struct{}
	listeners map[trdp.ComID]*md.Listener
}

// StartLoop runs a scheduler on session until Stop.
func StartLoop(session *md.Session, profile exchange.Profile, blocking bool) *ConnLoop {
	l := &ConnLoop{
		Session:   session,
		done:      make(chan struct{}),
		listeners: make(map[trdp.ComID]*md.Listener),
	}
	ctx, cancel := context.WithCancel(context.Background())
	l.Cancel = cancel
	scheduler := &exchange.Scheduler{Processor: l, Profile: profile, Blocking: blocking}
	go func() {
		defer close(l.done)
		scheduler.Run(ctx)
	}()
	return l
}

// Interval implements trdp.Processor.
func (l *ConnLoop) Interval() (time.Duration, trdp.WatchSet) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.Session.Interval()
}

// Process implements trdp.Processor.
func (l *ConnLoop) Process(ws trdp.WatchSet) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.Session.Process(ws)
}

// Notify implements exchange.MDSender.
func (l *ConnLoop) Notify(comID trdp.ComID, dest trdp.Addr, payload []byte) error {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.Session.Notify(comID, dest, payload)
}

// Request implements exchange.MDSender.
func (l *ConnLoop) Request(comID trdp.ComID, dest trdp.Addr, payload []byte,
	expectedReplies int, timeout time.Duration, handler trdp.Handler) (trdp.CorrelationID, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	return l.Session.Request(comID, dest, payload, expectedReplies, timeout, handler)
}

// ReplyTimeout returns the reply timeout the session applies.
func (l *ConnLoop) ReplyTimeout(timeout time.Duration) time.Duration {
	return l.Session.ReplyTimeout(timeout)
}

// AddListener implements exchange.MDListener. A ComID has at most one
// listener; adding another replaces it.
func (l *ConnLoop) AddListener(comID trdp.ComID, filter trdp.Addr, handler trdp.Handler) (*md.Listener, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if existing := l.listeners[comID]; existing != nil {
		l.Session.RemoveListener(existing)
	}
	lis, err := l.Session.AddListener(comID, filter, handler)
	if err != nil {
		return nil, err
	}
	l.listeners[comID] = lis
	return lis, nil
}

// RemoveListener removes the listener of comID and reports whether
// there was one.
func (l *ConnLoop) RemoveListener(comID trdp.ComID) bool {
	l.lock.Lock()
	defer l.lock.Unlock()
	lis := l.listeners[comID]
	if lis == nil {
		return false
	}
	l.Session.RemoveListener(lis)
	delete(l.listeners, comID)
	return true
}

// Listening returns the ComIDs with listeners.
func (l *ConnLoop) Listening() []trdp.ComID {
	l.lock.Lock()
	defer l.lock.Unlock()
	ids := make([]trdp.ComID, 0, len(l.listeners))
	for id := range l.listeners {
		ids = append(ids, id)
	}
	return ids
}

// Stop ends the loop and closes the session.
func (l *ConnLoop) Stop() error {
	l.Cancel()
	<-l.done
	return l.Session.Close()
}
