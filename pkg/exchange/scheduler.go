package exchange

import (
	"context"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/trdp.go/pkg/framework"
	"github.com/robotalks/trdp.go/pkg/metrics"
	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/md"
)

// Scheduling defaults.
const (
	// DefaultCycle is the minimum wait of an iteration.
	DefaultCycle = 10 * time.Millisecond
	// DefaultQuantum is the sleep of a non-blocking iteration.
	DefaultQuantum = 100 * time.Millisecond
)

// Profile bounds the wait of each iteration.
type Profile struct {
	Floor   time.Duration
	Ceiling time.Duration
	Quantum time.Duration
}

// Profiles.
var (
	// InteractiveProfile suits message data exchanges.
	InteractiveProfile = Profile{Floor: DefaultCycle, Ceiling: 100 * time.Millisecond, Quantum: DefaultQuantum}
	// PeriodicProfile suits process data loops.
	PeriodicProfile = Profile{Floor: DefaultCycle, Ceiling: time.Second, Quantum: DefaultQuantum}
)

// Clamp limits d to [Floor, Ceiling].
func (p Profile) Clamp(d time.Duration) time.Duration {
	if d < p.Floor {
		return p.Floor
	}
	if p.Ceiling > 0 && d > p.Ceiling {
		return p.Ceiling
	}
	return d
}

// Scheduler is the single-threaded cooperative loop driving a
// trdp.Processor. Termination is checked only between iterations.
type Scheduler struct {
	Processor trdp.Processor
	Profile
	Blocking bool
	// Until ends the loop when it returns true; nil runs until the
	// context is done.
	Until func() bool
	// MaxIterations and Budget bound the loop when non-zero.
	MaxIterations uint64
	Budget        time.Duration
	// Controllers run after each Process.
	Controllers []framework.Controller

	lastErr error
}

// NewScheduler creates a Scheduler for a session context: requesters stop
// when the context finishes or the timeout plus one ceiling elapses,
// responders run until cancelled.
func NewScheduler(sctx *SessionContext, p trdp.Processor, profile Profile) *Scheduler {
	s := &Scheduler{Processor: p, Profile: profile, Blocking: sctx.Blocking}
	if sctx.Role == Requester {
		s.Until = func() bool { return !sctx.Active() }
		timeout := sctx.Timeout
		if timeout <= 0 {
			timeout = md.DefaultReplyTimeout
		}
		s.Budget = timeout + profile.Ceiling
	}
	return s
}

// AddController registers controllers.
func (s *Scheduler) AddController(ctls ...framework.Controller) *Scheduler {
	s.Controllers = append(s.Controllers, ctls...)
	return s
}

type iteration struct {
	ctx  context.Context
	time time.Time
	num  uint64
	stop bool
}

func (it *iteration) Context() context.Context { return it.ctx }
func (it *iteration) Time() time.Time          { return it.time }
func (it *iteration) Iteration() uint64        { return it.num }
func (it *iteration) Stop()                    { it.stop = true }

// Run implements framework.Runnable. It returns nil when Until or a
// budget ends the loop, and the context error on cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	start := time.Now()
	for n := uint64(0); ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.Until != nil && s.Until() {
			return nil
		}
		if s.MaxIterations > 0 && n >= s.MaxIterations {
			glog.V(2).Infof("scheduler: iteration budget %d exhausted", s.MaxIterations)
			return nil
		}
		if s.Budget > 0 && time.Since(start) >= s.Budget {
			glog.V(2).Infof("scheduler: time budget %s exhausted", s.Budget)
			return nil
		}
		if s.iterate(ctx, n) {
			return nil
		}
	}
}

func (s *Scheduler) iterate(ctx context.Context, n uint64) bool {
	if s.Blocking {
		metrics.SchedulerIterations.WithLabelValues("blocking").Inc()
		d, ws := s.Processor.Interval()
		wait := s.Clamp(d)
		metrics.SchedulerWait.Observe(wait.Seconds())
		s.wait(ws, wait)
		s.Processor.Process(ws)
	} else {
		metrics.SchedulerIterations.WithLabelValues("polling").Inc()
		quantum := s.Quantum
		if quantum <= 0 {
			quantum = DefaultQuantum
		}
		time.Sleep(quantum)
		s.Processor.Process(nil)
	}
	if len(s.Controllers) == 0 {
		return false
	}
	it := &iteration{ctx: ctx, time: time.Now(), num: n}
	for _, ctl := range s.Controllers {
		if err := ctl.Control(it); err != nil {
			glog.Errorf("controller error: %v", err)
		}
	}
	return it.stop
}

// wait blocks until the watch set is ready or d elapses. A failed watch
// set degrades to a plain sleep.
func (s *Scheduler) wait(ws trdp.WatchSet, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	if ws == nil {
		<-timer.C
		return
	}
	if err := ws.Err(); err != nil {
		if err != s.lastErr {
			glog.Warningf("scheduler: wait failed: %v", err)
			s.lastErr = err
		}
		<-timer.C
		return
	}
	select {
	case <-ws.Ready():
	case <-timer.C:
	}
}
