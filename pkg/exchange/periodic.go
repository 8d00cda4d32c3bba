package exchange

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/trdp.go/pkg/framework"
	"github.com/robotalks/trdp.go/pkg/metrics"
	"github.com/robotalks/trdp.go/pkg/safety"
	"github.com/robotalks/trdp.go/pkg/sdt"
	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/pd"
)

// DefaultCounterFormat is the dataset of the sample publisher.
const DefaultCounterFormat = "Just a Counter: %08d"

// PDPublisher is the part of the transport a PeriodicSource uses.
type PDPublisher interface {
	Put(pub *pd.Publication, payload []byte) error
}

// PDSubscriber is the part of the transport a PeriodicSink uses.
type PDSubscriber interface {
	Get(sub *pd.Subscription) (pd.Info, []byte, error)
}

// gate runs at most once per period.
type gate struct {
	Period time.Duration
	next   time.Time
}

func (g *gate) due(now time.Time) bool {
	if g.Period <= 0 {
		return true
	}
	if now.Before(g.next) {
		return false
	}
	if g.next = g.next.Add(g.Period); g.next.Before(now) {
		g.next = now.Add(g.Period)
	}
	return true
}

// PeriodicSource updates a publication with a running counter, sent as a
// NUL terminated string. With a Framer, each dataset carries a sequence counter advanced once per
// successful Put.
type PeriodicSource struct {
	Transport PDPublisher
	Pub       *pd.Publication
	Framer    *safety.Framer
	Format    string
	Period    time.Duration

	gate    gate
	counter int
	ssc     uint32
}

// Control implements framework.Controller.
func (s *PeriodicSource) Control(cc framework.ControlContext) error {
	s.gate.Period = s.Period
	if !s.gate.due(cc.Time()) {
		return nil
	}
	format := s.Format
	if format == "" {
		format = DefaultCounterFormat
	}
	payload := append([]byte(fmt.Sprintf(format, s.counter)), 0)
	s.counter++
	ssc := s.ssc
	if s.Framer != nil {
		payload = s.Framer.Frame(payload, &ssc)
	}
	if err := s.Transport.Put(s.Pub, payload); err != nil {
		metrics.RecordSendFailure("put")
		return fmt.Errorf("put comId %d: %w", s.Pub.ComID, err)
	}
	s.ssc = ssc
	glog.V(2).Infof("-> PD comId %d: %d", s.Pub.ComID, s.counter-1)
	return nil
}

// SSC returns the sequence counter of the next dataset.
func (s *PeriodicSource) SSC() uint32 {
	return s.ssc
}

// PeriodicSink samples a subscription and validates each sample when a
// Validator or Validators is set.
type PeriodicSink struct {
	Transport PDSubscriber
	Sub       *pd.Subscription
	Validator *safety.Validator
	// Validators, when set, selects the validator by sample source
	// instead of Validator.
	Validators *safety.Registry
	Period     time.Duration
	// OnSample, when set, receives every sample read.
	OnSample func(pd.Info, []byte, *safety.Report)

	gate gate
}

// Control implements framework.Controller.
func (s *PeriodicSink) Control(cc framework.ControlContext) error {
	s.gate.Period = s.Period
	if !s.gate.due(cc.Time()) {
		return nil
	}
	info, data, err := s.Transport.Get(s.Sub)
	switch err {
	case nil:
	case pd.ErrNoData:
		glog.V(2).Infof("PD comId %d: no data yet", s.Sub.ComID)
		return nil
	case pd.ErrTimeout:
		glog.Warningf("### PD comId %d timed out, last from %s", s.Sub.ComID, info.Source)
		return nil
	default:
		return err
	}
	glog.Infof("<- PD comId %d from %s seq %d: %.80q", info.ComID, info.Source, info.Seq, data)
	var report *safety.Report
	v := s.Validator
	if s.Validators != nil {
		v = s.Validators.For(info.Source)
	}
	if v != nil {
		r := v.CheckLogged(uint32(info.ComID), data)
		v.LogCounters()
		report = &r
	}
	if s.OnSample != nil {
		s.OnSample(info, data, report)
	}
	return nil
}

// NewSinkValidator creates a validator for the default flow with params.
func NewSinkValidator(params sdt.SinkParams) *safety.Validator {
	return safety.NewPDValidator(safety.DefaultFlow(), params)
}

// Publish starts a cyclic publication driven by a PeriodicSource.
func Publish(session *pd.Session, comID trdp.ComID, dest trdp.Addr, cycle time.Duration, framer *safety.Framer) (*PeriodicSource, error) {
	pub, err := session.Publish(comID, dest, cycle, nil)
	if err != nil {
		return nil, err
	}
	return &PeriodicSource{Transport: session, Pub: pub, Framer: framer, Period: cycle}, nil
}
