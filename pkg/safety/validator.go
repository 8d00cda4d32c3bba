package safety

import (
	"github.com/golang/glog"

	"github.com/robotalks/trdp.go/pkg/metrics"
	"github.com/robotalks/trdp.go/pkg/sdt"
)

// Flow identifies the sources of a validated stream.
type Flow struct {
	SID1          uint32
	SID2          uint32
	SID2Redundant uint8
	Version       uint16
}

// DefaultFlow is the flow of frames produced by DefaultFramer.
func DefaultFlow() Flow {
	return Flow{SID1: sdt.DefaultSID, Version: sdt.DefaultVersion}
}

// Report is the outcome of one check.
type Report struct {
	Validity sdt.Validity
	Code     sdt.Result
	SSC      uint32
}

// Fresh tells whether the frame was accepted.
func (r Report) Fresh() bool {
	return r.Validity == sdt.Fresh
}

// Kind tells whether frames carry message data or periodic process data.
type Kind int

// Kinds.
const (
	MessageData Kind = iota
	ProcessData
)

// Validator checks inbound frames of one flow. The underlying handle is
// created on the first check and kept for the Validator's lifetime.
type Validator struct {
	Flow    Flow
	Kind    Kind
	Profile sdt.Profile
	// Sink is applied to ProcessData handles when created.
	Sink sdt.SinkParams

	handle *sdt.Validator
	failed bool
}

// NewMDValidator creates a message data validator for flow.
func NewMDValidator(flow Flow) *Validator {
	return &Validator{Flow: flow, Kind: MessageData, Profile: sdt.ProfileIPT}
}

// NewPDValidator creates a process data validator for flow.
func NewPDValidator(flow Flow, sink sdt.SinkParams) *Validator {
	return &Validator{Flow: flow, Kind: ProcessData, Profile: sdt.ProfileIPT, Sink: sink}
}

// Handle returns the underlying handle, creating it when needed. It
// returns nil if the handle cannot be created.
func (v *Validator) Handle() *sdt.Validator {
	if v.handle != nil || v.failed {
		return v.handle
	}
	f := v.Flow
	h, res := sdt.NewValidator(v.Profile, f.SID1, f.SID2, f.SID2Redundant, f.Version)
	if res != sdt.OK {
		glog.Errorf("sdt validator for sid %08x: %s (%d)", f.SID1, res, int(res))
		v.failed = true
		return nil
	}
	if v.Kind == ProcessData {
		if res = h.SetSinkParams(v.Sink); res != sdt.OK {
			glog.Errorf("sdt sink params for sid %08x: %s (%d)", f.SID1, res, int(res))
		}
	}
	v.handle = h
	return h
}

// Check validates frame. A handle failure reports Error with
// sdt.ErrHandle.
func (v *Validator) Check(frame []byte) Report {
	h := v.Handle()
	if h == nil {
		return v.record(Report{Validity: sdt.Error, Code: sdt.ErrHandle})
	}
	var validity sdt.Validity
	if v.Kind == ProcessData {
		validity = h.ValidatePD(frame)
	} else {
		validity = h.ValidateMD(frame)
	}
	return v.record(Report{Validity: validity, Code: h.Errno(), SSC: h.SSC()})
}

// CheckLogged validates frame and logs the outcome for comID.
func (v *Validator) CheckLogged(comID uint32, frame []byte) Report {
	r := v.Check(frame)
	if v.Kind == ProcessData {
		glog.Infof("SDT comId %d: ssc=%d, valid=%s", comID, r.SSC, r.Validity)
	}
	if !r.Fresh() {
		glog.Warningf("SDT comId %d: validation failed: %s (%d)", comID, r.Code, int(r.Code))
	}
	return r
}

// Counters returns a snapshot of the handle counters.
func (v *Validator) Counters() sdt.Counters {
	if v.handle == nil {
		return sdt.Counters{}
	}
	return v.handle.Counters()
}

// LogCounters prints the counters.
func (v *Validator) LogCounters() {
	glog.Infof("sdt_counters: %s", v.Counters())
}

func (v *Validator) record(r Report) Report {
	metrics.RecordValidation(r.Validity.String(), r.Code.String())
	return r
}
