package sdt

// SinkParams are the receiver parameters of a periodic flow.
type SinkParams struct {
	// RxPeriod and TxPeriod are the sink and source cycle times in ms.
	RxPeriod uint16
	TxPeriod uint16
	// SafeRetries is the number of consecutive non-fresh frames tolerated
	// before the flow is reported as Error.
	SafeRetries uint8
	// GuardCount is the number of in-sequence frames rejected after a
	// sequence loss.
	GuardCount uint16
	// CMThreshold is the number of errored frames after which the channel
	// is considered failed for good.
	CMThreshold uint32
	// LMIMax is the number of consecutive duplicates tolerated before a
	// latency monitoring error.
	LMIMax uint16
}

// DefaultSinkParams returns the parameters used by the sample sinks.
func DefaultSinkParams() SinkParams {
	return SinkParams{
		RxPeriod:    120,
		TxPeriod:    100,
		SafeRetries: 100,
		GuardCount:  2,
		CMThreshold: 1000,
		LMIMax:      200,
	}
}

// MaxStep is the largest sequence increase accepted as fresh.
func (p SinkParams) MaxStep() uint32 {
	if p.TxPeriod == 0 {
		return 1
	}
	step := (uint32(p.RxPeriod) + uint32(p.TxPeriod) - 1) / uint32(p.TxPeriod)
	if step == 0 {
		step = 1
	}
	return step
}

// Validator checks frames of one flow. It is not safe for concurrent use.
type Validator struct {
	profile       Profile
	sid1, sid2    uint32
	sid2Redundant uint8
	version       uint16

	params    SinkParams
	paramsSet bool
	started   bool

	errno    Result
	ssc      uint32
	haveSSC  bool
	guard    uint16
	nonFresh uint32
	dupRun   uint32
	failed   bool
	counters Counters
}

// NewValidator creates a validator for frames from sid1, or also sid2
// when it is non-zero. Frames from sid2 are accepted only when
// sid2Redundant is set; otherwise they count as source id mismatches.
func NewValidator(profile Profile, sid1, sid2 uint32, sid2Redundant uint8, version uint16) (*Validator, Result) {
	if profile != ProfileIPT {
		return nil, ErrParam
	}
	if sid1 == 0 || (sid2Redundant != 0 && sid2 == 0) {
		return nil, ErrParam
	}
	return &Validator{
		profile:       profile,
		sid1:          sid1,
		sid2:          sid2,
		sid2Redundant: sid2Redundant,
		version:       version,
		params:        DefaultSinkParams(),
	}, OK
}

// SetSinkParams configures a periodic sink. It may be called once, before
// the first frame is validated.
func (v *Validator) SetSinkParams(p SinkParams) Result {
	if v.started || v.paramsSet {
		return ErrInit
	}
	if p.RxPeriod == 0 || p.TxPeriod == 0 || p.CMThreshold == 0 {
		return ErrParam
	}
	v.params, v.paramsSet = p, true
	return OK
}

// Profile returns the validator profile.
func (v *Validator) Profile() Profile { return v.profile }

// Params returns the sink parameters in effect.
func (v *Validator) Params() SinkParams { return v.params }

// Errno returns the code of the last validation.
func (v *Validator) Errno() Result { return v.errno }

// SSC returns the last accepted sequence counter.
func (v *Validator) SSC() uint32 { return v.ssc }

// Counters returns a snapshot of the counters.
func (v *Validator) Counters() Counters { return v.counters }

// ValidateMD checks a message data frame. Sequence counters are not
// checked, so frames validate independent of arrival order.
func (v *Validator) ValidateMD(frame []byte) Validity {
	v.started = true
	v.counters.Received++
	t, res := v.check(frame)
	if res != OK {
		v.errno = res
		v.counters.Errored++
		return Invalid
	}
	v.ssc, v.errno = t.SSC, OK
	return Fresh
}

// ValidatePD checks a process data frame against the sink parameters.
func (v *Validator) ValidatePD(frame []byte) Validity {
	v.started = true
	v.counters.Received++
	if v.failed {
		v.errno = ErrCMThr
		return Error
	}
	t, res := v.check(frame)
	if res != OK {
		return v.reject(res)
	}
	if !v.haveSSC {
		v.haveSSC, v.ssc = true, t.SSC
		return v.accept()
	}
	step := t.SSC - v.ssc
	switch {
	case step == 0:
		v.counters.Duplicate++
		v.dupRun++
		if v.dupRun > uint32(v.params.LMIMax) {
			v.counters.Errored++
			v.nonFresh++
			v.errno = ErrLTM
			return v.threshold(Error)
		}
		return v.reject(ErrDup)
	case step <= v.params.MaxStep():
		v.ssc, v.dupRun = t.SSC, 0
		if v.guard > 0 {
			v.guard--
			v.counters.LifeMissGuard++
			return v.reject(ErrLoss)
		}
		return v.accept()
	default:
		v.counters.OutOfSequence++
		v.ssc, v.dupRun = t.SSC, 0
		v.guard = v.params.GuardCount
		return v.reject(ErrLoss)
	}
}

func (v *Validator) accept() Validity {
	v.nonFresh, v.errno = 0, OK
	return Fresh
}

func (v *Validator) reject(res Result) Validity {
	v.counters.Errored++
	v.nonFresh++
	v.errno = res
	if v.nonFresh > uint32(v.params.SafeRetries) {
		return v.threshold(Error)
	}
	return v.threshold(Invalid)
}

func (v *Validator) threshold(validity Validity) Validity {
	if v.counters.Errored >= v.params.CMThreshold {
		v.failed = true
		v.errno = ErrCMThr
		return Error
	}
	return validity
}

func (v *Validator) check(frame []byte) (Trailer, Result) {
	t, res := ParseTrailer(frame)
	if res != OK {
		return t, res
	}
	switch {
	case t.Code == SafetyCode(frame, v.sid1):
	case v.sid2 != 0 && t.Code == SafetyCode(frame, v.sid2):
		if v.sid2Redundant == 0 {
			v.counters.SIDMismatch++
			return t, ErrSID
		}
	default:
		return t, ErrCRC
	}
	if t.Version != v.version {
		v.counters.VersionMismatch++
		return t, ErrVersion
	}
	return t, OK
}
