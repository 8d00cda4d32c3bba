package sdt

import "fmt"

// Result is the result code of a safety layer operation.
type Result int

// Result codes.
const (
	OK Result = iota
	ErrSize
	ErrVersion
	ErrHandle
	ErrCRC
	ErrDup
	ErrLoss
	ErrSID
	ErrParam
	ErrRedundancy
	ErrSys
	ErrLTM
	ErrInit
	ErrCMThr
)

var resultNames = []string{
	"SDT_OK",
	"SDT_ERR_SIZE",
	"SDT_ERR_VERSION",
	"SDT_ERR_HANDLE",
	"SDT_ERR_CRC",
	"SDT_ERR_DUP",
	"SDT_ERR_LOSS",
	"SDT_ERR_SID",
	"SDT_ERR_PARAM",
	"SDT_ERR_REDUNDANCY",
	"SDT_ERR_SYS",
	"SDT_ERR_LTM",
	"SDT_ERR_INIT",
	"SDT_ERR_CMTHR",
}

func (r Result) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "UNKNOWN"
}

// Validity classifies a validated frame.
type Validity int

// Validity values.
const (
	Fresh Validity = iota
	Invalid
	Error
)

func (v Validity) String() string {
	switch v {
	case Fresh:
		return "SDT_FRESH"
	case Invalid:
		return "SDT_INVALID"
	case Error:
		return "SDT_ERROR"
	}
	return "UNKNOWN"
}

// Profile selects the safety code parameters.
type Profile int

// Profiles.
const (
	ProfileIPT Profile = iota
)

func (p Profile) String() string {
	if p == ProfileIPT {
		return "IPT"
	}
	return fmt.Sprintf("Profile(%d)", int(p))
}

// Counters are the diagnostic counters of a validator. They only grow.
type Counters struct {
	Received        uint32
	Errored         uint32
	SIDMismatch     uint32
	OutOfSequence   uint32
	Duplicate       uint32
	VersionMismatch uint32
	LifeMissGuard   uint32
}

func (c Counters) String() string {
	return fmt.Sprintf("rx(%d) err(%d) sid(%d) oos(%d) dpl(%d) udv(%d) lmg(%d)",
		c.Received, c.Errored, c.SIDMismatch, c.OutOfSequence,
		c.Duplicate, c.VersionMismatch, c.LifeMissGuard)
}
