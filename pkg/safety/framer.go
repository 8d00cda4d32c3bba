// Package safety wraps payloads in SDT safety trailers on send and checks
// them on receive. Failures are logged and counted, never fatal.
package safety

import (
	"github.com/golang/glog"

	"github.com/robotalks/trdp.go/pkg/metrics"
	"github.com/robotalks/trdp.go/pkg/sdt"
)

// Framer appends safety trailers to outbound payloads.
type Framer struct {
	SID     uint32
	Version uint16
}

// DefaultFramer uses the default source id and version.
func DefaultFramer() *Framer {
	return &Framer{SID: sdt.DefaultSID, Version: sdt.DefaultVersion}
}

// Padding returns the bytes appended to a payload of length l: alignment
// to 4 plus the trailer. It is at least 17, also for aligned payloads.
func Padding(l int) int {
	return (4 - l%4) + sdt.TrailerLen
}

// FramedLen returns the length of a framed payload of length l.
func FramedLen(l int) int {
	return l + Padding(l)
}

// MaxPayload returns the largest payload whose framed length fits in
// limit, or -1 when not even an empty payload fits.
func MaxPayload(limit int) int {
	if limit < sdt.TrailerLen+4 {
		return -1
	}
	return (limit-sdt.TrailerLen-4)/4*4 + 3
}

// Frame returns payload padded and secured with ssc. Use sdt.SSCNone for
// message data; periodic publishers pass their own counter, which is
// advanced on success. A failed encode is logged and the frame returned
// anyway.
func (f *Framer) Frame(payload []byte, ssc *uint32) []byte {
	buf := make([]byte, FramedLen(len(payload)))
	copy(buf, payload)
	if res := sdt.Encode(buf, f.SID, f.Version, ssc); res != sdt.OK {
		glog.Errorf("sdt encode failed: %s (%d)", res, int(res))
		metrics.SDTEncodeFailures.Inc()
	}
	return buf
}

// FrameMD frames a message data payload with the sentinel counter.
func (f *Framer) FrameMD(payload []byte) []byte {
	ssc := uint32(sdt.SSCNone)
	return f.Frame(payload, &ssc)
}
