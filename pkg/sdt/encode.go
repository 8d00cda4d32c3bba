// Package sdt implements the SDTv2 safety trailer: a sequence counter and
// a source-id seeded safety code appended to MD and PD payloads.
package sdt

import (
	"encoding/binary"
	"hash/crc32"
)

const (
	// TrailerLen is the size of the safety trailer at the end of a frame.
	TrailerLen = 16
	// SSCNone is the sequence counter used by MD frames. It is never
	// incremented and disables sequence checking.
	SSCNone = 0xFFFFFFFF
	// DefaultSID is the source id used by the sample programs.
	DefaultSID = 0x12345678
	// DefaultVersion is the user data version used by the sample programs.
	DefaultVersion = 2
)

// trailer offsets relative to the trailer start.
const (
	offVersion = 4
	offSSC     = 8
	offCode    = 12
)

// AUTOSAR CRC-32 polynomial 0xF4ACFB13, reversed.
var table = crc32.MakeTable(0xC8DF352F)

// SafetyCode computes the safety code of frame, which must include the
// trailer; the code field itself is excluded.
func SafetyCode(frame []byte, sid uint32) uint32 {
	return crc32.Update(sid, table, frame[:len(frame)-4])
}

// Encode writes the trailer into the last TrailerLen bytes of buf. On
// success *ssc is advanced unless it is SSCNone.
func Encode(buf []byte, sid uint32, version uint16, ssc *uint32) Result {
	if len(buf) < TrailerLen || len(buf)%4 != 0 {
		return ErrSize
	}
	if ssc == nil || sid == 0 {
		return ErrParam
	}
	t := buf[len(buf)-TrailerLen:]
	binary.BigEndian.PutUint32(t, 0)
	binary.BigEndian.PutUint16(t[offVersion:], version)
	binary.BigEndian.PutUint16(t[offVersion+2:], 0)
	binary.BigEndian.PutUint32(t[offSSC:], *ssc)
	binary.BigEndian.PutUint32(t[offCode:], SafetyCode(buf, sid))
	if *ssc != SSCNone {
		*ssc++
		if *ssc == SSCNone {
			*ssc = 0
		}
	}
	return OK
}

// Trailer is the decoded safety trailer.
type Trailer struct {
	Version uint16
	SSC     uint32
	Code    uint32
}

// ParseTrailer decodes the trailer at the end of frame.
func ParseTrailer(frame []byte) (Trailer, Result) {
	if len(frame) < TrailerLen || len(frame)%4 != 0 {
		return Trailer{}, ErrSize
	}
	t := frame[len(frame)-TrailerLen:]
	return Trailer{
		Version: binary.BigEndian.Uint16(t[offVersion:]),
		SSC:     binary.BigEndian.Uint32(t[offSSC:]),
		Code:    binary.BigEndian.Uint32(t[offCode:]),
	}, OK
}
