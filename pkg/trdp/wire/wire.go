// Package wire encodes and decodes TRDP message headers.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

// Header sizes and protocol constants.
const (
	MDHeaderLen = 116
	PDHeaderLen = 40
	URILen      = 32

	ProtocolVersion uint16 = 0x0100
)

var (
	// ErrShortPacket indicates the packet is shorter than its header.
	ErrShortPacket = errors.New("wire: short packet")
	// ErrVersion indicates an unsupported protocol major version.
	ErrVersion = errors.New("wire: unsupported protocol version")
	// ErrLength indicates the dataset length disagrees with the packet size.
	ErrLength = errors.New("wire: dataset length mismatch")
	// ErrMsgType indicates the message type is not valid for the header kind.
	ErrMsgType = errors.New("wire: unexpected message type")
)

// FCSError reports a header checksum mismatch.
type FCSError struct {
	Want, Got uint32
}

// Error implements error.
func (e *FCSError) Error() string {
	return fmt.Sprintf("wire: header fcs mismatch want %08x got %08x", e.Want, e.Got)
}

// MDHeader is the header of a message data packet.
type MDHeader struct {
	Seq          uint32
	Version      uint16
	Type         trdp.MsgType
	ComID        trdp.ComID
	EtbTopoCnt   uint32
	OpTrnTopoCnt uint32
	ReplyStatus  int32
	SessionID    trdp.CorrelationID
	// ReplyTimeout is in microseconds.
	ReplyTimeout uint32
	SourceURI    string
	DestURI      string
}

// MDPacket is a decoded MD header with its dataset.
type MDPacket struct {
	Header MDHeader
	Data   []byte
}

// PDHeader is the header of a process data packet.
type PDHeader struct {
	Seq          uint32
	Version      uint16
	Type         trdp.MsgType
	ComID        trdp.ComID
	EtbTopoCnt   uint32
	OpTrnTopoCnt uint32
	ReplyComID   trdp.ComID
	ReplyAddr    trdp.Addr
}

// PDPacket is a decoded PD header with its dataset.
type PDPacket struct {
	Header PDHeader
	Data   []byte
}

// Checksum computes the header frame check sequence.
func Checksum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// EncodeMD encodes an MD packet.
func EncodeMD(h *MDHeader, data []byte) []byte {
	b := make([]byte, MDHeaderLen+len(data))
	version := h.Version
	if version == 0 {
		version = ProtocolVersion
	}
	binary.BigEndian.PutUint32(b[0:4], h.Seq)
	binary.BigEndian.PutUint16(b[4:6], version)
	binary.BigEndian.PutUint16(b[6:8], uint16(h.Type))
	binary.BigEndian.PutUint32(b[8:12], uint32(h.ComID))
	binary.BigEndian.PutUint32(b[12:16], h.EtbTopoCnt)
	binary.BigEndian.PutUint32(b[16:20], h.OpTrnTopoCnt)
	binary.BigEndian.PutUint32(b[20:24], uint32(len(data)))
	binary.BigEndian.PutUint32(b[24:28], uint32(h.ReplyStatus))
	copy(b[28:44], h.SessionID[:])
	binary.BigEndian.PutUint32(b[44:48], h.ReplyTimeout)
	putURI(b[48:80], h.SourceURI)
	putURI(b[80:112], h.DestURI)
	binary.LittleEndian.PutUint32(b[112:116], Checksum(b[:112]))
	copy(b[MDHeaderLen:], data)
	return b
}

// DecodeMD decodes an MD packet. The returned Data aliases b.
func DecodeMD(b []byte) (*MDPacket, error) {
	if len(b) < MDHeaderLen {
		return nil, ErrShortPacket
	}
	if err := checkFCS(b[:112], b[112:116]); err != nil {
		return nil, err
	}
	p := &MDPacket{}
	h := &p.Header
	h.Seq = binary.BigEndian.Uint32(b[0:4])
	h.Version = binary.BigEndian.Uint16(b[4:6])
	if h.Version>>8 != ProtocolVersion>>8 {
		return nil, ErrVersion
	}
	h.Type = trdp.MsgType(binary.BigEndian.Uint16(b[6:8]))
	if !h.Type.IsMD() {
		return nil, ErrMsgType
	}
	h.ComID = trdp.ComID(binary.BigEndian.Uint32(b[8:12]))
	h.EtbTopoCnt = binary.BigEndian.Uint32(b[12:16])
	h.OpTrnTopoCnt = binary.BigEndian.Uint32(b[16:20])
	size := binary.BigEndian.Uint32(b[20:24])
	h.ReplyStatus = int32(binary.BigEndian.Uint32(b[24:28]))
	copy(h.SessionID[:], b[28:44])
	h.ReplyTimeout = binary.BigEndian.Uint32(b[44:48])
	h.SourceURI = getURI(b[48:80])
	h.DestURI = getURI(b[80:112])
	if uint64(size) > uint64(len(b)-MDHeaderLen) {
		return nil, ErrLength
	}
	p.Data = b[MDHeaderLen : MDHeaderLen+int(size)]
	return p, nil
}

// EncodePD encodes a PD packet.
func EncodePD(h *PDHeader, data []byte) []byte {
	b := make([]byte, PDHeaderLen+len(data))
	version := h.Version
	if version == 0 {
		version = ProtocolVersion
	}
	msgType := h.Type
	if msgType == 0 {
		msgType = trdp.MsgPDData
	}
	binary.BigEndian.PutUint32(b[0:4], h.Seq)
	binary.BigEndian.PutUint16(b[4:6], version)
	binary.BigEndian.PutUint16(b[6:8], uint16(msgType))
	binary.BigEndian.PutUint32(b[8:12], uint32(h.ComID))
	binary.BigEndian.PutUint32(b[12:16], h.EtbTopoCnt)
	binary.BigEndian.PutUint32(b[16:20], h.OpTrnTopoCnt)
	binary.BigEndian.PutUint32(b[20:24], uint32(len(data)))
	binary.BigEndian.PutUint32(b[28:32], uint32(h.ReplyComID))
	binary.BigEndian.PutUint32(b[32:36], uint32(h.ReplyAddr))
	binary.LittleEndian.PutUint32(b[36:40], Checksum(b[:36]))
	copy(b[PDHeaderLen:], data)
	return b
}

// DecodePD decodes a PD packet. The returned Data aliases b.
func DecodePD(b []byte) (*PDPacket, error) {
	if len(b) < PDHeaderLen {
		return nil, ErrShortPacket
	}
	if err := checkFCS(b[:36], b[36:40]); err != nil {
		return nil, err
	}
	p := &PDPacket{}
	h := &p.Header
	h.Seq = binary.BigEndian.Uint32(b[0:4])
	h.Version = binary.BigEndian.Uint16(b[4:6])
	if h.Version>>8 != ProtocolVersion>>8 {
		return nil, ErrVersion
	}
	h.Type = trdp.MsgType(binary.BigEndian.Uint16(b[6:8]))
	if !h.Type.IsPD() {
		return nil, ErrMsgType
	}
	h.ComID = trdp.ComID(binary.BigEndian.Uint32(b[8:12]))
	h.EtbTopoCnt = binary.BigEndian.Uint32(b[12:16])
	h.OpTrnTopoCnt = binary.BigEndian.Uint32(b[16:20])
	size := binary.BigEndian.Uint32(b[20:24])
	h.ReplyComID = trdp.ComID(binary.BigEndian.Uint32(b[28:32]))
	h.ReplyAddr = trdp.Addr(binary.BigEndian.Uint32(b[32:36]))
	if uint64(size) > uint64(len(b)-PDHeaderLen) {
		return nil, ErrLength
	}
	p.Data = b[PDHeaderLen : PDHeaderLen+int(size)]
	return p, nil
}

// PeekType returns the message type of an encoded packet without
// validating it.
func PeekType(b []byte) (trdp.MsgType, bool) {
	if len(b) < 8 {
		return 0, false
	}
	return trdp.MsgType(binary.BigEndian.Uint16(b[6:8])), true
}

func checkFCS(hdr, fcs []byte) error {
	want := binary.LittleEndian.Uint32(fcs)
	if got := Checksum(hdr); got != want {
		return &FCSError{Want: want, Got: got}
	}
	return nil
}

func putURI(dst []byte, uri string) {
	// always leave room for the terminating zero.
	if len(uri) >= len(dst) {
		uri = uri[:len(dst)-1]
	}
	copy(dst, uri)
}

func getURI(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
