package trdp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Default ports.
const (
	PDPort uint16 = 17224
	MDPort uint16 = 17225
)

// Payload limits.
const (
	// MaxMDDataSize is the largest MD dataset carried in one message.
	MaxMDDataSize = 65388
	// MaxPDDataSize is the largest PD dataset carried in one message.
	MaxPDDataSize = 1432
)

// ComID identifies the application message type used for routing.
type ComID uint32

// Addr is an IPv4 address in host byte order.
type Addr uint32

// AddrAny matches any address when used as a filter.
const AddrAny Addr = 0

// ParseAddr parses a dotted decimal IPv4 address.
func ParseAddr(s string) (Addr, error) {
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 {
		return 0, fmt.Errorf("invalid IPv4 address %q", s)
	}
	var a Addr
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return 0, fmt.Errorf("invalid IPv4 address %q", s)
		}
		a = a<<8 | Addr(n)
	}
	return a, nil
}

// MustParseAddr parses an address and panics on error.
func MustParseAddr(s string) Addr {
	a, err := ParseAddr(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the dotted decimal form.
func (a Addr) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", byte(a>>24), byte(a>>16), byte(a>>8), byte(a))
}

// Bytes returns the address in network byte order.
func (a Addr) Bytes() [4]byte {
	return [4]byte{byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a)}
}

// Matches reports whether a satisfies filter f, AddrAny matching everything.
func (a Addr) Matches(f Addr) bool {
	return f == AddrAny || f == a
}

// AddrFromBytes builds an Addr from 4 bytes in network order.
func AddrFromBytes(b []byte) Addr {
	if len(b) < 4 {
		return AddrAny
	}
	return Addr(b[0])<<24 | Addr(b[1])<<16 | Addr(b[2])<<8 | Addr(b[3])
}

// CorrelationID links a request with its replies and confirm.
type CorrelationID = uuid.UUID

// NewCorrelationID generates a fresh random CorrelationID.
func NewCorrelationID() CorrelationID {
	return uuid.New()
}

// MsgType is the two-character message kind carried in every header.
type MsgType uint16

// Message types.
const (
	MsgNotification MsgType = 0x4D6E // "Mn"
	MsgRequest      MsgType = 0x4D72 // "Mr"
	MsgReply        MsgType = 0x4D70 // "Mp"
	MsgReplyQuery   MsgType = 0x4D71 // "Mq"
	MsgConfirm      MsgType = 0x4D63 // "Mc"
	MsgError        MsgType = 0x4D65 // "Me"
	MsgPDData       MsgType = 0x5064 // "Pd"
	MsgPDRequest    MsgType = 0x5072 // "Pr"
	MsgPDReply      MsgType = 0x5070 // "Pp"
)

// IsMD reports whether t is a message data type.
func (t MsgType) IsMD() bool {
	switch t {
	case MsgNotification, MsgRequest, MsgReply, MsgReplyQuery, MsgConfirm, MsgError:
		return true
	}
	return false
}

// IsPD reports whether t is a process data type.
func (t MsgType) IsPD() bool {
	switch t {
	case MsgPDData, MsgPDRequest, MsgPDReply:
		return true
	}
	return false
}

// String returns the two-character code.
func (t MsgType) String() string {
	hi, lo := byte(t>>8), byte(t)
	if hi < 0x20 || hi > 0x7e || lo < 0x20 || lo > 0x7e {
		return fmt.Sprintf("0x%04x", uint16(t))
	}
	return string([]byte{hi, lo})
}

// ResultCode reports the outcome carried by an Event.
type ResultCode int

// Result codes.
const (
	ResultOK ResultCode = iota
	ResultListenTimeout
	ResultReplyTimeout
	ResultConfirmTimeout
	ResultRequestConfirmTimeout
	ResultNoListener
	ResultPeerError
	ResultError
)

var resultNames = [...]string{
	ResultOK:                    "OK",
	ResultListenTimeout:         "LISTEN_TIMEOUT",
	ResultReplyTimeout:          "REPLY_TIMEOUT",
	ResultConfirmTimeout:        "CONFIRM_TIMEOUT",
	ResultRequestConfirmTimeout: "REQUEST_CONFIRM_TIMEOUT",
	ResultNoListener:            "NO_LISTENER",
	ResultPeerError:             "PEER_ERROR",
	ResultError:                 "ERROR",
}

// String implements fmt.Stringer.
func (r ResultCode) String() string {
	if r >= 0 && int(r) < len(resultNames) {
		return resultNames[r]
	}
	return "UNKNOWN(" + strconv.Itoa(int(r)) + ")"
}

// IsExchangeTimeout reports whether r ends a requester transaction by timeout.
func (r ResultCode) IsExchangeTimeout() bool {
	return r == ResultReplyTimeout || r == ResultConfirmTimeout || r == ResultRequestConfirmTimeout
}

// Event is delivered to a Handler for every inbound message or timeout.
// Payload is only valid during the callback.
type Event struct {
	Result      ResultCode
	Type        MsgType
	ComID       ComID
	ID          CorrelationID
	Source      Addr
	Dest        Addr
	SourceURI   string
	ReplyStatus int32
	Payload     []byte
}

// Handler receives events from a transport session.
type Handler interface {
	HandleEvent(*Event)
}

// HandleEventFunc is the func form of Handler.
type HandleEventFunc func(*Event)

// HandleEvent implements Handler.
func (f HandleEventFunc) HandleEvent(ev *Event) {
	f(ev)
}

// WatchSet is the readiness capability handed out by a Processor.
type WatchSet interface {
	// Ready is signalled when inbound data is queued.
	Ready() <-chan struct{}
	// Err reports a failure of the underlying wait source.
	Err() error
}

// Processor is the processing entry point of a transport session.
type Processor interface {
	// Interval returns the time until the earliest internal deadline
	// and the watch set to wait on.
	Interval() (time.Duration, WatchSet)
	// Process handles queued input and expired deadlines, invoking
	// handlers synchronously.
	Process(WatchSet)
}
