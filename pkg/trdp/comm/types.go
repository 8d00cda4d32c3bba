// Package comm provides the packet links TRDP sessions send and receive on.
package comm

import (
	"errors"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

// BroadcastAddr delivers a packet to every reachable peer.
const BroadcastAddr trdp.Addr = 0xffffffff

var (
	// ErrClosed indicates the link or port is closed.
	ErrClosed = errors.New("link closed")
	// ErrNoRoute indicates the destination is not reachable over the link.
	ErrNoRoute = errors.New("no route to destination")
)

// PacketReader reads addressed packets.
type PacketReader interface {
	// ReadPacket blocks until a packet arrives and returns it with
	// the sender address.
	ReadPacket() ([]byte, trdp.Addr, error)
}

// PacketWriter writes addressed packets.
type PacketWriter interface {
	WritePacket(pkt []byte, to trdp.Addr) error
}

// Link is a bi-directional, addressed packet link.
type Link interface {
	PacketReader
	PacketWriter
	Close() error
}

// Datagram is a received packet.
type Datagram struct {
	Data []byte
	From trdp.Addr
}
