// Package stream carries TRDP packets over a reliable byte stream such as
// a TCP connection. Each packet is prefixed by its 4-byte little-endian
// length.
package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

// MaxPacketSize bounds the length prefix accepted on read.
const MaxPacketSize = 1 << 17

// Link implements comm.Link over a point-to-point stream. Every packet
// read is attributed to Peer; the destination of written packets is
// ignored.
type Link struct {
	io.ReadWriter
	Peer trdp.Addr

	writeLock sync.Mutex
}

// New creates a Link with io.ReadWriter.
func New(s io.ReadWriter, peer trdp.Addr) *Link {
	return &Link{ReadWriter: s, Peer: peer}
}

// Dial connects to a TCP endpoint.
func Dial(address string, peer trdp.Addr) (*Link, error) {
	conn, err := net.Dial("tcp", address)
	if err != nil {
		return nil, err
	}
	return New(conn, peer), nil
}

// Accept listens on address and waits for exactly one connection.
// The peer address is taken from the connection.
func Accept(address string) (*Link, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	defer ln.Close()
	conn, err := ln.Accept()
	if err != nil {
		return nil, err
	}
	var peer trdp.Addr
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		if ip4 := tcpAddr.IP.To4(); ip4 != nil {
			peer = trdp.AddrFromBytes(ip4)
		}
	}
	return New(conn, peer), nil
}

// ReadPacket implements comm.PacketReader.
func (l *Link) ReadPacket() ([]byte, trdp.Addr, error) {
	var size uint32
	if err := binary.Read(l.ReadWriter, binary.LittleEndian, &size); err != nil {
		return nil, l.Peer, err
	}
	if size > MaxPacketSize {
		return nil, l.Peer, fmt.Errorf("stream: packet size %d exceeds limit", size)
	}
	pkt := make([]byte, size)
	_, err := io.ReadFull(l.ReadWriter, pkt)
	return pkt, l.Peer, err
}

// WritePacket implements comm.PacketWriter.
func (l *Link) WritePacket(pkt []byte, _ trdp.Addr) error {
	buf := make([]byte, 4+len(pkt))
	binary.LittleEndian.PutUint32(buf, uint32(len(pkt)))
	copy(buf[4:], pkt)
	l.writeLock.Lock()
	defer l.writeLock.Unlock()
	_, err := l.Write(buf)
	return err
}

// Close implements io.Closer.
func (l *Link) Close() error {
	if closer, ok := l.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
