// Package websocket carries TRDP packets as binary websocket messages.
package websocket

import (
	"net"
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

// Link implements comm.Link over a websocket connection. One message
// carries one packet; the destination of written packets is ignored.
type Link struct {
	Conn *websocket.Conn
	Peer trdp.Addr

	done      chan struct{}
	closeOnce sync.Once
}

// New wraps websocket.Conn.
func New(conn *websocket.Conn, peer trdp.Addr) *Link {
	return &Link{Conn: conn, Peer: peer, done: make(chan struct{})}
}

// Dial connects to a websocket endpoint, e.g. ws://host:8080/trdp.
func Dial(url, origin string, peer trdp.Addr) (*Link, error) {
	conn, err := websocket.Dial(url, "", origin)
	if err != nil {
		return nil, err
	}
	return New(conn, peer), nil
}

// Handler returns an http.Handler which passes each accepted connection
// to accept. The connection stays open until the Link is closed.
func Handler(accept func(*Link)) http.Handler {
	return websocket.Handler(func(conn *websocket.Conn) {
		l := New(conn, peerOf(conn.Request()))
		accept(l)
		<-l.done
	})
}

// Accept serves path on address and waits for exactly one connection.
func Accept(address, path string) (*Link, error) {
	ln, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	linkCh := make(chan *Link, 1)
	mux := http.NewServeMux()
	mux.Handle(path, Handler(func(l *Link) {
		select {
		case linkCh <- l:
		default:
			l.Close()
		}
	}))
	server := &http.Server{Handler: mux}
	errCh := make(chan error, 1)
	go func() { errCh <- server.Serve(ln) }()
	select {
	case l := <-linkCh:
		ln.Close()
		return l, nil
	case err = <-errCh:
		return nil, err
	}
}

// ReadPacket implements comm.PacketReader.
func (l *Link) ReadPacket() (pkt []byte, from trdp.Addr, err error) {
	err = websocket.Message.Receive(l.Conn, &pkt)
	return pkt, l.Peer, err
}

// WritePacket implements comm.PacketWriter.
func (l *Link) WritePacket(pkt []byte, _ trdp.Addr) error {
	return websocket.Message.Send(l.Conn, pkt)
}

// Close implements io.Closer.
func (l *Link) Close() (err error) {
	l.closeOnce.Do(func() {
		err = l.Conn.Close()
		close(l.done)
	})
	return
}

func peerOf(req *http.Request) trdp.Addr {
	if req == nil {
		return trdp.AddrAny
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return trdp.AddrAny
	}
	addr, err := trdp.ParseAddr(host)
	if err != nil {
		return trdp.AddrAny
	}
	return addr
}
