package comm

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

var (
	addrA = trdp.MustParseAddr("10.0.0.1")
	addrB = trdp.MustParseAddr("10.0.0.2")
	addrC = trdp.MustParseAddr("10.0.0.3")
)

func ignoreGlog() goleak.Option {
	return goleak.IgnoreAnyFunction("github.com/golang/glog.(*loggingT).flushDaemon")
}

func waitReady(t *testing.T, p *Port) {
	select {
	case <-p.Ready():
	case <-time.After(time.Second):
		t.Fatal("port not ready")
	}
}

func TestPortDeliversDatagrams(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog())

	n := NewNetwork()
	a, b := NewPort(n.Link(addrA), 0), NewPort(n.Link(addrB), 0)
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.Send([]byte("one"), addrB))
	require.NoError(t, a.Send([]byte("two"), addrB))

	var got []string
	for len(got) < 2 {
		waitReady(t, b)
		for {
			d, ok := b.Poll()
			if !ok {
				break
			}
			require.Equal(t, addrA, d.From)
			got = append(got, string(d.Data))
		}
	}
	require.Equal(t, []string{"one", "two"}, got)
	_, ok := b.Poll()
	require.False(t, ok)
	require.NoError(t, b.Err())
}

func TestPortCloseStopsReader(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog())

	n := NewNetwork()
	p := NewPort(n.Link(addrA), 1)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.Equal(t, ErrClosed, p.Send([]byte{1}, addrB))
	require.NoError(t, p.Err())
}

type failingLink struct {
	err error
}

func (l *failingLink) ReadPacket() ([]byte, trdp.Addr, error) { return nil, 0, l.err }
func (l *failingLink) WritePacket([]byte, trdp.Addr) error    { return l.err }
func (l *failingLink) Close() error                           { return nil }

func TestPortReadErrorReported(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreGlog())

	broken := errors.New("broken")
	p := NewPort(&failingLink{err: broken}, 0)
	waitReady(t, p)
	require.Equal(t, broken, p.Err())
	require.NoError(t, p.Close())
}

func TestNetworkRouting(t *testing.T) {
	n := NewNetwork()
	a, b, c := n.Link(addrA), n.Link(addrB), n.Link(addrC)
	defer a.Close()
	defer b.Close()
	defer c.Close()

	require.NoError(t, a.WritePacket([]byte("bcast"), BroadcastAddr))
	for _, l := range []*PipeLink{b, c} {
		pkt, from, err := l.ReadPacket()
		require.NoError(t, err)
		require.Equal(t, addrA, from)
		require.Equal(t, "bcast", string(pkt))
	}
	require.Empty(t, a.inbox)

	// unknown destinations are silently lost.
	require.NoError(t, a.WritePacket([]byte("lost"), trdp.MustParseAddr("10.9.9.9")))

	n.Drop = func(from, to trdp.Addr, pkt []byte) bool { return to == addrC }
	require.NoError(t, a.WritePacket([]byte("x"), addrC))
	require.Empty(t, c.inbox)

	require.NoError(t, c.Close())
	require.Equal(t, ErrClosed, c.WritePacket([]byte("x"), addrA))
	_, _, err := c.ReadPacket()
	require.Equal(t, ErrClosed, err)
}

func TestUDPLoopback(t *testing.T) {
	loop := trdp.MustParseAddr("127.0.0.1")
	a, err := ListenUDP(loop, 0)
	require.NoError(t, err)
	defer a.Close()
	b, err := ListenUDP(loop, 0)
	require.NoError(t, err)
	defer b.Close()
	a.RemotePort = b.LocalPort()

	require.NoError(t, a.WritePacket([]byte("hello"), loop))
	require.NoError(t, b.Conn.SetReadDeadline(time.Now().Add(time.Second)))
	pkt, from, err := b.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "hello", string(pkt))
	require.Equal(t, loop, from)
}
