package stream

import (
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

func TestFraming(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, trdp.MustParseAddr("10.0.0.2"))
	require.NoError(t, l.WritePacket([]byte{1, 2, 3}, trdp.AddrAny))
	require.Equal(t, []byte{3, 0, 0, 0, 1, 2, 3}, buf.Bytes())

	pkt, from, err := l.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, pkt)
	require.Equal(t, "10.0.0.2", from.String())

	buf.Write([]byte{0xff, 0xff, 0xff, 0x7f})
	_, _, err = l.ReadPacket()
	require.Error(t, err)
}

func TestOverConn(t *testing.T) {
	c1, c2 := net.Pipe()
	a, b := New(c1, 1), New(c2, 2)
	defer a.Close()
	defer b.Close()

	go a.WritePacket([]byte("ping"), 2)
	pkt, from, err := b.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "ping", string(pkt))
	require.Equal(t, trdp.Addr(2), from)
}
