package websocket

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/trdp.go/pkg/trdp"
)

func TestLinkRoundTrip(t *testing.T) {
	accepted := make(chan *Link, 1)
	server := httptest.NewServer(Handler(func(l *Link) { accepted <- l }))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, err := Dial(url, server.URL, trdp.MustParseAddr("10.0.0.2"))
	require.NoError(t, err)
	defer client.Close()

	peer := <-accepted
	defer peer.Close()
	require.Equal(t, "127.0.0.1", peer.Peer.String())

	require.NoError(t, client.WritePacket([]byte("hello"), trdp.AddrAny))
	pkt, from, err := peer.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, "hello", string(pkt))
	require.Equal(t, "127.0.0.1", from.String())

	require.NoError(t, peer.WritePacket([]byte{0, 1, 2}, trdp.AddrAny))
	pkt, from, err = client.ReadPacket()
	require.NoError(t, err)
	require.Equal(t, []byte{0, 1, 2}, pkt)
	require.Equal(t, "10.0.0.2", from.String())
}
