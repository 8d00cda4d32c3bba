package sh

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/trdp.go/pkg/env"
	"github.com/robotalks/trdp.go/pkg/exchange"
	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/comm"
	"github.com/robotalks/trdp.go/pkg/trdp/md"
)

type lines struct {
	lock sync.Mutex
	out  []string
}

func (l *lines) print(line string) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.out = append(l.out, line)
}

func (l *lines) all() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string(nil), l.out...)
}

func newShell(t *testing.T, n *comm.Network, ip string) *Shell {
	conf := env.NewConfig()
	conf.OwnIP = ip
	conf.MD.Timeout = 500 * time.Millisecond
	s := &Shell{
		Config: conf,
		Open: func(c *env.Config) (*md.Session, error) {
			own, err := c.Own()
			if err != nil {
				return nil, err
			}
			return md.Open(n.Link(own), md.Config{OwnAddr: own, SourceURI: c.SourceURI})
		},
	}
	require.NoError(t, s.Connect())
	t.Cleanup(s.Disconnect)
	return s
}

func requester(s *Shell, comID trdp.ComID, dest string, notify bool) *exchange.SessionContext {
	sctx := exchange.NewSessionContext(exchange.Requester, comID)
	sctx.DestAddr = trdp.MustParseAddr(dest)
	sctx.NotifyOnly = notify
	sctx.ExpectedReplies = s.Config.MD.ExpectedReplies
	sctx.Timeout = s.Config.MD.Timeout
	return sctx
}

func TestShellRequestReply(t *testing.T) {
	for _, safe := range []bool{false, true} {
		n := comm.NewNetwork()
		a, b := newShell(t, n, "10.0.0.1"), newShell(t, n, "10.0.0.2")
		a.Safety, b.Safety = safe, safe

		var served, got lines
		require.NoError(t, b.Listen(1001, false, served.print))
		require.ElementsMatch(t, []trdp.ComID{1001}, b.Loop.Listening())

		sctx := requester(a, 1001, "10.0.0.2", false)
		require.NoError(t, a.Exchange(sctx, []byte("How are you?"), got.print))
		require.False(t, sctx.Active())
		require.Len(t, got.all(), 1)
		require.Contains(t, got.all()[0], "Mp 1001 from 10.0.0.2")
		require.Contains(t, got.all()[0], "I'm fine, thanx!")
		require.Eventually(t, func() bool { return len(served.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
		require.Contains(t, served.all()[0], "Mr 1001 from 10.0.0.1")

		if safe {
			require.EqualValues(t, 1, a.Validator().Counters().Received)
			require.EqualValues(t, 1, b.Validator().Counters().Received)
			require.Zero(t, a.Validator().Counters().Errored)
		}
	}
}

func TestShellNotify(t *testing.T) {
	n := comm.NewNetwork()
	a, b := newShell(t, n, "10.0.0.1"), newShell(t, n, "10.0.0.2")
	var served, got lines
	require.NoError(t, b.Listen(1001, false, served.print))
	require.NoError(t, a.Exchange(requester(a, 1001, "10.0.0.2", true), []byte("Hello, World"), got.print))
	require.Eventually(t, func() bool { return len(served.all()) == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, served.all()[0], "Mn 1001")
	require.Empty(t, got.all())

	require.True(t, b.Loop.RemoveListener(1001))
	require.False(t, b.Loop.RemoveListener(1001))
	require.Empty(t, b.Loop.Listening())
}

func TestShellConfirm(t *testing.T) {
	n := comm.NewNetwork()
	a, b := newShell(t, n, "10.0.0.1"), newShell(t, n, "10.0.0.2")
	var served, got lines
	require.NoError(t, b.Listen(1001, true, served.print))
	require.NoError(t, a.Exchange(requester(a, 1001, "10.0.0.2", false), nil, got.print))
	require.Contains(t, got.all()[0], "Mq 1001")
	require.Eventually(t, func() bool { return len(served.all()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Contains(t, served.all()[1], "Mc 1001")
}

func TestShellTimeout(t *testing.T) {
	n := comm.NewNetwork()
	a := newShell(t, n, "10.0.0.1")
	a.Config.MD.Timeout = 100 * time.Millisecond
	var got lines
	require.NoError(t, a.Exchange(requester(a, 1001, "10.0.0.9", false), nil, got.print))
	require.Len(t, got.all(), 1)
	require.Contains(t, got.all()[0], "REPLY_TIMEOUT")

	a.Disconnect()
	require.Error(t, a.Exchange(requester(a, 1001, "10.0.0.9", false), nil, got.print))
	require.Error(t, a.Listen(1001, false, got.print))
}

func TestFormatEvent(t *testing.T) {
	ev := &trdp.Event{
		Type:    trdp.MsgReply,
		ComID:   1001,
		Source:  trdp.MustParseAddr("10.0.0.2"),
		Payload: []byte("I'm fine, thanx!"),
	}
	require.Equal(t, `Mp 1001 from 10.0.0.2 "I'm fine, thanx!"`, FormatEvent(ev, false))
	require.Equal(t,
		`{"type":"Mp","result":"OK","comId":1001,"source":"10.0.0.2","payload":"I'm fine, thanx!"}`,
		FormatEvent(ev, true))

	ev = &trdp.Event{Type: trdp.MsgRequest, Result: trdp.ResultListenTimeout, ComID: 7, Source: trdp.MustParseAddr("10.0.0.1")}
	require.Equal(t, "Mr 7 from 10.0.0.1: LISTEN_TIMEOUT", FormatEvent(ev, false))
}

func TestParseTarget(t *testing.T) {
	comID, dest, err := ParseTarget([]string{"0x3e9", "10.0.0.2", "extra"})
	require.NoError(t, err)
	require.EqualValues(t, 1001, comID)
	require.Equal(t, trdp.MustParseAddr("10.0.0.2"), dest)

	for _, args := range [][]string{{"1001"}, {"x", "10.0.0.2"}, {"1001", "host"}} {
		_, _, err = ParseTarget(args)
		require.Errorf(t, err, strings.Join(args, " "))
	}
}

func TestPayloadFrom(t *testing.T) {
	require.Equal(t, exchange.DefaultNotifyText, string(payloadFrom(nil, true)))
	require.Equal(t, exchange.DefaultRequestText, string(payloadFrom(nil, false)))
	require.Equal(t, "a b", string(payloadFrom([]string{"a", "b"}, false)))
}
