package env

import (
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/trdp.go/pkg/exchange"
	"github.com/robotalks/trdp.go/pkg/safety"
	"github.com/robotalks/trdp.go/pkg/sdt"
	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/comm"
)

func TestDefaults(t *testing.T) {
	conf := NewConfig()
	require.NotSame(t, Default(), conf)
	require.EqualValues(t, 1001, conf.MD.ComID)
	require.Equal(t, 2*time.Second, conf.MD.Timeout)
	require.Equal(t, 1, conf.MD.ExpectedReplies)
	require.Equal(t, exchange.DefaultConfirmTimeout, conf.MD.ConfirmTimeout)
	require.Equal(t, time.Second, conf.PD.Cycle)
	require.True(t, conf.Scheduler.Blocking)
	require.Equal(t, sdt.DefaultSinkParams(), conf.SinkParams())
	require.True(t, strings.HasPrefix(conf.SourceURI, "trdp@"))
	require.Nil(t, conf.Framer())
	require.Nil(t, conf.MDValidator())
	r, err := conf.Validators(safety.ProcessData)
	require.NoError(t, err)
	require.Nil(t, r)
}

func TestApplyEnv(t *testing.T) {
	vars := map[string]string{
		"TRDP_OWN_IP":       "10.0.0.1",
		"TRDP_DEST_IP":      "10.0.0.2",
		"TRDP_LINK_URL":     "mqtt://broker:1883/trdp/",
		"TRDP_COMID":        "0x3e8",
		"TRDP_METRICS_ADDR": ":9100",
	}
	var conf Config
	conf.applyEnv(func(name string) string { return vars[name] })
	require.Equal(t, "10.0.0.1", conf.OwnIP)
	require.Equal(t, "10.0.0.2", conf.DestIP)
	require.Equal(t, "mqtt://broker:1883/trdp/", conf.LinkURL)
	require.EqualValues(t, 1000, conf.MD.ComID)
	require.EqualValues(t, 1000, conf.PD.ComID)
	require.Equal(t, ":9100", conf.MetricsAddr)

	vars["TRDP_COMID"] = "x"
	conf.applyEnv(func(name string) string { return vars[name] })
	require.EqualValues(t, 1000, conf.MD.ComID)
}

func TestOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trdp.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
own_ip = "10.0.0.5"
dest_ip = "10.0.0.6"

[md]
comid = 2002
timeout = "5s"

[pd]
cycle = "100ms"

[sdt]
enabled = true
sid = 0x1000
rx_period = 200

[sdt.sources]
"10.0.0.6" = 0x2000

[scheduler]
ceiling = "50ms"
`), 0o644))

	conf := NewConfig()
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	conf.BindFlags(fs)
	require.NoError(t, fs.Parse([]string{"-t", "10.0.0.9", "-b=false"}))
	require.NoError(t, conf.Overlay(fs, path))

	require.Equal(t, "10.0.0.5", conf.OwnIP)
	require.Equal(t, "10.0.0.9", conf.DestIP)
	require.False(t, conf.Scheduler.Blocking)
	require.EqualValues(t, 2002, conf.MD.ComID)
	require.Equal(t, 5*time.Second, conf.MD.Timeout)
	require.Equal(t, 100*time.Millisecond, conf.PD.Cycle)
	require.True(t, conf.SDT.Enabled)
	require.EqualValues(t, 0x1000, conf.Framer().SID)
	require.EqualValues(t, 200, conf.SinkParams().RxPeriod)
	require.EqualValues(t, 100, conf.SinkParams().TxPeriod)
	r, err := conf.Validators(safety.ProcessData)
	require.NoError(t, err)
	require.EqualValues(t, 0x1000, r.FlowOf(trdp.MustParseAddr("10.0.0.5")).SID1)
	require.EqualValues(t, 0x2000, r.FlowOf(trdp.MustParseAddr("10.0.0.6")).SID1)
	require.Equal(t, safety.ProcessData, r.For(trdp.MustParseAddr("10.0.0.6")).Kind)

	conf.SDT.Sources = map[string]uint32{"bogus": 1}
	_, err = conf.Validators(safety.MessageData)
	require.Error(t, err)
	conf.SDT.Sources = nil

	profile := conf.Profile(exchange.PeriodicProfile)
	require.Equal(t, 50*time.Millisecond, profile.Ceiling)
	require.Equal(t, exchange.PeriodicProfile.Floor, profile.Floor)

	require.NoError(t, conf.Overlay(fs, ""))
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	conf := NewConfig()
	require.Error(t, conf.LoadFile(filepath.Join(dir, "missing.toml")))

	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[md]\nunknown = 1\n"), 0o644))
	err := conf.LoadFile(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown keys")
}

func TestAddresses(t *testing.T) {
	conf := NewConfig()
	conf.OwnIP, conf.DestIP = "", ""
	own, err := conf.Own()
	require.NoError(t, err)
	require.Equal(t, trdp.AddrAny, own)
	_, err = conf.Dest()
	require.Error(t, err)

	conf.OwnIP, conf.DestIP = "10.0.0.1", "10.0.0.256"
	own, err = conf.Own()
	require.NoError(t, err)
	require.Equal(t, trdp.MustParseAddr("10.0.0.1"), own)
	_, err = conf.Dest()
	require.Error(t, err)
}

func TestNewLink(t *testing.T) {
	conf := NewConfig()
	conf.OwnIP, conf.DestIP = "127.0.0.1", "127.0.0.1"

	conf.LinkURL = "udp://:0"
	link, err := conf.NewLink(ServiceMD)
	require.NoError(t, err)
	udp, ok := link.(*comm.UDPLink)
	require.True(t, ok)
	require.NotZero(t, udp.LocalPort())
	require.NoError(t, link.Close())

	_, err = conf.NewLink("xx")
	require.Error(t, err)

	testCases := []string{"gopher://host", "udp://:port", "tcp://%zz"}
	for _, u := range testCases {
		conf.LinkURL = u
		_, err = conf.NewLink(ServicePD)
		require.Errorf(t, err, u)
	}
}

func TestServicePort(t *testing.T) {
	port, err := ServicePort(ServiceMD)
	require.NoError(t, err)
	require.Equal(t, trdp.MDPort, port)
	port, err = ServicePort(ServicePD)
	require.NoError(t, err)
	require.Equal(t, trdp.PDPort, port)
}

func TestSourceURIFor(t *testing.T) {
	require.Equal(t, "trdp@host", SourceURIFor("host"))
	uri := SourceURIFor(strings.Repeat("a", 64))
	require.Len(t, uri, sourceURILen)
}

func TestComIDVar(t *testing.T) {
	var comID uint32 = 1001
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	ComIDVar(fs, &comID, "c", "")
	require.Equal(t, "1001", fs.Lookup("c").DefValue)
	require.NoError(t, fs.Parse([]string{"-c", "0x7d2"}))
	require.EqualValues(t, 2002, comID)
	require.Error(t, fs.Set("c", "-1"))
}
