// Package env provides the common configuration of the TRDP programs:
// defaults, environment overrides, command line flags, an optional TOML
// file and construction of links and sessions.
package env

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/robotalks/trdp.go/pkg/exchange"
	"github.com/robotalks/trdp.go/pkg/safety"
	"github.com/robotalks/trdp.go/pkg/sdt"
	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/md"
)

// Config provides common options of the programs.
type Config struct {
	// OwnIP and DestIP are dotted decimal IPv4 addresses. An empty OwnIP
	// binds to all interfaces.
	OwnIP  string `toml:"own_ip"`
	DestIP string `toml:"dest_ip"`
	// LinkURL selects the link, e.g. udp://, tcp://host:port,
	// mqtt://host:1883/trdp/ or ws://host:8080/trdp.
	LinkURL string `toml:"link"`
	// MetricsAddr serves /metrics when not empty.
	MetricsAddr string `toml:"metrics_addr"`
	SourceURI   string `toml:"source_uri"`

	MD        MDConfig        `toml:"md"`
	PD        PDConfig        `toml:"pd"`
	SDT       SDTConfig       `toml:"sdt"`
	Scheduler SchedulerConfig `toml:"scheduler"`
}

// MDConfig configures message data exchanges.
type MDConfig struct {
	ComID           uint32        `toml:"comid"`
	Timeout         time.Duration `toml:"timeout"`
	ReplyTimeout    time.Duration `toml:"reply_timeout"`
	ConfirmTimeout  time.Duration `toml:"confirm_timeout"`
	ExpectedReplies int           `toml:"expected_replies"`
	Confirm         bool          `toml:"confirm"`
}

// PDConfig configures process data.
type PDConfig struct {
	ComID   uint32        `toml:"comid"`
	Cycle   time.Duration `toml:"cycle"`
	Timeout time.Duration `toml:"timeout"`
	Dataset string        `toml:"dataset"`
}

// SDTConfig configures safety framing and validation.
type SDTConfig struct {
	Enabled       bool   `toml:"enabled"`
	SID           uint32 `toml:"sid"`
	SID2          uint32 `toml:"sid2"`
	SID2Redundant uint8  `toml:"sid2_redundant"`
	Version       uint16 `toml:"version"`
	RxPeriod      uint16 `toml:"rx_period"`
	TxPeriod      uint16 `toml:"tx_period"`
	SafeRetries   uint8  `toml:"safe_retries"`
	GuardCount    uint16 `toml:"guard_count"`
	CMThreshold   uint32 `toml:"cm_threshold"`
	LMIMax        uint16 `toml:"lmi_max"`
	// Sources maps a source IP to the SID its frames are secured with.
	Sources map[string]uint32 `toml:"sources"`
}

// SchedulerConfig overrides the scheduling profile; zero values keep the
// profile of the program.
type SchedulerConfig struct {
	Blocking bool          `toml:"blocking"`
	Floor    time.Duration `toml:"floor"`
	Ceiling  time.Duration `toml:"ceiling"`
	Quantum  time.Duration `toml:"quantum"`
}

var (
	defaultConfig = Config{
		LinkURL: "udp://",
		MD: MDConfig{
			ComID:           1001,
			Timeout:         2 * time.Second,
			ReplyTimeout:    md.DefaultReplyTimeout,
			ConfirmTimeout:  exchange.DefaultConfirmTimeout,
			ExpectedReplies: 1,
		},
		PD: PDConfig{
			Cycle:   time.Second,
			Timeout: time.Second,
			Dataset: exchange.DefaultCounterFormat,
		},
		Scheduler: SchedulerConfig{Blocking: true},
	}

	configFile string
)

func init() {
	p := sdt.DefaultSinkParams()
	defaultConfig.SDT = SDTConfig{
		SID:         sdt.DefaultSID,
		Version:     sdt.DefaultVersion,
		RxPeriod:    p.RxPeriod,
		TxPeriod:    p.TxPeriod,
		SafeRetries: p.SafeRetries,
		GuardCount:  p.GuardCount,
		CMThreshold: p.CMThreshold,
		LMIMax:      p.LMIMax,
	}
	defaultConfig.SourceURI = SourceURIFor(MachineID())
	defaultConfig.applyEnv(os.Getenv)
}

func (c *Config) applyEnv(getenv func(string) string) {
	if val := getenv("TRDP_OWN_IP"); val != "" {
		c.OwnIP = val
	}
	if val := getenv("TRDP_DEST_IP"); val != "" {
		c.DestIP = val
	}
	if val := getenv("TRDP_LINK_URL"); val != "" {
		c.LinkURL = val
	}
	if val := getenv("TRDP_COMID"); val != "" {
		if n, err := strconv.ParseUint(val, 0, 32); err == nil {
			c.MD.ComID, c.PD.ComID = uint32(n), uint32(n)
		} else {
			log.Printf("ignore TRDP_COMID %q: %v", val, err)
		}
	}
	if val := getenv("TRDP_METRICS_ADDR"); val != "" {
		c.MetricsAddr = val
	}
}

// BindFlags binds the common options to fs.
func (c *Config) BindFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.OwnIP, "o", c.OwnIP, "Own IP address in dotted decimal.")
	fs.StringVar(&c.DestIP, "t", c.DestIP, "Target IP address in dotted decimal.")
	fs.StringVar(&c.LinkURL, "link", c.LinkURL, "Link URL: udp://, tcp://, tcp-listen://, mqtt://, ws://, ws-listen://.")
	fs.StringVar(&c.MetricsAddr, "metrics", c.MetricsAddr, "Serve Prometheus metrics on this address.")
	fs.BoolVar(&c.SDT.Enabled, "s", c.SDT.Enabled, "Enable SDTv2 safety framing.")
	fs.BoolVar(&c.Scheduler.Blocking, "b", c.Scheduler.Blocking, "Blocking mode.")
}

type comIDValue uint32

func (v *comIDValue) String() string {
	return strconv.FormatUint(uint64(*v), 10)
}

func (v *comIDValue) Set(s string) error {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return err
	}
	*v = comIDValue(n)
	return nil
}

// ComIDVar defines a ComID flag accepting decimal or 0x prefixed values.
func ComIDVar(fs *flag.FlagSet, p *uint32, name, usage string) {
	fs.Var((*comIDValue)(p), name, usage)
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	defaultConfig.BindFlags(flag.CommandLine)
	flag.StringVar(&configFile, "config", configFile, "TOML configuration file.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// LoadFile decodes a TOML file over c.
func (c *Config) LoadFile(path string) error {
	meta, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load %s: unknown keys %v", path, undecoded)
	}
	return nil
}

// Overlay loads path over c and applies the flags set on fs again, so
// the command line wins over the file. fs must be bound to c.
func (c *Config) Overlay(fs *flag.FlagSet, path string) error {
	if path == "" {
		return nil
	}
	set := make(map[string]string)
	fs.Visit(func(f *flag.Flag) { set[f.Name] = f.Value.String() })
	if err := c.LoadFile(path); err != nil {
		return err
	}
	for name, val := range set {
		if err := fs.Set(name, val); err != nil {
			return err
		}
	}
	return nil
}

// Load applies the file given by -config and returns a copy of the
// default config. Call it after flag.Parse.
func Load() (*Config, error) {
	if err := defaultConfig.Overlay(flag.CommandLine, configFile); err != nil {
		return nil, err
	}
	return NewConfig(), nil
}

// MustLoad loads the config and fails on error.
func MustLoad() *Config {
	conf, err := Load()
	if err != nil {
		log.Fatalln(err)
	}
	return conf
}

// Own parses OwnIP. An empty value is AddrAny.
func (c *Config) Own() (trdp.Addr, error) {
	if c.OwnIP == "" {
		return trdp.AddrAny, nil
	}
	addr, err := trdp.ParseAddr(c.OwnIP)
	if err != nil {
		return trdp.AddrAny, fmt.Errorf("invalid own IP: %w", err)
	}
	return addr, nil
}

// Dest parses DestIP, which is required.
func (c *Config) Dest() (trdp.Addr, error) {
	if c.DestIP == "" {
		return trdp.AddrAny, fmt.Errorf("no destination address given")
	}
	addr, err := trdp.ParseAddr(c.DestIP)
	if err != nil {
		return trdp.AddrAny, fmt.Errorf("invalid destination IP: %w", err)
	}
	return addr, nil
}

// Framer returns the safety framer, or nil when SDT is disabled.
func (c *Config) Framer() *safety.Framer {
	if !c.SDT.Enabled {
		return nil
	}
	return &safety.Framer{SID: c.SDT.SID, Version: c.SDT.Version}
}

// Flow returns the validated flow.
func (c *Config) Flow() safety.Flow {
	return safety.Flow{
		SID1:          c.SDT.SID,
		SID2:          c.SDT.SID2,
		SID2Redundant: c.SDT.SID2Redundant,
		Version:       c.SDT.Version,
	}
}

// SinkParams returns the parameters of periodic sinks.
func (c *Config) SinkParams() sdt.SinkParams {
	return sdt.SinkParams{
		RxPeriod:    c.SDT.RxPeriod,
		TxPeriod:    c.SDT.TxPeriod,
		SafeRetries: c.SDT.SafeRetries,
		GuardCount:  c.SDT.GuardCount,
		CMThreshold: c.SDT.CMThreshold,
		LMIMax:      c.SDT.LMIMax,
	}
}

// MDValidator returns the message data validator, or nil when SDT is
// disabled.
func (c *Config) MDValidator() *safety.Validator {
	if !c.SDT.Enabled {
		return nil
	}
	return safety.NewMDValidator(c.Flow())
}

// Validators returns a registry of validators of kind, one per source
// flow, or nil when SDT is disabled.
func (c *Config) Validators(kind safety.Kind) (*safety.Registry, error) {
	if !c.SDT.Enabled {
		return nil, nil
	}
	r := safety.NewRegistry(kind, c.SinkParams())
	r.Default = c.Flow()
	for ip, sid := range c.SDT.Sources {
		addr, err := trdp.ParseAddr(ip)
		if err != nil {
			return nil, fmt.Errorf("invalid SDT source %q: %w", ip, err)
		}
		flow := c.Flow()
		flow.SID1 = sid
		r.Bind(addr, flow)
	}
	return r, nil
}

// Profile applies the scheduler overrides to base.
func (c *Config) Profile(base exchange.Profile) exchange.Profile {
	if c.Scheduler.Floor > 0 {
		base.Floor = c.Scheduler.Floor
	}
	if c.Scheduler.Ceiling > 0 {
		base.Ceiling = c.Scheduler.Ceiling
	}
	if c.Scheduler.Quantum > 0 {
		base.Quantum = c.Scheduler.Quantum
	}
	return base
}
