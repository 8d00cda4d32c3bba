package sh

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/trdp.go/pkg/env"
	"github.com/robotalks/trdp.go/pkg/exchange"
	"github.com/robotalks/trdp.go/pkg/safety"
	"github.com/robotalks/trdp.go/pkg/trdp"
	"github.com/robotalks/trdp.go/pkg/trdp/md"
)

// Shell provides ishell backed interactive shell for message data.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoOpen    bool
	Safety      bool

	Shell  *ishell.Shell
	Config *env.Config
	Loop   *ConnLoop
	// Open creates the session, env.Config.OpenMD by default.
	Open func(*env.Config) (*md.Session, error)

	validatorOnce sync.Once
	validator     *safety.Validator
}

const (
	shellKey     = "$shell"
	closedPrompt = "[closed] > "
)

var (
	// flags

	evalOnly   bool
	outputJSON bool

	// commands
	commands = []*ishell.Cmd{
		&OpenCmd,
		&CloseCmd,
		&NotifyCmd,
		&RequestCmd,
		&ListenCmd,
		&UnlistenCmd,
		&SafetyCmd,
		&CountersCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a new shell.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Safety:      conf.SDT.Enabled,

		Shell:  ishell.New(),
		Config: conf,
		Open:   (*env.Config).OpenMD,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(closedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeOpen wraps command func requires an open session.
func MustBeOpen(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Loop == nil {
			c.Err(fmt.Errorf("session not open"))
			return
		}
		fn(c)
	}
}

// eventRecord is the JSON form of an event.
type eventRecord struct {
	Type        string `json:"type"`
	Result      string `json:"result"`
	ComID       uint32 `json:"comId"`
	Source      string `json:"source"`
	ReplyStatus int32  `json:"replyStatus,omitempty"`
	Payload     string `json:"payload,omitempty"`
}

// FormatEvent prints an event into friendly string for display.
func FormatEvent(ev *trdp.Event, asJSON bool) string {
	if asJSON {
		out, err := json.Marshal(eventRecord{
			Type:        ev.Type.String(),
			Result:      ev.Result.String(),
			ComID:       uint32(ev.ComID),
			Source:      ev.Source.String(),
			ReplyStatus: ev.ReplyStatus,
			Payload:     string(ev.Payload),
		})
		if err != nil {
			return err.Error()
		}
		return string(out)
	}
	var w bytes.Buffer
	fmt.Fprintf(&w, "%s %d from %s", ev.Type, ev.ComID, ev.Source)
	if ev.Result != trdp.ResultOK {
		fmt.Fprintf(&w, ": %s", ev.Result)
	}
	if len(ev.Payload) > 0 {
		fmt.Fprintf(&w, " %.80q", ev.Payload)
	}
	return w.String()
}

// ParseTarget parses "COMID DEST" arguments.
func ParseTarget(args []string) (trdp.ComID, trdp.Addr, error) {
	if len(args) < 2 {
		return 0, trdp.AddrAny, fmt.Errorf("COMID and DEST required")
	}
	comID, err := ParseComID(args[0])
	if err != nil {
		return 0, trdp.AddrAny, err
	}
	dest, err := trdp.ParseAddr(args[1])
	if err != nil {
		return 0, trdp.AddrAny, fmt.Errorf("Invalid DEST: %v", err)
	}
	return comID, dest, nil
}

// ParseComID parses a decimal or 0x prefixed ComID.
func ParseComID(arg string) (trdp.ComID, error) {
	n, err := strconv.ParseUint(arg, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("Invalid COMID: %v", err)
	}
	return trdp.ComID(n), nil
}

// WithAutoOpen sets AutoOpen.
func (s *Shell) WithAutoOpen(en bool) *Shell {
	s.AutoOpen = en
	return s
}

// Validator returns the validator shared by all exchanges of the shell,
// so its counters accumulate.
func (s *Shell) Validator() *safety.Validator {
	s.validatorOnce.Do(func() {
		s.validator = safety.NewMDValidator(s.Config.Flow())
	})
	return s.validator
}

// Connect opens the MD session and starts its loop.
func (s *Shell) Connect() error {
	session, err := s.Open(s.Config)
	if err != nil {
		return err
	}
	s.Disconnect()
	s.Loop = StartLoop(session, s.Config.Profile(exchange.InteractiveProfile), s.Config.Scheduler.Blocking)
	s.setPrompt(fmt.Sprintf("%s > ", session.OwnAddr()))
	return nil
}

// Disconnect closes the current session.
func (s *Shell) Disconnect() {
	if s.Loop != nil {
		if err := s.Loop.Stop(); err != nil {
			log.Printf("close: %v", err)
		}
		s.Loop = nil
		s.setPrompt(closedPrompt)
	}
}

func (s *Shell) setPrompt(prompt string) {
	if s.Shell != nil {
		s.Shell.SetPrompt(prompt)
	}
}

func (s *Shell) newDispatcher(sctx *exchange.SessionContext) *exchange.Dispatcher {
	sctx.OwnAddr = s.Loop.Session.OwnAddr()
	sctx.Blocking = s.Config.Scheduler.Blocking
	sctx.SafetyEnabled = s.Safety
	d := exchange.NewDispatcher(sctx, s.Loop.Session)
	d.ConfirmTimeout = s.Config.MD.ConfirmTimeout
	if s.Safety {
		d.Framer = s.Config.Framer()
		if d.Framer == nil {
			d.Framer = safety.DefaultFramer()
		}
		d.Validator = s.Validator()
	}
	return d
}

// Exchange sends a notification or request and, for a request, waits
// until the exchange finishes or its time budget runs out. Events are
// passed to print.
func (s *Shell) Exchange(sctx *exchange.SessionContext, payload []byte, print func(string)) error {
	if s.Loop == nil {
		return fmt.Errorf("session not open")
	}
	done := make(chan struct{})
	var doneOnce sync.Once
	d := s.newDispatcher(sctx)
	d.OnEvent = func(ev *trdp.Event) {
		print(FormatEvent(ev, s.OutputJSON))
		if !sctx.Active() {
			doneOnce.Do(func() { close(done) })
		}
	}
	if err := exchange.StartRequest(s.Loop, d, payload); err != nil {
		return err
	}
	if sctx.NotifyOnly {
		return nil
	}
	budget := sctx.Timeout + s.Config.Profile(exchange.InteractiveProfile).Ceiling
	select {
	case <-done:
	case <-time.After(budget):
		sctx.Finish()
		return fmt.Errorf("no answer within %v", budget)
	}
	return nil
}

// Listen installs a responder for comID.
func (s *Shell) Listen(comID trdp.ComID, confirm bool, print func(string)) error {
	if s.Loop == nil {
		return fmt.Errorf("session not open")
	}
	sctx := exchange.NewSessionContext(exchange.Responder, comID)
	sctx.ConfirmRequested = confirm
	d := s.newDispatcher(sctx)
	d.OnEvent = func(ev *trdp.Event) {
		print(FormatEvent(ev, s.OutputJSON))
	}
	_, err := exchange.Listen(s.Loop, d)
	return err
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if s.AutoOpen {
		if err := s.Connect(); err != nil {
			log.Fatalf("open session failed: %v", err)
		}
		defer s.Disconnect()
	}

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(env.MustLoad()).WithAutoOpen(true).Run(flag.Args()...)
}
