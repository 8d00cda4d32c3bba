package sh

import (
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/trdp.go/pkg/exchange"
)

func payloadFrom(args []string, notify bool) []byte {
	if len(args) == 0 {
		return exchange.RequestPayload(exchange.PayloadDefault, notify, 0)
	}
	return []byte(strings.Join(args, " "))
}

func printer(c *ishell.Context) func(string) {
	return func(line string) { c.Println(line) }
}

var (
	// OpenCmd opens the MD session.
	OpenCmd = ishell.Cmd{
		Name:    "open",
		Aliases: []string{"o"},
		Help:    "[OWN_IP]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				s.Config.OwnIP = c.Args[0]
			}
			if err := s.Connect(); err != nil {
				c.Err(err)
			}
		},
	}

	// CloseCmd closes the MD session.
	CloseCmd = ishell.Cmd{
		Name: "close",
		Help: "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// NotifyCmd sends a notification.
	NotifyCmd = ishell.Cmd{
		Name:    "notify",
		Aliases: []string{"n"},
		Help:    "COMID DEST [TEXT]",
		Func: MustBeOpen(func(c *ishell.Context) {
			comID, dest, err := ParseTarget(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			sctx := exchange.NewSessionContext(exchange.Requester, comID)
			sctx.DestAddr, sctx.NotifyOnly = dest, true
			if err := ShellFrom(c).Exchange(sctx, payloadFrom(c.Args[2:], true), printer(c)); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// RequestCmd sends a request and waits for the replies.
	RequestCmd = ishell.Cmd{
		Name:    "request",
		Aliases: []string{"r"},
		Help:    "COMID DEST [TEXT]",
		Func: MustBeOpen(func(c *ishell.Context) {
			comID, dest, err := ParseTarget(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			s := ShellFrom(c)
			sctx := exchange.NewSessionContext(exchange.Requester, comID)
			sctx.DestAddr = dest
			sctx.ExpectedReplies = s.Config.MD.ExpectedReplies
			sctx.Timeout = s.Config.MD.Timeout
			if err := s.Exchange(sctx, payloadFrom(c.Args[2:], false), printer(c)); err != nil {
				c.Err(err)
			}
		}),
	}

	// ListenCmd answers requests for a ComID.
	ListenCmd = ishell.Cmd{
		Name:    "listen",
		Aliases: []string{"l"},
		Help:    "COMID [confirm]",
		Func: MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("COMID required"))
				return
			}
			comID, err := ParseComID(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			confirm := len(c.Args) > 1 && c.Args[1] == "confirm"
			s := ShellFrom(c)
			if err := s.Listen(comID, confirm, func(line string) { s.Shell.Println(line) }); err != nil {
				c.Err(err)
			}
		}),
	}

	// UnlistenCmd removes the responder of a ComID.
	UnlistenCmd = ishell.Cmd{
		Name: "unlisten",
		Help: "COMID",
		Func: MustBeOpen(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("COMID required"))
				return
			}
			comID, err := ParseComID(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			if !ShellFrom(c).Loop.RemoveListener(comID) {
				c.Err(fmt.Errorf("not listening on %d", comID))
			}
		}),
	}

	// SafetyCmd shows or switches SDT framing of new exchanges.
	SafetyCmd = ishell.Cmd{
		Name: "safety",
		Help: "[on|off]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				switch c.Args[0] {
				case "on":
					s.Safety = true
				case "off":
					s.Safety = false
				default:
					c.Err(fmt.Errorf("on or off expected"))
					return
				}
			}
			c.Printf("safety %v\n", s.Safety)
		},
	}

	// CountersCmd prints the SDT counters of received frames.
	CountersCmd = ishell.Cmd{
		Name: "counters",
		Help: "",
		Func: func(c *ishell.Context) {
			c.Println(ShellFrom(c).Validator().Counters().String())
		},
	}
)
