package main

import (
	"flag"
	"log"

	"github.com/robotalks/trdp.go/pkg/env"
	"github.com/robotalks/trdp.go/pkg/exchange"
	"github.com/robotalks/trdp.go/pkg/framework"
	"github.com/robotalks/trdp.go/pkg/metrics"
	"github.com/robotalks/trdp.go/pkg/trdp"
)

var (
	notifyOnly bool
	noData     bool
	dataSize   int
)

func init() {
	env.SetupFlags()
	conf := env.Default()
	env.ComIDVar(flag.CommandLine, &conf.MD.ComID, "c", "ComID to send.")
	flag.DurationVar(&conf.MD.Timeout, "d", conf.MD.Timeout, "Reply timeout.")
	flag.IntVar(&conf.MD.ExpectedReplies, "e", conf.MD.ExpectedReplies, "Expected replies, 0 for unknown.")
	flag.BoolVar(&notifyOnly, "n", notifyOnly, "Notify only.")
	flag.IntVar(&dataSize, "l", dataSize, "Send a large message of this size.")
	flag.BoolVar(&noData, "0", noData, "Send no data.")
}

func main() {
	flag.Parse()

	conf := env.MustLoad()
	dest, err := conf.Dest()
	if err != nil {
		log.Fatalln(err)
	}
	if max := exchange.MaxRequestPayload(conf.SDT.Enabled); dataSize > max {
		log.Fatalf("message size %d exceeds %d", dataSize, max)
	}
	metrics.Serve(conf.MetricsAddr)

	session, err := conf.OpenMD()
	if err != nil {
		log.Fatalln(err)
	}
	defer session.Close()

	sctx := exchange.NewSessionContext(exchange.Requester, trdp.ComID(conf.MD.ComID))
	sctx.OwnAddr, sctx.DestAddr = session.OwnAddr(), dest
	sctx.NotifyOnly = notifyOnly
	sctx.Blocking = conf.Scheduler.Blocking
	sctx.SafetyEnabled = conf.SDT.Enabled
	sctx.ExpectedReplies = conf.MD.ExpectedReplies
	sctx.Timeout = conf.MD.Timeout

	d := exchange.NewDispatcher(sctx, session)
	d.Framer, d.Validator = conf.Framer(), conf.MDValidator()

	mode := exchange.PayloadDefault
	switch {
	case noData:
		mode = exchange.PayloadNone
	case dataSize > 0:
		mode = exchange.PayloadGenerated
	}
	if err := exchange.StartRequest(session, d, exchange.RequestPayload(mode, notifyOnly, dataSize)); err != nil {
		log.Printf("send failed: %v", err)
	}

	scheduler := exchange.NewScheduler(sctx, session, conf.Profile(exchange.InteractiveProfile))
	err = framework.NewRunner().HandleSignals().
		Go(framework.NamedRun("md", scheduler)).
		Wait()
	if err != nil {
		log.Fatalln(err)
	}
	if sctx.SafetyEnabled {
		d.Validator.LogCounters()
	}
}
