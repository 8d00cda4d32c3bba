package main

import (
	"flag"
	"log"

	"github.com/robotalks/trdp.go/pkg/env"
	"github.com/robotalks/trdp.go/pkg/exchange"
	"github.com/robotalks/trdp.go/pkg/framework"
	"github.com/robotalks/trdp.go/pkg/metrics"
	"github.com/robotalks/trdp.go/pkg/safety"
	"github.com/robotalks/trdp.go/pkg/trdp"
)

func init() {
	env.SetupFlags()
	conf := env.Default()
	env.ComIDVar(flag.CommandLine, &conf.MD.ComID, "comid", "ComID to listen on.")
	flag.BoolVar(&conf.MD.Confirm, "c", conf.MD.Confirm, "Respond with confirmation.")
}

func main() {
	flag.Parse()

	conf := env.MustLoad()
	metrics.Serve(conf.MetricsAddr)

	session, err := conf.OpenMD()
	if err != nil {
		log.Fatalln(err)
	}

	sctx := exchange.NewSessionContext(exchange.Responder, trdp.ComID(conf.MD.ComID))
	sctx.OwnAddr = session.OwnAddr()
	sctx.ConfirmRequested = conf.MD.Confirm
	sctx.Blocking = conf.Scheduler.Blocking
	sctx.SafetyEnabled = conf.SDT.Enabled

	validators, err := conf.Validators(safety.MessageData)
	if err != nil {
		log.Fatalln(err)
	}
	d := exchange.NewDispatcher(sctx, session)
	d.Framer, d.Validators = conf.Framer(), validators
	d.ConfirmTimeout = conf.MD.ConfirmTimeout
	if _, err := exchange.Listen(session, d); err != nil {
		log.Fatalln(err)
	}
	log.Printf("listening on ComID %d", sctx.ComID)

	scheduler := exchange.NewScheduler(sctx, session, conf.Profile(exchange.InteractiveProfile))
	runErr := framework.NewRunner().HandleSignals().
		Go(framework.NamedRun("md", scheduler)).
		Wait()
	if validators != nil {
		validators.LogCounters()
	}
	var errs framework.AggregatedError
	if err := errs.Add(runErr, session.Close()).Aggregate(); err != nil {
		log.Fatalln(err)
	}
}
