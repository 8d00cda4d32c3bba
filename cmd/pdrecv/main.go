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

var sourceFilter string

func init() {
	env.SetupFlags()
	conf := env.Default()
	env.ComIDVar(flag.CommandLine, &conf.PD.ComID, "c", "ComID to subscribe.")
	flag.StringVar(&sourceFilter, "src", sourceFilter, "Accept data only from this source address.")
}

func main() {
	flag.Parse()

	conf := env.MustLoad()
	filter := trdp.AddrAny
	if sourceFilter != "" {
		addr, err := trdp.ParseAddr(sourceFilter)
		if err != nil {
			log.Fatalf("invalid source address: %v", err)
		}
		filter = addr
	}
	validators, err := conf.Validators(safety.ProcessData)
	if err != nil {
		log.Fatalln(err)
	}
	metrics.Serve(conf.MetricsAddr)

	session, err := conf.OpenPD()
	if err != nil {
		log.Fatalln(err)
	}
	comID := trdp.ComID(conf.PD.ComID)
	sub, err := session.Subscribe(comID, filter, conf.PD.Timeout)
	if err != nil {
		log.Fatalln(err)
	}
	sink := &exchange.PeriodicSink{
		Transport:  session,
		Sub:        sub,
		Validators: validators,
		Period:     conf.PD.Cycle,
	}
	scheduler := (&exchange.Scheduler{
		Processor: session,
		Profile:   conf.Profile(exchange.PeriodicProfile),
		Blocking:  conf.Scheduler.Blocking,
	}).AddController(sink)
	log.Printf("subscribed ComID %d", comID)

	runErr := framework.NewRunner().HandleSignals().
		Go(framework.NamedRun("pd", scheduler)).
		Wait()
	var errs framework.AggregatedError
	if err := errs.Add(runErr, session.Close()).Aggregate(); err != nil {
		log.Fatalln(err)
	}
}
