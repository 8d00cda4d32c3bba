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
	empty bool
	data  string
)

func init() {
	env.SetupFlags()
	conf := env.Default()
	env.ComIDVar(flag.CommandLine, &conf.PD.ComID, "c", "ComID to publish.")
	flag.DurationVar(&conf.PD.Cycle, "p", conf.PD.Cycle, "Cycle period.")
	flag.BoolVar(&empty, "e", empty, "Publish an empty dataset without updates.")
	flag.StringVar(&data, "d", data, "Initial dataset.")
}

func main() {
	flag.Parse()

	conf := env.MustLoad()
	dest, err := conf.Dest()
	if err != nil {
		log.Fatalln(err)
	}
	if len(data) > trdp.MaxPDDataSize {
		log.Fatalf("data too long")
	}
	metrics.Serve(conf.MetricsAddr)

	session, err := conf.OpenPD()
	if err != nil {
		log.Fatalln(err)
	}

	comID := trdp.ComID(conf.PD.ComID)
	scheduler := &exchange.Scheduler{
		Processor: session,
		Profile:   conf.Profile(exchange.PeriodicProfile),
		Blocking:  conf.Scheduler.Blocking,
	}
	if empty {
		if _, err := session.Publish(comID, dest, conf.PD.Cycle, nil); err != nil {
			log.Fatalln(err)
		}
	} else {
		src, err := exchange.Publish(session, comID, dest, conf.PD.Cycle, conf.Framer())
		if err != nil {
			log.Fatalln(err)
		}
		src.Format = conf.PD.Dataset
		if data != "" {
			if err := session.Put(src.Pub, []byte(data)); err != nil {
				log.Fatalln(err)
			}
		}
		scheduler.AddController(framework.ControlFunc(func(cc framework.ControlContext) error {
			if err := src.Control(cc); err != nil {
				cc.Stop()
				return err
			}
			return nil
		}))
	}
	log.Printf("publishing ComID %d to %s every %v", comID, dest, conf.PD.Cycle)

	runErr := framework.NewRunner().HandleSignals().
		Go(framework.NamedRun("pd", scheduler)).
		Wait()
	var errs framework.AggregatedError
	if err := errs.Add(runErr, session.Close()).Aggregate(); err != nil {
		log.Fatalln(err)
	}
}
