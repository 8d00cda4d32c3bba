package main

import (
	"flag"
	"log"
	"os"

	"github.com/robotalks/trdp.go/pkg/safety"
	"github.com/robotalks/trdp.go/pkg/sdt"
	"github.com/robotalks/trdp.go/pkg/trdp/comm/mqtt"
	"github.com/robotalks/trdp.go/pkg/trdp/wire"
)

var (
	mqttURL    = "mqtt://localhost:1883/trdp/"
	checkSDT   bool
	validators = safety.NewRegistry(safety.MessageData, sdt.DefaultSinkParams())
)

func init() {
	if val := os.Getenv("TRDP_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.BoolVar(&checkSDT, "s", checkSDT, "Check SDT trailers of MD datasets.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err := q.Connect(); err != nil {
		log.Fatalln(err)
	}

	q.Sub("#", mqtt.Handler(func(topic string, payload []byte) {
		log.Printf("%s: %s", topic, wire.Describe(payload))
		if !checkSDT {
			return
		}
		p, err := wire.DecodeMD(payload)
		if err != nil || len(p.Data) == 0 {
			return
		}
		_, _, src, ok := mqtt.ParseTopic(topic)
		if !ok {
			return
		}
		r := validators.For(src).Check(p.Data)
		log.Printf("%s: sdt %s %s", topic, r.Validity, r.Code)
	}))
	<-(chan struct{})(nil)
}
