// Package metrics exposes protocol counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all collectors of this package.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	MDEvents = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "trdp_md_events_total",
		Help: "Message data events handled, by message type and result",
	}, []string{"type", "result"})

	SendFailures = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "trdp_send_failures_total",
		Help: "Failed send attempts, by operation",
	}, []string{"op"})

	SDTValidations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "trdp_sdt_validations_total",
		Help: "Safety trailer validations, by validity and error code",
	}, []string{"validity", "code"})

	SDTEncodeFailures = factory.NewCounter(prometheus.CounterOpts{
		Name: "trdp_sdt_encode_failures_total",
		Help: "Frames sent although the safety trailer could not be written",
	})

	SchedulerIterations = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "trdp_scheduler_iterations_total",
		Help: "Scheduler loop iterations, by wait mode",
	}, []string{"mode"})

	SchedulerWait = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "trdp_scheduler_wait_seconds",
		Help:    "Clamped wait of each scheduler iteration",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})
)

// RecordMDEvent counts a dispatched message data event.
func RecordMDEvent(msgType, result string) {
	MDEvents.WithLabelValues(msgType, result).Inc()
}

// RecordSendFailure counts a failed send.
func RecordSendFailure(op string) {
	if op == "" {
		op = "unknown"
	}
	SendFailures.WithLabelValues(op).Inc()
}

// RecordValidation counts a safety validation.
func RecordValidation(validity, code string) {
	SDTValidations.WithLabelValues(validity, code).Inc()
}

// Handler serves the collectors in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on addr. An empty addr
// disables it.
func Serve(addr string) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{Addr: addr, Handler: mux}
	go server.ListenAndServe()
	return server
}
