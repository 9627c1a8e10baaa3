// Package metrics holds the prometheus collectors of the relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "beyond_relay"

var (
	// PumpBytes counts bytes forwarded by pumps, by pump name and path
	// (Send for the live loop, Flush for drains).
	PumpBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pump",
		Name:      "bytes_total",
		Help:      "Bytes forwarded by data connection pumps.",
	}, []string{"pump", "path"})

	// PumpFailures counts pumps that ended with a captured failure.
	PumpFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pump",
		Name:      "failures_total",
		Help:      "Pumps stopped by a failure.",
	}, []string{"pump"})

	// OpenFailures counts data connections that could not be opened.
	OpenFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_connection",
		Name:      "open_failures_total",
		Help:      "Data connections that could not be opened.",
	})

	// Responses counts final responses of data connection commands.
	Responses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "data_connection",
		Name:      "responses_total",
		Help:      "Final responses of data connection commands.",
	}, []string{"command", "code"})

	// Sessions is the number of connected control sessions.
	Sessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions",
		Help:      "Connected control sessions.",
	})
)

func init() {
	prometheus.MustRegister(PumpBytes, PumpFailures, OpenFailures, Responses, Sessions)
}
