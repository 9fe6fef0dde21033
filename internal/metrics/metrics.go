// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PacketsObservedTotal counts every frame read from the capture handle
	PacketsObservedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sniffer_packets_observed_total",
			Help: "Total number of packets observed before filtering",
		},
	)

	// PacketsAdmittedTotal counts packets that passed the filters, by application protocol
	PacketsAdmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniffer_packets_admitted_total",
			Help: "Total number of packets admitted by the filters",
		},
		[]string{"app"},
	)

	// PacketsFilteredTotal counts packets rejected by the filters
	PacketsFilteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sniffer_packets_filtered_total",
			Help: "Total number of packets rejected by the filters",
		},
	)

	// PacketsMalformedTotal counts frames that failed L2-L4 decoding
	PacketsMalformedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sniffer_packets_malformed_total",
			Help: "Total number of frames dropped as malformed or non-IP",
		},
	)

	// CaptureErrorsTotal counts capture failures by reason
	CaptureErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniffer_capture_errors_total",
			Help: "Total number of capture errors",
		},
		[]string{"reason"},
	)

	// RunState is 1 for the current run state and 0 for the others
	RunState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sniffer_run_state",
			Help: "Current capture run state (1 = active state)",
		},
		[]string{"state"},
	)

	// Connections tracks the number of connection entries in the traffic model
	Connections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sniffer_connections",
			Help: "Current number of tracked connections",
		},
	)

	// ReportSinkErrorsTotal counts failed report writes by sink
	ReportSinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sniffer_report_sink_errors_total",
			Help: "Total number of report sink write errors",
		},
		[]string{"sink"},
	)

	// ReportsWrittenTotal counts rendered reports
	ReportsWrittenTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sniffer_reports_written_total",
			Help: "Total number of reports rendered",
		},
	)
)

// Capture error reasons
const (
	ReasonOpen   = "open"
	ReasonRead   = "read"
	ReasonClosed = "closed"
)

// SetRunState marks state as the active run state.
func SetRunState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		RunState.WithLabelValues(s).Set(v)
	}
}
