// Package metrics registers the Prometheus counters and gauges that
// mirror the client's session stats table. Nothing in this package
// starts an HTTP listener — a host process that wants to expose them
// wires Handler() into its own mux; the CLI itself does not scrape or
// serve by default.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DataSentBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpscli_data_sent_bytes_total",
			Help: "Total bytes sent to the server over the lifetime of the process.",
		},
	)

	DataReceivedBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpscli_data_received_bytes_total",
			Help: "Total bytes received from the server over the lifetime of the process.",
		},
	)

	ContentUploadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpscli_content_uploaded_total",
			Help: "Total content blobs successfully published to the network.",
		},
	)

	ContentDownloadedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpscli_content_downloaded_total",
			Help: "Total content blobs successfully retrieved from the network.",
		},
	)

	DNSRegisteredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpscli_dns_registered_total",
			Help: "Total domain registrations accepted by the server.",
		},
	)

	ContentReportedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpscli_content_reported_total",
			Help: "Total abuse reports filed against content hashes.",
		},
	)

	PowSolvedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpscli_pow_solved_total",
			Help: "Total proof-of-work challenges solved, across all gated action types.",
		},
	)

	HashesCalculatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpscli_hashes_calculated_total",
			Help: "Total SHA-256 hash attempts performed while mining proof-of-work challenges.",
		},
	)

	PowSolveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hpscli_pow_solve_duration_seconds",
			Help:    "Wall-clock time spent solving a single proof-of-work challenge.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	ReconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hpscli_transport_reconnects_total",
			Help: "Total times the transport re-established its connection to the server.",
		},
	)

	GatedRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hpscli_gated_requests_total",
			Help: "Total PoW-gated requests by action type and outcome.",
		},
		[]string{"action", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		DataSentBytesTotal,
		DataReceivedBytesTotal,
		ContentUploadedTotal,
		ContentDownloadedTotal,
		DNSRegisteredTotal,
		ContentReportedTotal,
		PowSolvedTotal,
		HashesCalculatedTotal,
		PowSolveDuration,
		ReconnectsTotal,
		GatedRequestsTotal,
	)
}

// Handler returns the Prometheus scrape handler for a host process that
// chooses to expose one.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer measures an operation's duration for later observation into a
// histogram.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the elapsed time into histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
