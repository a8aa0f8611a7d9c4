package pagefetch

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/hugr-lab/pagefetch/transport"
)

// metrics holds the negotiator collectors. A nil *metrics records nothing.
type metrics struct {
	fetches      *prometheus.CounterVec
	fetchLatency prometheus.Histogram
	staleResults prometheus.Counter
	writes       *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &metrics{
		fetches: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagefetch_fetches_total",
				Help: "Total number of page fetches by outcome",
			},
			[]string{"outcome"},
		),
		fetchLatency: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pagefetch_fetch_duration_seconds",
				Help:    "Page fetch latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		staleResults: f.NewCounter(
			prometheus.CounterOpts{
				Name: "pagefetch_stale_results_total",
				Help: "Fetch results dropped because a newer fetch was issued",
			},
		),
		writes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pagefetch_state_writes_total",
				Help: "Grid state persistence writes by status",
			},
			[]string{"status"},
		),
	}
}

func (m *metrics) observeFetch(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetchLatency.Observe(d.Seconds())
	m.fetches.WithLabelValues(outcome(err)).Inc()
}

func (m *metrics) stale() {
	if m == nil {
		return
	}
	m.staleResults.Inc()
}

func (m *metrics) write(err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.writes.WithLabelValues(status).Inc()
}

// outcome maps a fetch error to a metric label.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	kind, ok := transport.KindOf(err)
	if !ok {
		kind = transport.KindBackendError
	}
	return strings.ReplaceAll(kind.String(), " ", "_")
}
