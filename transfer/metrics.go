package transfer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors updated by a Client. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Bytes    prometheus.Counter
	Files    prometheus.Counter
	Failures prometheus.Counter
	Duration prometheus.Histogram
}

// NewMetrics creates the download metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Bytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "deephash",
			Name:      "download_bytes_total",
			Help:      "Bytes received from remote dataset sources",
		}),
		Files: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "deephash",
			Name:      "download_files_total",
			Help:      "Files downloaded successfully",
		}),
		Failures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "deephash",
			Name:      "download_failures_total",
			Help:      "Downloads that failed",
		}),
		Duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "deephash",
			Name:      "download_duration_seconds",
			Help:      "Duration of successful downloads",
			Buckets:   prometheus.ExponentialBuckets(0.1, 4, 8),
		}),
	}
}

func (m *Metrics) addBytes(n int) {
	if m == nil {
		return
	}
	m.Bytes.Add(float64(n))
}

func (m *Metrics) done(d time.Duration) {
	if m == nil {
		return
	}
	m.Files.Inc()
	m.Duration.Observe(d.Seconds())
}

func (m *Metrics) failed() {
	if m == nil {
		return
	}
	m.Failures.Inc()
}
