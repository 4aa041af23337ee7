package cmd

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/prometheus/common/expfmt"
	log "github.com/sirupsen/logrus"
)

type PrometheusConfig struct {
	PushURL string
	JobName string
}

// SummaryMetrics holds the per split gauges of a summary run.
type SummaryMetrics struct {
	Samples         *prometheus.GaugeVec
	Classes         *prometheus.GaugeVec
	LabelsPerSample *prometheus.GaugeVec
	Unlabeled       *prometheus.GaugeVec
	OpenTime        *prometheus.GaugeVec
}

func NewSummaryMetrics(registry *prometheus.Registry, labels prometheus.Labels) *SummaryMetrics {
	gauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, []string{"split"})
	}

	metrics := &SummaryMetrics{
		Samples:         gauge("deephash_split_samples", "Number of samples in the split"),
		Classes:         gauge("deephash_split_classes", "Number of distinct classes present in the split"),
		LabelsPerSample: gauge("deephash_split_labels_per_sample", "Mean number of classes per sample"),
		Unlabeled:       gauge("deephash_split_unlabeled_samples", "Number of samples without any class"),
		OpenTime:        gauge("deephash_split_open_time_seconds", "Time to acquire and index the split in seconds"),
	}

	registry.MustRegister(
		metrics.Samples,
		metrics.Classes,
		metrics.LabelsPerSample,
		metrics.Unlabeled,
		metrics.OpenTime,
	)

	return metrics
}

func (m *SummaryMetrics) Set(s SplitSummary) {
	m.Samples.WithLabelValues(s.Split).Set(float64(s.Samples))
	m.Classes.WithLabelValues(s.Split).Set(float64(s.Classes))
	m.LabelsPerSample.WithLabelValues(s.Split).Set(s.LabelsPerSample)
	m.Unlabeled.WithLabelValues(s.Split).Set(float64(s.Unlabeled))
	m.OpenTime.WithLabelValues(s.Split).Set(s.OpenTime)
}

// summaryGatherer registers the summary gauges on a fresh registry.
func summaryGatherer(cfg *Config, results Summary) *prometheus.Registry {
	registry := prometheus.NewRegistry()
	if len(results) == 0 {
		return registry
	}

	labels := prometheus.Labels{
		"dataset": results[0].Dataset,
		"run_id":  results[0].RunID,
	}
	for key, value := range cfg.LabelMap {
		labels[key] = value
	}

	metrics := NewSummaryMetrics(registry, labels)
	for _, s := range results {
		metrics.Set(s)
	}
	return registry
}

// PushMetricsToPrometheus pushes the summary, together with the download
// metrics in extra, to a Prometheus pushgateway.
func PushMetricsToPrometheus(cfg *Config, results Summary, extra ...prometheus.Gatherer) error {
	if cfg.PrometheusConfig.PushURL == "" {
		return nil
	}

	pusher := push.New(cfg.PrometheusConfig.PushURL, cfg.PrometheusConfig.JobName).
		Gatherer(summaryGatherer(cfg, results))
	for _, g := range extra {
		pusher = pusher.Gatherer(g)
	}

	if err := pusher.Push(); err != nil {
		return errors.Wrap(err, "push metrics")
	}

	log.WithFields(log.Fields{
		"url": cfg.PrometheusConfig.PushURL,
		"job": cfg.PrometheusConfig.JobName,
	}).Info("Successfully pushed metrics to Prometheus")

	return nil
}

// WriteMetricsTextfile writes everything the gatherers collect to path in
// the Prometheus text exposition format, replacing the file atomically.
func WriteMetricsTextfile(path string, gatherers ...prometheus.Gatherer) error {
	families, err := prometheus.Gatherers(gatherers).Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "create metrics textfile")
	}
	defer os.Remove(tmp.Name())

	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(tmp, mf); err != nil {
			tmp.Close()
			return errors.Wrap(err, "encode metrics")
		}
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close metrics textfile")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrap(err, "chmod metrics textfile")
	}
	return os.Rename(tmp.Name(), path)
}
