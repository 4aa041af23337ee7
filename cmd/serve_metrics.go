package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const namespace = "deephash"

var serveMetricsCmd = &cobra.Command{
	Use:   "serve-metrics",
	Short: "Export the latest summary results via Prometheus",
	Long: `Watch the results directory written by the summary command and serve the
per split statistics of every results file on /metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "serve-metrics"

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		if err := serveMetrics(cmd.Context(), cfg); err != nil {
			fatal(err)
		}
	},
}

func initServeMetrics() {
	rootCmd.AddCommand(serveMetricsCmd)
	serveMetricsCmd.PersistentFlags().StringVar(&globalConfig.ResultsDir,
		"results-dir", "results", "Results directory to watch")
	serveMetricsCmd.PersistentFlags().IntVarP(&globalConfig.ListenPort,
		"port", "p", 2120, "Port to serve metrics on")
}

type Exporter struct {
	metrics map[string]*prometheus.GaugeVec
}

func NewExporter(reg prometheus.Registerer) *Exporter {
	e := &Exporter{metrics: make(map[string]*prometheus.GaugeVec)}

	labels := []string{"dataset", "split"}
	metricNames := []struct {
		name string
		help string
	}{
		{"samples", "Number of samples in the split"},
		{"classes", "Number of distinct classes present in the split"},
		{"labels_per_sample", "Mean number of classes per sample"},
		{"unlabeled_samples", "Number of samples without any class"},
		{"open_time_seconds", "Time to acquire and index the split"},
	}

	for _, metric := range metricNames {
		e.metrics[metric.name] = promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      metric.name,
				Help:      metric.help,
			},
			labels,
		)
	}
	return e
}

func (e *Exporter) processJSONFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}
	var results Summary
	if err := json.Unmarshal(content, &results); err != nil {
		return errors.Wrapf(err, "parse %s", path)
	}

	for _, metric := range e.metrics {
		metric.Reset()
	}

	for _, s := range results {
		labels := prometheus.Labels{"dataset": s.Dataset, "split": s.Split}
		e.metrics["samples"].With(labels).Set(float64(s.Samples))
		e.metrics["classes"].With(labels).Set(float64(s.Classes))
		e.metrics["labels_per_sample"].With(labels).Set(s.LabelsPerSample)
		e.metrics["unlabeled_samples"].With(labels).Set(float64(s.Unlabeled))
		e.metrics["open_time_seconds"].With(labels).Set(s.OpenTime)
	}

	log.WithField("file", path).Info("Processed results file")
	return nil
}

// findLatestJSONFile returns the most recently modified results file in dir.
func findLatestJSONFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", errors.Wrap(err, "read results directory")
	}

	var latestFile string
	var latestTime time.Time
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(latestTime) {
			latestTime = info.ModTime()
			latestFile = filepath.Join(dir, entry.Name())
		}
	}
	return latestFile, nil
}

// watchDirectory processes the latest results file and then every file
// created or written in dir until ctx is done.
func (e *Exporter) watchDirectory(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "create watcher")
	}

	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return errors.Wrap(err, "watch results directory")
	}

	latest, err := findLatestJSONFile(dir)
	if err != nil {
		watcher.Close()
		return err
	}
	if latest == "" {
		log.WithField("dir", dir).Info("Awaiting results")
	} else if err := e.processJSONFile(latest); err != nil {
		log.WithError(err).Warn("Error processing existing file")
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if filepath.Ext(event.Name) != ".json" {
					continue
				}
				if err := e.processJSONFile(event.Name); err != nil {
					log.WithError(err).Warn("Error processing file")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Error watching directory")
			}
		}
	}()
	return nil
}

func serveMetrics(ctx context.Context, cfg Config) error {
	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		return errors.Wrapf(err, "create %q", cfg.ResultsDir)
	}

	registry := prometheus.NewRegistry()
	exporter := NewExporter(registry)
	if err := exporter.watchDirectory(ctx, cfg.ResultsDir); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>
			<head><title>Dataset Metrics Exporter</title></head>
			<body>
				<h1>Dataset Metrics Exporter</h1>
				<p><a href="/metrics">Metrics</a></p>
			</body>
			</html>`))
	})

	server := &http.Server{Addr: fmt.Sprintf(":%d", cfg.ListenPort), Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.WithField("addr", server.Addr).Info("Starting metrics server")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
