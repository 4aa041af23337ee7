package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/weaviate/deephash-datasets/dataset"
)

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Index every split and report label statistics",
	Long: `Open the train, test and db splits of the dataset, downloading it first if
needed, and report the number of samples and label statistics per split.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := globalConfig
		cfg.Mode = "summary"

		if err := cfg.Validate(); err != nil {
			fatal(err)
		}

		registry := prometheus.NewRegistry()
		results, err := summarize(cmd.Context(), cfg, newAdapter(cfg, registry))
		if err != nil {
			fatal(err)
		}

		if err := writeSummary(cfg, results); err != nil {
			fatal(err)
		}

		if err := writeResultsFile(cfg, results); err != nil {
			fatal(err)
		}

		if err := PushMetricsToPrometheus(&cfg, results, registry); err != nil {
			log.WithError(err).Warn("Failed to push metrics to Prometheus")
		}

		if err := PushMetricsToInfluxDB(cmd.Context(), &cfg, results); err != nil {
			log.WithError(err).Warn("Failed to push metrics to InfluxDB")
		}

		if cfg.MetricsTextfile != "" {
			if err := WriteMetricsTextfile(cfg.MetricsTextfile, summaryGatherer(&cfg, results), registry); err != nil {
				fatal(err)
			}
		}
	},
}

func initSummary() {
	rootCmd.AddCommand(summaryCmd)
	summaryCmd.PersistentFlags().StringVarP(&globalConfig.OutputFormat,
		"format", "f", "text", "Output format, one of [text, json]")
	summaryCmd.PersistentFlags().StringVarP(&globalConfig.OutputFile,
		"output", "o", "", "Filename for an output file. If none provided, output to stdout only")
	summaryCmd.PersistentFlags().StringVar(&globalConfig.ResultsDir,
		"results-dir", "results", "Directory the summary of every run is stored in")
	summaryCmd.PersistentFlags().StringVar(&globalConfig.Labels,
		"labels", "", "Labels of format key1=value1,key2=value2,...")
	summaryCmd.PersistentFlags().StringVar(&globalConfig.MetricsTextfile,
		"metrics-textfile", "", "Write the metrics in the Prometheus text format to this file")
	summaryCmd.PersistentFlags().StringVar(&globalConfig.PrometheusConfig.PushURL,
		"prometheus-push-url", "", "Prometheus pushgateway URL")
	summaryCmd.PersistentFlags().StringVar(&globalConfig.PrometheusConfig.JobName,
		"prometheus-job", "deephash_datasets", "Prometheus pushgateway job name")
	summaryCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.URL,
		"influxdb-url", "", "InfluxDB URL")
	summaryCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.Token,
		"influxdb-token", "", "InfluxDB token")
	summaryCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.Org,
		"influxdb-org", "", "InfluxDB organization")
	summaryCmd.PersistentFlags().StringVar(&globalConfig.InfluxDBConfig.Bucket,
		"influxdb-bucket", "", "InfluxDB bucket")
}

// SplitSummary is one entry of a results file.
type SplitSummary struct {
	RunID           string            `json:"run_id"`
	Dataset         string            `json:"dataset"`
	Split           string            `json:"split"`
	Root            string            `json:"root"`
	Samples         int               `json:"samples"`
	Classes         int               `json:"classes"`
	LabelsPerSample float64           `json:"labels_per_sample"`
	Unlabeled       int               `json:"unlabeled"`
	OpenTime        float64           `json:"open_time"`
	Timestamp       string            `json:"timestamp"`
	Labels          map[string]string `json:"labels,omitempty"`
}

type Summary []SplitSummary

func summarize(ctx context.Context, cfg Config, adapter dataset.Adapter) (Summary, error) {
	runID := uuid.New().String()
	timestamp := time.Now().UTC().Format(time.RFC3339)

	var results Summary
	for i, split := range dataset.Splits {
		opts := []dataset.Option{}
		// only the first split may erase the root, the others reuse the download
		if i == 0 && cfg.ForceDownload {
			opts = append(opts, dataset.WithForceDownload(true))
		}

		start := time.Now()
		ds, err := dataset.Open(ctx, adapter, split.String(), opts...)
		if err != nil {
			return nil, errors.Wrapf(err, "open %s split", split)
		}

		s := summarizeSplit(ds, cfg.multiHot())
		s.RunID = runID
		s.Dataset = cfg.Dataset
		s.OpenTime = time.Since(start).Seconds()
		s.Timestamp = timestamp
		s.Labels = cfg.LabelMap
		results = append(results, s)
	}
	return results, nil
}

func summarizeSplit(ds *dataset.Dataset, multiHot bool) SplitSummary {
	s := SplitSummary{
		Split:   ds.Split().String(),
		Root:    ds.Root(),
		Samples: ds.Len(),
	}

	classes := map[int]struct{}{}
	total := 0
	for i := 0; i < ds.Len(); i++ {
		label, _ := ds.Label(i)
		present := labelClasses(label, multiHot)
		if len(present) == 0 {
			s.Unlabeled++
		}
		total += len(present)
		for _, c := range present {
			classes[c] = struct{}{}
		}
	}

	s.Classes = len(classes)
	if s.Samples > 0 {
		s.LabelsPerSample = float64(total) / float64(s.Samples)
	}
	return s
}

// labelClasses returns the distinct classes of a label. Multi-hot labels
// hold a 1 at the index of every class present.
func labelClasses(label []int, multiHot bool) []int {
	seen := map[int]struct{}{}
	var classes []int
	for i, v := range label {
		c := v
		if multiHot {
			if v == 0 {
				continue
			}
			c = i
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		classes = append(classes, c)
	}
	sort.Ints(classes)
	return classes
}

func (s Summary) WriteTextTo(w io.Writer) (int64, error) {
	var total int64
	for _, split := range s {
		n, err := fmt.Fprintf(w,
			"%-5s samples: %8d  classes: %4d  labels/sample: %6.2f  unlabeled: %6d  open: %.2fs\n",
			split.Split, split.Samples, split.Classes, split.LabelsPerSample, split.Unlabeled, split.OpenTime)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (s Summary) WriteJSONTo(w io.Writer) (int64, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return 0, errors.Wrap(err, "marshal summary")
	}
	n, err := w.Write(append(b, '\n'))
	return int64(n), err
}

func writeSummary(cfg Config, results Summary) error {
	var w io.Writer = os.Stdout
	if cfg.OutputFile != "" {
		f, err := os.Create(cfg.OutputFile)
		if err != nil {
			return errors.Wrapf(err, "create output file %q", cfg.OutputFile)
		}
		defer f.Close()
		w = io.MultiWriter(os.Stdout, f)
	}

	var err error
	if cfg.OutputFormat == "json" {
		_, err = results.WriteJSONTo(w)
	} else {
		_, err = results.WriteTextTo(w)
	}
	return err
}

// writeResultsFile stores the summary as <results-dir>/<run_id>.json, the
// format consumed by serve-metrics.
func writeResultsFile(cfg Config, results Summary) error {
	if len(results) == 0 || cfg.ResultsDir == "" {
		return nil
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal results")
	}

	if err := os.MkdirAll(cfg.ResultsDir, 0o755); err != nil {
		return errors.Wrapf(err, "create %q", cfg.ResultsDir)
	}

	path := filepath.Join(cfg.ResultsDir, results[0].RunID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.Wrap(err, "write results")
	}

	log.WithField("file", path).Info("Wrote results")
	return nil
}
