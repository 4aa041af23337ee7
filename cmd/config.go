package cmd

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/deephash-datasets/dataset"
	"github.com/weaviate/deephash-datasets/dataset/coco"
	"github.com/weaviate/deephash-datasets/dataset/nuswide"
	"github.com/weaviate/deephash-datasets/transfer"
)

const (
	datasetCOCO    = "coco"
	datasetNUSWide = "nus-wide"
)

// reservedLabels are set on every summary metric and cannot be passed
// with --labels.
var reservedLabels = []string{"dataset", "split", "run_id"}

type Config struct {
	Mode             string
	ConfigFile       string
	Dataset          string
	Root             string
	Split            string
	ForceDownload    bool
	BaseURL          string
	Retries          int
	Workers          int
	OutputFormat     string
	OutputFile       string
	ResultsDir       string
	Labels           string
	LabelMap         map[string]string
	Index            int
	HDF5File         string
	MetricsTextfile  string
	ListenPort       int
	PrometheusConfig PrometheusConfig
	InfluxDBConfig   InfluxDBConfig
}

func (c *Config) Validate() error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	switch c.Mode {
	case "acquire", "summary":
		return nil
	case "sample":
		return c.validateSample()
	case "export":
		return c.validateExport()
	case "serve-metrics":
		return c.validateServeMetrics()
	default:
		return errors.Errorf("unrecognized mode %q", c.Mode)
	}
}

func (c *Config) validateCommon() error {
	switch c.Dataset {
	case datasetCOCO, datasetNUSWide:
	default:
		return errors.Errorf("unsupported dataset %q, must be one of [%s, %s]",
			c.Dataset, datasetCOCO, datasetNUSWide)
	}

	if _, err := dataset.ParseSplit(c.Split); err != nil {
		return err
	}

	if c.Root == "" {
		c.Root = filepath.Join("data", c.Dataset)
	}

	if c.Retries < 0 {
		return errors.Errorf("retries must not be negative")
	}
	if c.Workers < 1 {
		return errors.Errorf("workers must be at least 1")
	}

	c.parseLabels()
	for _, key := range reservedLabels {
		if _, ok := c.LabelMap[key]; ok {
			return errors.Errorf("label %q is reserved", key)
		}
	}

	switch c.OutputFormat {
	case "text", "":
		c.OutputFormat = "text"
	case "json":
	default:
		return errors.Errorf("unsupported output format %q, must be one of [text, json]",
			c.OutputFormat)
	}

	return nil
}

func (c Config) validateSample() error {
	if c.Index < 0 {
		return errors.Errorf("index must not be negative")
	}
	return nil
}

func (c Config) validateExport() error {
	if c.HDF5File == "" {
		return errors.Errorf("an hdf5 output file must be provided")
	}
	return nil
}

func (c Config) validateServeMetrics() error {
	if c.ResultsDir == "" {
		return errors.Errorf("results directory is required")
	}
	if c.ListenPort <= 0 || c.ListenPort > 65535 {
		return errors.Errorf("invalid port %d", c.ListenPort)
	}
	return nil
}

func (c *Config) parseLabels() {
	result := make(map[string]string)
	pairs := strings.Split(c.Labels, ",")

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) == 2 {
			result[kv[0]] = kv[1]
		}
	}

	c.LabelMap = result
}

// multiHot reports whether the dataset encodes labels as a K-length
// indicator vector rather than a list of class indices.
func (c Config) multiHot() bool {
	return c.Dataset == datasetCOCO
}

// newAdapter builds the adapter of the configured dataset. Download metrics
// are registered with reg when it is not nil.
func newAdapter(cfg Config, reg prometheus.Registerer) dataset.Adapter {
	logger := logrus.StandardLogger()

	clientOpts := []transfer.Option{
		transfer.WithLogger(logger),
		transfer.WithRetries(cfg.Retries),
	}
	if reg != nil {
		clientOpts = append(clientOpts, transfer.WithMetrics(transfer.NewMetrics(reg)))
	}
	client := transfer.NewClient(clientOpts...)

	switch cfg.Dataset {
	case datasetCOCO:
		opts := []coco.Option{coco.WithClient(client), coco.WithLogger(logger)}
		if cfg.BaseURL != "" {
			opts = append(opts, coco.WithBaseURL(cfg.BaseURL))
		}
		return coco.New(cfg.Root, opts...)
	default:
		opts := []nuswide.Option{
			nuswide.WithClient(client),
			nuswide.WithLogger(logger),
			nuswide.WithExtractWorkers(cfg.Workers),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, nuswide.WithBaseURL(cfg.BaseURL))
		}
		return nuswide.New(cfg.Root, opts...)
	}
}
