// Package nuswide adapts the NUS-WIDE web image dataset. The dataset is
// published already partitioned: one CSV file per split lists the image
// path and the class indices of every sample.
package nuswide

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/weaviate/deephash-datasets/archive"
	"github.com/weaviate/deephash-datasets/dataset"
	"github.com/weaviate/deephash-datasets/transfer"
)

const (
	DefaultBaseURL = "https://raw.githubusercontent.com/nghia-ndx/deephash-nus-wide/main"

	NumArchives = 56

	// BatchSize bounds the number of archives downloaded at the same time.
	BatchSize = 4

	archiveDir = "archives"
	imageDir   = "images"
)

type Adapter struct {
	root        string
	baseURL     string
	numArchives int
	batchSize   int
	workers     int
	client      *transfer.Client
	logger      logrus.FieldLogger
}

type Option func(*Adapter)

func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimSuffix(baseURL, "/") }
}

func WithNumArchives(n int) Option {
	return func(a *Adapter) { a.numArchives = n }
}

func WithBatchSize(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.batchSize = n
		}
	}
}

// WithExtractWorkers sets how many archives are extracted concurrently.
func WithExtractWorkers(n int) Option {
	return func(a *Adapter) {
		if n > 0 {
			a.workers = n
		}
	}
}

func WithClient(client *transfer.Client) Option {
	return func(a *Adapter) { a.client = client }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *Adapter) { a.logger = logger }
}

func New(root string, opts ...Option) *Adapter {
	a := &Adapter{
		root:        root,
		baseURL:     DefaultBaseURL,
		numArchives: NumArchives,
		batchSize:   BatchSize,
		workers:     1,
		logger:      logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.client == nil {
		a.client = transfer.NewClient(transfer.WithLogger(a.logger))
	}
	return a
}

func (a *Adapter) Root() string {
	return a.root
}

// ArchiveNames returns images_00.zip, images_01.zip, ... for n archives.
func ArchiveNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("images_%02d.zip", i)
	}
	return names
}

func (a *Adapter) csvPath(split dataset.Split) string {
	return filepath.Join(a.root, split.String()+".csv")
}

// AcquireDataset downloads the image archives in batches of BatchSize,
// then the split CSV files one by one, and finally extracts all archives
// into the images directory.
func (a *Adapter) AcquireDataset(ctx context.Context) error {
	archiveSaveDir := filepath.Join(a.root, archiveDir)
	imageSaveDir := filepath.Join(a.root, imageDir)
	for _, dir := range []string{archiveSaveDir, imageSaveDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "create %q", dir)
		}
	}

	names := ArchiveNames(a.numArchives)
	batches := (len(names) + a.batchSize - 1) / a.batchSize

	a.logger.Info("Cloning dataset from repo")
	for b := 0; b < batches; b++ {
		batch := names[b*a.batchSize : min((b+1)*a.batchSize, len(names))]
		urls := make([]string, len(batch))
		for i, name := range batch {
			urls[i] = a.baseURL + "/" + imageDir + "/" + name
		}

		a.logger.WithFields(logrus.Fields{"batch": b + 1, "batches": batches}).Info("Downloading in batches")
		if _, err := a.client.FetchBatch(ctx, urls, archiveSaveDir); err != nil {
			return errors.Wrapf(err, "download archive batch %d", b+1)
		}
	}

	for _, split := range dataset.Splits {
		name := split.String() + ".csv"
		if _, err := a.client.FetchToFile(ctx, a.baseURL+"/"+name, a.csvPath(split), name,
			transfer.LogProgress(a.logger, name)); err != nil {
			return errors.Wrapf(err, "download %s", name)
		}
	}

	a.logger.WithField("archives", len(names)).Info("Extracting archives")
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for _, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return archive.Extract(filepath.Join(archiveSaveDir, name), imageSaveDir)
		})
	}
	return g.Wait()
}

// IterateSplit reads the split's CSV file one row at a time. The first
// column is the image path, the others the class indices of the sample.
func (a *Adapter) IterateSplit(split dataset.Split) iter.Seq2[dataset.Sample, error] {
	return func(yield func(dataset.Sample, error) bool) {
		path := a.csvPath(split)
		f, err := os.Open(path)
		if err != nil {
			yield(dataset.Sample{}, errors.Wrapf(err, "open %q", path))
			return
		}
		defer f.Close()

		r := csv.NewReader(f)
		r.FieldsPerRecord = -1

		for line := 1; ; line++ {
			row, err := r.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(dataset.Sample{}, errors.Wrapf(err, "read %q", path))
				return
			}

			sample, err := parseRow(row)
			if err != nil {
				yield(dataset.Sample{}, errors.Wrapf(err, "%s:%d", path, line))
				return
			}
			if !yield(sample, nil) {
				return
			}
		}
	}
}

func parseRow(row []string) (dataset.Sample, error) {
	label := make([]int, 0, len(row)-1)
	for _, field := range row[1:] {
		v, err := strconv.Atoi(strings.TrimSpace(field))
		if err != nil {
			return dataset.Sample{}, errors.Errorf("invalid class index %q", field)
		}
		label = append(label, v)
	}
	return dataset.Sample{Path: row[0], Label: label}, nil
}

// DatasetExists checks that every split CSV exists and that every image it
// lists is on disk.
func (a *Adapter) DatasetExists() (bool, error) {
	for _, split := range dataset.Splits {
		if _, err := os.Stat(a.csvPath(split)); err != nil {
			return false, nil
		}

		for sample, err := range a.IterateSplit(split) {
			if err != nil {
				return false, err
			}
			if _, err := os.Stat(dataset.Resolve(a.root, sample.Path)); err != nil {
				a.logger.WithFields(logrus.Fields{"split": split, "path": sample.Path}).Debug("Image missing")
				return false, nil
			}
		}
	}
	return true, nil
}
