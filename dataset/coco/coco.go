// Package coco adapts the MS-COCO 2014 detection dataset for deep hashing
// benchmarks. Both the train and val annotation files are concatenated; the
// first TrainSize images form the train split, the next TestSize the test
// split and the remainder the retrieval database.
package coco

import (
	"context"
	"iter"
	"os"
	"path/filepath"
	"strings"

	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/weaviate/deephash-datasets/archive"
	"github.com/weaviate/deephash-datasets/dataset"
	"github.com/weaviate/deephash-datasets/transfer"
)

const (
	DefaultBaseURL = "http://images.cocodataset.org"

	TrainSize  = 5000
	TestSize   = 1000
	NumClasses = 91

	AnnotationArchive = "annotations_trainval2014.zip"

	archiveDir = "archives"
)

var (
	ImageArchives = []string{"train2014.zip", "val2014.zip"}

	AnnotationFiles = []string{
		"annotations/instances_train2014.json",
		"annotations/instances_val2014.json",
	}
)

type Adapter struct {
	root            string
	baseURL         string
	trainSize       int
	testSize        int
	numClasses      int
	annotationFiles []string
	client          *transfer.Client
	logger          logrus.FieldLogger

	// parsed annotation files keyed by absolute path
	annotations *cache.Cache
}

type Option func(*Adapter)

// WithBaseURL points the downloads at a mirror of images.cocodataset.org.
func WithBaseURL(baseURL string) Option {
	return func(a *Adapter) { a.baseURL = strings.TrimSuffix(baseURL, "/") }
}

func WithSizes(train, test int) Option {
	return func(a *Adapter) {
		a.trainSize = train
		a.testSize = test
	}
}

func WithNumClasses(k int) Option {
	return func(a *Adapter) { a.numClasses = k }
}

// WithAnnotationFiles overrides the annotation files read below the root,
// in the order their images are concatenated.
func WithAnnotationFiles(files ...string) Option {
	return func(a *Adapter) { a.annotationFiles = files }
}

func WithClient(client *transfer.Client) Option {
	return func(a *Adapter) { a.client = client }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *Adapter) { a.logger = logger }
}

func New(root string, opts ...Option) *Adapter {
	a := &Adapter{
		root:            root,
		baseURL:         DefaultBaseURL,
		trainSize:       TrainSize,
		testSize:        TestSize,
		numClasses:      NumClasses,
		annotationFiles: AnnotationFiles,
		logger:          logrus.StandardLogger(),
		annotations:     cache.New(cache.NoExpiration, 0),
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

func (a *Adapter) archiveSaveDir() string {
	return filepath.Join(a.root, archiveDir)
}

func (a *Adapter) annotationSavePaths() []string {
	paths := make([]string, len(a.annotationFiles))
	for i, f := range a.annotationFiles {
		paths[i] = filepath.Join(a.root, f)
	}
	return paths
}

func (a *Adapter) archiveURLs() []string {
	urls := make([]string, 0, len(ImageArchives)+1)
	for _, archive := range ImageArchives {
		urls = append(urls, a.baseURL+"/zips/"+archive)
	}
	return append(urls, a.baseURL+"/annotations/"+AnnotationArchive)
}

// AcquireDataset downloads the image and annotation archives concurrently
// and extracts them directly below the root.
func (a *Adapter) AcquireDataset(ctx context.Context) error {
	if err := os.MkdirAll(a.archiveSaveDir(), 0o755); err != nil {
		return errors.Wrapf(err, "create %q", a.archiveSaveDir())
	}

	a.logger.Info("Downloading dataset")
	if _, err := a.client.FetchBatch(ctx, a.archiveURLs(), a.archiveSaveDir()); err != nil {
		return errors.Wrap(err, "download coco archives")
	}

	a.logger.Info("Extracting archives")
	for _, name := range append(append([]string{}, ImageArchives...), AnnotationArchive) {
		if err := archive.Extract(filepath.Join(a.archiveSaveDir(), name), a.root); err != nil {
			return err
		}
	}

	// annotations may have been parsed from a partial root before
	a.Invalidate()
	return nil
}

// Invalidate drops all memoized annotation files.
func (a *Adapter) Invalidate() {
	a.annotations.Flush()
}

// samples returns every image of every annotation file with its multi-hot
// label, in file order and then in the order images are listed.
func (a *Adapter) samples() ([]dataset.Sample, error) {
	var all []dataset.Sample
	for _, path := range a.annotationSavePaths() {
		records, err := a.annotationRecords(path)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			label, err := Encode(r.categories, a.numClasses)
			if err != nil {
				return nil, errors.Wrapf(err, "image %q in %q", r.path, path)
			}
			all = append(all, dataset.Sample{Path: r.path, Label: label})
		}
	}
	return all, nil
}

// bounds returns the half-open range of split within n samples.
func (a *Adapter) bounds(split dataset.Split, n int) (int, int) {
	trainEnd := min(a.trainSize, n)
	testEnd := min(a.trainSize+a.testSize, n)

	switch split {
	case dataset.Train:
		return 0, trainEnd
	case dataset.Test:
		return trainEnd, testEnd
	default:
		return testEnd, n
	}
}

func (a *Adapter) IterateSplit(split dataset.Split) iter.Seq2[dataset.Sample, error] {
	return func(yield func(dataset.Sample, error) bool) {
		all, err := a.samples()
		if err != nil {
			yield(dataset.Sample{}, err)
			return
		}

		from, to := a.bounds(split, len(all))
		for _, s := range all[from:to] {
			if !yield(s, nil) {
				return
			}
		}
	}
}

// DatasetExists checks that the annotation files and every image they
// reference are on disk. The splits partition the annotated images, so all
// of them are checked in a single pass.
func (a *Adapter) DatasetExists() (bool, error) {
	for _, path := range a.annotationSavePaths() {
		if _, err := os.Stat(path); err != nil {
			return false, nil
		}
	}

	all, err := a.samples()
	if err != nil {
		return false, err
	}

	for _, s := range all {
		if _, err := os.Stat(dataset.Resolve(a.root, s.Path)); err != nil {
			a.logger.WithField("path", s.Path).Debug("Image missing")
			return false, nil
		}
	}
	return true, nil
}
