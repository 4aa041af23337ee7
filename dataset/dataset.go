// Package dataset provides random access to image datasets used to
// benchmark deep hashing models. A Dataset serves one split of a source
// described by an Adapter and acquires the raw data on first use.
package dataset

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"slices"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Dataset is the materialized index of one split. It is immutable after
// Open returns.
type Dataset struct {
	root   string
	split  Split
	paths  []string
	labels [][]int

	transform       func(image.Image) image.Image
	targetTransform func([]int) []int
	decoder         Decoder
}

type options struct {
	transform       func(image.Image) image.Image
	targetTransform func([]int) []int
	forceDownload   bool
	decoder         Decoder
	logger          logrus.FieldLogger
}

type Option func(*options)

// WithTransform is applied to every decoded image returned by Get.
func WithTransform(fn func(image.Image) image.Image) Option {
	return func(o *options) { o.transform = fn }
}

// WithTargetTransform is applied to a copy of the label returned by Get.
func WithTargetTransform(fn func([]int) []int) Option {
	return func(o *options) { o.targetTransform = fn }
}

// WithForceDownload erases the dataset root and acquires it again.
func WithForceDownload(force bool) Option {
	return func(o *options) { o.forceDownload = force }
}

func WithDecoder(d Decoder) Option {
	return func(o *options) { o.decoder = d }
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// Open prepares the given split of the adapter's dataset. The data is
// acquired when it is missing on disk or a forced download is requested;
// this blocks until all archives are downloaded and extracted. The split
// is then read once and kept in memory.
func Open(ctx context.Context, adapter Adapter, split string, opts ...Option) (*Dataset, error) {
	s, err := ParseSplit(split)
	if err != nil {
		return nil, err
	}

	o := options{
		decoder: DecoderFunc(DecodeRGB),
		logger:  logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	root, err := filepath.Abs(adapter.Root())
	if err != nil {
		return nil, errors.Wrapf(err, "resolve dataset root %q", adapter.Root())
	}
	logger := o.logger.WithFields(logrus.Fields{"root": root, "split": s})

	if o.forceDownload {
		if _, err := os.Stat(root); err == nil {
			logger.Warnf("Directory %s will be erased", root)
			if err := os.RemoveAll(root); err != nil {
				return nil, errors.Wrapf(err, "erase dataset root %q", root)
			}
		} else if !os.IsNotExist(err) {
			return nil, errors.Wrapf(err, "stat dataset root %q", root)
		}
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create dataset root %q", root)
	}

	acquire := o.forceDownload
	if !acquire {
		exists, err := adapter.DatasetExists()
		if err != nil {
			return nil, errors.Wrap(err, "check dataset files")
		}
		acquire = !exists
	}

	if acquire {
		logger.Info("Acquiring dataset")
		if err := adapter.AcquireDataset(ctx); err != nil {
			return nil, errors.Wrap(err, "acquire dataset")
		}
	}

	ds := &Dataset{
		root:            root,
		split:           s,
		transform:       o.transform,
		targetTransform: o.targetTransform,
		decoder:         o.decoder,
	}

	for sample, err := range adapter.IterateSplit(s) {
		if err != nil {
			return nil, errors.Wrapf(err, "read %s split", s)
		}
		ds.paths = append(ds.paths, Resolve(root, sample.Path))
		ds.labels = append(ds.labels, slices.Clone(sample.Label))
	}

	logger.WithField("samples", len(ds.paths)).Info("Dataset index built")
	return ds, nil
}

func (d *Dataset) Len() int {
	return len(d.paths)
}

func (d *Dataset) Split() Split {
	return d.split
}

func (d *Dataset) Root() string {
	return d.root
}

// Path returns the absolute image path of sample i.
func (d *Dataset) Path(i int) (string, error) {
	if err := d.checkIndex(i); err != nil {
		return "", err
	}
	return d.paths[i], nil
}

// Label returns a copy of the untransformed label of sample i.
func (d *Dataset) Label(i int) ([]int, error) {
	if err := d.checkIndex(i); err != nil {
		return nil, err
	}
	return slices.Clone(d.labels[i]), nil
}

// Get decodes sample i and applies the configured transforms. The image is
// read from disk on every call.
func (d *Dataset) Get(i int) (image.Image, []int, error) {
	if err := d.checkIndex(i); err != nil {
		return nil, nil, err
	}

	img, err := d.decoder.Decode(d.paths[i])
	if err != nil {
		return nil, nil, errors.Wrapf(err, "load sample %d", i)
	}
	if d.transform != nil {
		img = d.transform(img)
	}

	label := slices.Clone(d.labels[i])
	if d.targetTransform != nil {
		label = d.targetTransform(label)
	}
	return img, label, nil
}

// LabelMatrix flattens all labels into a row-major matrix. Rows shorter than
// the longest label are padded with -1. It returns the matrix and its width.
func (d *Dataset) LabelMatrix() ([]int32, int) {
	width := 0
	for _, l := range d.labels {
		width = max(width, len(l))
	}

	matrix := make([]int32, len(d.labels)*width)
	for i, l := range d.labels {
		row := matrix[i*width : (i+1)*width]
		for j := range row {
			if j < len(l) {
				row[j] = int32(l[j])
			} else {
				row[j] = -1
			}
		}
	}
	return matrix, width
}

func (d *Dataset) checkIndex(i int) error {
	if i < 0 || i >= len(d.paths) {
		return &IndexOutOfRangeError{Index: i, Len: len(d.paths)}
	}
	return nil
}
