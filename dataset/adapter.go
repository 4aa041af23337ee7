package dataset

import (
	"context"
	"iter"
	"path/filepath"
)

// Sample is one image of a dataset. Path is relative to the dataset root
// unless it is absolute. The meaning of Label depends on the adapter: a
// multi-hot vector for COCO, the raw class indices for NUS-WIDE.
type Sample struct {
	Path  string
	Label []int
}

// Resolve returns the location of a sample path below root. Absolute paths
// are returned unchanged.
func Resolve(root, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(root, path)
}

// Adapter is implemented by every dataset source. It knows where the raw
// data comes from, how it is laid out below Root, and how samples are
// assigned to splits.
type Adapter interface {
	// Root is the directory owned by the adapter.
	Root() string

	// AcquireDataset downloads and extracts the raw data into Root.
	AcquireDataset(ctx context.Context) error

	// DatasetExists reports whether every file expected for all splits is
	// present. Missing files are not an error. It never modifies Root.
	DatasetExists() (bool, error)

	// IterateSplit lazily yields the samples of split. Iteration stops at
	// the first error.
	IterateSplit(split Split) iter.Seq2[Sample, error]
}
