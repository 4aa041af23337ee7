// Package export writes dataset labels to ann-benchmarks style HDF5 files
// so they can be used as ground truth by retrieval benchmarks.
package export

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/weaviate/hdf5"

	"github.com/weaviate/deephash-datasets/dataset"
)

// Padding fills label rows that are shorter than the widest row of a split.
const Padding = -1

// DatasetName is the name of the HDF5 dataset holding the labels of split.
func DatasetName(split dataset.Split) string {
	return split.String() + "_labels"
}

// WriteLabels creates (or truncates) the file at path and stores the label
// matrix of every given dataset as a 2-d int32 HDF5 dataset. Splits without
// samples are skipped.
func WriteLabels(path string, datasets ...*dataset.Dataset) error {
	file, err := hdf5.CreateFile(path, hdf5.F_ACC_TRUNC)
	if err != nil {
		return errors.Wrapf(err, "create %q", path)
	}
	defer file.Close()

	for _, ds := range datasets {
		matrix, width := ds.LabelMatrix()
		if ds.Len() == 0 || width == 0 {
			log.WithField("split", ds.Split()).Warn("Skipping empty split")
			continue
		}

		if err := writeMatrix(file, DatasetName(ds.Split()), matrix, uint(ds.Len()), uint(width)); err != nil {
			return err
		}

		log.WithFields(log.Fields{"split": ds.Split(), "rows": ds.Len(), "width": width}).
			Info("Wrote labels")
	}
	return nil
}

func writeMatrix(file *hdf5.File, name string, matrix []int32, rows, width uint) error {
	dataspace, err := hdf5.CreateSimpleDataspace([]uint{rows, width}, nil)
	if err != nil {
		return errors.Wrapf(err, "create dataspace for %s", name)
	}
	defer dataspace.Close()

	dset, err := file.CreateDataset(name, hdf5.T_NATIVE_INT32, dataspace)
	if err != nil {
		return errors.Wrapf(err, "create dataset %s", name)
	}
	defer dset.Close()

	if err := dset.Write(&matrix); err != nil {
		return errors.Wrapf(err, "write dataset %s", name)
	}
	return nil
}

// ReadLabels loads the labels of split from a file written by WriteLabels,
// dropping the padding.
func ReadLabels(path string, split dataset.Split) ([][]int, error) {
	file, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, errors.Wrapf(err, "open %q", path)
	}
	defer file.Close()

	dset, err := file.OpenDataset(DatasetName(split))
	if err != nil {
		return nil, errors.Wrapf(err, "open dataset %s", DatasetName(split))
	}
	defer dset.Close()

	dataspace := dset.Space()
	dims, _, err := dataspace.SimpleExtentDims()
	if err != nil {
		return nil, errors.Wrap(err, "read dimensions")
	}
	if len(dims) != 2 {
		return nil, errors.Errorf("expected 2 dimensions, got %d", len(dims))
	}

	rows, width := dims[0], dims[1]
	data := make([]int32, rows*width)
	if err := dset.Read(&data); err != nil {
		return nil, errors.Wrapf(err, "read dataset %s", DatasetName(split))
	}

	labels := make([][]int, rows)
	for i := range labels {
		row := data[uint(i)*width : uint(i+1)*width]
		labels[i] = make([]int, 0, width)
		for _, v := range row {
			if v == Padding {
				break
			}
			labels[i] = append(labels[i], int(v))
		}
	}
	return labels, nil
}
