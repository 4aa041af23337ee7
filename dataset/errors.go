package dataset

import "fmt"

// InvalidSplitError is returned when a split name is not one of Splits.
type InvalidSplitError struct {
	Split string
}

func (e *InvalidSplitError) Error() string {
	return fmt.Sprintf("dataset split must be one of %v, got %q", Splits, e.Split)
}

// IndexOutOfRangeError is returned by Get for an index outside [0, Len).
type IndexOutOfRangeError struct {
	Index int
	Len   int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("sample index %d out of range [0, %d)", e.Index, e.Len)
}
