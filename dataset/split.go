package dataset

// Split names a partition of a dataset.
type Split string

const (
	Train Split = "train"
	Test  Split = "test"
	DB    Split = "db"
)

// Splits lists every split in canonical order. Each sample of a dataset
// belongs to exactly one of them.
var Splits = []Split{Train, Test, DB}

func (s Split) Valid() bool {
	switch s {
	case Train, Test, DB:
		return true
	default:
		return false
	}
}

func (s Split) String() string {
	return string(s)
}

// ParseSplit validates name and returns it as a Split.
func ParseSplit(name string) (Split, error) {
	s := Split(name)
	if !s.Valid() {
		return "", &InvalidSplitError{Split: name}
	}
	return s, nil
}
