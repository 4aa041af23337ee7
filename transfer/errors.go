package transfer

import (
	"fmt"
	"strings"
)

// TransferError reports a single failed download. StatusCode is zero when
// no response was received.
type TransferError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *TransferError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// BatchError is returned by FetchBatch when at least one URL failed.
type BatchError struct {
	Failed []Outcome
}

func (e *BatchError) Error() string {
	msgs := make([]string, 0, len(e.Failed))
	for _, o := range e.Failed {
		msgs = append(msgs, o.Err.Error())
	}
	return fmt.Sprintf("%d download(s) failed: %s", len(e.Failed), strings.Join(msgs, "; "))
}

// Unwrap exposes the individual failures to errors.Is and errors.As.
func (e *BatchError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, o := range e.Failed {
		errs = append(errs, o.Err)
	}
	return errs
}
