package download

import (
	"errors"
	"fmt"

	"github.com/runixer/tubegrab/internal/storage"
)

// ErrFileNotFound means extraction reported success but no file could be found.
var ErrFileNotFound = errors.New("file not found after download")

// ExtractionError wraps a failure reported by the extractor.
// Its message is the extractor's own, so it can be shown to the user as is.
type ExtractionError struct {
	URL string
	Err error
}

func (e *ExtractionError) Error() string { return e.Err.Error() }
func (e *ExtractionError) Unwrap() error { return e.Err }

// TransmissionError wraps a failure to deliver the file to the chat.
// The file at Path is left on disk.
type TransmissionError struct {
	Path string
	Err  error
}

func (e *TransmissionError) Error() string { return e.Err.Error() }
func (e *TransmissionError) Unwrap() error { return e.Err }

// PanicError is a recovered panic inside a run.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// Status is the tagged result of a run.
type Status int

const (
	StatusDelivered Status = iota
	StatusExtractionFailed
	StatusFileMissing
	StatusTransmissionFailed
	StatusUnexpected
)

// String returns the name used in the journal and in metrics.
func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return storage.StatusDelivered
	case StatusExtractionFailed:
		return storage.StatusExtractionFailed
	case StatusFileMissing:
		return storage.StatusFileMissing
	case StatusTransmissionFailed:
		return storage.StatusTransmissionFailed
	default:
		return storage.StatusUnexpected
	}
}

// Classify maps an error returned by a run onto its Status.
func Classify(err error) Status {
	var (
		extractErr  *ExtractionError
		transmitErr *TransmissionError
	)
	switch {
	case err == nil:
		return StatusDelivered
	case errors.As(err, &extractErr):
		return StatusExtractionFailed
	case errors.Is(err, ErrFileNotFound):
		return StatusFileMissing
	case errors.As(err, &transmitErr):
		return StatusTransmissionFailed
	default:
		return StatusUnexpected
	}
}
