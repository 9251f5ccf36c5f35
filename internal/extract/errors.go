package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedType is returned for file types with no extractor.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrEmptyDocument is returned when a file yields no readable text.
	ErrEmptyDocument = errors.New("document contains no readable text")

	// ErrFileTooLarge is returned when a file exceeds MaxFileSize.
	ErrFileTooLarge = errors.New("file exceeds the maximum size")

	// ErrOCRUnavailable is returned when a file needs OCR and none is configured.
	ErrOCRUnavailable = errors.New("OCR is not configured")

	// ErrOCRFailed is returned when the OCR provider rejects a request.
	ErrOCRFailed = errors.New("OCR processing failed")
)

// Error wraps an extraction failure with the operation that produced it.
type Error struct {
	Op      string
	Err     error
	Details string
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("extract: %s failed: %s: %v", e.Op, e.Details, e.Err)
	}
	return fmt.Sprintf("extract: %s failed: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op string, err error, details string) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err, Details: details}
}
