package sqlerr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrAmbiguousColumn  = errors.New("ambiguous column")
	ErrColumnNotFound   = errors.New("column not found")
	ErrConversion       = errors.New("type conversion failed")
	ErrExecutionTimeout = errors.New("execution timed out")
	ErrQueryInvalid     = errors.New("query invalid")
	ErrSerialization    = errors.New("serialization failed")
	ErrClosed           = errors.New("resource closed")
	ErrNoCurrentRow     = errors.New("no current row")
	ErrNotSupported     = errors.New("operation not supported")
)

// IndexError reports a column index outside 1..Count.
type IndexError struct {
	Index int
	Count int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index out of bounds: '%d' (column count %d)", e.Index, e.Count)
}

func (e *IndexError) Is(target error) bool {
	return target == ErrInvalidInput
}

type FetchSizeError struct {
	Size int
}

func (e *FetchSizeError) Error() string {
	return fmt.Sprintf("invalid fetch size: %d, fetch size must be >= 0", e.Size)
}

func (e *FetchSizeError) Is(target error) bool {
	return target == ErrInvalidInput
}

type AmbiguousColumnError struct {
	Label string
}

func (e *AmbiguousColumnError) Error() string {
	return fmt.Sprintf("multiple columns with the label %q exist, use indexes to avoid ambiguity", e.Label)
}

func (e *AmbiguousColumnError) Is(target error) bool {
	return target == ErrAmbiguousColumn
}

// ConversionError is returned when a cell of kind From cannot be read as To.
// Err carries the underlying parse failure, if any.
type ConversionError struct {
	From string
	To   string
	Err  error
}

func (e *ConversionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("the %s type cannot be converted to %s: %v", e.From, e.To, e.Err)
	}
	return fmt.Sprintf("the %s type cannot be converted to %s", e.From, e.To)
}

func (e *ConversionError) Is(target error) bool {
	return target == ErrConversion
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// TranslatorError is an error reported by the external SQL translator.
// Internal errors are serialization problems, everything else means the query is invalid.
type TranslatorError struct {
	Message  string
	Internal bool
}

func (e *TranslatorError) Error() string {
	if e.Internal {
		return "translator internal error: " + e.Message
	}
	return "translator rejected query: " + e.Message
}

func (e *TranslatorError) Is(target error) bool {
	if e.Internal {
		return target == ErrSerialization
	}
	return target == ErrQueryInvalid
}

func Invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func Unsupported(op string) error {
	return fmt.Errorf("%w: %s", ErrNotSupported, op)
}
