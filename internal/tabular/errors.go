package tabular

import (
	"errors"
	"fmt"
)

// ErrEmptyFile is returned when the source has no header row at all.
var ErrEmptyFile = errors.New("file is empty: no header row")

// InputFormatError reports a stream that cannot be tokenized, such as a
// quoted field left open at end of input.
type InputFormatError struct {
	Line int
	Err  error
}

func (e *InputFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed input at line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("malformed input: %v", e.Err)
}

func (e *InputFormatError) Unwrap() error { return e.Err }

// ColumnOutOfRangeError reports a requested column index that is negative
// or not present in the header.
type ColumnOutOfRangeError struct {
	Index int
	Width int
}

func (e *ColumnOutOfRangeError) Error() string {
	return fmt.Sprintf("column index %d is out of range: header has %d columns", e.Index, e.Width)
}

// MissingFieldError is returned by Extract for rows narrower than the
// resolved column. Callers count such rows as empty.
type MissingFieldError struct {
	Row   int
	Index int
	Width int
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("row %d has %d fields, column %d missing", e.Row, e.Width, e.Index)
}

// IsFileLevel reports whether err aborts a whole-file operation.
func IsFileLevel(err error) bool {
	var formatErr *InputFormatError
	var rangeErr *ColumnOutOfRangeError
	return errors.Is(err, ErrEmptyFile) || errors.As(err, &formatErr) || errors.As(err, &rangeErr)
}
