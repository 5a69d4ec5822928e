package tabular

import (
	"fmt"
	"strconv"
	"strings"
)

// Column is a resolved target column. It is fixed for the lifetime of one run.
type Column struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Resolve maps a zero-based index onto the header row.
func Resolve(header []string, index int) (Column, error) {
	if header == nil {
		return Column{}, ErrEmptyFile
	}
	if index < 0 || index >= len(header) {
		return Column{}, &ColumnOutOfRangeError{Index: index, Width: len(header)}
	}
	return Column{Index: index, Name: strings.TrimSpace(header[index])}, nil
}

// Extract returns the raw value at col, or a MissingFieldError when the row
// is too narrow.
func Extract(row Row, col Column) (string, error) {
	if col.Index >= len(row.Fields) {
		return "", &MissingFieldError{Row: row.Number, Index: col.Index, Width: len(row.Fields)}
	}
	return row.Fields[col.Index], nil
}

// IsEmpty reports whether an extracted value counts as an empty email.
func IsEmpty(value string) bool {
	return strings.TrimSpace(value) == ""
}

// ParseColumnIndex parses an index supplied as decimal text.
func ParseColumnIndex(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("column index is required")
	}
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("column index %q is not an integer", raw)
	}
	return idx, nil
}
