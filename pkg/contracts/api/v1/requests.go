// Package api contains the v1 HTTP contracts of csvmail. Request types carry
// validator/v10 tags; field names in validation errors follow the json tags.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// ColumnIndex is a zero-based column index sent as decimal text. JSON
// bodies may also carry it as a number.
type ColumnIndex string

// UnmarshalJSON accepts "2" and 2.
func (c *ColumnIndex) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = ColumnIndex(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("column index must be a string or a number: %w", err)
	}
	if _, err := strconv.Atoi(n.String()); err != nil {
		return fmt.Errorf("column index %s is not an integer", n)
	}
	*c = ColumnIndex(n.String())
	return nil
}

// PreviewRequest is the form of POST /csv-processor/preview. The file
// itself travels in the multipart "file" part.
type PreviewRequest struct {
	EmailColumnIndex ColumnIndex `json:"emailColumnIndex" form:"emailColumnIndex" validate:"required,numeric"`
	// Delimiter overrides delimiter sniffing for CSV input.
	Delimiter string `json:"delimiter,omitempty" form:"delimiter" validate:"omitempty,len=1"`
}

// ProcessRequest is the form of POST /csv-processor/process.
type ProcessRequest struct {
	EmailColumnIndex  ColumnIndex `json:"emailColumnIndex" form:"emailColumnIndex" validate:"required,numeric"`
	RemoveEmptyEmails string      `json:"removeEmptyEmails" form:"removeEmptyEmails" validate:"omitempty,oneof=true false"`
	Delimiter         string      `json:"delimiter,omitempty" form:"delimiter" validate:"omitempty,len=1"`
}

// ValidateRequest is the body of POST /email-validator/validate/{filename}.
type ValidateRequest struct {
	EmailColumnIndex ColumnIndex `json:"emailColumnIndex" validate:"required,numeric"`
}

// FilenameParam is the {filename} path segment shared by artifact routes.
type FilenameParam struct {
	Filename string `json:"filename" validate:"required,max=64,alphanum"`
}
