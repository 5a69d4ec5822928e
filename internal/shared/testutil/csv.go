package testutil

import (
	"bytes"
	"encoding/csv"
	"mime/multipart"
	"testing"
)

// CSV renders rows with encoding/csv, so quoting matches what clients send.
func CSV(t *testing.T, rows ...[]string) []byte {
	t.Helper()

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("failed to render csv: %v", err)
	}
	return buf.Bytes()
}

// ContactsCSV is a small upload with an email column at index 1, one empty
// address, one duplicate (by case) and one malformed address.
func ContactsCSV(t *testing.T) []byte {
	return CSV(t,
		[]string{"name", "email", "city"},
		[]string{"Ada", "ada@example.com", "London"},
		[]string{"Bob", "", "Paris"},
		[]string{"Cy", "ADA@example.com", "Rome"},
		[]string{"Di", "not-an-address", "Oslo"},
		[]string{"Ed", "ed@example.org", "Lima"},
	)
}

// MultipartUpload builds a multipart body with one file part and the given
// form fields. It returns the body and its Content-Type.
func MultipartUpload(t *testing.T, filename string, content []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field %s: %v", k, err)
		}
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("failed to create file part: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("failed to write file part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("failed to close multipart writer: %v", err)
	}
	return body, mw.FormDataContentType()
}
