package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"csvmail/internal/shared/testutil"
	"csvmail/internal/tabular"
)

func writeInput(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contacts.csv")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestRun_Preview(t *testing.T) {
	input := writeInput(t, testutil.ContactsCSV(t))

	var stdout, stderr bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-column", "1", input}, &stdout, &stderr))

	var res result
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, input, res.File)
	assert.Equal(t, 5, res.Stats.TotalRows)
	assert.Equal(t, 1, res.Stats.TotalEmptyEmails)
	assert.Equal(t, 1, res.Stats.TotalDuplicateEmails)
	assert.Equal(t, "email", res.Stats.ColumnName)
	assert.Empty(t, res.Output)
}

func TestRun_ProcessToFile(t *testing.T) {
	input := writeInput(t, testutil.ContactsCSV(t))
	out := filepath.Join(t.TempDir(), "cleaned.csv")

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-column", "1", "-drop-empty", "-dedup", "hashed", "-out", out, input}, &stdout, &stderr)
	require.NoError(t, err)

	var res result
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, out, res.Output)
	assert.Equal(t, 5, res.InputRows)
	assert.Equal(t, 1, res.DroppedRows)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestRun_Errors(t *testing.T) {
	input := writeInput(t, testutil.ContactsCSV(t))

	tests := []struct {
		name string
		args []string
	}{
		{"no input", []string{"-column", "1"}},
		{"missing column", []string{input}},
		{"bad column", []string{"-column", "x", input}},
		{"bad dedup", []string{"-column", "1", "-dedup", "fuzzy", input}},
		{"long delimiter", []string{"-column", "1", "-delimiter", ";;", input}},
		{"missing file", []string{"-column", "1", filepath.Join(t.TempDir(), "nope.csv")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Error(t, run(context.Background(), tt.args, &stdout, &stderr))
			assert.Empty(t, stdout.String())
		})
	}

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-column", "7", input}, &stdout, &stderr)
	var rangeErr *tabular.ColumnOutOfRangeError
	assert.ErrorAs(t, err, &rangeErr)
}
