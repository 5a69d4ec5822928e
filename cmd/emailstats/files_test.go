package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileChecker_CheckInput(t *testing.T) {
	dir := t.TempDir()
	create := func(name string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("email\n"), 0o600))
		return path
	}

	tests := []struct {
		name    string
		path    string
		wantErr string
	}{
		{"csv", create("list.csv"), ""},
		{"upper case xlsx", create("LIST.XLSX"), ""},
		{"tsv", create("list.tsv"), ""},
		{"missing", filepath.Join(dir, "none.csv"), "does not exist"},
		{"directory", dir, "is a directory"},
		{"unsupported", create("list.pdf"), "unsupported input type"},
		{"excel lock file", create("~$list.xlsx"), "temporary Excel file"},
	}

	c := newFileChecker(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.checkInput(tt.path)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestFileChecker_CheckOutput(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "in.csv")
	c := newFileChecker(nil)

	assert.NoError(t, c.checkOutput(input, filepath.Join(dir, "nested", "out.csv")))
	assert.DirExists(t, filepath.Join(dir, "nested"))

	err := c.checkOutput(input, input)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "overwrite the input")

	err = c.checkOutput(input, filepath.Join(dir, "nested"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")
}
