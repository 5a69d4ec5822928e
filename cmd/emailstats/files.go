package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// inputExtensions are the file types the tabular reader understands.
var inputExtensions = map[string]bool{
	".csv":  true,
	".tsv":  true,
	".txt":  true,
	".xlsx": true,
}

// fileChecker validates CLI input and output paths before any work starts.
type fileChecker struct {
	logger *slog.Logger
}

func newFileChecker(logger *slog.Logger) *fileChecker {
	if logger == nil {
		logger = slog.Default()
	}
	return &fileChecker{logger: logger}
}

// checkInput ensures path is a readable regular file of a supported type.
func (c *fileChecker) checkInput(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return fmt.Errorf("input file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat input file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a file", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !inputExtensions[ext] {
		return fmt.Errorf("unsupported input type %q: expected .csv, .tsv, .txt or .xlsx", ext)
	}
	// Excel lock files look like workbooks but are not.
	if strings.HasPrefix(filepath.Base(path), "~$") {
		return fmt.Errorf("%s is a temporary Excel file", path)
	}

	c.logger.Debug("input file validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// checkOutput ensures the output directory exists or can be created and
// that the output does not overwrite the input.
func (c *fileChecker) checkOutput(input, output string) error {
	inAbs, err := filepath.Abs(input)
	if err != nil {
		return err
	}
	outAbs, err := filepath.Abs(output)
	if err != nil {
		return err
	}
	if inAbs == outAbs {
		return fmt.Errorf("output %s would overwrite the input file", output)
	}

	dir := filepath.Dir(outAbs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	if info, err := os.Stat(outAbs); err == nil && info.IsDir() {
		return fmt.Errorf("output %s is a directory", output)
	}

	c.logger.Debug("output path validated", slog.String("output", outAbs))
	return nil
}
