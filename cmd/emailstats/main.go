// Command emailstats previews the email column of a CSV or XLSX file and can
// write a processed copy without running the server.
//
//	emailstats -column 2 contacts.csv
//	emailstats -column 2 -drop-empty -out cleaned.csv contacts.csv
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"csvmail/internal/artifacts"
	"csvmail/internal/infrastructure"
	"csvmail/internal/services"
	"csvmail/internal/stats"
	"csvmail/internal/tabular"
	"csvmail/internal/transform"
)

// result is printed as JSON on stdout.
type result struct {
	File        string      `json:"file"`
	Stats       stats.Stats `json:"stats"`
	Output      string      `json:"output,omitempty"`
	InputRows   int         `json:"inputRows,omitempty"`
	DroppedRows int         `json:"droppedRows,omitempty"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, "emailstats:", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("emailstats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	column := fs.String("column", "", "zero-based index of the email column (required)")
	out := fs.String("out", "", "write the processed file here instead of only previewing")
	dropEmpty := fs.Bool("drop-empty", false, "drop rows with an empty email when writing -out")
	delim := fs.String("delimiter", "", "single-character field delimiter (sniffed when empty)")
	dedup := fs.String("dedup", string(stats.DedupExact), "duplicate detection: exact | hashed")
	level := fs.String("log-level", "warn", "debug | info | warn | error")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return fmt.Errorf("expected exactly one input file, got %d", fs.NArg())
	}
	input := fs.Arg(0)

	columnIndex, err := tabular.ParseColumnIndex(*column)
	if err != nil {
		return fmt.Errorf("-column: %w", err)
	}
	mode, err := stats.ParseDedupMode(*dedup)
	if err != nil {
		return fmt.Errorf("-dedup: %w", err)
	}
	var delimiter rune
	if *delim != "" {
		runes := []rune(*delim)
		if len(runes) != 1 {
			return fmt.Errorf("-delimiter must be a single character, got %q", *delim)
		}
		delimiter = runes[0]
	}

	logger := infrastructure.NewLogger(stderr, *level)
	checker := newFileChecker(logger)
	if err := checker.checkInput(input); err != nil {
		return err
	}
	if *out != "" {
		if err := checker.checkOutput(input, *out); err != nil {
			return err
		}
	}

	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	// Processed output goes through a throwaway store like it does on the server.
	workDir, err := os.MkdirTemp("", "emailstats-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(workDir)
	store, err := artifacts.NewFileStore(workDir, time.Hour, 0, 0, logger)
	if err != nil {
		return err
	}
	svc := services.NewCSVService(store, mode, nil, logger)
	upload := services.Upload{Body: f, Filename: filepath.Base(input), Delimiter: delimiter}

	res := result{File: input}
	if *out == "" {
		res.Stats, err = svc.Preview(ctx, upload, columnIndex)
		if err != nil {
			return err
		}
		return writeJSON(stdout, res)
	}

	policy := transform.KeepEmptyRows
	if *dropEmpty {
		policy = transform.DropEmptyRows
	}
	processed, err := svc.Process(ctx, upload, columnIndex, policy)
	if err != nil {
		return err
	}
	if err := export(ctx, svc, string(processed.Artifact.Token), *out); err != nil {
		return err
	}

	res.Stats = processed.Stats
	res.Output = *out
	res.InputRows = processed.InputRows
	res.DroppedRows = processed.DroppedRows
	logger.Info("processed file written",
		slog.String("input", input),
		slog.String("output", *out),
		slog.Int("dropped_rows", processed.DroppedRows))
	return writeJSON(stdout, res)
}

func export(ctx context.Context, svc *services.CSVService, token, path string) error {
	rc, _, err := svc.Open(ctx, token)
	if err != nil {
		return err
	}
	defer rc.Close()

	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, rc); err != nil {
		dst.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return dst.Close()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
