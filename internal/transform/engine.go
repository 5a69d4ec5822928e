// Package transform rewrites a tabular source into a new stored artifact,
// optionally dropping rows without an email, and counts the output.
package transform

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"csvmail/internal/artifacts"
	"csvmail/internal/stats"
	"csvmail/internal/tabular"
)

// EmptyRowPolicy decides what happens to rows whose email is empty.
type EmptyRowPolicy int

const (
	// KeepEmptyRows mirrors the input: every row is written, including rows
	// that are malformed or missing the column.
	KeepEmptyRows EmptyRowPolicy = iota
	// DropEmptyRows excludes rows whose email is empty or missing.
	DropEmptyRows
)

// ParseEmptyRowPolicy maps the removeEmptyEmails flag onto a policy.
func ParseEmptyRowPolicy(flag string) (EmptyRowPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(flag)) {
	case "true":
		return DropEmptyRows, nil
	case "false", "":
		return KeepEmptyRows, nil
	default:
		return KeepEmptyRows, fmt.Errorf("removeEmptyEmails must be \"true\" or \"false\", got %q", flag)
	}
}

func (p EmptyRowPolicy) String() string {
	if p == DropEmptyRows {
		return "drop_empty"
	}
	return "keep_empty"
}

// Result describes a completed transformation. Stats count the output rows.
type Result struct {
	Artifact    artifacts.Info
	Stats       stats.Stats
	InputRows   int
	DroppedRows int
}

// Engine is the only producer of processed artifacts.
type Engine struct {
	store  artifacts.Store
	mode   stats.DedupMode
	logger *slog.Logger
}

// NewEngine returns an engine writing into store.
func NewEngine(store artifacts.Store, mode stats.DedupMode, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		mode:   mode,
		logger: logger.With(slog.String("component", "transform")),
	}
}

// Transform streams src into a new artifact. The column is resolved before
// anything is stored, so file-level errors leave no artifact behind.
func (e *Engine) Transform(ctx context.Context, src tabular.RowSource, columnIndex int, policy EmptyRowPolicy, meta artifacts.Meta) (Result, error) {
	header, err := src.Header()
	if err != nil {
		return Result{}, err
	}
	col, err := tabular.Resolve(header, columnIndex)
	if err != nil {
		return Result{}, err
	}

	meta.Kind = artifacts.KindProcessed
	meta.ColumnIndex = columnIndex
	counter := stats.NewCounter(col, e.mode)

	var (
		result   Result
		writeErr error
	)
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		in, dropped, err := writeRows(gctx, pw, header, src, col, counter, policy)
		result.InputRows, result.DroppedRows = in, dropped
		writeErr = err
		pw.CloseWithError(err)
		return err
	})
	g.Go(func() error {
		info, err := e.store.Put(gctx, pr, meta)
		if err != nil {
			pr.CloseWithError(err)
			return err
		}
		result.Artifact = info
		return nil
	})

	if err := g.Wait(); err != nil {
		if writeErr != nil {
			err = writeErr
		}
		return Result{}, err
	}

	result.Stats = counter.Snapshot()
	e.logger.InfoContext(ctx, "file transformed",
		slog.String("policy", policy.String()),
		slog.Int("input_rows", result.InputRows),
		slog.Int("output_rows", result.Stats.TotalRows),
		slog.Int("dropped_rows", result.DroppedRows))
	return result, nil
}

// delimited is implemented by sources that know their CSV delimiter.
type delimited interface {
	Delimiter() rune
}

func writeRows(ctx context.Context, w io.Writer, header []string, src tabular.RowSource, col tabular.Column, counter *stats.Counter, policy EmptyRowPolicy) (int, int, error) {
	cw := csv.NewWriter(w)
	// Malformed rows go out verbatim only when their text already uses the
	// output delimiter.
	d, ok := src.(delimited)
	verbatim := ok && d.Delimiter() == cw.Comma

	if err := cw.Write(header); err != nil {
		return 0, 0, err
	}

	in, dropped := 0, 0
	for {
		if in%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return in, dropped, err
			}
		}
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return in, dropped, err
		}
		in++

		if policy == DropEmptyRows {
			value, err := tabular.Extract(row, col)
			if err != nil || tabular.IsEmpty(value) {
				dropped++
				continue
			}
		}
		counter.Observe(row)
		if row.Malformed && row.Raw != nil && verbatim {
			err = writeRaw(cw, w, row.Raw)
		} else {
			err = writeRecord(cw, w, row.Fields)
		}
		if err != nil {
			return in, dropped, err
		}
	}

	cw.Flush()
	return in, dropped, cw.Error()
}

// writeRecord writes fields, quoting a lone empty field explicitly: a bare
// blank line would be skipped when the artifact is read back.
func writeRecord(cw *csv.Writer, w io.Writer, fields []string) error {
	if len(fields) > 1 || (len(fields) == 1 && fields[0] != "") {
		return cw.Write(fields)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\"\"\n")
	return err
}

// writeRaw copies a malformed record's original text into the output.
func writeRaw(cw *csv.Writer, w io.Writer, raw []byte) error {
	cw.Flush()
	if err := cw.Error(); err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\n")
	return err
}
