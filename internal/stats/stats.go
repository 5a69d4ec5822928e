package stats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/zeebo/xxh3"

	"csvmail/internal/tabular"
)

// Stats is an immutable snapshot of the email column of one file.
type Stats struct {
	TotalRows            int    `json:"totalRows"`
	TotalEmails          int    `json:"totalEmails"`
	TotalEmptyEmails     int    `json:"totalEmptyEmails"`
	TotalDuplicateEmails int    `json:"totalDuplicateEmails"`
	TotalMalformedRows   int    `json:"totalMalformedRows"`
	ColumnName           string `json:"columnName"`
}

// DedupMode selects how seen addresses are remembered.
type DedupMode string

const (
	// DedupExact keeps every distinct lowercase address. Memory grows with
	// the number of distinct addresses.
	DedupExact DedupMode = "exact"
	// DedupHashed keeps a 64-bit xxh3 digest per distinct address. Memory is
	// fixed per entry; distinct addresses may collide with negligible
	// probability.
	DedupHashed DedupMode = "hashed"
)

// ParseDedupMode parses a configured mode, defaulting to exact.
func ParseDedupMode(s string) (DedupMode, error) {
	switch DedupMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DedupExact:
		return DedupExact, nil
	case DedupHashed:
		return DedupHashed, nil
	default:
		return "", fmt.Errorf("unknown dedup mode %q", s)
	}
}

// Normalize returns the dedup key of an address.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

type seenSet interface {
	// add reports whether key was new.
	add(key string) bool
	len() int
}

type exactSet map[string]struct{}

func (s exactSet) add(key string) bool {
	if _, ok := s[key]; ok {
		return false
	}
	s[key] = struct{}{}
	return true
}

func (s exactSet) len() int { return len(s) }

type hashedSet map[uint64]struct{}

func (s hashedSet) add(key string) bool {
	h := xxh3.HashString(key)
	if _, ok := s[h]; ok {
		return false
	}
	s[h] = struct{}{}
	return true
}

func (s hashedSet) len() int { return len(s) }

// Counter accumulates Stats one row at a time. It is not safe for
// concurrent use.
type Counter struct {
	col   tabular.Column
	seen  seenSet
	stats Stats
}

// NewCounter returns a counter over col.
func NewCounter(col tabular.Column, mode DedupMode) *Counter {
	var seen seenSet = exactSet{}
	if mode == DedupHashed {
		seen = hashedSet{}
	}
	return &Counter{col: col, seen: seen, stats: Stats{ColumnName: col.Name}}
}

// Observe counts row and returns its raw email value. Rows missing the
// column count as empty.
func (c *Counter) Observe(row tabular.Row) (value string, empty bool) {
	c.stats.TotalRows++
	if row.Malformed {
		c.stats.TotalMalformedRows++
	}

	value, err := tabular.Extract(row, c.col)
	if err != nil || tabular.IsEmpty(value) {
		c.stats.TotalEmptyEmails++
		return value, true
	}

	c.stats.TotalEmails++
	if !c.seen.add(Normalize(value)) {
		c.stats.TotalDuplicateEmails++
	}
	return value, false
}

// Distinct returns the number of distinct addresses seen.
func (c *Counter) Distinct() int { return c.seen.len() }

// Snapshot returns the counts so far.
func (c *Counter) Snapshot() Stats { return c.stats }

type options struct {
	mode DedupMode
}

// Option configures Compute.
type Option func(*options)

// WithDedupMode selects the seen-address set.
func WithDedupMode(mode DedupMode) Option {
	return func(o *options) { o.mode = mode }
}

// checkEvery bounds how many rows are read between context checks.
const checkEvery = 1024

// Compute resolves columnIndex against the header of src and counts every
// data row in a single pass. It never writes anything. On a file-level
// error no partial Stats are returned.
func Compute(ctx context.Context, src tabular.RowSource, columnIndex int, opts ...Option) (Stats, error) {
	o := options{mode: DedupExact}
	for _, opt := range opts {
		opt(&o)
	}

	header, err := src.Header()
	if err != nil {
		return Stats{}, err
	}
	col, err := tabular.Resolve(header, columnIndex)
	if err != nil {
		return Stats{}, err
	}

	counter := NewCounter(col, o.mode)
	for n := 0; ; n++ {
		if n%checkEvery == 0 {
			if err := ctx.Err(); err != nil {
				return Stats{}, err
			}
		}
		row, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Stats{}, err
		}
		counter.Observe(row)
	}
	return counter.Snapshot(), nil
}
