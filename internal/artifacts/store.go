// Package artifacts stores tabular artifacts behind opaque tokens with a
// sliding time-to-live.
package artifacts

import (
	"context"
	"encoding/hex"
	"errors"
	"hash"
	"io"
	"time"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrArtifactNotFound is returned for unknown, expired or malformed tokens.
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrArtifactCorrupted is returned when stored bytes no longer match
	// their checksum.
	ErrArtifactCorrupted = errors.New("artifact corrupted")
	// ErrArtifactTooLarge is returned when a Put exceeds the size limit.
	ErrArtifactTooLarge = errors.New("artifact too large")
)

// Kind tells processed files apart from validation reports.
type Kind string

const (
	KindProcessed Kind = "processed"
	KindReport    Kind = "report"
)

// Meta is supplied by the producer of an artifact.
type Meta struct {
	Kind        Kind   `json:"kind"`
	SourceName  string `json:"sourceName,omitempty"`
	Parent      Token  `json:"parent,omitempty"`
	ColumnIndex int    `json:"columnIndex"`
}

// Info describes a stored artifact.
type Info struct {
	Token     Token     `json:"token"`
	Meta      Meta      `json:"meta"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store maps tokens to immutable artifacts. Artifacts are never modified in
// place; producers of derived data Put a new artifact.
type Store interface {
	// Put stores the bytes of r and returns the new artifact's Info.
	Put(ctx context.Context, r io.Reader, meta Meta) (Info, error)
	// Get opens the artifact for reading and extends its TTL. The reader
	// reports ErrArtifactCorrupted at end of stream on checksum mismatch.
	Get(ctx context.Context, token Token) (io.ReadCloser, Info, error)
	// Stat returns Info without touching.
	Stat(ctx context.Context, token Token) (Info, error)
	// Touch extends the TTL.
	Touch(ctx context.Context, token Token) error
	// Delete removes the artifact.
	Delete(ctx context.Context, token Token) error
}

func newHasher() hash.Hash {
	h, _ := blake2b.New256(nil)
	return h
}

func sum(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}

// verifyingReader hashes what it reads and checks the digest at EOF.
type verifyingReader struct {
	rc       io.ReadCloser
	h        hash.Hash
	expected string
}

func newVerifyingReader(rc io.ReadCloser, expected string) *verifyingReader {
	return &verifyingReader{rc: rc, h: newHasher(), expected: expected}
}

func (v *verifyingReader) Read(p []byte) (int, error) {
	n, err := v.rc.Read(p)
	if n > 0 {
		v.h.Write(p[:n])
	}
	if errors.Is(err, io.EOF) && v.expected != "" && sum(v.h) != v.expected {
		return n, ErrArtifactCorrupted
	}
	return n, err
}

func (v *verifyingReader) Close() error { return v.rc.Close() }
