package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

const (
	dataSuffix = ".csv"
	metaSuffix = ".json"
	tempPrefix = ".upload-"
)

// FileStore keeps artifacts as files in one directory. The in-memory index
// owns expiry: when an entry expires or is deleted its files are removed.
type FileStore struct {
	dir     string
	ttl     time.Duration
	maxSize int64
	index   *cache.Cache
	logger  *slog.Logger

	now      func() time.Time
	newToken func() (Token, error)
}

// NewFileStore opens dir, creating it if needed, and re-indexes artifacts
// that survived a restart. Expired leftovers are removed.
func NewFileStore(dir string, ttl, cleanupInterval time.Duration, maxSize int64, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{
		dir:      dir,
		ttl:      ttl,
		maxSize:  maxSize,
		index:    cache.New(ttl, cleanupInterval),
		logger:   logger.With(slog.String("component", "artifact_store"), slog.String("backend", "file")),
		now:      time.Now,
		newToken: NewToken,
	}
	s.index.OnEvicted(s.evict)

	if err := s.reindex(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) dataPath(t Token) string { return filepath.Join(s.dir, string(t)+dataSuffix) }
func (s *FileStore) metaPath(t Token) string { return filepath.Join(s.dir, string(t)+metaSuffix) }

// Put writes to a temporary file and renames it into place, so readers never
// observe a partially written artifact.
func (s *FileStore) Put(ctx context.Context, r io.Reader, meta Meta) (Info, error) {
	token, err := s.newToken()
	if err != nil {
		return Info{}, err
	}

	tmp, err := os.CreateTemp(s.dir, tempPrefix+"*")
	if err != nil {
		return Info{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	h := newHasher()
	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	size, err := io.Copy(io.MultiWriter(tmp, h), &ctxReader{ctx: ctx, r: src})
	if err != nil {
		return Info{}, fmt.Errorf("failed to write artifact: %w", err)
	}
	if s.maxSize > 0 && size > s.maxSize {
		return Info{}, ErrArtifactTooLarge
	}
	if err := tmp.Sync(); err != nil {
		return Info{}, fmt.Errorf("failed to sync artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return Info{}, fmt.Errorf("failed to close artifact: %w", err)
	}

	now := s.now()
	info := Info{
		Token:     token,
		Meta:      meta,
		Size:      size,
		Checksum:  sum(h),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.writeMeta(info); err != nil {
		return Info{}, err
	}
	if err := os.Rename(tmpName, s.dataPath(token)); err != nil {
		os.Remove(s.metaPath(token))
		return Info{}, fmt.Errorf("failed to commit artifact: %w", err)
	}
	committed = true

	s.index.Set(string(token), info, s.ttl)
	s.logger.InfoContext(ctx, "artifact stored",
		slog.String("kind", string(meta.Kind)),
		slog.Int64("size", size))
	return info, nil
}

func (s *FileStore) Get(ctx context.Context, token Token) (io.ReadCloser, Info, error) {
	info, err := s.lookup(token)
	if err != nil {
		return nil, Info{}, err
	}
	f, err := os.Open(s.dataPath(token))
	if err != nil {
		if os.IsNotExist(err) {
			s.index.Delete(string(token))
			return nil, Info{}, ErrArtifactNotFound
		}
		return nil, Info{}, fmt.Errorf("failed to open artifact: %w", err)
	}
	info = s.touch(info)
	return newVerifyingReader(f, info.Checksum), info, nil
}

func (s *FileStore) Stat(_ context.Context, token Token) (Info, error) {
	return s.lookup(token)
}

func (s *FileStore) Touch(_ context.Context, token Token) error {
	info, err := s.lookup(token)
	if err != nil {
		return err
	}
	s.touch(info)
	return nil
}

func (s *FileStore) Delete(_ context.Context, token Token) error {
	if _, err := s.lookup(token); err != nil {
		return err
	}
	// Eviction callback removes the files.
	s.index.Delete(string(token))
	return nil
}

// Len returns the number of live artifacts.
func (s *FileStore) Len() int { return s.index.ItemCount() }

func (s *FileStore) lookup(token Token) (Info, error) {
	v, ok := s.index.Get(string(token))
	if !ok {
		return Info{}, ErrArtifactNotFound
	}
	return v.(Info), nil
}

// touch slides the expiry. The sidecar is rewritten so a restart keeps it.
func (s *FileStore) touch(info Info) Info {
	info.ExpiresAt = s.now().Add(s.ttl)
	s.index.Set(string(info.Token), info, s.ttl)
	if err := s.writeMeta(info); err != nil {
		s.logger.Warn("failed to persist artifact expiry", slog.String("error", err.Error()))
	}
	return info
}

func (s *FileStore) evict(key string, _ interface{}) {
	token := Token(key)
	for _, p := range []string{s.dataPath(token), s.metaPath(token)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove artifact file", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
	s.logger.Debug("artifact evicted")
}

func (s *FileStore) writeMeta(info Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode artifact metadata: %w", err)
	}
	tmp, err := os.CreateTemp(s.dir, tempPrefix+"meta-*")
	if err != nil {
		return fmt.Errorf("failed to write artifact metadata: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write artifact metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write artifact metadata: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.metaPath(info.Token)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to commit artifact metadata: %w", err)
	}
	return nil
}

func (s *FileStore) reindex() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to scan artifact directory: %w", err)
	}

	now := s.now()
	restored, expired := 0, 0
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, tempPrefix) {
			os.Remove(filepath.Join(s.dir, name))
			continue
		}
		if e.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}

		token, err := ParseToken(strings.TrimSuffix(name, metaSuffix))
		if err != nil {
			continue
		}
		data, err := os.ReadFile(s.metaPath(token))
		if err != nil {
			continue
		}
		var info Info
		if err := json.Unmarshal(data, &info); err != nil || info.Token != token {
			s.evict(string(token), nil)
			continue
		}
		if _, err := os.Stat(s.dataPath(token)); err != nil || !info.ExpiresAt.After(now) {
			s.evict(string(token), nil)
			expired++
			continue
		}
		s.index.Set(string(token), info, info.ExpiresAt.Sub(now))
		restored++
	}

	if restored > 0 || expired > 0 {
		s.logger.Info("artifact index restored",
			slog.Int("restored", restored),
			slog.Int("expired", expired))
	}
	return nil
}

// ctxReader stops a copy when ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
