package artifacts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps artifact bytes and metadata as two keys sharing one TTL.
type RedisStore struct {
	client  redis.UniversalClient
	prefix  string
	ttl     time.Duration
	maxSize int64
	logger  *slog.Logger

	now      func() time.Time
	newToken func() (Token, error)
}

// NewRedisStore returns a store on client. Keys are namespaced by prefix.
func NewRedisStore(client redis.UniversalClient, prefix string, ttl time.Duration, maxSize int64, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client:   client,
		prefix:   prefix,
		ttl:      ttl,
		maxSize:  maxSize,
		logger:   logger.With(slog.String("component", "artifact_store"), slog.String("backend", "redis")),
		now:      time.Now,
		newToken: NewToken,
	}
}

func (s *RedisStore) dataKey(t Token) string { return s.prefix + "artifact:" + string(t) + ":data" }
func (s *RedisStore) metaKey(t Token) string { return s.prefix + "artifact:" + string(t) + ":meta" }

func (s *RedisStore) Put(ctx context.Context, r io.Reader, meta Meta) (Info, error) {
	src := r
	if s.maxSize > 0 {
		src = io.LimitReader(r, s.maxSize+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return Info{}, fmt.Errorf("failed to read artifact: %w", err)
	}
	if s.maxSize > 0 && int64(len(data)) > s.maxSize {
		return Info{}, ErrArtifactTooLarge
	}

	token, err := s.newToken()
	if err != nil {
		return Info{}, err
	}
	h := newHasher()
	h.Write(data)
	now := s.now()
	info := Info{
		Token:     token,
		Meta:      meta,
		Size:      int64(len(data)),
		Checksum:  sum(h),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	encoded, err := json.Marshal(info)
	if err != nil {
		return Info{}, fmt.Errorf("failed to encode artifact metadata: %w", err)
	}

	// Data first: a reader only finds an artifact through its metadata.
	if err := s.client.Set(ctx, s.dataKey(token), data, s.ttl).Err(); err != nil {
		return Info{}, fmt.Errorf("failed to store artifact: %w", err)
	}
	if err := s.client.Set(ctx, s.metaKey(token), encoded, s.ttl).Err(); err != nil {
		s.client.Del(ctx, s.dataKey(token))
		return Info{}, fmt.Errorf("failed to store artifact metadata: %w", err)
	}

	s.logger.InfoContext(ctx, "artifact stored",
		slog.String("kind", string(meta.Kind)),
		slog.Int64("size", info.Size))
	return info, nil
}

func (s *RedisStore) Get(ctx context.Context, token Token) (io.ReadCloser, Info, error) {
	info, err := s.Stat(ctx, token)
	if err != nil {
		return nil, Info{}, err
	}
	data, err := s.client.Get(ctx, s.dataKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, Info{}, ErrArtifactNotFound
	}
	if err != nil {
		return nil, Info{}, fmt.Errorf("failed to load artifact: %w", err)
	}
	if err := s.Touch(ctx, token); err != nil {
		return nil, Info{}, err
	}
	info.ExpiresAt = s.now().Add(s.ttl)
	return newVerifyingReader(io.NopCloser(bytes.NewReader(data)), info.Checksum), info, nil
}

func (s *RedisStore) Stat(ctx context.Context, token Token) (Info, error) {
	raw, err := s.client.Get(ctx, s.metaKey(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Info{}, ErrArtifactNotFound
	}
	if err != nil {
		return Info{}, fmt.Errorf("failed to load artifact metadata: %w", err)
	}
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return Info{}, fmt.Errorf("%w: bad metadata", ErrArtifactCorrupted)
	}
	// Touch only extends the key TTLs, so the remaining TTL is the expiry.
	remaining, err := s.client.PTTL(ctx, s.metaKey(token)).Result()
	if err != nil {
		return Info{}, fmt.Errorf("failed to load artifact ttl: %w", err)
	}
	if remaining > 0 {
		info.ExpiresAt = s.now().Add(remaining)
	}
	return info, nil
}

func (s *RedisStore) Touch(ctx context.Context, token Token) error {
	ok, err := s.client.Expire(ctx, s.metaKey(token), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to extend artifact ttl: %w", err)
	}
	if !ok {
		return ErrArtifactNotFound
	}
	if err := s.client.Expire(ctx, s.dataKey(token), s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to extend artifact ttl: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, token Token) error {
	n, err := s.client.Del(ctx, s.metaKey(token), s.dataKey(token)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete artifact: %w", err)
	}
	if n == 0 {
		return ErrArtifactNotFound
	}
	return nil
}

// Ping reports backend reachability for readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
