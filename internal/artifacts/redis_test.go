package artifacts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = Token("9wE4QXQcLHnU8m6pNo8Lnp7ZuHksgYVq7BqC1ZrRhnMi")

func newTestRedisStore(t *testing.T) (*RedisStore, redismock.ClientMock, time.Time) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	s := NewRedisStore(db, "csvmail:", time.Hour, 1<<20, nil)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	s.newToken = func() (Token, error) { return testToken, nil }
	return s, mock, now
}

func TestRedisStore_Put(t *testing.T) {
	s, mock, now := newTestRedisStore(t)
	payload := []byte("email\na@x.com\n")

	h := newHasher()
	h.Write(payload)
	want := Info{
		Token:     testToken,
		Meta:      Meta{Kind: KindProcessed, ColumnIndex: 1},
		Size:      int64(len(payload)),
		Checksum:  sum(h),
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}
	encoded, err := json.Marshal(want)
	require.NoError(t, err)

	mock.ExpectSet(s.dataKey(testToken), payload, time.Hour).SetVal("OK")
	mock.ExpectSet(s.metaKey(testToken), encoded, time.Hour).SetVal("OK")

	info, err := s.Put(context.Background(), strings.NewReader(string(payload)), Meta{Kind: KindProcessed, ColumnIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, want, info)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_PutFailureCleansUp(t *testing.T) {
	s, mock, now := newTestRedisStore(t)

	h := newHasher()
	h.Write([]byte("x"))
	encoded, err := json.Marshal(Info{Token: testToken, Size: 1, Checksum: sum(h), CreatedAt: now, ExpiresAt: now.Add(time.Hour)})
	require.NoError(t, err)

	mock.ExpectSet(s.dataKey(testToken), []byte("x"), time.Hour).SetVal("OK")
	mock.ExpectSet(s.metaKey(testToken), encoded, time.Hour).SetErr(errors.New("connection reset"))
	mock.ExpectDel(s.dataKey(testToken)).SetVal(1)

	_, err = s.Put(context.Background(), strings.NewReader("x"), Meta{})
	assert.ErrorContains(t, err, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_Get(t *testing.T) {
	s, mock, now := newTestRedisStore(t)
	payload := "email\na@x.com\n"

	h := newHasher()
	h.Write([]byte(payload))
	stored := Info{Token: testToken, Size: int64(len(payload)), Checksum: sum(h), CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	encoded, err := json.Marshal(stored)
	require.NoError(t, err)

	mock.ExpectGet(s.metaKey(testToken)).SetVal(string(encoded))
	mock.ExpectPTTL(s.metaKey(testToken)).SetVal(time.Hour)
	mock.ExpectGet(s.dataKey(testToken)).SetVal(payload)
	mock.ExpectExpire(s.metaKey(testToken), time.Hour).SetVal(true)
	mock.ExpectExpire(s.dataKey(testToken), time.Hour).SetVal(true)

	rc, info, err := s.Get(context.Background(), testToken)
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
	assert.Equal(t, stored.Checksum, info.Checksum)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_StatAfterTouch(t *testing.T) {
	s, mock, now := newTestRedisStore(t)

	stored := Info{Token: testToken, Size: 3, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	encoded, err := json.Marshal(stored)
	require.NoError(t, err)

	// Forty minutes later the artifact is touched and its TTL restarts.
	later := now.Add(40 * time.Minute)
	s.now = func() time.Time { return later }
	mock.ExpectExpire(s.metaKey(testToken), time.Hour).SetVal(true)
	mock.ExpectExpire(s.dataKey(testToken), time.Hour).SetVal(true)
	require.NoError(t, s.Touch(context.Background(), testToken))

	mock.ExpectGet(s.metaKey(testToken)).SetVal(string(encoded))
	mock.ExpectPTTL(s.metaKey(testToken)).SetVal(time.Hour)
	info, err := s.Stat(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, later.Add(time.Hour), info.ExpiresAt)
	assert.Equal(t, now, info.CreatedAt)

	mock.ExpectGet(s.metaKey(testToken)).SetVal(string(encoded))
	mock.ExpectPTTL(s.metaKey(testToken)).SetErr(errors.New("connection reset"))
	_, err = s.Stat(context.Background(), testToken)
	assert.ErrorContains(t, err, "connection reset")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_NotFound(t *testing.T) {
	s, mock, _ := newTestRedisStore(t)

	mock.ExpectGet(s.metaKey(testToken)).RedisNil()
	_, _, err := s.Get(context.Background(), testToken)
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	mock.ExpectExpire(s.metaKey(testToken), time.Hour).SetVal(false)
	assert.ErrorIs(t, s.Touch(context.Background(), testToken), ErrArtifactNotFound)

	mock.ExpectDel(s.metaKey(testToken), s.dataKey(testToken)).SetVal(0)
	assert.ErrorIs(t, s.Delete(context.Background(), testToken), ErrArtifactNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_TooLarge(t *testing.T) {
	s, mock, _ := newTestRedisStore(t)
	s.maxSize = 3

	_, err := s.Put(context.Background(), strings.NewReader("abcd"), Meta{})
	assert.ErrorIs(t, err, ErrArtifactTooLarge)
	assert.NoError(t, mock.ExpectationsWereMet())
}
