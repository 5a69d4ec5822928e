package operations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryJobStore_LatestJob(t *testing.T) {
	s := NewMemoryJobStore()
	base := time.Now()

	require.NoError(t, s.CreateJob(&Job{ID: "1", Filename: "tok", CreatedAt: base}))
	require.NoError(t, s.CreateJob(&Job{ID: "2", Filename: "tok", CreatedAt: base.Add(time.Second)}))
	assert.Error(t, s.CreateJob(&Job{ID: "2", Filename: "tok"}))

	latest, err := s.LatestJob("tok")
	require.NoError(t, err)
	assert.Equal(t, "2", latest.ID)

	// Callers get copies.
	latest.Status = JobStatusFailed
	again, err := s.LatestJob("tok")
	require.NoError(t, err)
	assert.Empty(t, again.Status)

	_, err = s.LatestJob("other")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryJobStore_CleanupOldJobs(t *testing.T) {
	s := NewMemoryJobStore()
	old := time.Now().Add(-2 * time.Hour)
	recent := time.Now()

	require.NoError(t, s.CreateJob(&Job{ID: "old", Filename: "a", Status: JobStatusCompleted, CompletedAt: &old}))
	require.NoError(t, s.CreateJob(&Job{ID: "new", Filename: "b", Status: JobStatusFailed, CompletedAt: &recent}))
	require.NoError(t, s.CreateJob(&Job{ID: "run", Filename: "c", Status: JobStatusRunning}))

	n, err := s.CleanupOldJobs(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.LatestJob("a")
	assert.ErrorIs(t, err, ErrJobNotFound)
	_, err = s.LatestJob("b")
	assert.NoError(t, err)
	_, err = s.LatestJob("c")
	assert.NoError(t, err)
}

func TestMemoryJobStore_GetStats(t *testing.T) {
	s := NewMemoryJobStore()
	for i, status := range []JobStatus{JobStatusCompleted, JobStatusRunning, JobStatusCompleted} {
		require.NoError(t, s.CreateJob(&Job{ID: string(rune('a' + i)), Filename: "tok", Status: status}))
	}

	stats := s.GetStats()
	assert.Equal(t, 3, stats["total_jobs"])
	assert.Equal(t, 2, stats["completed"])
	assert.Equal(t, 1, stats["running"])
	assert.Equal(t, 0, stats["failed"])
}
