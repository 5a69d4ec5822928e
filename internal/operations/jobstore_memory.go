package operations

import (
	"fmt"
	"sync"
	"time"

	"csvmail/internal/artifacts"
)

// MemoryJobStore is an in-memory implementation of JobStore
type MemoryJobStore struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	latest map[artifacts.Token]string
}

// NewMemoryJobStore creates a new in-memory job store
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{
		jobs:   make(map[string]*Job),
		latest: make(map[artifacts.Token]string),
	}
}

// CreateJob creates a new job
func (s *MemoryJobStore) CreateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	jobCopy := *job
	s.jobs[job.ID] = &jobCopy
	s.latest[job.Filename] = job.ID
	return nil
}

// UpdateJob updates an existing job
func (s *MemoryJobStore) UpdateJob(job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; !exists {
		return fmt.Errorf("job %s: %w", job.ID, ErrJobNotFound)
	}

	jobCopy := *job
	s.jobs[job.ID] = &jobCopy
	return nil
}

// LatestJob returns the most recently created job for filename.
func (s *MemoryJobStore) LatestJob(filename artifacts.Token) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.latest[filename]
	if !ok {
		return nil, ErrJobNotFound
	}
	jobCopy := *s.jobs[id]
	return &jobCopy, nil
}

// CleanupOldJobs removes finished jobs completed before now minus olderThan
func (s *MemoryJobStore) CleanupOldJobs(olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	deleted := 0

	for id, job := range s.jobs {
		if !job.Status.IsTerminal() || job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			if s.latest[job.Filename] == id {
				delete(s.latest, job.Filename)
			}
			deleted++
		}
	}

	return deleted, nil
}

// GetStats returns job counts by status
func (s *MemoryJobStore) GetStats() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]int{
		"total_jobs": len(s.jobs),
		"pending":    0,
		"running":    0,
		"completed":  0,
		"failed":     0,
		"cancelled":  0,
	}

	for _, job := range s.jobs {
		stats[string(job.Status)]++
	}

	return stats
}
