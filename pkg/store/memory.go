package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zarrbench/zarrbench/pkg/models"
)

var (
	ErrJobNotFound = errors.New("job not found")
)

// MemoryStore is the process-wide job registry. It is the single source of
// truth for status queries and owns all synchronization; the underlying map
// never escapes. Records are mutated only through the transition methods,
// and reads always return deep-copied snapshots.
type MemoryStore struct {
	mu    sync.RWMutex
	jobs  map[string]*models.Job
	order []string // job IDs in submission order
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]*models.Job),
	}
}

// Create validates the spec and, on success, registers a new pending job.
// Validation failure returns an invalid_spec error and creates no record.
func (s *MemoryStore) Create(spec models.BenchmarkSpec) (*models.Job, error) {
	spec.ApplyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	job := &models.Job{
		ID:          uuid.New().String(),
		Spec:        spec,
		Status:      models.JobStatusPending,
		SubmittedAt: time.Now().UTC(),
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.order = append(s.order, job.ID)
	s.mu.Unlock()

	return job.Clone(), nil
}

// MarkRunning transitions pending → running and sets started_at
func (s *MemoryStore) MarkRunning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if err := models.ValidateTransition(job.Status, models.JobStatusRunning); err != nil {
		return models.NewJobError(models.ErrKindInvalidTransition, err.Error())
	}

	now := time.Now().UTC()
	job.Status = models.JobStatusRunning
	job.StartedAt = &now
	return nil
}

// MarkCompleted transitions running → completed and attaches the result
func (s *MemoryStore) MarkCompleted(id string, result *models.Result) error {
	if result == nil {
		return fmt.Errorf("completed job %s requires a result", id)
	}
	return s.finish(id, models.JobStatusCompleted, result, nil)
}

// MarkFailed transitions running → failed and attaches the error
func (s *MemoryStore) MarkFailed(id string, jobErr *models.JobError) error {
	if jobErr == nil {
		return fmt.Errorf("failed job %s requires an error", id)
	}
	return s.finish(id, models.JobStatusFailed, nil, jobErr)
}

func (s *MemoryStore) finish(id string, status models.JobStatus, result *models.Result, jobErr *models.JobError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	if err := models.ValidateTransition(job.Status, status); err != nil {
		return models.NewJobError(models.ErrKindInvalidTransition, err.Error())
	}

	now := time.Now().UTC()
	job.Status = status
	job.CompletedAt = &now
	job.Results = result
	job.Error = jobErr
	return nil
}

// Get returns a point-in-time deep copy of the job record
func (s *MemoryStore) Get(id string) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns snapshots of all jobs in submission order, optionally
// filtered by status (empty string means all).
func (s *MemoryStore) List(status models.JobStatus) []*models.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]*models.Job, 0, len(s.order))
	for _, id := range s.order {
		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		if status != "" && job.Status != status {
			continue
		}
		jobs = append(jobs, job.Clone())
	}
	return jobs
}

// CountsByStatus returns the number of jobs in each lifecycle state
func (s *MemoryStore) CountsByStatus() map[models.JobStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := map[models.JobStatus]int{
		models.JobStatusPending:   0,
		models.JobStatusRunning:   0,
		models.JobStatusCompleted: 0,
		models.JobStatusFailed:    0,
	}
	for _, job := range s.jobs {
		counts[job.Status]++
	}
	return counts
}

// EvictTerminal deletes terminal records whose completion time is older than
// the retention window and returns the number evicted. Non-terminal records
// are never touched.
func (s *MemoryStore) EvictTerminal(retention time.Duration) int {
	cutoff := time.Now().UTC().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	kept := s.order[:0]
	for _, id := range s.order {
		job, ok := s.jobs[id]
		if !ok {
			continue
		}
		if models.IsTerminalState(job.Status) && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			evicted++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return evicted
}
