package models

import (
	"time"
)

// JobStatus represents the lifecycle state of a benchmark job
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job represents one requested benchmark evaluation and its tracked lifecycle.
// A record is created at submission and mutated only through the store's
// transition operations; exactly one of Results/Error is set once terminal.
type Job struct {
	ID          string        `json:"job_id"`
	Spec        BenchmarkSpec `json:"spec"`
	Status      JobStatus     `json:"status"`
	SubmittedAt time.Time     `json:"submitted_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Results     *Result       `json:"results,omitempty"`
	Error       *JobError     `json:"error,omitempty"`
}

// ErrorKind classifies a failure for retry decisions and diagnostics
type ErrorKind string

const (
	ErrKindInvalidSpec       ErrorKind = "invalid_spec"
	ErrKindNotFound          ErrorKind = "not_found"
	ErrKindInvalidTransition ErrorKind = "invalid_transition"
	ErrKindExecution         ErrorKind = "execution_error"
	ErrKindTimeout           ErrorKind = "timeout"
	// ErrKindPollTimeout is client-side only: the batch orchestrator gave up
	// polling. It never appears on a server-side job record.
	ErrKindPollTimeout ErrorKind = "poll_timeout"
)

// JobError is a structured failure description attached to failed jobs
type JobError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *JobError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// NewJobError creates a structured job error
func NewJobError(kind ErrorKind, message string) *JobError {
	return &JobError{Kind: kind, Message: message}
}

// Clone returns a deep copy of the job so callers can hand out snapshots
// without exposing store-internal pointers.
func (j *Job) Clone() *Job {
	c := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		c.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	if j.Results != nil {
		c.Results = j.Results.Clone()
	}
	if j.Error != nil {
		e := *j.Error
		c.Error = &e
	}
	c.Spec = j.Spec.Clone()
	return &c
}
