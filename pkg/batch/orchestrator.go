package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/zarrbench/zarrbench/pkg/client"
	"github.com/zarrbench/zarrbench/pkg/logging"
	"github.com/zarrbench/zarrbench/pkg/models"
)

// Config holds orchestrator settings. Concurrency bounds client-side polling
// only; it is independent of the server's worker pool bound.
type Config struct {
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration // per-job polling budget
}

// DefaultConfig returns polling defaults suitable for interactive batch runs
func DefaultConfig() Config {
	return Config{
		Concurrency:  4,
		PollInterval: 2 * time.Second,
		JobTimeout:   45 * time.Minute,
	}
}

// Outcome is one spec's final disposition. Exactly one of Job (with terminal
// server-side state) or Err is meaningful; a failed job has Job set with its
// Error populated, while Err covers client-local failures such as a rejected
// submission or a polling timeout.
type Outcome struct {
	Index   int
	Name    string
	JobID   string
	Job     *models.Job
	Err     error
	Elapsed time.Duration
}

// Succeeded reports whether the spec produced a completed job
func (o Outcome) Succeeded() bool {
	return o.Err == nil && o.Job != nil && o.Job.Status == models.JobStatusCompleted
}

// Orchestrator submits a set of independent benchmark specifications, tracks
// each to a terminal state, and assembles one ordered outcome list. It is
// built entirely on the HTTP API, never on store internals.
type Orchestrator struct {
	client *client.Client
	config Config
	log    *logging.Logger
}

// New creates a batch orchestrator over the given API client
func New(c *client.Client, config Config, log *logging.Logger) *Orchestrator {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 2 * time.Second
	}
	return &Orchestrator{client: c, config: config, log: log}
}

// Run submits all specs in order, polls each until terminal, and returns one
// outcome per spec in submission order. One spec's failure never aborts the
// others; the returned slice always has len(specs) entries.
func (o *Orchestrator) Run(ctx context.Context, specs []models.BenchmarkSpec) []Outcome {
	outcomes := make([]Outcome, len(specs))

	// Submission is sequential so server-side FIFO start order matches the
	// caller's spec order.
	for i, spec := range specs {
		outcomes[i] = Outcome{Index: i, Name: spec.Name}

		resp, err := o.client.Submit(spec)
		if err != nil {
			outcomes[i].Err = err
			o.log.Warn("Batch submission rejected", map[string]interface{}{
				"index": i, "name": spec.Name, "error": err.Error(),
			})
			continue
		}
		outcomes[i].JobID = resp.JobID
	}

	// Poll submitted jobs with bounded concurrency.
	sem := make(chan struct{}, o.config.Concurrency)
	var wg sync.WaitGroup

	for i := range outcomes {
		if outcomes[i].JobID == "" {
			continue
		}

		wg.Add(1)
		go func(out *Outcome) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			start := time.Now()
			job, err := o.client.WaitForTerminal(ctx, out.JobID, o.config.PollInterval, o.config.JobTimeout)
			out.Elapsed = time.Since(start)

			if err != nil {
				// A poll timeout is a client-local verdict; the server-side
				// job may still finish later.
				out.Err = err
				if errors.Is(err, client.ErrPollTimeout) {
					o.log.Warn("Gave up polling job", map[string]interface{}{
						"job_id": out.JobID, "name": out.Name,
					})
				}
				return
			}
			out.Job = job
		}(&outcomes[i])
	}
	wg.Wait()

	completed := 0
	for _, out := range outcomes {
		if out.Succeeded() {
			completed++
		}
	}
	o.log.Info("Batch finished", map[string]interface{}{
		"total":     len(outcomes),
		"completed": completed,
		"failed":    len(outcomes) - completed,
	})
	return outcomes
}
