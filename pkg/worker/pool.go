package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/zarrbench/zarrbench/pkg/logging"
	"github.com/zarrbench/zarrbench/pkg/models"
	"github.com/zarrbench/zarrbench/pkg/store"
)

// ExecFunc is the Benchmark Executor call contract: synchronous, returns a
// metrics payload or an error. The context carries the per-job timeout.
type ExecFunc func(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error)

// Config holds worker pool settings, fixed at process startup
type Config struct {
	Concurrency int           // maximum benchmarks running at once
	JobTimeout  time.Duration // per-job execution budget
	QueueSize   int           // bounded backlog of pending job IDs
}

// DefaultConfig returns pool defaults suitable for a single host
func DefaultConfig() Config {
	return Config{
		Concurrency: 2,
		JobTimeout:  30 * time.Minute,
		QueueSize:   1024,
	}
}

var ErrQueueFull = errors.New("job queue is full")

// Pool bounds the number of concurrent benchmark executions and guarantees
// FIFO start order: a single dispatcher dequeues job IDs in submission order
// and marks each running before handing it to an execution slot. Jobs may
// still complete out of order; status polling is the only safe
// synchronization signal for callers.
type Pool struct {
	store  *store.MemoryStore
	exec   ExecFunc
	config Config
	log    *logging.Logger

	queue  chan string
	slots  chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	httpClient *http.Client // callback delivery
	onTerminal func(*models.Job)
}

// New creates a worker pool over the given store and executor
func New(s *store.MemoryStore, exec ExecFunc, config Config, log *logging.Logger) *Pool {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		store:      s,
		exec:       exec,
		config:     config,
		log:        log,
		queue:      make(chan string, config.QueueSize),
		slots:      make(chan struct{}, config.Concurrency),
		ctx:        ctx,
		cancel:     cancel,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetTerminalHook registers a callback invoked with each job's terminal
// snapshot. Must be set before Start.
func (p *Pool) SetTerminalHook(fn func(*models.Job)) {
	p.onTerminal = fn
}

// Start launches the dispatcher loop
func (p *Pool) Start() {
	p.wg.Add(1)
	go p.dispatch()
	p.log.Info("Worker pool started", map[string]interface{}{
		"concurrency": p.config.Concurrency,
		"job_timeout": p.config.JobTimeout.String(),
	})
}

// Stop cancels in-flight executions and waits for slots to drain, up to the
// context deadline. Queued pending jobs are dropped; server-side state is
// in-memory and transient by design.
func (p *Pool) Stop(ctx context.Context) error {
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.log.Info("Worker pool stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool drain: %w", ctx.Err())
	}
}

// Enqueue hands a created job to the pool. Called synchronously from the
// submission handler before it responds.
func (p *Pool) Enqueue(id string) error {
	select {
	case p.queue <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// QueueDepth returns the number of jobs waiting for a slot
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// dispatch pulls job IDs in FIFO order. Acquiring the slot before marking
// the job running keeps the pending → running sequence in submission order
// even when all slots are busy.
func (p *Pool) dispatch() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case id := <-p.queue:
			select {
			case <-p.ctx.Done():
				return
			case p.slots <- struct{}{}:
			}

			if err := p.store.MarkRunning(id); err != nil {
				// Evicted or already moved; release the slot and move on.
				p.log.Warn("Skipping job that could not start", map[string]interface{}{
					"job_id": id, "error": err.Error(),
				})
				<-p.slots
				continue
			}

			p.wg.Add(1)
			go p.runJob(id)
		}
	}
}

// runJob owns one job from running to terminal. Executor failures of any
// kind are fatal to this job only, never to the pool.
func (p *Pool) runJob(id string) {
	defer p.wg.Done()
	defer func() { <-p.slots }()

	job, err := p.store.Get(id)
	if err != nil {
		p.log.Error("Job vanished after dispatch", map[string]interface{}{"job_id": id})
		return
	}

	jobCtx, cancel := context.WithTimeout(p.ctx, p.config.JobTimeout)
	defer cancel()

	// Buffered so an abandoned invocation can still deliver and be collected.
	resultCh := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- outcome{err: fmt.Errorf("executor panic: %v", r)}
			}
		}()
		result, execErr := p.exec(jobCtx, job.Spec)
		resultCh <- outcome{result: result, err: execErr}
	}()

	var terminal *models.Job
	select {
	case out := <-resultCh:
		terminal = p.record(id, out.result, out.err)
	case <-jobCtx.Done():
		// The slot is reclaimed now; the invocation is cancelled best-effort
		// and abandoned if it does not honor the context.
		terminal = p.record(id, nil, jobCtx.Err())
		go p.drainLate(id, resultCh)
	}

	if terminal != nil {
		if p.onTerminal != nil {
			p.onTerminal(terminal)
		}
		if terminal.Spec.CallbackURL != "" {
			p.sendCallback(terminal)
		}
	}
}

// record converts an execution outcome into the job's terminal state and
// returns a snapshot of the terminal record.
func (p *Pool) record(id string, result *models.Result, execErr error) *models.Job {
	var storeErr error
	switch {
	case execErr == nil:
		storeErr = p.store.MarkCompleted(id, result)
		p.log.Info("Job completed", map[string]interface{}{"job_id": id})
	case errors.Is(execErr, context.DeadlineExceeded):
		storeErr = p.store.MarkFailed(id, models.NewJobError(models.ErrKindTimeout,
			fmt.Sprintf("execution exceeded %s", p.config.JobTimeout)))
		p.log.Warn("Job timed out", map[string]interface{}{"job_id": id})
	case errors.Is(execErr, context.Canceled):
		storeErr = p.store.MarkFailed(id, models.NewJobError(models.ErrKindExecution,
			"execution canceled during shutdown"))
		p.log.Warn("Job canceled", map[string]interface{}{"job_id": id})
	default:
		storeErr = p.store.MarkFailed(id, models.NewJobError(models.ErrKindExecution, execErr.Error()))
		p.log.Warn("Job failed", map[string]interface{}{"job_id": id, "error": execErr.Error()})
	}

	if storeErr != nil {
		p.log.Error("Failed to record job outcome", map[string]interface{}{
			"job_id": id, "error": storeErr.Error(),
		})
		return nil
	}

	job, err := p.store.Get(id)
	if err != nil {
		return nil
	}
	return job
}

// outcome carries one executor invocation's return values
type outcome struct {
	result *models.Result
	err    error
}

// drainLate collects the result of an abandoned invocation so its goroutine
// can exit, and logs that the outcome was discarded.
func (p *Pool) drainLate(id string, resultCh <-chan outcome) {
	out := <-resultCh
	if out.err == nil {
		p.log.Warn("Discarding late result for timed-out job", map[string]interface{}{"job_id": id})
	}
}

// sendCallback POSTs the terminal job snapshot to the submitter's callback
// URL. Delivery is best-effort; failures are logged and never affect the job.
func (p *Pool) sendCallback(job *models.Job) {
	body, err := json.Marshal(job)
	if err != nil {
		p.log.Error("Failed to marshal callback payload", map[string]interface{}{"job_id": job.ID})
		return
	}

	resp, err := p.httpClient.Post(job.Spec.CallbackURL, "application/json", bytes.NewReader(body))
	if err != nil {
		p.log.Warn("Callback delivery failed", map[string]interface{}{
			"job_id": job.ID, "error": err.Error(),
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		p.log.Warn("Callback rejected", map[string]interface{}{
			"job_id": job.ID, "status": resp.StatusCode,
		})
	}
}
