package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zarrbench/zarrbench/pkg/logging"
	"github.com/zarrbench/zarrbench/pkg/models"
	"github.com/zarrbench/zarrbench/pkg/store"
)

func testLogger() *logging.Logger {
	log := logging.New(logging.ERROR, false)
	log.SetOutput(io.Discard)
	return log
}

func testSpec() models.BenchmarkSpec {
	return models.BenchmarkSpec{
		DatasetType: models.DatasetSynthetic,
		Shape:       []int{64, 64, 64},
	}
}

func testResult() *models.Result {
	return &models.Result{
		Dataset:     "test",
		Recommended: models.RecommendedConfig{Codec: "zstd"},
	}
}

// waitTerminal polls the store until the job is terminal or the deadline hits
func waitTerminal(t *testing.T, s *store.MemoryStore, id string, timeout time.Duration) *models.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, err := s.Get(id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if models.IsTerminalState(job.Status) {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Job %s did not reach a terminal state within %s", id, timeout)
	return nil
}

func submit(t *testing.T, s *store.MemoryStore, p *Pool) string {
	t.Helper()
	job, err := s.Create(testSpec())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := p.Enqueue(job.ID); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	return job.ID
}

func TestPool_CompletesJob(t *testing.T) {
	s := store.NewMemoryStore()
	exec := func(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error) {
		return testResult(), nil
	}
	p := New(s, exec, Config{Concurrency: 2, JobTimeout: time.Second, QueueSize: 16}, testLogger())
	p.Start()
	defer p.Stop(context.Background())

	id := submit(t, s, p)
	job := waitTerminal(t, s, id, time.Second)

	if job.Status != models.JobStatusCompleted {
		t.Errorf("Expected completed, got %s (error: %+v)", job.Status, job.Error)
	}
	if job.Results == nil {
		t.Error("Expected results attached")
	}
}

func TestPool_ConcurrencyBound(t *testing.T) {
	s := store.NewMemoryStore()

	var current, peak int64
	exec := func(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error) {
		n := atomic.AddInt64(&current, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if n <= old || atomic.CompareAndSwapInt64(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&current, -1)
		return testResult(), nil
	}

	p := New(s, exec, Config{Concurrency: 2, JobTimeout: time.Second, QueueSize: 16}, testLogger())
	p.Start()
	defer p.Stop(context.Background())

	ids := make([]string, 6)
	for i := range ids {
		ids[i] = submit(t, s, p)
	}
	for _, id := range ids {
		waitTerminal(t, s, id, 2*time.Second)
	}

	if got := atomic.LoadInt64(&peak); got > 2 {
		t.Errorf("Expected at most 2 concurrent executions, observed %d", got)
	}
}

func TestPool_FIFOStartOrder(t *testing.T) {
	s := store.NewMemoryStore()

	var mu sync.Mutex
	var started []string
	block := make(chan struct{})

	// Starts are serialized by the single slot, so appending from exec
	// preserves dispatch order.
	exec := func(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error) {
		mu.Lock()
		started = append(started, spec.Name)
		mu.Unlock()
		<-block
		return testResult(), nil
	}
	p := New(s, exec, Config{Concurrency: 1, JobTimeout: time.Second, QueueSize: 16}, testLogger())
	p.Start()
	defer p.Stop(context.Background())

	var ids []string
	for i := 0; i < 4; i++ {
		spec := testSpec()
		spec.Name = fmt.Sprintf("job-%d", i)
		job, err := s.Create(spec)
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := p.Enqueue(job.ID); err != nil {
			t.Fatalf("Enqueue failed: %v", err)
		}
		ids = append(ids, job.ID)
	}
	close(block)
	for _, id := range ids {
		waitTerminal(t, s, id, 2*time.Second)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, name := range started {
		want := fmt.Sprintf("job-%d", i)
		if name != want {
			t.Fatalf("Expected start order %s at index %d, got %s", want, i, name)
		}
	}
}

func TestPool_TimeoutFailsJobAndFreesSlot(t *testing.T) {
	s := store.NewMemoryStore()

	release := make(chan struct{})
	exec := func(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error) {
		if spec.Name == "stuck" {
			// Ignores the context entirely, like a wedged native call.
			<-release
			return testResult(), nil
		}
		return testResult(), nil
	}

	p := New(s, exec, Config{Concurrency: 1, JobTimeout: 50 * time.Millisecond, QueueSize: 16}, testLogger())
	p.Start()
	defer func() {
		close(release)
		p.Stop(context.Background())
	}()

	stuckSpec := testSpec()
	stuckSpec.Name = "stuck"
	stuck, _ := s.Create(stuckSpec)
	p.Enqueue(stuck.ID)

	job := waitTerminal(t, s, stuck.ID, time.Second)
	if job.Status != models.JobStatusFailed {
		t.Fatalf("Expected failed, got %s", job.Status)
	}
	if job.Error == nil || job.Error.Kind != models.ErrKindTimeout {
		t.Errorf("Expected timeout error kind, got %+v", job.Error)
	}

	// The slot must be reusable immediately after the timeout.
	next := submit(t, s, p)
	nextJob := waitTerminal(t, s, next, time.Second)
	if nextJob.Status != models.JobStatusCompleted {
		t.Errorf("Expected follow-up job to complete, got %s", nextJob.Status)
	}
}

func TestPool_ExecutorErrorIsIsolated(t *testing.T) {
	s := store.NewMemoryStore()

	exec := func(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error) {
		if spec.Name == "bad" {
			return nil, errors.New("unsupported codec \"lz99\"")
		}
		return testResult(), nil
	}
	p := New(s, exec, Config{Concurrency: 2, JobTimeout: time.Second, QueueSize: 16}, testLogger())
	p.Start()
	defer p.Stop(context.Background())

	badSpec := testSpec()
	badSpec.Name = "bad"
	bad, _ := s.Create(badSpec)
	p.Enqueue(bad.ID)
	good := submit(t, s, p)

	badJob := waitTerminal(t, s, bad.ID, time.Second)
	goodJob := waitTerminal(t, s, good, time.Second)

	if badJob.Status != models.JobStatusFailed {
		t.Errorf("Expected bad job failed, got %s", badJob.Status)
	}
	if badJob.Error == nil || badJob.Error.Kind != models.ErrKindExecution {
		t.Errorf("Expected execution_error, got %+v", badJob.Error)
	}
	if goodJob.Status != models.JobStatusCompleted {
		t.Errorf("Expected good job unaffected, got %s", goodJob.Status)
	}
}

func TestPool_PanicIsolation(t *testing.T) {
	s := store.NewMemoryStore()

	exec := func(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error) {
		panic("executor blew up")
	}
	p := New(s, exec, Config{Concurrency: 1, JobTimeout: time.Second, QueueSize: 16}, testLogger())
	p.Start()
	defer p.Stop(context.Background())

	id := submit(t, s, p)
	job := waitTerminal(t, s, id, time.Second)

	if job.Status != models.JobStatusFailed {
		t.Fatalf("Expected failed after panic, got %s", job.Status)
	}
	if job.Error == nil || job.Error.Kind != models.ErrKindExecution {
		t.Errorf("Expected execution_error after panic, got %+v", job.Error)
	}
}

func TestPool_QueueFull(t *testing.T) {
	s := store.NewMemoryStore()
	block := make(chan struct{})
	exec := func(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error) {
		<-block
		return testResult(), nil
	}
	p := New(s, exec, Config{Concurrency: 1, JobTimeout: time.Second, QueueSize: 1}, testLogger())
	// Not started: nothing drains the queue.

	a, _ := s.Create(testSpec())
	if err := p.Enqueue(a.ID); err != nil {
		t.Fatalf("First enqueue should fit: %v", err)
	}
	b, _ := s.Create(testSpec())
	if err := p.Enqueue(b.ID); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	close(block)
}

func TestPool_TerminalHookAndCallback(t *testing.T) {
	s := store.NewMemoryStore()

	received := make(chan *models.Job, 1)
	callback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var job models.Job
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			t.Errorf("Callback body did not decode: %v", err)
		}
		received <- &job
		w.WriteHeader(http.StatusOK)
	}))
	defer callback.Close()

	exec := func(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error) {
		return testResult(), nil
	}
	p := New(s, exec, Config{Concurrency: 1, JobTimeout: time.Second, QueueSize: 16}, testLogger())

	var hooked atomic.Int64
	p.SetTerminalHook(func(job *models.Job) {
		if models.IsTerminalState(job.Status) {
			hooked.Add(1)
		}
	})
	p.Start()
	defer p.Stop(context.Background())

	spec := testSpec()
	spec.CallbackURL = callback.URL
	job, err := s.Create(spec)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	p.Enqueue(job.ID)

	select {
	case delivered := <-received:
		if delivered.ID != job.ID {
			t.Errorf("Expected callback for %s, got %s", job.ID, delivered.ID)
		}
		if delivered.Status != models.JobStatusCompleted {
			t.Errorf("Expected callback with terminal status, got %s", delivered.Status)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Callback was never delivered")
	}
	if hooked.Load() != 1 {
		t.Errorf("Expected terminal hook called once, got %d", hooked.Load())
	}
}

func TestPool_StopCancelsInFlight(t *testing.T) {
	s := store.NewMemoryStore()

	exec := func(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	p := New(s, exec, Config{Concurrency: 1, JobTimeout: time.Minute, QueueSize: 16}, testLogger())
	p.Start()

	id := submit(t, s, p)

	// Let the dispatcher move the job to running first.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		job, _ := s.Get(id)
		if job.Status == models.JobStatusRunning {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	job, _ := s.Get(id)
	if job.Status != models.JobStatusFailed {
		t.Errorf("Expected in-flight job failed on shutdown, got %s", job.Status)
	}
}
