package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/zarrbench/zarrbench/pkg/logging"
	"github.com/zarrbench/zarrbench/pkg/models"
	"github.com/zarrbench/zarrbench/pkg/store"
	"github.com/zarrbench/zarrbench/pkg/worker"
)

func testLogger() *logging.Logger {
	log := logging.New(logging.ERROR, false)
	log.SetOutput(io.Discard)
	return log
}

// newTestServer wires a real store and pool behind the handler. The exec
// function completes instantly so lifecycle assertions stay fast.
func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryStore, *worker.Pool) {
	t.Helper()

	s := store.NewMemoryStore()
	exec := func(ctx context.Context, spec models.BenchmarkSpec) (*models.Result, error) {
		return &models.Result{
			Dataset:     spec.Name,
			Recommended: models.RecommendedConfig{Codec: "zstd"},
		}, nil
	}
	pool := worker.New(s, exec, worker.Config{Concurrency: 2, JobTimeout: time.Second, QueueSize: 16}, testLogger())
	pool.Start()
	t.Cleanup(func() { pool.Stop(context.Background()) })

	router := mux.NewRouter()
	NewHandler(s, pool, testLogger()).RegisterRoutes(router)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, s, pool
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
}

func TestSubmit_Created(t *testing.T) {
	server, s, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/benchmark", models.BenchmarkSpec{
		DatasetType: models.DatasetSynthetic,
		Shape:       []int{64, 64, 64},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var created SubmitResponse
	decode(t, resp, &created)
	if created.JobID == "" {
		t.Fatal("Expected a job id")
	}
	if created.Status != models.JobStatusPending {
		t.Errorf("Expected initial status pending, got %s", created.Status)
	}
	if created.StatusURL != "/status/"+created.JobID {
		t.Errorf("Unexpected status URL %s", created.StatusURL)
	}

	// The id is immediately pollable.
	if _, err := s.Get(created.JobID); err != nil {
		t.Errorf("Expected job retrievable right after submission: %v", err)
	}
}

func TestSubmit_ValidationRejectsBeforeCreation(t *testing.T) {
	server, s, _ := newTestServer(t)

	tests := []struct {
		name string
		spec models.BenchmarkSpec
	}{
		{"empty shape", models.BenchmarkSpec{DatasetType: models.DatasetSynthetic}},
		{"unknown type", models.BenchmarkSpec{DatasetType: "hologram", Shape: []int{64}}},
		{"unknown profile", models.BenchmarkSpec{
			DatasetType: models.DatasetSynthetic, Shape: []int{64}, CompressionProfile: "maximum",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postJSON(t, server.URL+"/benchmark", tt.spec)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("Expected 400, got %d", resp.StatusCode)
			}
			var errResp ErrorResponse
			decode(t, resp, &errResp)
			if errResp.Kind != models.ErrKindInvalidSpec {
				t.Errorf("Expected kind invalid_spec, got %s", errResp.Kind)
			}
			if errResp.Error == "" {
				t.Error("Expected a human-readable reason")
			}
		})
	}

	if got := len(s.List("")); got != 0 {
		t.Errorf("Expected no job records after rejected submissions, got %d", got)
	}
}

func TestSubmit_MalformedJSON(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Post(server.URL+"/benchmark", "application/json", bytes.NewReader([]byte("{not json")))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestStatus_NotFound(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/status/no-such-job")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", resp.StatusCode)
	}
	var errResp ErrorResponse
	decode(t, resp, &errResp)
	if errResp.Kind != models.ErrKindNotFound {
		t.Errorf("Expected kind not_found, got %s", errResp.Kind)
	}
}

func TestStatus_IdempotentForTerminalJob(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/benchmark", models.BenchmarkSpec{
		DatasetType: models.DatasetSynthetic,
		Shape:       []int{64, 64, 64},
	})
	var created SubmitResponse
	decode(t, resp, &created)

	// Wait for the terminal state.
	var terminalBody []byte
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r, err := http.Get(server.URL + created.StatusURL)
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()

		var job models.Job
		if err := json.Unmarshal(body, &job); err != nil {
			t.Fatalf("Unmarshal failed: %v", err)
		}
		if models.IsTerminalState(job.Status) {
			terminalBody = body
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if terminalBody == nil {
		t.Fatal("Job never reached a terminal state")
	}

	// Every subsequent poll must return the identical payload.
	for i := 0; i < 3; i++ {
		r, err := http.Get(server.URL + created.StatusURL)
		if err != nil {
			t.Fatalf("GET failed: %v", err)
		}
		body, _ := io.ReadAll(r.Body)
		r.Body.Close()
		if !bytes.Equal(body, terminalBody) {
			t.Fatalf("Poll %d returned a different payload for a terminal job", i)
		}
	}
}

func TestListJobs_Filter(t *testing.T) {
	server, s, _ := newTestServer(t)

	// Created directly so the pool never moves them out of pending.
	s.Create(models.BenchmarkSpec{DatasetType: models.DatasetSynthetic, Shape: []int{32}})
	s.Create(models.BenchmarkSpec{DatasetType: models.DatasetSynthetic, Shape: []int{32}})

	resp, err := http.Get(server.URL + "/jobs?status=pending")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	var result struct {
		Jobs  []*models.Job `json:"jobs"`
		Count int           `json:"count"`
	}
	decode(t, resp, &result)
	if result.Count != 2 || len(result.Jobs) != 2 {
		t.Errorf("Expected 2 pending jobs, got count=%d len=%d", result.Count, len(result.Jobs))
	}

	resp, err = http.Get(server.URL + "/jobs?status=failed")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	decode(t, resp, &result)
	if len(result.Jobs) != 0 {
		t.Errorf("Expected no failed jobs, got %d", len(result.Jobs))
	}
}

func TestHealth(t *testing.T) {
	server, s, _ := newTestServer(t)

	job, _ := s.Create(models.BenchmarkSpec{DatasetType: models.DatasetSynthetic, Shape: []int{32}})
	s.MarkRunning(job.ID)

	resp, err := http.Get(server.URL + "/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var health HealthResponse
	decode(t, resp, &health)
	if health.Status != "healthy" {
		t.Errorf("Expected healthy, got %s", health.Status)
	}
	if health.Jobs[models.JobStatusRunning] != 1 {
		t.Errorf("Expected 1 running job, got %d", health.Jobs[models.JobStatusRunning])
	}
	// All four statuses are always present, even at zero.
	for _, status := range []models.JobStatus{
		models.JobStatusPending, models.JobStatusRunning,
		models.JobStatusCompleted, models.JobStatusFailed,
	} {
		if _, ok := health.Jobs[status]; !ok {
			t.Errorf("Expected %s key in health counts", status)
		}
	}
}

func TestRoot_ServiceInfo(t *testing.T) {
	server, _, _ := newTestServer(t)

	resp, err := http.Get(server.URL + "/")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	var info map[string]interface{}
	decode(t, resp, &info)
	if info["version"] != Version {
		t.Errorf("Expected version %s, got %v", Version, info["version"])
	}
}
