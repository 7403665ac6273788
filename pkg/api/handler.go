package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/zarrbench/zarrbench/pkg/logging"
	"github.com/zarrbench/zarrbench/pkg/models"
	"github.com/zarrbench/zarrbench/pkg/store"
	"github.com/zarrbench/zarrbench/pkg/worker"
)

// Version is reported by the service-info endpoint
const Version = "1.0.0"

// Handler serves the benchmark submission and status API. Every operation is
// stateless with respect to the caller; submission is synchronous, execution
// is not.
type Handler struct {
	store     *store.MemoryStore
	pool      *worker.Pool
	log       *logging.Logger
	startTime time.Time
}

// NewHandler creates the API handler
func NewHandler(s *store.MemoryStore, p *worker.Pool, log *logging.Logger) *Handler {
	return &Handler{
		store:     s,
		pool:      p,
		log:       log,
		startTime: time.Now(),
	}
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/benchmark", h.Submit).Methods("POST")
	r.HandleFunc("/status/{job_id}", h.Status).Methods("GET")
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/health", h.Health).Methods("GET")
	r.HandleFunc("/", h.Root).Methods("GET")
}

// SubmitResponse is returned on successful job creation
type SubmitResponse struct {
	JobID     string           `json:"job_id"`
	Status    models.JobStatus `json:"status"`
	StatusURL string           `json:"status_url"`
}

// Submit validates a benchmark specification, creates a pending job, and
// hands it to the worker pool before responding. The returned id is
// immediately pollable.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var spec models.BenchmarkSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrKindInvalidSpec, "invalid JSON in request body")
		return
	}

	job, err := h.store.Create(spec)
	if err != nil {
		var jobErr *models.JobError
		if errors.As(err, &jobErr) {
			writeError(w, http.StatusBadRequest, jobErr.Kind, jobErr.Message)
			return
		}
		h.log.Error("Failed to create job", map[string]interface{}{"error": err.Error()})
		writeError(w, http.StatusInternalServerError, models.ErrKindExecution, "failed to create job")
		return
	}

	if err := h.pool.Enqueue(job.ID); err != nil {
		// The record exists but will never start; fail it so pollers see a
		// terminal state instead of an eternal pending.
		h.store.MarkRunning(job.ID)
		h.store.MarkFailed(job.ID, models.NewJobError(models.ErrKindExecution, "job queue is full"))
		writeError(w, http.StatusServiceUnavailable, models.ErrKindExecution, "job queue is full")
		return
	}

	h.log.Info("Job submitted", map[string]interface{}{
		"job_id":  job.ID,
		"dataset": job.Spec.Name,
		"type":    string(job.Spec.DatasetType),
	})

	writeJSON(w, http.StatusCreated, SubmitResponse{
		JobID:     job.ID,
		Status:    models.JobStatusPending,
		StatusURL: "/status/" + job.ID,
	})
}

// Status returns a point-in-time snapshot of a job. Safe to call arbitrarily
// often and concurrently with execution.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	jobID := vars["job_id"]

	job, err := h.store.Get(jobID)
	if err != nil {
		if errors.Is(err, store.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, models.ErrKindNotFound, "job not found")
			return
		}
		h.log.Error("Failed to get job", map[string]interface{}{"job_id": jobID, "error": err.Error()})
		writeError(w, http.StatusInternalServerError, models.ErrKindExecution, "failed to get job")
		return
	}

	writeJSON(w, http.StatusOK, job)
}

// ListJobs returns all jobs in submission order, optionally filtered by
// ?status=pending|running|completed|failed
func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) {
	status := models.JobStatus(r.URL.Query().Get("status"))
	jobs := h.store.List(status)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// HealthResponse reports liveness and aggregate job counts
type HealthResponse struct {
	Status        string                   `json:"status"`
	Jobs          map[models.JobStatus]int `json:"jobs"`
	QueueDepth    int                      `json:"queue_depth"`
	UptimeSeconds int64                    `json:"uptime_seconds"`
}

// Health returns aggregate job counts and a liveness flag
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "healthy",
		Jobs:          h.store.CountsByStatus(),
		QueueDepth:    h.pool.QueueDepth(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	})
}

// Root returns service info and the endpoint map
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "zarrbench orchestration server",
		"version": Version,
		"endpoints": map[string]string{
			"benchmark": "/benchmark (POST)",
			"status":    "/status/{job_id} (GET)",
			"jobs":      "/jobs (GET)",
			"health":    "/health (GET)",
		},
	})
}

// ErrorResponse is the machine-readable error body for 4xx/5xx responses
type ErrorResponse struct {
	Error string           `json:"error"`
	Kind  models.ErrorKind `json:"kind"`
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, kind models.ErrorKind, message string) {
	writeJSON(w, code, ErrorResponse{Error: message, Kind: kind})
}
