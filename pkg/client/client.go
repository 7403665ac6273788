package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/zarrbench/zarrbench/pkg/api"
	"github.com/zarrbench/zarrbench/pkg/models"
)

var (
	ErrNotFound = errors.New("job not found")
	// ErrPollTimeout means the client gave up waiting; it says nothing about
	// the server-side job, which may still complete later.
	ErrPollTimeout = errors.New("polling timed out before job reached a terminal state")
)

// Client talks to a zarrbench orchestration server
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the given server URL
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Submit sends a benchmark specification and returns the created job id
func (c *Client) Submit(spec models.BenchmarkSpec) (*api.SubmitResponse, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal spec: %w", err)
	}

	resp, err := c.httpClient.Post(c.baseURL+"/benchmark", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return nil, apiError(resp)
	}

	var result api.SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &result, nil
}

// Status retrieves the current snapshot of a job
func (c *Client) Status(jobID string) (*models.Job, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/status/" + jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var job models.Job
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &job, nil
}

// ListJobs retrieves all jobs, optionally filtered by status
func (c *Client) ListJobs(status models.JobStatus) ([]*models.Job, error) {
	url := c.baseURL + "/jobs"
	if status != "" {
		url += "?status=" + string(status)
	}

	resp, err := c.httpClient.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var result struct {
		Jobs []*models.Job `json:"jobs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return result.Jobs, nil
}

// Health retrieves the server health summary
func (c *Client) Health() (*api.HealthResponse, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}

	var health api.HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &health, nil
}

// WaitForTerminal polls a job until it is completed or failed, at the given
// interval, up to the timeout. Transient status errors are retried; only
// NotFound aborts early. Returns ErrPollTimeout when the budget elapses.
func (c *Client) WaitForTerminal(ctx context.Context, jobID string, pollInterval, timeout time.Duration) (*models.Job, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		job, err := c.Status(jobID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, err
			}
			// Transient; keep polling until the deadline.
		} else if models.IsTerminalState(job.Status) {
			return job, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrPollTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func apiError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var errResp api.ErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("server error (status %d, kind %s): %s", resp.StatusCode, errResp.Kind, errResp.Error)
	}
	return fmt.Errorf("server error (status %d): %s", resp.StatusCode, string(body))
}
