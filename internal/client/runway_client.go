package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/plaicube/video-pipeline/internal/config"
)

// VideoTransformer defines the interface for video-to-video generation.
type VideoTransformer interface {
	CreateVideoTask(ctx context.Context, req *VideoTaskRequest) (*VideoTaskResponse, error)
	GetTask(ctx context.Context, taskID string) (*VideoTaskStatus, error)
	PollTask(ctx context.Context, taskID string, interval time.Duration, progress func(int)) (*VideoTaskStatus, error)
	IsConfigured() bool
}

// RunwayClient implements VideoTransformer against the Runway REST API.
type RunwayClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

// VideoTaskRequest starts a video-to-video generation task.
type VideoTaskRequest struct {
	Model      string `json:"model"`
	VideoURI   string `json:"videoUri"`
	PromptText string `json:"promptText"`
	Ratio      string `json:"ratio,omitempty"`
}

// VideoTaskResponse acknowledges task creation.
type VideoTaskResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// VideoTaskStatus is the polled state of a generation task.
type VideoTaskStatus struct {
	ID       string   `json:"id"`
	Status   string   `json:"status"`
	Progress float64  `json:"progress"` // 0.0 - 1.0
	Output   []string `json:"output,omitempty"`
	Failure  string   `json:"failure,omitempty"`
}

// NewRunwayClient creates a new Runway API client.
func NewRunwayClient(cfg *config.RunwayConfig) *RunwayClient {
	return &RunwayClient{
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}
}

// Model returns the configured generation model.
func (c *RunwayClient) Model() string { return c.model }

// CreateVideoTask starts a video-to-video transformation.
func (c *RunwayClient) CreateVideoTask(ctx context.Context, req *VideoTaskRequest) (*VideoTaskResponse, error) {
	if req.Model == "" {
		req.Model = c.model
	}
	var result VideoTaskResponse
	if err := c.post(ctx, "/video_to_video", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetTask retrieves the state of a generation task.
func (c *RunwayClient) GetTask(ctx context.Context, taskID string) (*VideoTaskStatus, error) {
	endpoint := fmt.Sprintf("/tasks/%s", taskID)
	var result VideoTaskStatus
	if err := c.get(ctx, endpoint, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PollTask polls a task until it succeeds, fails, or ctx expires. Task
// progress (0.0-1.0) is forwarded to the callback as a percentage.
func (c *RunwayClient) PollTask(ctx context.Context, taskID string, interval time.Duration, progress func(int)) (*VideoTaskStatus, error) {
	attempt := 0
	for {
		attempt++
		result, err := c.GetTask(ctx, taskID)
		if err != nil {
			log.Printf("[Runway API] Poll #%d (task=%s) — error: %v", attempt, taskID, err)
			return nil, err
		}

		log.Printf("[Runway API] Poll #%d (task=%s) — status: %s", attempt, taskID, result.Status)
		if progress != nil && result.Progress > 0 {
			progress(int(result.Progress * 100))
		}

		switch result.Status {
		case "SUCCEEDED", "succeeded":
			return result, nil
		case "FAILED", "failed":
			return nil, fmt.Errorf("runway task failed: %s", result.Failure)
		}

		select {
		case <-ctx.Done():
			log.Printf("[Runway API] Poll (task=%s) — context cancelled", taskID)
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

// post sends a POST request with JSON body
func (c *RunwayClient) post(ctx context.Context, endpoint string, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// get sends a GET request and parses JSON response
func (c *RunwayClient) get(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, result)
}

// doRequest executes an HTTP request and parses the response
func (c *RunwayClient) doRequest(req *http.Request, result interface{}) error {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("X-Runway-Version", "2024-11-06")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("runway API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// IsConfigured returns true if the client has valid configuration
func (c *RunwayClient) IsConfigured() bool {
	return c != nil && c.apiKey != ""
}
