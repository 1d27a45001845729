package runware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client wraps the HTTP client for the Runware task API. Every call posts
// an array of task objects and receives per-task data and error arrays.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new Runware HTTP client.
func NewClient(config Config) *Client {
	return &Client{
		apiKey:  config.APIKey,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}
}

// task is one request object in the Runware task array.
type task struct {
	TaskType        string           `json:"taskType"`
	TaskUUID        string           `json:"taskUUID"`
	PositivePrompt  string           `json:"positivePrompt,omitempty"`
	Model           string           `json:"model,omitempty"`
	Width           int              `json:"width,omitempty"`
	Height          int              `json:"height,omitempty"`
	NumberResults   int              `json:"numberResults,omitempty"`
	Duration        int              `json:"duration,omitempty"`
	OutputType      string           `json:"outputType,omitempty"`
	OutputFormat    string           `json:"outputFormat,omitempty"`
	IncludeCost     bool             `json:"includeCost,omitempty"`
	ReferenceImages []referenceImage `json:"referenceImages,omitempty"`
}

type referenceImage struct {
	UUID string `json:"uuid"`
}

// taskResult is one item of the response data array.
type taskResult struct {
	TaskUUID string   `json:"taskUUID"`
	ImageURL string   `json:"imageURL,omitempty"`
	VideoURL string   `json:"videoURL,omitempty"`
	Status   string   `json:"status,omitempty"`
	Cost     *float64 `json:"cost,omitempty"`
}

// taskError is one item of the response errors array.
type taskError struct {
	TaskUUID string `json:"taskUUID,omitempty"`
	Error    string `json:"error"`
}

type response struct {
	Data   []taskResult `json:"data"`
	Errors []taskError  `json:"errors"`
}

// Run posts tasks to the API and returns the parsed response. Errors in
// the response body are returned to the caller for per-task handling.
func (c *Client) Run(ctx context.Context, tasks []task) (*response, error) {
	if c.apiKey == "" {
		return nil, errors.New("API key is not configured")
	}

	reqBody, err := json.Marshal(tasks)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal tasks: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", httpResp.StatusCode, string(body))
	}

	var parsed response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &parsed, nil
}
