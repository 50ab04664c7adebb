package adapter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/model"
)

// ParseInput is one document submitted for parsing: exactly one of raw
// file bytes or a source URL.
type ParseInput struct {
	File []byte
	URL  string
}

// TaskOption adjusts how a task is fetched from the parsing service.
type TaskOption func(url.Values)

// WithChunks includes the full chunk payload in the task response.
func WithChunks() TaskOption {
	return func(v url.Values) {
		v.Set("include_chunks", "true")
	}
}

// WithBase64URLs returns segment images as base64 data URLs instead of
// presigned URLs.
func WithBase64URLs() TaskOption {
	return func(v url.Values) {
		v.Set("base64_urls", "true")
	}
}

// Parser is the document-intelligence service boundary: it performs
// layout-aware parsing and chunking and exposes results as tasks.
type Parser interface {
	// Parse submits a document and blocks until the task reaches a
	// terminal state.
	Parse(ctx context.Context, input *ParseInput) (*model.Task, error)

	// GetTask fetches the current state of a previously submitted task.
	GetTask(ctx context.Context, taskID string, opts ...TaskOption) (*model.Task, error)
}

// ChunkrClient implements Parser using the Chunkr API.
type ChunkrClient struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	pollInterval time.Duration
}

type ChunkrOption func(*ChunkrClient)

func WithChunkrBaseURL(baseURL string) ChunkrOption {
	return func(c *ChunkrClient) {
		c.baseURL = baseURL
	}
}

func WithChunkrHTTPClient(client *http.Client) ChunkrOption {
	return func(c *ChunkrClient) {
		c.httpClient = client
	}
}

func WithPollInterval(d time.Duration) ChunkrOption {
	return func(c *ChunkrClient) {
		c.pollInterval = d
	}
}

// NewChunkr creates a new Chunkr client
func NewChunkr(apiKey string, opts ...ChunkrOption) *ChunkrClient {
	c := &ChunkrClient{
		httpClient:   &http.Client{Timeout: 120 * time.Second},
		baseURL:      "https://api.chunkr.ai",
		apiKey:       apiKey,
		pollInterval: 2 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type createTaskRequest struct {
	File string `json:"file"`
	parseConfiguration
}

// Parse submits the document with the fixed processing configuration and
// polls until the task leaves the Starting/Processing states.
func (c *ChunkrClient) Parse(ctx context.Context, input *ParseInput) (*model.Task, error) {
	if (len(input.File) == 0) == (input.URL == "") {
		return nil, goerr.Wrap(model.ErrInvalidRequest, "exactly one of file or url must be given")
	}

	req := createTaskRequest{parseConfiguration: defaultParseConfiguration()}
	if input.URL != "" {
		req.File = input.URL
	} else {
		req.File = base64.StdEncoding.EncodeToString(input.File)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal parse request")
	}

	task, err := c.doTask(ctx, http.MethodPost, "/api/v1/task", body)
	if err != nil {
		return nil, err
	}

	return c.waitTask(ctx, task)
}

// waitTask polls the task until it reaches a terminal state.
func (c *ChunkrClient) waitTask(ctx context.Context, task *model.Task) (*model.Task, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for task.Status == model.TaskStatusStarting || task.Status == model.TaskStatusProcessing {
		select {
		case <-ctx.Done():
			return nil, goerr.Wrap(ctx.Err(), "canceled while waiting for parse task",
				goerr.V("task_id", task.TaskID))
		case <-ticker.C:
		}

		next, err := c.GetTask(ctx, task.TaskID, WithChunks())
		if err != nil {
			return nil, err
		}
		task = next
	}

	return task, nil
}

// GetTask fetches a task by ID.
func (c *ChunkrClient) GetTask(ctx context.Context, taskID string, opts ...TaskOption) (*model.Task, error) {
	query := url.Values{}
	for _, opt := range opts {
		opt(query)
	}

	path := "/api/v1/task/" + url.PathEscape(taskID)
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	return c.doTask(ctx, http.MethodGet, path, nil)
}

func (c *ChunkrClient) doTask(ctx context.Context, method, path string, body []byte) (*model.Task, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create parse request")
	}
	req.Header.Set("Authorization", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call parsing service")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read parsing service response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected status from parsing service",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(payload)))
	}

	var task model.Task
	if err := json.Unmarshal(payload, &task); err != nil {
		return nil, goerr.Wrap(err, "failed to decode parse task")
	}

	return &task, nil
}
