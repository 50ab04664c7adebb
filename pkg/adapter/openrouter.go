package adapter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/model"
)

// ToolDefinition is an OpenAI function-calling tool specification.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// ResponseFormat constrains model output to a named JSON schema.
type ResponseFormat struct {
	Name   string
	Schema *jsonschema.Schema
}

// CompletionRequest is one chat completion call to the model.
type CompletionRequest struct {
	Model    string
	Messages []model.Message
	Tools    []ToolDefinition
	Format   *ResponseFormat
}

// ChatModel drives an OpenAI-compatible chat completion API.
type ChatModel interface {
	// Complete runs a non-streaming completion and returns the first
	// choice's message.
	Complete(ctx context.Context, req *CompletionRequest) (*model.Message, error)

	// Stream runs a streaming completion, invoking fn for each content
	// delta as it arrives.
	Stream(ctx context.Context, req *CompletionRequest, fn func(delta string) error) error
}

// OpenRouterClient implements ChatModel against the OpenRouter API (or
// any OpenAI-compatible endpoint).
type OpenRouterClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type OpenRouterOption func(*OpenRouterClient)

func WithOpenRouterBaseURL(baseURL string) OpenRouterOption {
	return func(c *OpenRouterClient) {
		c.baseURL = baseURL
	}
}

func WithOpenRouterHTTPClient(client *http.Client) OpenRouterOption {
	return func(c *OpenRouterClient) {
		c.httpClient = client
	}
}

// NewOpenRouter creates a new chat completion client
func NewOpenRouter(apiKey string, opts ...OpenRouterOption) *OpenRouterClient {
	c := &OpenRouterClient{
		httpClient: &http.Client{Timeout: 300 * time.Second},
		baseURL:    "https://openrouter.ai/api/v1",
		apiKey:     apiKey,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type wireTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string             `json:"name"`
		Description string             `json:"description,omitempty"`
		Parameters  *jsonschema.Schema `json:"parameters"`
	} `json:"function"`
}

type wireResponseFormat struct {
	Type       string `json:"type"`
	JSONSchema struct {
		Name   string             `json:"name"`
		Schema *jsonschema.Schema `json:"schema"`
	} `json:"json_schema"`
}

type completionRequestBody struct {
	Model          string              `json:"model"`
	Messages       []model.Message     `json:"messages"`
	Tools          []wireTool          `json:"tools,omitempty"`
	Stream         bool                `json:"stream,omitempty"`
	ResponseFormat *wireResponseFormat `json:"response_format,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message      model.Message `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *apiError `json:"error,omitempty"`
}

func (c *OpenRouterClient) buildBody(req *CompletionRequest, stream bool) ([]byte, error) {
	body := completionRequestBody{
		Model:    req.Model,
		Messages: req.Messages,
		Stream:   stream,
	}

	for _, t := range req.Tools {
		var wt wireTool
		wt.Type = "function"
		wt.Function.Name = t.Name
		wt.Function.Description = t.Description
		wt.Function.Parameters = t.Parameters
		body.Tools = append(body.Tools, wt)
	}

	if req.Format != nil {
		rf := &wireResponseFormat{Type: "json_schema"}
		rf.JSONSchema.Name = req.Format.Name
		rf.JSONSchema.Schema = req.Format.Schema
		body.ResponseFormat = rf
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal completion request")
	}
	return data, nil
}

func (c *OpenRouterClient) post(ctx context.Context, data []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(data))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create completion request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call completion API")
	}
	return resp, nil
}

// Complete runs a non-streaming chat completion.
func (c *OpenRouterClient) Complete(ctx context.Context, req *CompletionRequest) (*model.Message, error) {
	data, err := c.buildBody(req, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.post(ctx, data)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read completion response")
	}

	var out completionResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to decode completion response",
			goerr.V("status", resp.StatusCode))
	}

	if out.Error != nil {
		return nil, goerr.New("completion API error", goerr.V("message", out.Error.Message))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected status from completion API",
			goerr.V("status", resp.StatusCode))
	}
	if len(out.Choices) == 0 {
		return nil, goerr.New("completion API returned no choices")
	}

	msg := out.Choices[0].Message
	return &msg, nil
}

// Stream runs a streaming chat completion over server-sent events.
func (c *OpenRouterClient) Stream(ctx context.Context, req *CompletionRequest, fn func(delta string) error) error {
	data, err := c.buildBody(req, true)
	if err != nil {
		return err
	}

	resp, err := c.post(ctx, data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return goerr.New("unexpected status from completion API",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(payload)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return goerr.Wrap(err, "stream canceled")
		}

		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return goerr.Wrap(err, "failed to decode stream chunk")
		}
		if chunk.Error != nil {
			return goerr.New("completion API error", goerr.V("message", chunk.Error.Message))
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if err := fn(choice.Delta.Content); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return goerr.Wrap(err, "failed to read completion stream")
	}

	return nil
}
