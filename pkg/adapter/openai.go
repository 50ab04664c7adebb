package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// Embedder generates embedding vectors for a batch of texts. One call
// embeds all inputs in a single request to keep round trips down.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIClient implements Embedder using the OpenAI embeddings API.
type OpenAIClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
}

type OpenAIOption func(*OpenAIClient)

func WithOpenAIBaseURL(baseURL string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.baseURL = baseURL
	}
}

func WithEmbeddingModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		c.model = model
	}
}

func WithOpenAIHTTPClient(client *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		c.httpClient = client
	}
}

// NewOpenAI creates a new OpenAI embeddings client. Construction is
// cheap; a fresh client per request is fine when keys arrive per
// request.
func NewOpenAI(apiKey string, opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		baseURL:    "https://api.openai.com/v1",
		apiKey:     apiKey,
		model:      "text-embedding-3-small",
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// Embed returns one embedding vector per input text, in input order.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, goerr.New("no texts to embed")
	}

	body, err := json.Marshal(embeddingRequest{
		Model: c.model,
		Input: texts,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal embedding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to call embeddings API")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read embeddings response")
	}

	var out embeddingResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, goerr.Wrap(err, "failed to decode embeddings response",
			goerr.V("status", resp.StatusCode))
	}

	if out.Error != nil {
		return nil, goerr.New("embeddings API error",
			goerr.V("message", out.Error.Message), goerr.V("type", out.Error.Type))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("unexpected status from embeddings API",
			goerr.V("status", resp.StatusCode))
	}
	if len(out.Data) != len(texts) {
		return nil, goerr.New("embedding count mismatch",
			goerr.V("want", len(texts)), goerr.V("got", len(out.Data)))
	}

	// The API documents input order, but index is authoritative
	sort.Slice(out.Data, func(i, j int) bool {
		return out.Data[i].Index < out.Data[j].Index
	})

	vectors := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		vectors[i] = d.Embedding
	}

	return vectors, nil
}
