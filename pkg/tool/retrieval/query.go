package retrieval

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/m-mizutani/loris/pkg/model"
	"github.com/m-mizutani/loris/pkg/repository"
	"github.com/m-mizutani/loris/pkg/utils/logging"
)

const (
	// DefaultThreshold filters out weak matches. Normalized text
	// embeddings rarely score below this unless unrelated.
	DefaultThreshold = 0.1

	// DefaultLimit caps the number of chunks handed back to the model.
	DefaultLimit = 3
)

type queryChunksInput struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id"`
}

// QueryChunks is the similarity-search tool: it embeds the query,
// searches the chunk store, and enriches each hit with segment-level
// detail from the parsing service.
type QueryChunks struct {
	repo      repository.Repository
	embedder  adapter.Embedder
	parser    adapter.Parser
	threshold float64
	limit     int
}

type Option func(*QueryChunks)

func WithThreshold(threshold float64) Option {
	return func(q *QueryChunks) {
		q.threshold = threshold
	}
}

func WithLimit(limit int) Option {
	return func(q *QueryChunks) {
		q.limit = limit
	}
}

// New creates a new query_chunks tool
func New(repo repository.Repository, embedder adapter.Embedder, parser adapter.Parser, opts ...Option) *QueryChunks {
	q := &QueryChunks{
		repo:      repo,
		embedder:  embedder,
		parser:    parser,
		threshold: DefaultThreshold,
		limit:     DefaultLimit,
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Spec returns the function-calling specification
func (q *QueryChunks) Spec() *adapter.ToolDefinition {
	return &adapter.ToolDefinition{
		Name:        "query_chunks",
		Description: "Search for chunks in the database based on the given RAG-based query and a document_id",
		Parameters: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "The query to search for in the database",
				},
				"document_id": {
					Type:        "string",
					Description: "The document_id of the document to search within",
				},
			},
			Required: []string{"query", "document_id"},
		},
	}
}

// Prompt returns no extra system prompt; the conversation loop's prompt
// already documents this tool.
func (q *QueryChunks) Prompt(ctx context.Context) string {
	return ""
}

// segmentPayload is the caller-visible shape of one segment.
type segmentPayload struct {
	SegmentID   string `json:"segment_id"`
	SegmentType string `json:"segment_type"`
	Markdown    string `json:"markdown,omitempty"`
	Image       string `json:"segment_images,omitempty"`
}

// chunkPayload is one search hit. The raw chunk ID is deliberately
// omitted; citations reference segments.
type chunkPayload struct {
	Similarity float64          `json:"similarity"`
	Segments   []segmentPayload `json:"segments,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Result is the tool's JSON result handed back to the model.
type Result struct {
	Results []chunkPayload `json:"results"`
}

// Execute runs the similarity search. Store failures degrade to an empty
// result set so a flaky datastore never kills the conversation turn.
func (q *QueryChunks) Execute(ctx context.Context, call model.ToolCall) (any, error) {
	var input queryChunksInput
	if err := json.Unmarshal(call.Arguments, &input); err != nil {
		return nil, goerr.Wrap(err, "failed to parse tool arguments")
	}
	if input.Query == "" || input.DocumentID == "" {
		return nil, goerr.New("query and document_id are required")
	}

	vectors, err := q.embedder.Embed(ctx, []string{input.Query})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed query")
	}
	if len(vectors) == 0 {
		logging.From(ctx).Warn("embedder returned no vectors, returning empty result",
			"document_id", input.DocumentID)
		return &Result{Results: []chunkPayload{}}, nil
	}

	matches, err := q.repo.Search(ctx, &repository.SearchInput{
		Embedding:  vectors[0],
		Threshold:  q.threshold,
		Limit:      q.limit,
		DocumentID: model.DocumentID(input.DocumentID),
	})
	if err != nil {
		logging.From(ctx).Warn("similarity search failed, returning empty result",
			"error", err, "document_id", input.DocumentID)
		return &Result{Results: []chunkPayload{}}, nil
	}

	// The store already orders by similarity; re-sort defensively
	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	result := &Result{Results: make([]chunkPayload, 0, len(matches))}
	for _, m := range matches {
		payload := chunkPayload{Similarity: m.Similarity}

		segments, err := q.chunkSegments(ctx, input.DocumentID, m.ChunkID)
		if err != nil {
			logging.From(ctx).Warn("failed to fetch chunk detail",
				"error", err, "chunk_id", m.ChunkID)
			payload.Error = "Chunk not found"
		} else {
			payload.Segments = segments
		}

		result.Results = append(result.Results, payload)
	}

	return result, nil
}

// chunkSegments re-fetches the chunk's segments from the parsing
// service. Segments are not cached locally: one round trip per result,
// always-fresh content.
func (q *QueryChunks) chunkSegments(ctx context.Context, documentID string, chunkID model.ChunkID) ([]segmentPayload, error) {
	task, err := q.parser.GetTask(ctx, documentID, adapter.WithChunks(), adapter.WithBase64URLs())
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get parse task", goerr.V("task_id", documentID))
	}
	if task.Output == nil {
		return nil, goerr.Wrap(model.ErrChunkNotFound, "task has no output", goerr.V("task_id", documentID))
	}

	for _, chunk := range task.Output.Chunks {
		if chunk.ChunkID != string(chunkID) {
			continue
		}

		segments := make([]segmentPayload, 0, len(chunk.Segments))
		for _, seg := range chunk.Segments {
			payload := segmentPayload{
				SegmentID:   seg.SegmentID,
				SegmentType: string(seg.SegmentType),
				Markdown:    seg.Markdown,
			}
			if seg.HasImage() {
				payload.Image = seg.Image
			}
			segments = append(segments, payload)
		}
		return segments, nil
	}

	return nil, goerr.Wrap(model.ErrChunkNotFound, "chunk not in task output",
		goerr.V("chunk_id", chunkID), goerr.V("task_id", documentID))
}
