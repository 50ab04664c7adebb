package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/adapter"
	"github.com/m-mizutani/loris/pkg/model"
	"github.com/m-mizutani/loris/pkg/repository"
	"github.com/m-mizutani/loris/pkg/utils/logging"
)

// TokenLimit is the embedding model's input budget. Chunks above it are
// truncated to exactly this many tokens, never rejected.
const TokenLimit = 8191

// Input is one ingestion request: exactly one of File or URL.
type Input struct {
	File []byte
	URL  string
}

// Output reports the parse task that now identifies the document. When
// Status is not Succeeded, nothing was persisted.
type Output struct {
	TaskID string
	Status model.TaskStatus
}

// Pipeline ingests a document: parse, filter, embed in one batch, and
// persist.
type Pipeline struct {
	repo      repository.Repository
	embedder  adapter.Embedder
	parser    adapter.Parser
	tokenizer Tokenizer
}

type Option func(*Pipeline)

// WithTokenizer replaces the token counter (used by tests).
func WithTokenizer(tokenizer Tokenizer) Option {
	return func(p *Pipeline) {
		p.tokenizer = tokenizer
	}
}

// New creates a new ingestion pipeline
func New(repo repository.Repository, embedder adapter.Embedder, parser adapter.Parser, opts ...Option) *Pipeline {
	p := &Pipeline{
		repo:      repo,
		embedder:  embedder,
		parser:    parser,
		tokenizer: NewTiktoken(),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Run executes the full ingestion flow and returns the parse task ID,
// which is the document ID for all subsequent retrieval.
func (p *Pipeline) Run(ctx context.Context, input *Input) (*Output, error) {
	if (len(input.File) == 0) == (input.URL == "") {
		return nil, goerr.Wrap(model.ErrInvalidRequest,
			"please provide either a URL or a file, but not both or neither")
	}

	task, err := p.parser.Parse(ctx, &adapter.ParseInput{File: input.File, URL: input.URL})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse document")
	}

	if task.Status != model.TaskStatusSucceeded {
		logging.From(ctx).Warn("parse task did not succeed",
			"task_id", task.TaskID, "status", task.Status)
		return &Output{TaskID: task.TaskID, Status: task.Status}, nil
	}

	chunks, err := p.filterChunks(task)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, goerr.Wrap(model.ErrInvalidRequest,
			"no valid chunks found - all chunks were empty after filtering",
			goerr.V("task_id", task.TaskID))
	}

	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Content
	}

	// One batched call instead of N round trips
	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embeddings", goerr.V("task_id", task.TaskID))
	}

	now := time.Now()
	doc := &model.Document{
		ID:        model.DocumentID(task.TaskID),
		CreatedAt: now,
	}
	if task.Output != nil {
		doc.SourceURL = task.Output.PDFURL
	}

	for i, chunk := range chunks {
		chunk.Embedding = vectors[i]
		chunk.DocumentID = doc.ID
		chunk.CreatedAt = now
	}

	if err := p.repo.PutDocument(ctx, doc); err != nil {
		return nil, goerr.Wrap(err, "failed to save document", goerr.V("document_id", doc.ID))
	}
	if err := p.repo.PutChunks(ctx, chunks); err != nil {
		return nil, goerr.Wrap(err, "failed to save chunks", goerr.V("document_id", doc.ID))
	}

	logging.From(ctx).Info("document ingested",
		"document_id", doc.ID, "chunks", len(chunks))

	return &Output{TaskID: task.TaskID, Status: task.Status}, nil
}

// filterChunks drops chunks whose embeddable text is empty and truncates
// oversized ones to the token limit.
func (p *Pipeline) filterChunks(task *model.Task) ([]*model.Chunk, error) {
	if task.Output == nil {
		return nil, nil
	}

	var chunks []*model.Chunk
	for _, parsed := range task.Output.Chunks {
		text := strings.TrimSpace(parsed.Embed)
		if text == "" {
			continue
		}

		count, err := p.tokenizer.Count(text)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to count tokens", goerr.V("chunk_id", parsed.ChunkID))
		}
		if count > TokenLimit {
			text, err = p.tokenizer.Truncate(text, TokenLimit)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to truncate chunk", goerr.V("chunk_id", parsed.ChunkID))
			}
		}

		chunks = append(chunks, &model.Chunk{
			ID:      model.ChunkID(parsed.ChunkID),
			Content: text,
		})
	}

	return chunks, nil
}
