package repository

import (
	"context"

	"github.com/m-mizutani/loris/pkg/model"
)

// SearchInput is one similarity search against the chunk store.
type SearchInput struct {
	Embedding  []float32
	Threshold  float64
	Limit      int
	DocumentID model.DocumentID
}

// Repository defines the interface for document and chunk persistence
type Repository interface {
	// Migrate idempotently creates the schema: tables, similarity index
	// and the match_chunks function. Safe to call repeatedly.
	Migrate(ctx context.Context) error

	// PutDocument saves a document with insert-or-ignore semantics: an
	// existing row is left untouched.
	PutDocument(ctx context.Context, doc *model.Document) error

	// PutChunks saves chunks with upsert semantics: on ID collision the
	// content, embedding and creation time are overwritten.
	PutChunks(ctx context.Context, chunks []*model.Chunk) error

	// Search returns chunks of the given document scored by cosine
	// similarity, strictly above the threshold, ordered descending,
	// capped at the limit.
	Search(ctx context.Context, input *SearchInput) ([]*model.Match, error)

	// Ping checks datastore reachability
	Ping(ctx context.Context) error

	// Close releases the underlying connections
	Close()
}
