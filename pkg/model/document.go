package model

import (
	"time"
)

// DocumentID identifies an ingested document. It is the task ID assigned
// by the parsing service, so retrieval can always map back to the
// original parse result.
type DocumentID string

// ChunkID identifies a chunk within a document, assigned by the parsing
// service.
type ChunkID string

// Document represents one ingested document
type Document struct {
	ID        DocumentID
	SourceURL string // empty when the document was uploaded as raw bytes
	CreatedAt time.Time
}

// Chunk is the persisted unit of retrieval: the embeddable text of a
// parsed chunk together with its embedding vector.
type Chunk struct {
	ID         ChunkID
	DocumentID DocumentID
	Content    string
	Embedding  []float32
	CreatedAt  time.Time
}

// EmbeddingDimension is the width of the embedding column. It must match
// the embedding model output (text-embedding-3-small).
const EmbeddingDimension = 1536

// Match is one similarity search hit returned by the document store.
type Match struct {
	ChunkID    ChunkID
	Content    string
	Similarity float64
}
