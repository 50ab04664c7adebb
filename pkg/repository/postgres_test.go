package repository_test

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/loris/pkg/model"
	"github.com/m-mizutani/loris/pkg/repository"
)

func setupPostgres(t *testing.T) repository.Repository {
	dsn := os.Getenv("TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("TEST_DATABASE_DSN must be set to run PostgreSQL tests")
	}

	ctx := context.Background()
	repo, err := repository.NewPostgres(ctx, dsn)
	gt.NoError(t, err)
	t.Cleanup(repo.Close)

	gt.NoError(t, repo.Migrate(ctx))
	return repo
}

func testVector(seed int64) []float32 {
	r := rand.New(rand.NewSource(seed))
	vec := make([]float32, model.EmbeddingDimension)
	for i := range vec {
		vec[i] = r.Float32()
	}
	return vec
}

func testDocumentID() model.DocumentID {
	return model.DocumentID(fmt.Sprintf("test-doc-%d", time.Now().UnixNano()))
}

func TestPostgresPutAndSearch(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	docID := testDocumentID()
	now := time.Now()

	gt.NoError(t, repo.PutDocument(ctx, &model.Document{
		ID:        docID,
		SourceURL: "https://example.com/doc.pdf",
		CreatedAt: now,
	}))

	target := testVector(1)
	gt.NoError(t, repo.PutChunks(ctx, []*model.Chunk{
		{
			ID:         model.ChunkID(string(docID) + "-c1"),
			DocumentID: docID,
			Content:    "relevant chunk",
			Embedding:  target,
			CreatedAt:  now,
		},
		{
			ID:         model.ChunkID(string(docID) + "-c2"),
			DocumentID: docID,
			Content:    "other chunk",
			Embedding:  testVector(2),
			CreatedAt:  now,
		},
	}))

	matches, err := repo.Search(ctx, &repository.SearchInput{
		Embedding:  target,
		Threshold:  0.1,
		Limit:      3,
		DocumentID: docID,
	})
	gt.NoError(t, err)
	gt.A(t, matches).Longer(0)

	// The identical vector must rank first with similarity close to 1
	gt.Equal(t, matches[0].Content, "relevant chunk")
	gt.True(t, matches[0].Similarity > 0.99)

	// Descending order
	for i := 1; i < len(matches); i++ {
		gt.True(t, matches[i-1].Similarity >= matches[i].Similarity)
	}
}

func TestPostgresSearchScopedToDocument(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	docA := testDocumentID()
	docB := model.DocumentID(string(docA) + "-b")
	now := time.Now()
	vec := testVector(3)

	gt.NoError(t, repo.PutDocument(ctx, &model.Document{ID: docA, CreatedAt: now}))
	gt.NoError(t, repo.PutDocument(ctx, &model.Document{ID: docB, CreatedAt: now}))

	gt.NoError(t, repo.PutChunks(ctx, []*model.Chunk{
		{ID: model.ChunkID(string(docA) + "-c1"), DocumentID: docA, Content: "in A", Embedding: vec, CreatedAt: now},
		{ID: model.ChunkID(string(docB) + "-c1"), DocumentID: docB, Content: "in B", Embedding: vec, CreatedAt: now},
	}))

	matches, err := repo.Search(ctx, &repository.SearchInput{
		Embedding:  vec,
		Threshold:  0.1,
		Limit:      10,
		DocumentID: docA,
	})
	gt.NoError(t, err)

	for _, m := range matches {
		gt.Equal(t, m.Content, "in A")
	}
}

func TestPostgresDocumentInsertIgnore(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	dsn := os.Getenv("TEST_DATABASE_DSN")
	conn, err := pgx.Connect(ctx, dsn)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(ctx) })

	docID := testDocumentID()
	now := time.Now()

	gt.NoError(t, repo.PutDocument(ctx, &model.Document{
		ID:        docID,
		SourceURL: "https://example.com/original.pdf",
		CreatedAt: now,
	}))

	// A second put with a different source URL must leave the row alone
	gt.NoError(t, repo.PutDocument(ctx, &model.Document{
		ID:        docID,
		SourceURL: "https://example.com/other.pdf",
		CreatedAt: now,
	}))

	var sourceURL string
	gt.NoError(t, conn.QueryRow(ctx,
		"SELECT source_url FROM documents WHERE id = $1", string(docID),
	).Scan(&sourceURL))
	gt.Equal(t, sourceURL, "https://example.com/original.pdf")
}

func TestPostgresSearchHighThreshold(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	docID := testDocumentID()
	now := time.Now()

	gt.NoError(t, repo.PutDocument(ctx, &model.Document{ID: docID, CreatedAt: now}))
	gt.NoError(t, repo.PutChunks(ctx, []*model.Chunk{
		{
			ID:         model.ChunkID(string(docID) + "-c1"),
			DocumentID: docID,
			Content:    "some chunk",
			Embedding:  testVector(10),
			CreatedAt:  now,
		},
	}))

	// A non-identical query vector cannot reach 0.99 similarity, so the
	// result must be empty without an error
	matches, err := repo.Search(ctx, &repository.SearchInput{
		Embedding:  testVector(11),
		Threshold:  0.99,
		Limit:      10,
		DocumentID: docID,
	})
	gt.NoError(t, err)
	gt.A(t, matches).Length(0)
}

func TestPostgresChunkUpsert(t *testing.T) {
	repo := setupPostgres(t)
	ctx := context.Background()

	docID := testDocumentID()
	now := time.Now()
	chunkID := model.ChunkID(string(docID) + "-c1")
	vec := testVector(4)

	gt.NoError(t, repo.PutDocument(ctx, &model.Document{ID: docID, CreatedAt: now}))

	gt.NoError(t, repo.PutChunks(ctx, []*model.Chunk{
		{ID: chunkID, DocumentID: docID, Content: "first version", Embedding: vec, CreatedAt: now},
	}))
	gt.NoError(t, repo.PutChunks(ctx, []*model.Chunk{
		{ID: chunkID, DocumentID: docID, Content: "second version", Embedding: vec, CreatedAt: now},
	}))

	matches, err := repo.Search(ctx, &repository.SearchInput{
		Embedding:  vec,
		Threshold:  0.5,
		Limit:      1,
		DocumentID: docID,
	})
	gt.NoError(t, err)
	gt.A(t, matches).Length(1)
	gt.Equal(t, matches[0].Content, "second version")
}

func TestPostgresPing(t *testing.T) {
	repo := setupPostgres(t)
	gt.NoError(t, repo.Ping(context.Background()))
}
