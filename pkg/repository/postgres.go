package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/loris/pkg/model"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// postgresRepo implements Repository on PostgreSQL with the pgvector
// extension. All DDL is guarded by existence checks so Migrate can run
// on every boot.
type postgresRepo struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a repository backed by a pgx connection pool.
// Vector types are registered on every new connection.
func NewPostgres(ctx context.Context, dsn string) (Repository, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse database DSN")
	}

	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create connection pool")
	}

	return &postgresRepo{pool: pool}, nil
}

const (
	createDocumentsTable = `
		CREATE TABLE IF NOT EXISTS documents (
			id VARCHAR(255) PRIMARY KEY,
			source_url TEXT,
			created_at TIMESTAMP
		)`

	createChunksTable = `
		CREATE TABLE IF NOT EXISTS chunks (
			id VARCHAR(255) PRIMARY KEY,
			document_id VARCHAR(255) REFERENCES documents(id),
			content TEXT,
			embedding VECTOR(1536),
			created_at TIMESTAMP
		)`

	createChunksIndex = `
		CREATE INDEX IF NOT EXISTS chunks_embedding_idx
		ON chunks
		USING hnsw (embedding vector_cosine_ops)`

	createMatchFunction = `
		CREATE OR REPLACE FUNCTION match_chunks(
			query_embedding vector(1536),
			match_threshold float,
			match_count integer,
			input_document_id text
		)
		RETURNS TABLE (
			id varchar(255),
			content text,
			similarity float
		)
		LANGUAGE plpgsql
		AS $$
		BEGIN
			RETURN QUERY
			SELECT
				c.id,
				c.content,
				1 - (c.embedding <=> query_embedding) AS similarity
			FROM
				chunks c
			WHERE
				c.document_id = input_document_id
				AND 1 - (c.embedding <=> query_embedding) > match_threshold
			ORDER BY
				similarity DESC
			LIMIT match_count;
		END;
		$$`

	insertDocument = `
		INSERT INTO documents (id, source_url, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING`

	upsertChunk = `
		INSERT INTO chunks (id, document_id, content, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			created_at = EXCLUDED.created_at`

	searchChunks = `
		SELECT id, content, similarity
		FROM match_chunks($1::vector(1536), $2::float, $3::integer, $4::text)`
)

func (r *postgresRepo) Migrate(ctx context.Context) error {
	statements := []struct {
		name string
		sql  string
	}{
		{"vector extension", "CREATE EXTENSION IF NOT EXISTS vector"},
		{"documents table", createDocumentsTable},
		{"chunks table", createChunksTable},
		{"chunks index", createChunksIndex},
		{"match function", createMatchFunction},
	}

	for _, stmt := range statements {
		if _, err := r.pool.Exec(ctx, stmt.sql); err != nil {
			return goerr.Wrap(err, "failed to run migration", goerr.V("statement", stmt.name))
		}
	}

	return nil
}

func (r *postgresRepo) PutDocument(ctx context.Context, doc *model.Document) error {
	var sourceURL *string
	if doc.SourceURL != "" {
		sourceURL = &doc.SourceURL
	}

	if _, err := r.pool.Exec(ctx, insertDocument, string(doc.ID), sourceURL, doc.CreatedAt); err != nil {
		return goerr.Wrap(err, "failed to insert document", goerr.V("document_id", doc.ID))
	}

	return nil
}

func (r *postgresRepo) PutChunks(ctx context.Context, chunks []*model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(upsertChunk,
			string(chunk.ID),
			string(chunk.DocumentID),
			chunk.Content,
			pgvector.NewVector(chunk.Embedding),
			chunk.CreatedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range chunks {
		if _, err := results.Exec(); err != nil {
			return goerr.Wrap(err, "failed to upsert chunks")
		}
	}

	return nil
}

func (r *postgresRepo) Search(ctx context.Context, input *SearchInput) ([]*model.Match, error) {
	rows, err := r.pool.Query(ctx, searchChunks,
		pgvector.NewVector(input.Embedding),
		input.Threshold,
		input.Limit,
		string(input.DocumentID),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to query similar chunks",
			goerr.V("document_id", input.DocumentID))
	}
	defer rows.Close()

	var matches []*model.Match
	for rows.Next() {
		var m model.Match
		if err := rows.Scan(&m.ChunkID, &m.Content, &m.Similarity); err != nil {
			return nil, goerr.Wrap(err, "failed to scan match row")
		}
		matches = append(matches, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to read match rows")
	}

	return matches, nil
}

func (r *postgresRepo) Ping(ctx context.Context) error {
	if err := r.pool.Ping(ctx); err != nil {
		return goerr.Wrap(err, "database is not reachable")
	}
	return nil
}

func (r *postgresRepo) Close() {
	r.pool.Close()
}
