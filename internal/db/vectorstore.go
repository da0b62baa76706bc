package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/jharjadi/tokenwise/internal/model"
)

// VectorStore persists chunk embeddings per tenant in the chunk_embeddings
// table and answers cosine nearest-neighbour queries.
type VectorStore struct {
	pool *pgxpool.Pool
}

// NewVectorStore creates a VectorStore.
func NewVectorStore(pool *pgxpool.Pool) *VectorStore {
	return &VectorStore{pool: pool}
}

const upsertChunkSQL = `
	INSERT INTO chunk_embeddings
		(tenant_id, chunk_id, source, content_type, position, token_count, text, embedding)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (tenant_id, chunk_id) DO UPDATE SET
		source       = EXCLUDED.source,
		content_type = EXCLUDED.content_type,
		position     = EXCLUDED.position,
		token_count  = EXCLUDED.token_count,
		text         = EXCLUDED.text,
		embedding    = EXCLUDED.embedding,
		created_at   = now()
`

// AddChunks upserts chunks with their embeddings in one transaction.
// vectors[i] belongs to chunks[i].
func (s *VectorStore) AddChunks(ctx context.Context, tenantID string, chunks []model.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("add chunks: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(upsertChunkSQL,
			tenantID, c.ID, c.Source, string(c.Type), c.Position, c.TokenCount, c.Text,
			pgvector.NewVector(vectors[i]),
		)
	}

	br := tx.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("upsert chunk %s: %w", chunks[i].ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Search returns the k chunks nearest to embedding by cosine distance.
func (s *VectorStore) Search(ctx context.Context, tenantID string, embedding []float32, k int) ([]model.IndexedChunk, error) {
	query := `
		SELECT
			chunk_id,
			source,
			content_type,
			position,
			token_count,
			text,
			1 - (embedding <=> $2) AS similarity,
			created_at
		FROM chunk_embeddings
		WHERE tenant_id = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, query, tenantID, pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	defer rows.Close()

	var results []model.IndexedChunk
	for rows.Next() {
		var ic model.IndexedChunk
		if err := rows.Scan(
			&ic.ChunkID,
			&ic.Source,
			&ic.ContentType,
			&ic.Position,
			&ic.TokenCount,
			&ic.Text,
			&ic.Similarity,
			&ic.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		results = append(results, ic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector rows iteration: %w", err)
	}

	return results, nil
}

// SearchText returns up to k chunks matching query by Postgres full-text
// search, best ts_rank_cd first.
func (s *VectorStore) SearchText(ctx context.Context, tenantID, query string, k int) ([]model.IndexedChunk, error) {
	sql := `
		SELECT
			chunk_id,
			source,
			content_type,
			position,
			token_count,
			text,
			ts_rank_cd(to_tsvector('english', text), websearch_to_tsquery('english', $2)) AS text_score,
			created_at
		FROM chunk_embeddings
		WHERE tenant_id = $1
		  AND to_tsvector('english', text) @@ websearch_to_tsquery('english', $2)
		ORDER BY text_score DESC
		LIMIT $3
	`

	rows, err := s.pool.Query(ctx, sql, tenantID, query, k)
	if err != nil {
		return nil, fmt.Errorf("text query: %w", err)
	}
	defer rows.Close()

	var results []model.IndexedChunk
	for rows.Next() {
		var ic model.IndexedChunk
		if err := rows.Scan(
			&ic.ChunkID,
			&ic.Source,
			&ic.ContentType,
			&ic.Position,
			&ic.TokenCount,
			&ic.Text,
			&ic.TextScore,
			&ic.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan text row: %w", err)
		}
		results = append(results, ic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("text rows iteration: %w", err)
	}

	return results, nil
}

// Count returns the number of indexed chunks for tenantID.
func (s *VectorStore) Count(ctx context.Context, tenantID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM chunk_embeddings WHERE tenant_id = $1", tenantID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

// Clear deletes every indexed chunk of tenantID and returns how many were
// removed.
func (s *VectorStore) Clear(ctx context.Context, tenantID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, "DELETE FROM chunk_embeddings WHERE tenant_id = $1", tenantID)
	if err != nil {
		return 0, fmt.Errorf("clear chunks: %w", err)
	}
	return tag.RowsAffected(), nil
}
