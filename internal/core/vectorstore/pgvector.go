// Package vectorstore persists and queries chunk embeddings in Postgres
// with pgvector. Each shard in the pool is a physical table; namespaces
// partition rows within a shard.
package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/saved-ai/engine/internal/core"
	"github.com/saved-ai/engine/internal/models"
)

type Store struct {
	db  *sql.DB
	dim int
}

// NewStore ensures one chunk table per shard in the pool and returns a
// store over them. Shard names outside the pool are rejected at call
// time, so table names never come from user input.
func NewStore(ctx context.Context, db *sql.DB, pool []string, dim int) (*Store, error) {
	s := &Store{db: db, dim: dim}
	for _, shard := range pool {
		if err := s.ensureTable(ctx, shard); err != nil {
			return nil, fmt.Errorf("ensure shard %s: %w", shard, err)
		}
	}
	return s, nil
}

func tableName(shard string) string {
	return "kb_chunks_" + strings.ReplaceAll(shard, "-", "_")
}

func (s *Store) ensureTable(ctx context.Context, shard string) error {
	q := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id             TEXT PRIMARY KEY,
			namespace      TEXT NOT NULL,
			text           TEXT NOT NULL,
			embedding      VECTOR(%d) NOT NULL,
			source         BIGINT NOT NULL DEFAULT 0,
			chat_name      TEXT NOT NULL DEFAULT '',
			sender         TEXT NOT NULL DEFAULT '',
			forwarded_from TEXT NOT NULL DEFAULT '',
			date           TEXT NOT NULL DEFAULT '',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS %s_namespace_idx ON %s (namespace);
	`, tableName(shard), s.dim, tableName(shard), tableName(shard))
	_, err := s.db.ExecContext(ctx, q)
	return err
}

// Upsert writes docs into the shard's table in one transaction.
// Re-ingesting a chunk id replaces its text and embedding.
func (s *Store) Upsert(ctx context.Context, shard, namespace string, docs []core.VectorDoc) error {
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}

	q := fmt.Sprintf(`
		INSERT INTO %s
			(id, namespace, text, embedding, source, chat_name, sender, forwarded_from, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			text = EXCLUDED.text,
			embedding = EXCLUDED.embedding
	`, tableName(shard))
	stmt, err := tx.PrepareContext(ctx, q)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i := range docs {
		d := &docs[i]
		vec := pgvector.NewVector(d.Embedding)
		if _, err := stmt.ExecContext(ctx,
			d.ID, namespace, d.Text, vec,
			d.Metadata.Source, d.Metadata.ChatName, d.Metadata.Sender, d.Metadata.ForwardedFrom, d.Metadata.Date,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query returns the k nearest chunks in the namespace. Score is cosine
// similarity, 1 - cosine distance, so higher is closer.
func (s *Store) Query(ctx context.Context, shard, namespace string, vec []float32, k int) ([]models.SearchResult, error) {
	q := fmt.Sprintf(`
		SELECT id, text, 1 - (embedding <=> $2) AS score,
		       source, chat_name, sender, forwarded_from, date
		FROM %s
		WHERE namespace = $1
		ORDER BY embedding <=> $2
		LIMIT $3
	`, tableName(shard))

	rows, err := s.db.QueryContext(ctx, q, namespace, pgvector.NewVector(vec), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SearchResult
	for rows.Next() {
		var r models.SearchResult
		if err := rows.Scan(
			&r.ID, &r.Text, &r.Score,
			&r.Metadata.Source, &r.Metadata.ChatName, &r.Metadata.Sender, &r.Metadata.ForwardedFrom, &r.Metadata.Date,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ core.VectorStore = (*Store)(nil)
