// Package storage provides a PostgreSQL-backed durable storage
// implementation for deployments that need a shared remote append-store
// rather than the embedded SQLite backend.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"unified-thinking/internal/errors"
	"unified-thinking/internal/types"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS episodes (
    id TEXT PRIMARY KEY,
    domain TEXT NOT NULL,
    task_type TEXT NOT NULL,
    completed BOOLEAN NOT NULL DEFAULT FALSE,
    start_time TIMESTAMPTZ NOT NULL,
    document JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pg_episodes_domain_kind ON episodes(domain, task_type);

CREATE TABLE IF NOT EXISTS patterns (
    id TEXT PRIMARY KEY,
    kind TEXT NOT NULL,
    document JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
    id TEXT PRIMARY KEY,
    from_id TEXT NOT NULL,
    to_id TEXT NOT NULL,
    type TEXT NOT NULL,
    document JSONB NOT NULL
);
`

// PostgresStorage implements durable storage against a shared PostgreSQL
// instance via pgx's pool, optionally mirroring episode embeddings into a
// pgvector column so similarity search can run at the storage tier directly.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to PostgreSQL and ensures the schema exists.
// embeddingDim is the fixed embedder dimension used to size the pgvector
// column; pass 0 to skip creating the embeddings table.
func NewPostgresStorage(ctx context.Context, dsn string, embeddingDim int) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("initialize postgres schema: %w", err)
	}
	if embeddingDim > 0 {
		ddl := fmt.Sprintf(`
			CREATE EXTENSION IF NOT EXISTS vector;
			CREATE TABLE IF NOT EXISTS episode_embeddings (
				episode_id TEXT PRIMARY KEY REFERENCES episodes(id) ON DELETE CASCADE,
				embedding vector(%d) NOT NULL
			);`, embeddingDim)
		if _, err := pool.Exec(ctx, ddl); err != nil {
			pool.Close()
			return nil, fmt.Errorf("initialize pgvector schema: %w", err)
		}
	}
	return &PostgresStorage{pool: pool}, nil
}

// Close releases the connection pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// PutEpisodeEmbedding upserts an episode's embedding vector.
func (s *PostgresStorage) PutEpisodeEmbedding(ctx context.Context, episodeID string, vec []float32) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO episode_embeddings (episode_id, embedding) VALUES ($1, $2)
		 ON CONFLICT (episode_id) DO UPDATE SET embedding = excluded.embedding`,
		episodeID, pgvector.NewVector(vec))
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	return nil
}

// NearestEpisodes returns up to k episode ids ordered by cosine distance to
// query, nearest first.
func (s *PostgresStorage) NearestEpisodes(ctx context.Context, query []float32, k int) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT episode_id FROM episode_embeddings ORDER BY embedding <=> $1 LIMIT $2`,
		pgvector.NewVector(query), k)
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) PutEpisode(e *types.Episode) error {
	ctx := context.Background()
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal episode: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO episodes (id, domain, task_type, completed, start_time, document)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE SET domain=excluded.domain, task_type=excluded.task_type,
		   completed=excluded.completed, start_time=excluded.start_time, document=excluded.document`,
		e.ID, e.Context.Domain, string(e.Kind), e.IsComplete(), e.StartTime, doc)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStorage) GetEpisode(id string) (*types.Episode, error) {
	ctx := context.Background()
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM episodes WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, errors.NewStructuredError(errors.ErrEpisodeNotFound, "episode "+id+" not found")
		}
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	var e types.Episode
	if err := json.Unmarshal(doc, &e); err != nil {
		return nil, fmt.Errorf("unmarshal episode: %w", err)
	}
	return &e, nil
}

func (s *PostgresStorage) DeleteEpisode(id string) error {
	ctx := context.Background()
	tag, err := s.pool.Exec(ctx, `DELETE FROM episodes WHERE id = $1`, id)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewStructuredError(errors.ErrEpisodeNotFound, "episode "+id+" not found")
	}
	return nil
}

func (s *PostgresStorage) ListEpisodes(limit, offset int, completedOnly bool) ([]*types.Episode, error) {
	ctx := context.Background()
	query := `SELECT document FROM episodes`
	var args []interface{}
	if completedOnly {
		query += ` WHERE completed = TRUE`
	}
	query += ` ORDER BY start_time DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
		args = append(args, limit, offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []*types.Episode
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var e types.Episode
		if err := json.Unmarshal(doc, &e); err != nil {
			return nil, fmt.Errorf("unmarshal episode: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) PutPattern(p *types.Pattern) error {
	ctx := context.Background()
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pattern: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO patterns (id, kind, document) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET kind=excluded.kind, document=excluded.document`,
		p.ID, string(p.Kind), doc)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStorage) GetPattern(id string) (*types.Pattern, error) {
	ctx := context.Background()
	var doc []byte
	err := s.pool.QueryRow(ctx, `SELECT document FROM patterns WHERE id = $1`, id).Scan(&doc)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return nil, errors.NewStructuredError(errors.ErrPatternNotFound, "pattern "+id+" not found")
		}
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	var p types.Pattern
	if err := json.Unmarshal(doc, &p); err != nil {
		return nil, fmt.Errorf("unmarshal pattern: %w", err)
	}
	return &p, nil
}

func (s *PostgresStorage) DeletePattern(id string) error {
	ctx := context.Background()
	tag, err := s.pool.Exec(ctx, `DELETE FROM patterns WHERE id = $1`, id)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewStructuredError(errors.ErrPatternNotFound, "pattern "+id+" not found")
	}
	return nil
}

func (s *PostgresStorage) ListPatterns() ([]*types.Pattern, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `SELECT document FROM patterns ORDER BY id`)
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []*types.Pattern
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var p types.Pattern
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, fmt.Errorf("unmarshal pattern: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) PutRelationship(r *types.EpisodeRelationship) error {
	ctx := context.Background()
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal relationship: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO relationships (id, from_id, to_id, type, document) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (id) DO UPDATE SET from_id=excluded.from_id, to_id=excluded.to_id,
		   type=excluded.type, document=excluded.document`,
		r.ID, r.From, r.To, string(r.Type), doc)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *PostgresStorage) DeleteRelationship(id string) error {
	ctx := context.Background()
	tag, err := s.pool.Exec(ctx, `DELETE FROM relationships WHERE id = $1`, id)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewStructuredError(errors.ErrRelationshipNotFound, "relationship "+id+" not found")
	}
	return nil
}

func (s *PostgresStorage) ListRelationships() ([]*types.EpisodeRelationship, error) {
	ctx := context.Background()
	rows, err := s.pool.Query(ctx, `SELECT document FROM relationships ORDER BY id`)
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []*types.EpisodeRelationship
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var r types.EpisodeRelationship
		if err := json.Unmarshal(doc, &r); err != nil {
			return nil, fmt.Errorf("unmarshal relationship: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) GetMetrics() *Metrics {
	ctx := context.Background()
	m := &Metrics{SampledAt: time.Now()}
	_ = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM episodes`).Scan(&m.TotalEpisodes)
	_ = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM episodes WHERE completed`).Scan(&m.CompletedEpisodes)
	_ = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM patterns`).Scan(&m.TotalPatterns)
	_ = s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&m.TotalRelationships)
	return m
}

var _ Storage = (*PostgresStorage)(nil)
