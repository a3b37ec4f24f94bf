// Package storage provides a SQLite-backed durable storage implementation.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"unified-thinking/internal/errors"
	"unified-thinking/internal/types"
)

// SQLiteStorage implements persistent storage backed by SQLite, grounded on
// the teacher's connection-pool and pragma-configuration idiom. Records are
// stored as JSON documents with a handful of indexed columns for the query
// paths the façade and retriever need.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage backend.
func NewSQLiteStorage(dbPath string, timeoutMs int) (*SQLiteStorage, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	dsn := dbPath + fmt.Sprintf("?_busy_timeout=%d", timeoutMs)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if err := configureSQLite(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure SQLite: %w", err)
	}
	if err := initializeSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close releases the underlying database connection pool.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) PutEpisode(e *types.Episode) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal episode: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO episodes (id, domain, task_type, completed, start_time, document)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET domain=excluded.domain, task_type=excluded.task_type,
		   completed=excluded.completed, start_time=excluded.start_time, document=excluded.document`,
		e.ID, e.Context.Domain, string(e.Kind), boolToInt(e.IsComplete()), e.StartTime.Unix(), string(doc),
	)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLiteStorage) GetEpisode(id string) (*types.Episode, error) {
	var doc string
	err := s.db.QueryRow(`SELECT document FROM episodes WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, errors.NewStructuredError(errors.ErrEpisodeNotFound, "episode "+id+" not found")
	}
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	var e types.Episode
	if err := json.Unmarshal([]byte(doc), &e); err != nil {
		return nil, fmt.Errorf("unmarshal episode: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStorage) DeleteEpisode(id string) error {
	res, err := s.db.Exec(`DELETE FROM episodes WHERE id = ?`, id)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.NewStructuredError(errors.ErrEpisodeNotFound, "episode "+id+" not found")
	}
	return nil
}

func (s *SQLiteStorage) ListEpisodes(limit, offset int, completedOnly bool) ([]*types.Episode, error) {
	query := `SELECT document FROM episodes`
	var args []interface{}
	if completedOnly {
		query += ` WHERE completed = 1`
	}
	query += ` ORDER BY start_time DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []*types.Episode
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		var e types.Episode
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, fmt.Errorf("unmarshal episode: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) PutPattern(p *types.Pattern) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal pattern: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO patterns (id, kind, document) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET kind=excluded.kind, document=excluded.document`,
		p.ID, string(p.Kind), string(doc),
	)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLiteStorage) GetPattern(id string) (*types.Pattern, error) {
	var doc string
	err := s.db.QueryRow(`SELECT document FROM patterns WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, errors.NewStructuredError(errors.ErrPatternNotFound, "pattern "+id+" not found")
	}
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	var p types.Pattern
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, fmt.Errorf("unmarshal pattern: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStorage) DeletePattern(id string) error {
	res, err := s.db.Exec(`DELETE FROM patterns WHERE id = ?`, id)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.NewStructuredError(errors.ErrPatternNotFound, "pattern "+id+" not found")
	}
	return nil
}

func (s *SQLiteStorage) ListPatterns() ([]*types.Pattern, error) {
	rows, err := s.db.Query(`SELECT document FROM patterns ORDER BY id`)
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []*types.Pattern
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan pattern: %w", err)
		}
		var p types.Pattern
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, fmt.Errorf("unmarshal pattern: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) PutRelationship(r *types.EpisodeRelationship) error {
	doc, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal relationship: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO relationships (id, from_id, to_id, type, document) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET from_id=excluded.from_id, to_id=excluded.to_id,
		   type=excluded.type, document=excluded.document`,
		r.ID, r.From, r.To, string(r.Type), string(doc),
	)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *SQLiteStorage) DeleteRelationship(id string) error {
	res, err := s.db.Exec(`DELETE FROM relationships WHERE id = ?`, id)
	if err != nil {
		return errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.NewStructuredError(errors.ErrRelationshipNotFound, "relationship "+id+" not found")
	}
	return nil
}

func (s *SQLiteStorage) ListRelationships() ([]*types.EpisodeRelationship, error) {
	rows, err := s.db.Query(`SELECT document FROM relationships ORDER BY id`)
	if err != nil {
		return nil, errors.WrapError(errors.ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []*types.EpisodeRelationship
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		var r types.EpisodeRelationship
		if err := json.Unmarshal([]byte(doc), &r); err != nil {
			return nil, fmt.Errorf("unmarshal relationship: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) GetMetrics() *Metrics {
	m := &Metrics{SampledAt: time.Now()}
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM episodes`).Scan(&m.TotalEpisodes)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM episodes WHERE completed = 1`).Scan(&m.CompletedEpisodes)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM patterns`).Scan(&m.TotalPatterns)
	_ = s.db.QueryRow(`SELECT COUNT(*) FROM relationships`).Scan(&m.TotalRelationships)
	return m
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Storage = (*SQLiteStorage)(nil)
