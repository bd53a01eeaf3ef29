// Package sqlite persists the in-memory store state to an embedded sqlite
// file. Domain records are serialized as JSON buckets; the database is the
// durability layer, not the query layer.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"sweepcore/internal/infra/persistence/memory"
	"sweepcore/pkg/domain"
)

const (
	bucketPlans = "plans"
	bucketRuns  = "runs"
)

// Store wraps the in-memory store and mirrors every committed state to a
// sqlite file.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

var _ domain.PersistentStore = (*Store)(nil)

// NewStore opens (or creates) the sqlite file at path and loads any
// previously persisted state. An empty path defaults to ./sweepcore.db.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "./sweepcore.db"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (bucket TEXT PRIMARY KEY, payload BLOB NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{
		Store: memory.NewStore(engine),
		db:    db,
		path:  path,
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the sqlite file backing the store.
func (s *Store) Path() string {
	return s.path
}

// Close flushes nothing (state is persisted per commit) and closes the file.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state row: %w", err)
		}
		switch bucket {
		case bucketPlans:
			if err := json.Unmarshal(payload, &snapshot.SweepPlans); err != nil {
				return fmt.Errorf("decode %s bucket: %w", bucket, err)
			}
		case bucketRuns:
			if err := json.Unmarshal(payload, &snapshot.MeasurementRuns); err != nil {
				return fmt.Errorf("decode %s bucket: %w", bucket, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read state: %w", err)
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() error {
	snapshot := s.ExportState()
	plans, err := json.Marshal(snapshot.SweepPlans)
	if err != nil {
		return fmt.Errorf("encode %s bucket: %w", bucketPlans, err)
	}
	runs, err := json.Marshal(snapshot.MeasurementRuns)
	if err != nil {
		return fmt.Errorf("encode %s bucket: %w", bucketRuns, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin persist: %w", err)
	}
	upsert := `INSERT INTO state (bucket, payload) VALUES (?, ?)
		ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`
	for bucket, payload := range map[string][]byte{bucketPlans: plans, bucketRuns: runs} {
		if _, err := tx.Exec(upsert, bucket, payload); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("write %s bucket: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit persist: %w", err)
	}
	return nil
}

// RunInTransaction commits through the in-memory store and mirrors the new
// state to disk. A persistence failure surfaces as an error after the
// in-memory commit; the next successful commit rewrites the full state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(); err != nil {
		return res, err
	}
	return res, nil
}
