// Package postgres persists the in-memory store state to a PostgreSQL
// server. Like the sqlite backend it serializes domain records as JSON
// buckets; PostgreSQL is chosen for shared deployments, not for queries.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sweepcore/internal/infra/persistence/memory"
	"sweepcore/pkg/domain"
)

const (
	bucketPlans = "plans"
	bucketRuns  = "runs"
)

// sqlOpen is swappable so tests can inject a fake database handle.
var sqlOpen = sql.Open

// OverrideSQLOpen replaces the database opener and returns a restore
// function. Test hook.
func OverrideSQLOpen(open func(driverName, dsn string) (*sql.DB, error)) func() {
	prev := sqlOpen
	sqlOpen = open
	return func() { sqlOpen = prev }
}

// Store wraps the in-memory store and mirrors every committed state to a
// PostgreSQL table.
type Store struct {
	*memory.Store
	db *sql.DB
}

var _ domain.PersistentStore = (*Store)(nil)

// NewStore connects to the server behind dsn and loads any previously
// persisted state.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}
	db, err := sqlOpen("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS sweepcore_state (bucket TEXT PRIMARY KEY, payload JSONB NOT NULL)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{
		Store: memory.NewStore(engine),
		db:    db,
	}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM sweepcore_state`)
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
	upsert := `INSERT INTO sweepcore_state (bucket, payload) VALUES ($1, $2)
		ON CONFLICT (bucket) DO UPDATE SET payload = EXCLUDED.payload`
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
// state to the server.
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
