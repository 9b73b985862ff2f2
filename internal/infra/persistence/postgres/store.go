// Package postgres provides a PostgreSQL-backed persistent store that mirrors
// the in-memory ledger semantics. Committed appends are re-inserted with
// ON CONFLICT DO NOTHING, so the durable tables are write-once like the
// ledger itself.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"mycocore/internal/infra/persistence/memory"
	"mycocore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/mycocore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS record_groups (
		id         TEXT PRIMARY KEY,
		entity     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		created_by TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS versions (
		id       TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES record_groups(id),
		seq      INTEGER NOT NULL,
		payload  JSONB NOT NULL,
		UNIQUE (group_id, seq)
	)`,
	`CREATE TABLE IF NOT EXISTS amendment_log (
		id       TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES record_groups(id),
		payload  JSONB NOT NULL
	)`,
}

// Store persists the ledger to Postgres while reusing the in-memory
// implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to a localhost default), ensures the ledger tables exist, and hydrates the
// in-memory store from existing rows.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	snap, err := loadSnapshot(ctx, db)
	if err != nil {
		return nil, err
	}
	mem := memory.NewStore(engine)
	if len(snap.Groups) > 0 {
		mem.ImportState(snap)
	}
	return &Store{Store: mem, db: db}, nil
}

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	snap := memory.Snapshot{
		Groups:   map[string]domain.RecordGroup{},
		Versions: map[string][]domain.Version{},
		Log:      map[string][]domain.AmendmentLogEntry{},
	}
	rows, err := db.QueryContext(ctx, `SELECT id, entity, created_at, created_by FROM record_groups`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select groups: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var group domain.RecordGroup
		if err := rows.Scan(&group.ID, &group.Entity, &group.CreatedAt, &group.CreatedBy); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan group: %w", err)
		}
		snap.Groups[group.ID] = group
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate groups: %w", err)
	}

	vrows, err := db.QueryContext(ctx, `SELECT group_id, payload FROM versions`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select versions: %w", err)
	}
	defer func() { _ = vrows.Close() }()
	for vrows.Next() {
		var groupID string
		var payload []byte
		if err := vrows.Scan(&groupID, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan version: %w", err)
		}
		var version domain.Version
		if err := json.Unmarshal(payload, &version); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode version for %s: %w", groupID, err)
		}
		snap.Versions[groupID] = append(snap.Versions[groupID], version)
	}
	if err := vrows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate versions: %w", err)
	}

	lrows, err := db.QueryContext(ctx, `SELECT group_id, payload FROM amendment_log`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select amendment log: %w", err)
	}
	defer func() { _ = lrows.Close() }()
	for lrows.Next() {
		var groupID string
		var payload []byte
		if err := lrows.Scan(&groupID, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan log entry: %w", err)
		}
		var entry domain.AmendmentLogEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode log entry for %s: %w", groupID, err)
		}
		snap.Log[groupID] = append(snap.Log[groupID], entry)
	}
	if err := lrows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate amendment log: %w", err)
	}
	return snap, nil
}

func (s *Store) persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for id, group := range snap.Groups {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO record_groups(id, entity, created_at, created_by) VALUES($1,$2,$3,$4) ON CONFLICT (id) DO NOTHING`,
			id, string(group.Entity), group.CreatedAt, group.CreatedBy,
		); err != nil {
			return fmt.Errorf("insert group %s: %w", id, err)
		}
		for _, version := range snap.Versions[id] {
			payload, err := json.Marshal(version)
			if err != nil {
				return fmt.Errorf("encode version %s: %w", version.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO versions(id, group_id, seq, payload) VALUES($1,$2,$3,$4) ON CONFLICT (id) DO NOTHING`,
				version.ID, id, version.Seq, payload,
			); err != nil {
				return fmt.Errorf("insert version %s: %w", version.ID, err)
			}
		}
		for _, entry := range snap.Log[id] {
			payload, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("encode log entry %s: %w", entry.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO amendment_log(id, group_id, payload) VALUES($1,$2,$3) ON CONFLICT (id) DO NOTHING`,
				entry.ID, id, payload,
			); err != nil {
				return fmt.Errorf("insert log entry %s: %w", entry.ID, err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// RunInTransaction applies fn in the in-memory ledger, then mirrors new rows
// to Postgres on success.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
