// Package sqlite provides an embedded durable backend for the ledger. It
// composes the in-memory store for transactional semantics and mirrors every
// committed append into insert-only SQLite tables.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"mycocore/internal/infra/persistence/memory"
	"mycocore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// Store persists the ledger to SQLite. Rows are write-once: versions and
// amendment log entries are only ever inserted, mirroring the append-only
// contract, so re-persisting after a commit touches only the new rows.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

const schema = `
CREATE TABLE IF NOT EXISTS record_groups (
	id         TEXT PRIMARY KEY,
	entity     TEXT NOT NULL,
	created_at TEXT NOT NULL,
	created_by TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS versions (
	id       TEXT PRIMARY KEY,
	group_id TEXT NOT NULL REFERENCES record_groups(id),
	seq      INTEGER NOT NULL,
	payload  BLOB NOT NULL,
	UNIQUE (group_id, seq)
);
CREATE TABLE IF NOT EXISTS amendment_log (
	id       TEXT PRIMARY KEY,
	group_id TEXT NOT NULL REFERENCES record_groups(id),
	payload  BLOB NOT NULL
);
`

// NewStore opens (or creates) the database at path and hydrates the
// in-memory ledger from it.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "mycocore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create schema: %w", err)
	}
	mem := memory.NewStore(engine)
	s := &Store{Store: mem, db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	snap := memory.Snapshot{
		Groups:   map[string]domain.RecordGroup{},
		Versions: map[string][]domain.Version{},
		Log:      map[string][]domain.AmendmentLogEntry{},
	}
	rows, err := s.db.Query(`SELECT id, entity, created_at, created_by FROM record_groups`)
	if err != nil {
		return fmt.Errorf("select groups: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var group domain.RecordGroup
		var createdAt string
		if err := rows.Scan(&group.ID, &group.Entity, &createdAt, &group.CreatedBy); err != nil {
			return fmt.Errorf("scan group: %w", err)
		}
		if group.CreatedAt, err = parseTime(createdAt); err != nil {
			return fmt.Errorf("group %s created_at: %w", group.ID, err)
		}
		snap.Groups[group.ID] = group
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate groups: %w", err)
	}

	vrows, err := s.db.Query(`SELECT group_id, payload FROM versions`)
	if err != nil {
		return fmt.Errorf("select versions: %w", err)
	}
	defer func() { _ = vrows.Close() }()
	for vrows.Next() {
		var groupID string
		var payload []byte
		if err := vrows.Scan(&groupID, &payload); err != nil {
			return fmt.Errorf("scan version: %w", err)
		}
		var version domain.Version
		if err := json.Unmarshal(payload, &version); err != nil {
			return fmt.Errorf("decode version for %s: %w", groupID, err)
		}
		snap.Versions[groupID] = append(snap.Versions[groupID], version)
	}
	if err := vrows.Err(); err != nil {
		return fmt.Errorf("iterate versions: %w", err)
	}

	lrows, err := s.db.Query(`SELECT group_id, payload FROM amendment_log`)
	if err != nil {
		return fmt.Errorf("select amendment log: %w", err)
	}
	defer func() { _ = lrows.Close() }()
	for lrows.Next() {
		var groupID string
		var payload []byte
		if err := lrows.Scan(&groupID, &payload); err != nil {
			return fmt.Errorf("scan log entry: %w", err)
		}
		var entry domain.AmendmentLogEntry
		if err := json.Unmarshal(payload, &entry); err != nil {
			return fmt.Errorf("decode log entry for %s: %w", groupID, err)
		}
		snap.Log[groupID] = append(snap.Log[groupID], entry)
	}
	if err := lrows.Err(); err != nil {
		return fmt.Errorf("iterate amendment log: %w", err)
	}

	if len(snap.Groups) > 0 {
		s.ImportState(snap)
	}
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for id, group := range snap.Groups {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO record_groups(id, entity, created_at, created_by) VALUES(?,?,?,?)`,
			id, string(group.Entity), formatTime(group.CreatedAt), group.CreatedBy,
		); err != nil {
			retErr = fmt.Errorf("insert group %s: %w", id, err)
			return retErr
		}
		for _, version := range snap.Versions[id] {
			payload, err := json.Marshal(version)
			if err != nil {
				retErr = fmt.Errorf("encode version %s: %w", version.ID, err)
				return retErr
			}
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO versions(id, group_id, seq, payload) VALUES(?,?,?,?)`,
				version.ID, id, version.Seq, payload,
			); err != nil {
				retErr = fmt.Errorf("insert version %s: %w", version.ID, err)
				return retErr
			}
		}
		for _, entry := range snap.Log[id] {
			payload, err := json.Marshal(entry)
			if err != nil {
				retErr = fmt.Errorf("encode log entry %s: %w", entry.ID, err)
				return retErr
			}
			if _, err := tx.Exec(
				`INSERT OR IGNORE INTO amendment_log(id, group_id, payload) VALUES(?,?,?)`,
				entry.ID, id, payload,
			); err != nil {
				retErr = fmt.Errorf("insert log entry %s: %w", entry.ID, err)
				return retErr
			}
		}
	}
	return tx.Commit()
}

// RunInTransaction applies fn in the in-memory ledger, then mirrors new rows
// to SQLite on success.
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

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
