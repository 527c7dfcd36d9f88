// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package history persists pipeline result sets per user so a researcher
// can list, reopen, search, and export earlier runs.
// Implements: prd005-history (R1-R4).
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/evidence-engine/internal/errs"
	"github.com/pdiddy/evidence-engine/pkg/types"
)

const (
	dbFile       = "history.db"
	defaultLimit = 20

	// tsLayout has fixed width so stored timestamps sort as text.
	tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

	// fts5Tag is the go-sqlite3 build tag that compiles in FTS5.
	fts5Tag = "sqlite_fts5"
)

// Entry is one saved result set.
type Entry struct {
	ID        string                 `json:"id" yaml:"id"`
	UserID    string                 `json:"user_id" yaml:"user_id"`
	Query     string                 `json:"query" yaml:"query"`
	CreatedAt time.Time              `json:"created_at" yaml:"created_at"`
	Documents []types.ScoredDocument `json:"documents" yaml:"documents"`
}

// Store manages the history SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens or creates dir/history.db and its schema.
func NewStore(cfg types.HistoryConfig) (*Store, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = "history"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, dbFile)+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entries (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			user_id TEXT NOT NULL,
			query TEXT NOT NULL,
			created_at TEXT NOT NULL,
			documents TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_user ON entries(user_id, created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	// FTS5 over query text, kept in sync by triggers.
	var ftsExists int
	if err := s.db.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='entries_fts'`,
	).Scan(&ftsExists); err != nil {
		return fmt.Errorf("checking FTS table: %w", err)
	}
	if ftsExists == 0 {
		ftsStatements := []string{
			`CREATE VIRTUAL TABLE entries_fts USING fts5(query, content=entries, content_rowid=rowid)`,
			`CREATE TRIGGER entries_ai AFTER INSERT ON entries BEGIN
				INSERT INTO entries_fts(rowid, query) VALUES (new.rowid, new.query);
			END`,
			`CREATE TRIGGER entries_ad AFTER DELETE ON entries BEGIN
				INSERT INTO entries_fts(entries_fts, rowid, query) VALUES('delete', old.rowid, old.query);
			END`,
		}
		for _, stmt := range ftsStatements {
			if _, err := s.db.Exec(stmt); err != nil {
				if strings.Contains(err.Error(), "no such module: fts5") {
					return fmt.Errorf("creating FTS infrastructure (build with -tags %s): %w", fts5Tag, err)
				}
				return fmt.Errorf("creating FTS infrastructure: %w", err)
			}
		}
	}
	return nil
}

// Save stores docs as a new entry for userID.
func (s *Store) Save(ctx context.Context, userID, query string, docs []types.ScoredDocument) (Entry, error) {
	e := Entry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Query:     query,
		CreatedAt: s.now().UTC(),
		Documents: docs,
	}
	blob, err := sonic.ConfigStd.Marshal(docs)
	if err != nil {
		return Entry{}, fmt.Errorf("encoding documents: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entries (id, user_id, query, created_at, documents) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, e.Query, e.CreatedAt.Format(tsLayout), string(blob),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("inserting entry: %w", err)
	}
	return e, nil
}

// List returns userID's entries, newest first.
func (s *Store) List(ctx context.Context, userID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, query, created_at, documents FROM entries
		 WHERE user_id = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	return scanEntries(rows)
}

// Get returns one entry. Entries of other users are not found.
func (s *Store) Get(ctx context.Context, userID, id string) (Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, query, created_at, documents FROM entries WHERE user_id = ? AND id = ?`,
		userID, id)
	if err != nil {
		return Entry{}, fmt.Errorf("looking up entry: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, errs.Ef(errs.NotFound, "history.get", "entry %s not found", id)
	}
	return entries[0], nil
}

// Delete removes one entry.
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return fmt.Errorf("deleting entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.Ef(errs.NotFound, "history.delete", "entry %s not found", id)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			created string
			blob    string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Query, &created, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		t, err := time.Parse(tsLayout, created)
		if err != nil {
			return nil, fmt.Errorf("entry %s: bad timestamp: %w", e.ID, err)
		}
		e.CreatedAt = t
		if err := sonic.ConfigStd.UnmarshalFromString(blob, &e.Documents); err != nil {
			return nil, fmt.Errorf("entry %s: decoding documents: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
