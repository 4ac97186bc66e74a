package isoworker

import (
	"database/sql"
	"errors"
	"fmt"

	// Pure-Go SQLite driver for database/sql.
	_ "github.com/glebarez/sqlite"
)

// ErrScriptNotFound is returned by SourceStore.Get for unknown script names.
var ErrScriptNotFound = errors.New("script not found")

// SourceStore keeps named script sources in a SQLite database so hosts can
// deploy scripts once and load them into any number of workers. It stores
// source text only; worker state never persists across restarts.
type SourceStore struct {
	db *sql.DB
}

// OpenSourceStore opens (creating if needed) the store at path. Use
// ":memory:" for an ephemeral store.
func OpenSourceStore(path string) (*SourceStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening source store: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS scripts (
		name       TEXT PRIMARY KEY,
		source     TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing source store schema: %w", err)
	}

	return &SourceStore{db: db}, nil
}

// Put stores source under name, replacing any previous version.
func (s *SourceStore) Put(name, source string) error {
	_, err := s.db.Exec(`INSERT INTO scripts (name, source, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(name) DO UPDATE SET source = excluded.source, updated_at = excluded.updated_at`,
		name, source)
	if err != nil {
		return fmt.Errorf("storing script %q: %w", name, err)
	}
	return nil
}

// Get returns the stored source for name, or ErrScriptNotFound.
func (s *SourceStore) Get(name string) (string, error) {
	var source string
	err := s.db.QueryRow(`SELECT source FROM scripts WHERE name = ?`, name).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("script %q: %w", name, ErrScriptNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("reading script %q: %w", name, err)
	}
	return source, nil
}

// List returns the stored script names in lexical order.
func (s *SourceStore) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT name FROM scripts ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing scripts: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning script name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing scripts: %w", err)
	}
	return names, nil
}

// Delete removes the named script. Deleting an absent script is not an
// error.
func (s *SourceStore) Delete(name string) error {
	if _, err := s.db.Exec(`DELETE FROM scripts WHERE name = ?`, name); err != nil {
		return fmt.Errorf("deleting script %q: %w", name, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SourceStore) Close() error {
	return s.db.Close()
}

// LoadFrom fetches the named script from store and loads it into the worker
// under that name. The error reports store failures; the Status reports the
// load outcome and is StatusCompileError when the script could not be
// fetched.
func (w *Worker) LoadFrom(store *SourceStore, name string) (Status, error) {
	source, err := store.Get(name)
	if err != nil {
		return StatusCompileError, err
	}
	return w.Load(name, source), nil
}
