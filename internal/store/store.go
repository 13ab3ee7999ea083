// Package store implements the cache's durable tier: a single-table SQLite
// database accessed through database/sql, in WAL journaling mode, with
// every operation framed in its own transaction and bound parameters
// throughout. This is the source of truth the spec requires memory to be
// a subset of.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Row is one persisted entry: (key, encoded_bytes, timestamp,
// schema_version, size).
type Row struct {
	Key           string
	Value         []byte
	Timestamp     float64
	SchemaVersion string
	Size          int64
}

// Store wraps the single shared connection to the cache's SQLite file.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory of path if missing, opens (or
// creates) the database there, enables WAL journaling, and ensures the
// schema and its ordering index exist.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory %q: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// A single connection keeps SQLite's one-writer model aligned with
	// the coordinator's own single-writer locking discipline.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS cache (
			key            TEXT PRIMARY KEY,
			value          TEXT NOT NULL,
			timestamp      REAL NOT NULL,
			schema_version TEXT NOT NULL,
			size           INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("store: create table: %w", err)
	}

	_, err = s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_cache_ts_key ON cache(timestamp, key)`)
	if err != nil {
		return fmt.Errorf("store: create index: %w", err)
	}
	return nil
}

// GetByKey returns the row for key, or ok=false if no such row exists.
func (s *Store) GetByKey(key string) (row Row, ok bool, err error) {
	tx, err := s.db.Begin()
	if err != nil {
		return Row{}, false, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var r Row
	r.Key = key
	err = tx.QueryRow(
		`SELECT value, timestamp, schema_version, size FROM cache WHERE key = ?`, key,
	).Scan(&r.Value, &r.Timestamp, &r.SchemaVersion, &r.Size)
	if err == sql.ErrNoRows {
		return Row{}, false, nil
	}
	if err != nil {
		return Row{}, false, fmt.Errorf("store: get %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return Row{}, false, fmt.Errorf("store: commit: %w", err)
	}
	return r, true, nil
}

// Write upserts a single row, replacing any prior entry for the same key.
func (s *Store) Write(row Row) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if err := writeRow(tx, row); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// WriteBatch upserts every row inside a single transaction: either all
// rows land or, on any failure, none do.
func (s *Store) WriteBatch(rows []Row) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	for _, row := range rows {
		if err := writeRow(tx, row); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit batch: %w", err)
	}
	return nil
}

func writeRow(tx *sql.Tx, row Row) error {
	_, err := tx.Exec(
		`INSERT INTO cache (key, value, timestamp, schema_version, size)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   timestamp = excluded.timestamp,
		   schema_version = excluded.schema_version,
		   size = excluded.size`,
		row.Key, row.Value, row.Timestamp, row.SchemaVersion, row.Size,
	)
	if err != nil {
		return fmt.Errorf("store: write %q: %w", row.Key, err)
	}
	return nil
}

// UpdateTimestamp rewrites only the timestamp column for key, used when a
// get touches an entry without re-encoding or rewriting its value.
func (s *Store) UpdateTimestamp(key string, timestamp float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`UPDATE cache SET timestamp = ? WHERE key = ?`, timestamp, key); err != nil {
		return fmt.Errorf("store: touch %q: %w", key, err)
	}
	return tx.Commit()
}

// Delete removes key if present; a missing key is not an error.
func (s *Store) Delete(key string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return tx.Commit()
}

// DeleteMany removes every named key inside a single transaction; keys
// with no matching row are silently skipped.
func (s *Store) DeleteMany(keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`DELETE FROM cache WHERE key = ?`)
	if err != nil {
		return fmt.Errorf("store: prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, key := range keys {
		if _, err := stmt.Exec(key); err != nil {
			return fmt.Errorf("store: delete %q: %w", key, err)
		}
	}
	return tx.Commit()
}

// DeleteAll removes every row.
func (s *Store) DeleteAll() error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cache`); err != nil {
		return fmt.Errorf("store: delete all: %w", err)
	}
	return tx.Commit()
}

// DeleteSchemaMismatches removes every row whose schema_version differs
// from expected, returning the count removed. Used during initialization
// cleanup.
func (s *Store) DeleteSchemaMismatches(expected string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM cache WHERE schema_version != ?`, expected)
	if err != nil {
		return 0, fmt.Errorf("store: delete schema mismatches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("store: commit: %w", err)
	}
	return n, nil
}

// Count returns the current row count.
func (s *Store) Count() (int64, error) {
	var n int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

// SumSize returns the sum of the size column across all rows.
func (s *Store) SumSize() (int64, error) {
	var total sql.NullInt64
	if err := s.db.QueryRow(`SELECT SUM(size) FROM cache`).Scan(&total); err != nil {
		return 0, fmt.Errorf("store: sum size: %w", err)
	}
	return total.Int64, nil
}

// Exists reports whether key has a row, without returning its value.
func (s *Store) Exists(key string) (bool, error) {
	var one int
	err := s.db.QueryRow(`SELECT 1 FROM cache WHERE key = ?`, key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: exists %q: %w", key, err)
	}
	return true, nil
}

// IterOldest returns up to n rows ordered by (timestamp asc, key asc). A
// non-positive n returns every row in that order.
func (s *Store) IterOldest(n int) ([]Row, error) {
	query := `SELECT key, value, timestamp, schema_version, size FROM cache ORDER BY timestamp ASC, key ASC`
	var rows *sql.Rows
	var err error
	if n > 0 {
		rows, err = s.db.Query(query+` LIMIT ?`, n)
	} else {
		rows, err = s.db.Query(query)
	}
	if err != nil {
		return nil, fmt.Errorf("store: iter oldest: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.Key, &r.Value, &r.Timestamp, &r.SchemaVersion, &r.Size); err != nil {
			return nil, fmt.Errorf("store: scan row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iter oldest: %w", err)
	}
	return out, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
