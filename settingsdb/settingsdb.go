// Package settingsdb is the generic key/value settings store: JSON values
// keyed by name in a single SQLite table.
package settingsdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB persists settings values.
type DB struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the settings database at path, creating its parent
// directory when needed.
func Open(path string) (*DB, error) {
	if path == "" {
		return nil, errors.New("settingsdb: empty path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("settingsdb: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{db: db, now: time.Now}, nil
}

// Load decodes the value stored under key into v. It reports false, leaving
// v untouched, when key has never been saved.
func (d *DB) Load(ctx context.Context, key string, v any) (bool, error) {
	var raw string
	err := d.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("settingsdb: load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("settingsdb: decode %s: %w", key, err)
	}
	return true, nil
}

// Save stores v under key as JSON, replacing any previous value.
func (d *DB) Save(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("settingsdb: encode %s: %w", key, err)
	}
	_, err = d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
		key, string(b), d.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("settingsdb: save %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (d *DB) Delete(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("settingsdb: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists stored keys in lexical order.
func (d *DB) Keys(ctx context.Context) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (d *DB) Close() error {
	return d.db.Close()
}
