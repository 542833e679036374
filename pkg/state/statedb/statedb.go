// Package statedb exports and imports shared context stores to a SQLite
// database so state can outlive the process.
package statedb

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/germanamz/relay/pkg/state"
	_ "modernc.org/sqlite"
)

// ErrSnapshotNotFound is returned when loading a snapshot name never saved.
var ErrSnapshotNotFound = errors.New("statedb: snapshot not found")

// Snapshot describes a saved store.
type Snapshot struct {
	Name    string
	Keys    int
	SavedAt time.Time
}

// DB is a SQLite-backed snapshot database.
type DB struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("statedb: open %s: %w", path, err)
	}

	d := &DB{db: db}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return d, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS snapshots (
		name TEXT PRIMARY KEY,
		saved_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS entries (
		snapshot TEXT NOT NULL REFERENCES snapshots(name) ON DELETE CASCADE,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (snapshot, key)
	);
	`

	if _, err := d.db.Exec(schema); err != nil {
		return fmt.Errorf("statedb: migrate: %w", err)
	}

	return nil
}

// Save writes a snapshot of s under name, replacing any previous one.
func (d *DB) Save(ctx context.Context, name string, s *state.Store) error {
	snap := s.Snapshot()

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("statedb: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE snapshot = ?`, name); err != nil {
		return fmt.Errorf("statedb: clear %s: %w", name, err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (name, saved_at) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET saved_at = excluded.saved_at`,
		name, time.Now().UnixNano(),
	); err != nil {
		return fmt.Errorf("statedb: save %s: %w", name, err)
	}

	for k, v := range snap {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("statedb: encode %s: %w", k, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO entries (snapshot, key, value) VALUES (?, ?, ?)`,
			name, k, string(b),
		); err != nil {
			return fmt.Errorf("statedb: write %s: %w", k, err)
		}
	}

	return tx.Commit()
}

// Load reads the snapshot saved under name. Whole numbers come back as int
// so counters keep working after a round trip.
func (d *DB) Load(ctx context.Context, name string) (map[string]any, error) {
	var exists int
	err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots WHERE name = ?`, name).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("statedb: load %s: %w", name, err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, name)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT key, value FROM entries WHERE snapshot = ?`, name)
	if err != nil {
		return nil, fmt.Errorf("statedb: load %s: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]any)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("statedb: scan: %w", err)
		}
		v, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("statedb: decode %s: %w", key, err)
		}
		out[key] = v
	}

	return out, rows.Err()
}

// Restore replaces the content of s with the snapshot saved under name.
func (d *DB) Restore(ctx context.Context, name string, s *state.Store) error {
	data, err := d.Load(ctx, name)
	if err != nil {
		return err
	}
	s.Replace(data)
	return nil
}

// List returns all saved snapshots, newest first.
func (d *DB) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT s.name, s.saved_at, COUNT(e.key)
		FROM snapshots s LEFT JOIN entries e ON e.snapshot = s.name
		GROUP BY s.name, s.saved_at
		ORDER BY s.saved_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("statedb: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Snapshot
	for rows.Next() {
		var (
			s     Snapshot
			nanos int64
		)
		if err := rows.Scan(&s.Name, &nanos, &s.Keys); err != nil {
			return nil, fmt.Errorf("statedb: scan: %w", err)
		}
		s.SavedAt = time.Unix(0, nanos)
		out = append(out, s)
	}

	return out, rows.Err()
}

func decode(raw string) (any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n)
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		for k, e := range x {
			x[k] = normalize(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = normalize(e)
		}
		return x
	}
	return v
}
