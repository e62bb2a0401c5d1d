package tasks

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS tasks(
	seq INTEGER PRIMARY KEY,
	id TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	body TEXT NOT NULL
);`

// SQLiteStore keeps one row per task in a SQLite database. Save rewrites
// the table inside one transaction.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("tasks: create %s: %w", filepath.Dir(path), err)
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("tasks: open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tasks: ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tasks: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM tasks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("tasks: query: %w", err)
	}
	defer rows.Close()

	var raw []json.RawMessage
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("tasks: scan: %w", err)
		}
		raw = append(raw, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tasks: rows: %w", err)
	}
	return decodeRecords(raw)
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, records []Record) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("tasks: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("tasks: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO tasks(seq, id, status, updated_at, body) VALUES(?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("tasks: prepare: %w", err)
	}
	defer stmt.Close()

	for i, rec := range records {
		body, mErr := json.Marshal(rec)
		if mErr != nil {
			err = fmt.Errorf("tasks: encode %s: %w", rec.ID, mErr)
			return err
		}
		if _, err = stmt.ExecContext(ctx, i, rec.ID, string(rec.Status), rec.UpdatedAt.Format(time.RFC3339Nano), string(body)); err != nil {
			return fmt.Errorf("tasks: insert %s: %w", rec.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("tasks: commit: %w", err)
	}
	return nil
}
