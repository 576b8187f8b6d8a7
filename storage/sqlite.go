package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"mailservice/internal/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS mensajes_enviados (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	subject TEXT NOT NULL,
	body TEXT NOT NULL,
	timestamp DATETIME DEFAULT CURRENT_TIMESTAMP,
	message_type TEXT,
	recipient TEXT,
	success INTEGER NOT NULL
);`

const insertRecord = `
INSERT INTO mensajes_enviados (subject, body, timestamp, message_type, recipient, success)
VALUES (?, ?, ?, ?, ?, ?)`

// Store is the append-only audit log backed by SQLite.
// Writes are serialized; reads run concurrently.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

var _ audit.Recorder = (*Store)(nil)

// Open creates dir when missing, opens the database file inside it and
// ensures the audit table exists.
func Open(ctx context.Context, dir, name string) (*Store, error) {
	if name == "" {
		return nil, errors.New("storage: empty database name")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	dsn := filepath.Join(dir, name) + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts one row per recipient of entry in a single transaction.
func (s *Store) Record(ctx context.Context, entry audit.Entry) error {
	if len(entry.Recipients) == 0 {
		return nil
	}
	ts := entry.At.Format(audit.TimestampLayout)
	var messageType any
	if entry.MessageType != "" {
		messageType = entry.MessageType
	}
	success := 0
	if entry.Success {
		success = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertRecord)
	if err != nil {
		return fmt.Errorf("storage: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rcpt := range entry.Recipients {
		if _, err := stmt.ExecContext(ctx, entry.Subject, entry.Body, ts, messageType, rcpt, success); err != nil {
			return fmt.Errorf("storage: insert %s: %w", rcpt, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage: commit: %w", err)
	}
	return nil
}

// Records returns the rows for recipient in insertion order. An empty
// recipient returns every row.
func (s *Store) Records(ctx context.Context, recipient string) ([]audit.Record, error) {
	query := `SELECT id, subject, body, CAST(timestamp AS TEXT), COALESCE(message_type, ''), recipient, success
FROM mensajes_enviados`
	var args []any
	if recipient != "" {
		query += ` WHERE recipient = ?`
		args = append(args, recipient)
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("storage: query: %w", err)
	}
	defer rows.Close()

	var out []audit.Record
	for rows.Next() {
		var r audit.Record
		var success int
		if err := rows.Scan(&r.ID, &r.Subject, &r.Body, &r.Timestamp, &r.MessageType, &r.Recipient, &success); err != nil {
			return nil, fmt.Errorf("storage: scan: %w", err)
		}
		r.Success = success == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of audit rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM mensajes_enviados`).Scan(&n); err != nil {
		return 0, fmt.Errorf("storage: count: %w", err)
	}
	return n, nil
}
