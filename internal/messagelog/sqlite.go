package messagelog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteSink stores entries in a single append-only table.
type SQLiteSink struct {
	db     *sql.DB
	dbPath string
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
func OpenSQLite(path string) (*SQLiteSink, error) {
	if path == "" {
		return nil, fmt.Errorf("message log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Writer is the only producer; one connection keeps sqlite from contending with itself.
	db.SetMaxOpenConns(1)

	sink := &SQLiteSink{db: db, dbPath: path}
	if err := sink.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return sink, nil
}

func (s *SQLiteSink) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		logged_at TEXT NOT NULL,
		remote TEXT NOT NULL DEFAULT '',
		message BLOB NOT NULL
	);

	CREATE TRIGGER IF NOT EXISTS messages_no_update BEFORE UPDATE ON messages
	BEGIN
		SELECT RAISE(ABORT, 'messages are append-only');
	END;

	CREATE TRIGGER IF NOT EXISTS messages_no_delete BEFORE DELETE ON messages
	BEGIN
		SELECT RAISE(ABORT, 'messages are append-only');
	END;
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Append inserts e.
func (s *SQLiteSink) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (logged_at, remote, message) VALUES (?, ?, ?)`,
		e.Timestamp.UTC().Format(time.RFC3339Nano), e.Remote, e.Message,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// Entries returns every stored entry in insertion order.
func (s *SQLiteSink) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT logged_at, remote, message FROM messages ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			stamp string
			e     Entry
		)
		if err := rows.Scan(&stamp, &e.Remote, &e.Message); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if e.Timestamp, err = time.Parse(time.RFC3339Nano, stamp); err != nil {
			return nil, fmt.Errorf("parse timestamp %q: %w", stamp, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database connection
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
