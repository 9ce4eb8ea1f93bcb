package transport

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is a transport backed by a single SQLite database: one table of
// published records and one table of content-addressed text. It gives a
// local index durable storage without a directory of loose files.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates the database at dbPath and initializes the
// schema. Parent directories are created if they do not exist.
func NewSQLite(dbPath string) (*SQLite, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		name TEXT PRIMARY KEY,
		blob BLOB NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS contents (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

// Create generates a fresh record id.
func (s *SQLite) Create(ctx context.Context) (*Handle, error) {
	id := uuid.NewString()
	return &Handle{Name: id, ID: id}, nil
}

// Publish upserts blob under name.
func (s *SQLite) Publish(ctx context.Context, name string, blob []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (name, blob, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET blob = excluded.blob, updated_at = excluded.updated_at`,
		name, blob, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("publish record %q: %w", name, err)
	}
	return nil
}

// Fetch returns the blob stored under name.
func (s *SQLite) Fetch(ctx context.Context, name string) ([]byte, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, `SELECT blob FROM records WHERE name = ?`, name).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch record %q: %w", name, err)
	}
	return blob, nil
}

// Exists reports whether a record is stored under name.
func (s *SQLite) Exists(ctx context.Context, name string) bool {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM records WHERE name = ?`, name).Scan(&one)
	return err == nil
}

// Remove deletes the record under name.
func (s *SQLite) Remove(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE name = ?`, name); err != nil {
		return fmt.Errorf("remove record %q: %w", name, err)
	}
	return nil
}

// PutContent stores text under its content address.
func (s *SQLite) PutContent(ctx context.Context, text string) (string, error) {
	id := ContentID(text)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contents (id, text, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, text, time.Now(),
	)
	if err != nil {
		return "", fmt.Errorf("put content: %w", err)
	}
	return id, nil
}

// GetContent returns the text stored under id.
func (s *SQLite) GetContent(ctx context.Context, id string) (string, error) {
	var text string
	err := s.db.QueryRowContext(ctx, `SELECT text FROM contents WHERE id = ?`, id).Scan(&text)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get content %q: %w", id, err)
	}
	return text, nil
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}
