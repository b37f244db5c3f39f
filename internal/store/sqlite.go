package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// busyTimeoutMS is the SQLite busy_timeout in milliseconds. License
// operations are short writes, so a modest wait is enough.
const busyTimeoutMS = 5000

// SQLite is a Store backed by a local SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) a SQLite-backed store at path
// and runs pending schema migrations.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." && !strings.Contains(path, ":memory:") {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", normalizeDSN(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection: the store sees one writer per key in practice
	// and SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeoutMS),
		"PRAGMA synchronous=NORMAL",
		"PRAGMA journal_mode=WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(context.Background(), pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma %q: %w", pragma, err)
		}
	}

	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// normalizeDSN builds a modernc.org/sqlite DSN. mode=rwc so the database
// file is created when missing.
func normalizeDSN(path string) string {
	if strings.HasPrefix(path, "file:") {
		return path
	}
	if path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	return "file:" + path + "?mode=rwc"
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetVerbose(false)
	goose.SetLogger(goose.NopLogger())

	// goose's dialect name is "sqlite3" even though the driver registers
	// as "sqlite"; the dialect only controls SQL generation.
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

// Get returns the value for key and whether it exists.
func (s *SQLite) Get(ctx context.Context, scope Scope, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM license_kv WHERE scope = ? AND key = ?`,
		string(scope), key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s/%s: %w", scope, key, err)
	}
	return value, true, nil
}

// Set stores value under key, overwriting any previous value.
func (s *SQLite) Set(ctx context.Context, scope Scope, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO license_kv (scope, key, value, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(scope, key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP
	`, string(scope), key, value)
	if err != nil {
		return fmt.Errorf("failed to write %s/%s: %w", scope, key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *SQLite) Delete(ctx context.Context, scope Scope, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM license_kv WHERE scope = ? AND key = ?`,
		string(scope), key)
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", scope, key, err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
