package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	maxReadConns    = 8
	connMaxLifetime = 5 * time.Minute
)

// Store wraps the SQLite metadata database.
//
// Writes go through db, a single connection that serializes writers. Reads go
// through read, a WAL reader pool, so lookups never queue behind a write
// transaction that is waiting on the object store.
type Store struct {
	db   *sql.DB
	read *sql.DB
}

// Open opens the SQLite database and bootstraps the schema.
func Open(path string) (*Store, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	read, err := openReadPool(path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, read: read}, nil
}

// openReadPool opens query-only connections. Pragmas go in the DSN so every
// pooled connection gets them.
func openReadPool(path string) (*sql.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	dsn += fmt.Sprintf("?_pragma=busy_timeout(%d)&_pragma=query_only(1)", busyTimeoutMS)
	read, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	read.SetMaxOpenConns(maxReadConns)
	read.SetMaxIdleConns(maxReadConns)
	read.SetConnMaxLifetime(connMaxLifetime)
	if err := read.Ping(); err != nil {
		_ = read.Close()
		return nil, err
	}
	return read, nil
}

// OpenRaw opens the database without running migrations.
func OpenRaw(path string) (*sql.DB, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	return sql.Open("sqlite", dsn)
}

// Close closes the writer and the reader pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	var readErr error
	if s.read != nil {
		readErr = s.read.Close()
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	return readErr
}

// Ping verifies the database is reachable through the reader pool.
func (s *Store) Ping() error {
	if s == nil || s.read == nil {
		return fmt.Errorf("store is not open")
	}
	return s.read.Ping()
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// One writer connection keeps pragmas and write ordering consistent.
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("db path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

// IsDuplicateKey reports whether err is a uniqueness violation on a blob record.
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	message := err.Error()
	return strings.Contains(message, "UNIQUE constraint failed: blobs.id") ||
		strings.Contains(message, "UNIQUE constraint failed: blobs.storage_key")
}

func isOwnerDuplicate(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: blob_owners.")
}

func isForeignKeyViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func dbFormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func dbParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
