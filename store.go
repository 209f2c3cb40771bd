package imagepulse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// timeFormat is the fixed-width UTC layout used for every timestamp
// column. Fixed width keeps lexicographic order equal to chronological
// order, which MAX() and ORDER BY on text columns rely on.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// Store provides SQLite-backed persistence for pull events, counters
// and the pull job queue.
type Store struct {
	db   *sql.DB
	path string
}

// OpenStore opens (creating parent directories if needed) the SQLite
// database at path. Use ":memory:" for an in-memory database, which is
// what the tests do.
func OpenStore(path string) (*Store, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only allows one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// DB returns the underlying database connection for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Initialize creates all tables and indexes. It is idempotent: every
// statement is CREATE ... IF NOT EXISTS, so re-running it against an
// already initialized database changes nothing and loses no data.
func (s *Store) Initialize() error {
	if _, err := s.db.Exec(schema); err != nil {
		return &InitError{Err: err}
	}
	log.WithField("database", s.path).Debug("schema initialized")
	return nil
}

// HealthCheck performs a trivial round-trip against the database and
// reports whether it succeeded. It never returns an error; any failure
// means "unhealthy".
func (s *Store) HealthCheck(ctx context.Context) bool {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		log.WithError(err).Warn("store health check failed")
		return false
	}
	return one == 1
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}
