// Package roomstate provides SQLite-backed storage for room state events
// and per-room account data: the membership, power-level and account-data
// lookups the timeline's collaborators need.
package roomstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/tOgg1/loom/internal/logging"
)

// Store errors.
var (
	ErrNotFound = errors.New("not found")
)

const (
	defaultRetryAttempts = 3
	defaultRetryBackoff  = 50 * time.Millisecond
)

// Store wraps the sqlite database holding room state and account data.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the state database at path and ensures
// the schema exists. Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open state database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to state database: %w", err)
	}

	store := &Store{db: db, log: logging.Component("roomstate")}
	if err := store.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS room_state (
			room_id TEXT NOT NULL,
			type TEXT NOT NULL,
			state_key TEXT NOT NULL,
			sender TEXT NOT NULL,
			event_id TEXT,
			origin_server_ts INTEGER NOT NULL DEFAULT 0,
			content_json TEXT NOT NULL,
			PRIMARY KEY (room_id, type, state_key)
		)`,
		`CREATE TABLE IF NOT EXISTS room_account_data (
			room_id TEXT NOT NULL,
			type TEXT NOT NULL,
			content_json TEXT NOT NULL,
			PRIMARY KEY (room_id, type)
		)`,
		`CREATE INDEX IF NOT EXISTS room_state_members_idx ON room_state(room_id, type)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize state schema: %w", err)
		}
	}
	return nil
}

// Transaction runs fn inside a transaction, committing on nil error.
func (s *Store) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// TransactionWithRetry runs a transaction with retry handling for busy
// database errors.
func (s *Store) TransactionWithRetry(ctx context.Context, maxAttempts int, baseBackoff time.Duration, fn func(*sql.Tx) error) error {
	if maxAttempts <= 0 {
		maxAttempts = defaultRetryAttempts
	}
	if baseBackoff <= 0 {
		baseBackoff = defaultRetryBackoff
	}

	attempt := 0
	backoff := baseBackoff
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := s.Transaction(ctx, fn)
		if err == nil {
			return nil
		}

		attempt++
		if !isBusyError(err) || attempt >= maxAttempts {
			return err
		}

		if err := sleepWithContext(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
}

func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	message := strings.ToLower(err.Error())
	return strings.Contains(message, "database is locked") ||
		strings.Contains(message, "database is busy") ||
		strings.Contains(message, "sqlite_busy")
}

func sleepWithContext(ctx context.Context, duration time.Duration) error {
	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
