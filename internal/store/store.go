package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store is one live connection to the local database.
//
// Uses SQLite with WAL mode and a single pooled connection, so every
// statement is serialized through one writer.
type Store struct {
	db      *sql.DB
	conn    *Connector
	path    string
	version int
	hold    bool
	closed  atomic.Bool
	events  chan OpenEvent // Lifecycle notifications (buffered, size 1)
	logger  *zap.Logger
}

// Open is shorthand for NewConnector(path).Open(ctx) for callers that need
// a single connection.
func Open(ctx context.Context, path string, opts ...ConnectorOption) (*Store, error) {
	s, _, err := NewConnector(path, opts...).Open(ctx)
	return s, err
}

// Close releases the connection. Safe to call more than once.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.detach(s)
}

// Closed reports whether the connection was released, reset or forced closed.
func (s *Store) Closed() bool {
	return s.closed.Load()
}

// Version returns the schema version this connection was opened at.
func (s *Store) Version() int {
	return s.version
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Events delivers EventBlocking when a newer Open needs this connection to
// go away. A releasing connection is already closed when the event arrives.
func (s *Store) Events() <-chan OpenEvent {
	return s.events
}

// Reset destroys all persisted state and invalidates this connection.
// The next Open on the connector recreates an empty schema.
func (s *Store) Reset(ctx context.Context) error {
	return s.conn.Reset(ctx)
}

// notify delivers e without blocking; the buffer of 1 coalesces repeats.
func (s *Store) notify(e OpenEvent) {
	select {
	case s.events <- e:
	default:
	}
}

// checkOpen returns ErrClosed for a released connection and a CORRUPTION
// error for a collection the schema version does not include.
func (s *Store) checkOpen(c Collection) error {
	if s.closed.Load() {
		return ErrClosed
	}
	since := c.sinceVersion()
	if since == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, string(c))
	}
	if since > s.version {
		return newCorruptionError(s.path,
			fmt.Sprintf("collection %q not available at schema version %d", c, s.version), nil)
	}
	return nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(ctx context.Context, db *sql.DB, busyTimeout time.Duration) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}
