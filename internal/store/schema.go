package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
)

// Schema version tracking:
// 0 - Empty database
// 1 - pending collection
// 2 - synchronized collection with synced_at index
const CurrentSchemaVersion = 2

// Collection names a record collection.
type Collection string

const (
	// Pending holds submissions not yet acknowledged by the remote.
	Pending Collection = "pending"

	// Synchronized holds submissions acknowledged by the remote.
	Synchronized Collection = "synchronized"
)

// sinceVersion is the schema version that introduced c, or 0 if c is unknown.
func (c Collection) sinceVersion() int {
	switch c {
	case Pending:
		return 1
	case Synchronized:
		return 2
	}
	return 0
}

// other returns the collection c must stay disjoint from.
func (c Collection) other() Collection {
	if c == Pending {
		return Synchronized
	}
	return Pending
}

// migration is one additive schema step. Statements must be idempotent so a
// partially created collection is completed rather than rejected.
type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{`
			CREATE TABLE IF NOT EXISTS pending (
				id         TEXT PRIMARY KEY,
				data       TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				status     TEXT NOT NULL CHECK (status = 'queued'),
				synced_at  INTEGER CHECK (synced_at IS NULL)
			)`,
		},
	},
	{
		version: 2,
		statements: []string{`
			CREATE TABLE IF NOT EXISTS synchronized (
				id         TEXT PRIMARY KEY,
				data       TEXT NOT NULL,
				created_at INTEGER NOT NULL,
				status     TEXT NOT NULL CHECK (status = 'synced'),
				synced_at  INTEGER NOT NULL CHECK (synced_at >= created_at)
			)`, `
			CREATE INDEX IF NOT EXISTS idx_synchronized_synced_at
			ON synchronized(synced_at)`,
		},
	},
}

// expectedObjects lists the tables and indexes a schema at version must contain.
func expectedObjects(version int) map[string]string {
	objects := map[string]string{}
	if version >= 1 {
		objects["pending"] = "table"
	}
	if version >= 2 {
		objects["synchronized"] = "table"
		objects["idx_synchronized_synced_at"] = "index"
	}
	return objects
}

// readVersion returns the on-disk schema version.
func readVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return version, nil
}

// migrate applies every step above from up to and including to, then stamps
// user_version, all in one transaction.
func migrate(ctx context.Context, db *sql.DB, from, to int) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, m := range migrations {
		if m.version <= from || m.version > to {
			continue
		}
		for _, stmt := range m.statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate to v%d: %w", m.version, err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", to)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit: %w", err)
	}
	return nil
}

// missingObjects returns the names of schema objects absent at version.
func missingObjects(ctx context.Context, db *sql.DB, version int) ([]string, error) {
	var missing []string
	for name, kind := range expectedObjects(version) {
		var found string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = ? AND name = ?",
			kind, name,
		).Scan(&found)
		if err == sql.ErrNoRows {
			missing = append(missing, name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("inspect schema: %w", err)
		}
	}
	sort.Strings(missing)
	return missing, nil
}
