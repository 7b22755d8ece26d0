package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/fieldsync/internal/record"
)

// Get retrieves a single record by id.
// Returns ErrNotFound if the id is not in c.
func (s *Store) Get(ctx context.Context, c Collection, id string) (record.Submission, error) {
	if err := s.checkOpen(c); err != nil {
		return record.Submission{}, err
	}
	sub, err := scanSubmission(s.db.QueryRowContext(ctx,
		`SELECT `+submissionColumns+` FROM `+string(c)+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return record.Submission{}, fmt.Errorf("get %s from %s: %w", id, c, ErrNotFound)
	}
	if err != nil {
		return record.Submission{}, classify(s.path, "get", err)
	}
	return sub, nil
}

// GetAll returns every record in c.
//
// Callers must not rely on the order. Rows currently come back by
// created_at, id so test output is stable.
// Returns an empty slice (not nil) if the collection is empty.
func (s *Store) GetAll(ctx context.Context, c Collection) ([]record.Submission, error) {
	if err := s.checkOpen(c); err != nil {
		return nil, err
	}
	return s.query(ctx, c, `
		SELECT `+submissionColumns+`
		FROM `+string(c)+`
		ORDER BY created_at ASC, id COLLATE BINARY ASC
	`)
}

// ListBySyncedAt returns the synchronized collection newest first, using
// the synced_at index. Ties are broken by id.
func (s *Store) ListBySyncedAt(ctx context.Context) ([]record.Submission, error) {
	if err := s.checkOpen(Synchronized); err != nil {
		return nil, err
	}
	return s.query(ctx, Synchronized, `
		SELECT `+submissionColumns+`
		FROM synchronized
		ORDER BY synced_at DESC, id COLLATE BINARY ASC
	`)
}

// Count returns the number of records in c.
func (s *Store) Count(ctx context.Context, c Collection) (int, error) {
	if err := s.checkOpen(c); err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+string(c)).Scan(&n); err != nil {
		return 0, classify(s.path, "count", err)
	}
	return n, nil
}

func (s *Store) query(ctx context.Context, c Collection, q string) ([]record.Submission, error) {
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, classify(s.path, fmt.Sprintf("query %s", c), err)
	}
	defer rows.Close()

	subs := []record.Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, classify(s.path, fmt.Sprintf("scan %s", c), err)
		}
		subs = append(subs, sub)
	}

	if err := rows.Err(); err != nil {
		return nil, classify(s.path, fmt.Sprintf("iterate %s", c), err)
	}
	return subs, nil
}
