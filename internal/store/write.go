package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/roach88/fieldsync/internal/record"
)

const submissionColumns = "id, data, created_at, status, synced_at"

// Put upserts sub into c keyed by id. Writing the same record twice is a
// no-op; writing a changed record replaces it.
//
// Returns ErrDuplicateID if the id already lives in the other collection.
func (s *Store) Put(ctx context.Context, c Collection, sub record.Submission) error {
	if err := s.checkOpen(c); err != nil {
		return err
	}
	if err := checkRecord(c, sub); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	r, err := toRow(sub)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(s.path, "put: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	if other := c.other(); other.sinceVersion() <= s.version {
		exists, err := existsTx(ctx, tx, other, sub.ID)
		if err != nil {
			return classify(s.path, "put: check other collection", err)
		}
		if exists {
			return fmt.Errorf("put %s into %s: %w", sub.ID, c, ErrDuplicateID)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO `+string(c)+` (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			created_at = excluded.created_at,
			status = excluded.status,
			synced_at = excluded.synced_at
	`, r.id, r.data, r.createdAt, r.status, r.syncedAt)
	if err != nil {
		return classify(s.path, "put", err)
	}

	if err := tx.Commit(); err != nil {
		return classify(s.path, "put: commit", err)
	}
	return nil
}

// MoveAtomically moves ids from one collection to another as a single
// transaction. Each record is read from from, rewritten by transform,
// inserted into to and deleted from from. Either every id moves or none do.
//
// Returns ErrNotFound (wrapped) if any id is absent from from, and
// ErrDuplicateID if any id is already in to. Repeated ids are moved once.
func (s *Store) MoveAtomically(
	ctx context.Context,
	from, to Collection,
	ids []string,
	transform func(record.Submission) record.Submission,
) (int, error) {
	if err := s.checkOpen(from); err != nil {
		return 0, err
	}
	if err := s.checkOpen(to); err != nil {
		return 0, err
	}
	if from == to {
		return 0, fmt.Errorf("move: source and destination are both %s", from)
	}
	ids = uniqueIDs(ids)
	if len(ids) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify(s.path, "move: begin tx", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		sub, err := scanSubmission(tx.QueryRowContext(ctx,
			`SELECT `+submissionColumns+` FROM `+string(from)+` WHERE id = ?`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("move %s from %s: %w", id, from, ErrNotFound)
		}
		if err != nil {
			return 0, classify(s.path, "move: read", err)
		}

		moved := sub
		if transform != nil {
			moved = transform(sub)
		}
		if moved.ID != id {
			return 0, fmt.Errorf("move %s: transform changed id to %q", id, moved.ID)
		}
		if err := checkRecord(to, moved); err != nil {
			return 0, fmt.Errorf("move: %w", err)
		}
		r, err := toRow(moved)
		if err != nil {
			return 0, fmt.Errorf("move: %w", err)
		}

		exists, err := existsTx(ctx, tx, to, id)
		if err != nil {
			return 0, classify(s.path, "move: check destination", err)
		}
		if exists {
			return 0, fmt.Errorf("move %s into %s: %w", id, to, ErrDuplicateID)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+string(to)+` (`+submissionColumns+`) VALUES (?, ?, ?, ?, ?)`,
			r.id, r.data, r.createdAt, r.status, r.syncedAt,
		); err != nil {
			return 0, classify(s.path, "move: insert", err)
		}

		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+string(from)+` WHERE id = ?`, id,
		); err != nil {
			return 0, classify(s.path, "move: delete", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, classify(s.path, "move: commit", err)
	}

	s.logger.Debug("records moved",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("count", len(ids)),
	)
	return len(ids), nil
}

// Delete removes id from c. Deleting an absent id is a no-op.
func (s *Store) Delete(ctx context.Context, c Collection, id string) error {
	if err := s.checkOpen(c); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+string(c)+` WHERE id = ?`, id); err != nil {
		return classify(s.path, "delete", err)
	}
	return nil
}

// Clear removes every record from c.
func (s *Store) Clear(ctx context.Context, c Collection) error {
	if err := s.checkOpen(c); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM `+string(c)); err != nil {
		return classify(s.path, "clear", err)
	}
	return nil
}

func existsTx(ctx context.Context, tx *sql.Tx, c Collection, id string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM `+string(c)+` WHERE id = ?`, id,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
