package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/fieldsync/internal/record"
)

// row is the column form of a submission shared by both collections.
type row struct {
	id        string
	data      string
	createdAt int64
	status    string
	syncedAt  sql.NullInt64
}

// toRow serializes a submission. Timestamps are stored as UTC unix
// nanoseconds so ORDER BY on them is chronological.
func toRow(sub record.Submission) (row, error) {
	data, err := json.Marshal(sub.Data)
	if err != nil {
		return row{}, fmt.Errorf("marshal payload: %w", err)
	}

	r := row{
		id:        sub.ID,
		data:      string(data),
		createdAt: sub.CreatedAt.UnixNano(),
		status:    string(sub.Status),
	}
	if sub.SyncedAt != nil {
		r.syncedAt = sql.NullInt64{Int64: sub.SyncedAt.UnixNano(), Valid: true}
	}
	return r, nil
}

// fromRow deserializes the stored columns.
func fromRow(r row) (record.Submission, error) {
	var payload record.Payload
	if err := json.Unmarshal([]byte(r.data), &payload); err != nil {
		return record.Submission{}, fmt.Errorf("unmarshal payload %s: %w", r.id, err)
	}

	sub := record.Submission{
		ID:        r.id,
		Data:      payload,
		CreatedAt: time.Unix(0, r.createdAt).UTC(),
		Status:    record.Status(r.status),
	}
	if r.syncedAt.Valid {
		at := time.Unix(0, r.syncedAt.Int64).UTC()
		sub.SyncedAt = &at
	}
	return sub, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanSubmission(sc scanner) (record.Submission, error) {
	var r row
	if err := sc.Scan(&r.id, &r.data, &r.createdAt, &r.status, &r.syncedAt); err != nil {
		return record.Submission{}, err
	}
	return fromRow(r)
}

// statusFor is the only status a record may carry inside c.
func statusFor(c Collection) record.Status {
	if c == Synchronized {
		return record.StatusSynced
	}
	return record.StatusQueued
}

// checkRecord validates sub for storage in c.
func checkRecord(c Collection, sub record.Submission) error {
	if err := sub.Validate(); err != nil {
		return err
	}
	if want := statusFor(c); sub.Status != want {
		return fmt.Errorf("%w: %s: status %q does not belong in %s",
			record.ErrInvalidSubmission, sub.ID, sub.Status, c)
	}
	return nil
}
