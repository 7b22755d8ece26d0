package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/fieldsync/internal/record"
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// createTestConnector returns a connector for a fresh database file.
func createTestConnector(t *testing.T, opts ...ConnectorOption) *Connector {
	t.Helper()
	return NewConnector(filepath.Join(t.TempDir(), DefaultAppName+".db"), opts...)
}

// createTestStore opens a fresh database at the current schema version.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, event, err := createTestConnector(t).Open(context.Background())
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if event != EventOpened {
		t.Fatalf("Open() event = %v, want opened", event)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSubmission creates a queued submission created offset after baseTime.
func createTestSubmission(id string, offset time.Duration) record.Submission {
	created := baseTime.Add(offset)
	return record.Submission{
		ID:        id,
		Data:      record.Payload{Text: "sample " + id, Timestamp: created},
		CreatedAt: created,
		Status:    record.StatusQueued,
	}
}

// stampAt returns a transform marking records synced at the given time.
func stampAt(at time.Time) func(record.Submission) record.Submission {
	return func(s record.Submission) record.Submission {
		return s.MarkSynced(at)
	}
}
