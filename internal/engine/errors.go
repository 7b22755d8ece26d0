package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/fieldsync/internal/remote"
)

// SyncError reports why a sync attempt failed.
//
// Stage tells the caller whether local state could have changed: for every
// stage except StageMove nothing was written.
type SyncError struct {
	// Stage identifies the failing step.
	Stage Stage

	// Snapshot is the number of records the attempt covered.
	Snapshot int

	// Err is the underlying failure.
	Err error
}

// Stage names a step of the sync protocol.
type Stage string

const (
	// StageSnapshot means pending could not be read.
	StageSnapshot Stage = "SNAPSHOT"

	// StagePush means the batch was not accepted by the remote.
	StagePush Stage = "PUSH"

	// StageMove means the remote accepted the batch but the local move
	// failed. The records stay pending and are replayed on the next sync;
	// the remote deduplicates them by id.
	StageMove Stage = "MOVE"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s (snapshot=%d): %v", e.Stage, e.Snapshot, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the attempt left pending untouched and may
// succeed later without intervention.
func IsRetryable(err error) bool {
	var se *SyncError
	if !errors.As(err, &se) {
		return false
	}
	switch se.Stage {
	case StagePush:
		return remote.IsRetryable(se.Err)
	case StageMove:
		return true
	}
	return false
}
