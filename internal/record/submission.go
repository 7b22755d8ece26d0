package record

import (
	"errors"
	"fmt"
	"time"
)

// Status is the persisted lifecycle state of a submission.
type Status string

const (
	// StatusQueued marks a submission waiting in the pending collection.
	StatusQueued Status = "queued"

	// StatusSynced marks a submission acknowledged by the remote.
	StatusSynced Status = "synced"

	// StatusSyncing labels a submission included in an outstanding batch.
	// It is never persisted.
	StatusSyncing Status = "syncing"
)

// Valid reports whether s may be persisted.
func (s Status) Valid() bool {
	return s == StatusQueued || s == StatusSynced
}

// Payload is the opaque user content of a submission.
type Payload struct {
	// Text is the optional free-text description.
	Text string `json:"text,omitempty"`

	// Image is the optional pre-encoded image (typically a data URL).
	// Encoding happens before the payload reaches this package.
	Image string `json:"image,omitempty"`

	// Timestamp is the client-side capture time.
	Timestamp time.Time `json:"timestamp"`
}

// Empty reports whether the payload carries no user content.
func (p Payload) Empty() bool {
	return p.Text == "" && p.Image == ""
}

// RawInput is the captured input handed to the submission factory.
type RawInput struct {
	Text  string
	Image string

	// CapturedAt is optional; the factory uses the creation time when zero.
	CapturedAt time.Time
}

// Submission is the unit of work moved from pending to synchronized.
type Submission struct {
	ID        string     `json:"id"`
	Data      Payload    `json:"data"`
	CreatedAt time.Time  `json:"createdAt"`
	Status    Status     `json:"status"`
	SyncedAt  *time.Time `json:"syncedAt,omitempty"`
}

// ErrInvalidSubmission is wrapped by every Validate failure.
var ErrInvalidSubmission = errors.New("invalid submission")

// Validate checks the invariants that must hold for a persisted record.
func (s Submission) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidSubmission)
	}
	if s.CreatedAt.IsZero() {
		return fmt.Errorf("%w: %s: zero createdAt", ErrInvalidSubmission, s.ID)
	}
	if !s.Status.Valid() {
		return fmt.Errorf("%w: %s: status %q cannot be persisted", ErrInvalidSubmission, s.ID, s.Status)
	}
	switch s.Status {
	case StatusQueued:
		if s.SyncedAt != nil {
			return fmt.Errorf("%w: %s: queued record has syncedAt", ErrInvalidSubmission, s.ID)
		}
	case StatusSynced:
		if s.SyncedAt == nil {
			return fmt.Errorf("%w: %s: synced record lacks syncedAt", ErrInvalidSubmission, s.ID)
		}
		if s.SyncedAt.Before(s.CreatedAt) {
			return fmt.Errorf("%w: %s: syncedAt precedes createdAt", ErrInvalidSubmission, s.ID)
		}
	}
	return nil
}

// MarkSynced returns a copy of s flipped to StatusSynced and stamped with at.
// The stamp is clamped so it never precedes CreatedAt.
func (s Submission) MarkSynced(at time.Time) Submission {
	if at.Before(s.CreatedAt) {
		at = s.CreatedAt
	}
	at = at.UTC()
	s.Status = StatusSynced
	s.SyncedAt = &at
	return s
}

// IDs returns the ids of subs in order.
func IDs(subs []Submission) []string {
	ids := make([]string, len(subs))
	for i, s := range subs {
		ids[i] = s.ID
	}
	return ids
}
