package submission

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func createTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreate_PersistsQueuedRecord(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := NewFactory(s,
		WithIDGenerator(testutil.NewSequenceIDGenerator("")),
		WithClock(testutil.NewStepClock(start, time.Second)),
		WithLogger(zaptest.NewLogger(t)),
	)

	sub, err := f.Create(ctx, record.RawInput{Text: "yellow rust on wheat"})
	require.NoError(t, err)

	assert.Equal(t, "sub-0001", sub.ID)
	assert.Equal(t, record.StatusQueued, sub.Status)
	assert.Equal(t, start.Add(time.Second), sub.CreatedAt)
	assert.Equal(t, sub.CreatedAt, sub.Data.Timestamp)
	assert.Nil(t, sub.SyncedAt)

	stored, err := s.Get(ctx, store.Pending, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, stored.ID)
	assert.Equal(t, "yellow rust on wheat", stored.Data.Text)

	_, err = s.Get(ctx, store.Synchronized, sub.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreate_DefaultIDsAreRandomUUIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	f := NewFactory(s)

	a, err := f.Create(ctx, record.RawInput{Text: "a"})
	require.NoError(t, err)
	b, err := f.Create(ctx, record.RawInput{Text: "a"})
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID, "duplicate content still gets distinct ids")
	for _, id := range []string{a.ID, b.ID} {
		parsed, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, uuid.Version(4), parsed.Version())
	}

	n, err := s.Count(ctx, store.Pending)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestCreate_KeepsCaptureTimestamp(t *testing.T) {
	s := createTestStore(t)
	captured := start.Add(-time.Hour)
	f := NewFactory(s, WithClock(testutil.NewStepClock(start, time.Second)))

	sub, err := f.Create(context.Background(), record.RawInput{
		Image:      "data:image/jpeg;base64,/9j/4AAQ",
		CapturedAt: captured,
	})
	require.NoError(t, err)

	assert.Equal(t, captured, sub.Data.Timestamp)
	assert.Equal(t, "data:image/jpeg;base64,/9j/4AAQ", sub.Data.Image)
	assert.Empty(t, sub.Data.Text)
}

func TestCreate_NormalizesText(t *testing.T) {
	s := createTestStore(t)
	f := NewFactory(s)

	// "e" followed by a combining acute accent normalizes to U+00E9.
	sub, err := f.Create(context.Background(), record.RawInput{Text: "fle\u0301tri"})
	require.NoError(t, err)
	assert.Equal(t, "fl\u00e9tri", sub.Data.Text)
}

func TestCreate_RejectsEmptyInput(t *testing.T) {
	s := createTestStore(t)
	f := NewFactory(s)

	_, err := f.Create(context.Background(), record.RawInput{CapturedAt: start})
	assert.ErrorIs(t, err, ErrEmptyInput)

	n, err := s.Count(context.Background(), store.Pending)
	require.NoError(t, err)
	assert.Zero(t, n)
}

type failingPutter struct{ err error }

func (p failingPutter) Put(context.Context, store.Collection, record.Submission) error {
	return p.err
}

func TestCreate_PropagatesStoreError(t *testing.T) {
	boom := errors.New("disk full")
	f := NewFactory(failingPutter{err: boom})

	_, err := f.Create(context.Background(), record.RawInput{Text: "x"})
	assert.ErrorIs(t, err, boom)
}
