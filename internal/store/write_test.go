package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/record"
)

func TestPut_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sub := createTestSubmission("a", 0)

	require.NoError(t, s.Put(ctx, Pending, sub))
	require.NoError(t, s.Put(ctx, Pending, sub))

	n, err := s.Count(ctx, Pending)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPut_UpsertReplaces(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sub := createTestSubmission("a", 0)
	require.NoError(t, s.Put(ctx, Pending, sub))

	sub.Data.Text = "updated"
	require.NoError(t, s.Put(ctx, Pending, sub))

	got, err := s.Get(ctx, Pending, "a")
	require.NoError(t, err)
	assert.Equal(t, "updated", got.Data.Text)
}

func TestPut_RejectsIDInOtherCollection(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sub := createTestSubmission("a", 0)
	require.NoError(t, s.Put(ctx, Pending, sub))
	_, err := s.MoveAtomically(ctx, Pending, Synchronized, []string{"a"}, stampAt(baseTime.Add(time.Second)))
	require.NoError(t, err)

	err = s.Put(ctx, Pending, sub)
	assert.ErrorIs(t, err, ErrDuplicateID)

	pending, err := s.GetAll(ctx, Pending)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPut_RejectsStatusOutsideCollection(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	queued := createTestSubmission("a", 0)
	err := s.Put(ctx, Synchronized, queued)
	assert.ErrorIs(t, err, record.ErrInvalidSubmission)

	synced := queued.MarkSynced(baseTime.Add(time.Minute))
	err = s.Put(ctx, Pending, synced)
	assert.ErrorIs(t, err, record.ErrInvalidSubmission)

	require.NoError(t, s.Put(ctx, Synchronized, synced))
}

func TestPut_UnknownCollection(t *testing.T) {
	s := createTestStore(t)
	err := s.Put(context.Background(), Collection("outbox"), createTestSubmission("a", 0))
	assert.ErrorIs(t, err, ErrUnknownCollection)
}

func TestMoveAtomically_MovesAllIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, Pending, createTestSubmission(id, time.Duration(i)*time.Second)))
	}

	syncedAt := baseTime.Add(time.Minute)
	n, err := s.MoveAtomically(ctx, Pending, Synchronized, []string{"a", "b", "c"}, stampAt(syncedAt))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	pending, err := s.GetAll(ctx, Pending)
	require.NoError(t, err)
	assert.Empty(t, pending)

	synced, err := s.GetAll(ctx, Synchronized)
	require.NoError(t, err)
	require.Len(t, synced, 3)
	for _, sub := range synced {
		assert.Equal(t, record.StatusSynced, sub.Status)
		require.NotNil(t, sub.SyncedAt)
		assert.True(t, sub.SyncedAt.Equal(syncedAt))
		assert.False(t, sub.SyncedAt.Before(sub.CreatedAt))
	}
}

func TestMoveAtomically_OnlyGivenIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Pending, createTestSubmission("a", 0)))
	require.NoError(t, s.Put(ctx, Pending, createTestSubmission("later", time.Second)))

	_, err := s.MoveAtomically(ctx, Pending, Synchronized, []string{"a"}, stampAt(baseTime.Add(time.Minute)))
	require.NoError(t, err)

	pending, err := s.GetAll(ctx, Pending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "later", pending[0].ID)
	assert.Equal(t, record.StatusQueued, pending[0].Status)
}

func TestMoveAtomically_MissingIDMovesNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Pending, createTestSubmission("a", 0)))
	require.NoError(t, s.Put(ctx, Pending, createTestSubmission("b", 0)))

	_, err := s.MoveAtomically(ctx, Pending, Synchronized, []string{"a", "ghost", "b"}, stampAt(baseTime.Add(time.Minute)))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	assertCounts(t, s, 2, 0)
}

func TestMoveAtomically_FailingTransformRollsBack(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Put(ctx, Pending, createTestSubmission(id, 0)))
	}

	// The third record comes out of transform still queued, which cannot be
	// stored in synchronized; the first two inserts must be rolled back.
	calls := 0
	transform := func(sub record.Submission) record.Submission {
		calls++
		if calls == 3 {
			return sub
		}
		return sub.MarkSynced(baseTime.Add(time.Minute))
	}

	_, err := s.MoveAtomically(ctx, Pending, Synchronized, []string{"a", "b", "c"}, transform)
	require.Error(t, err)
	assert.ErrorIs(t, err, record.ErrInvalidSubmission)

	assertCounts(t, s, 3, 0)
}

func TestMoveAtomically_TransformMustKeepID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Pending, createTestSubmission("a", 0)))

	_, err := s.MoveAtomically(ctx, Pending, Synchronized, []string{"a"}, func(sub record.Submission) record.Submission {
		sub = sub.MarkSynced(baseTime)
		sub.ID = "renamed"
		return sub
	})
	require.Error(t, err)
	assertCounts(t, s, 1, 0)
}

func TestMoveAtomically_EmptyAndDuplicateIDs(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	n, err := s.MoveAtomically(ctx, Pending, Synchronized, nil, stampAt(baseTime))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.Put(ctx, Pending, createTestSubmission("a", 0)))
	n, err = s.MoveAtomically(ctx, Pending, Synchronized, []string{"a", "a"}, stampAt(baseTime))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assertCounts(t, s, 0, 1)
}

func TestMoveAtomically_SameCollection(t *testing.T) {
	s := createTestStore(t)
	_, err := s.MoveAtomically(context.Background(), Pending, Pending, []string{"a"}, nil)
	assert.Error(t, err)
}

func TestMoveAtomically_ConcurrentMovesNeverDuplicate(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	ids := make([]string, 10)
	for i := range ids {
		ids[i] = fmt.Sprintf("id-%02d", i)
		require.NoError(t, s.Put(ctx, Pending, createTestSubmission(ids[i], 0)))
	}

	var wg sync.WaitGroup
	results := make([]error, 4)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.MoveAtomically(ctx, Pending, Synchronized, ids, stampAt(baseTime.Add(time.Minute)))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrNotFound)
	}
	assert.Equal(t, 1, succeeded)
	assertCounts(t, s, 0, len(ids))
}

func TestDelete(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Pending, createTestSubmission("a", 0)))
	require.NoError(t, s.Put(ctx, Pending, createTestSubmission("b", 0)))

	require.NoError(t, s.Delete(ctx, Pending, "a"))
	require.NoError(t, s.Delete(ctx, Pending, "absent"))

	_, err := s.Get(ctx, Pending, "a")
	assert.ErrorIs(t, err, ErrNotFound)
	assertCounts(t, s, 1, 0)
}

func TestClear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, Pending, createTestSubmission("a", 0)))
	require.NoError(t, s.Put(ctx, Pending, createTestSubmission("b", 0)))
	_, err := s.MoveAtomically(ctx, Pending, Synchronized, []string{"b"}, stampAt(baseTime))
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, Pending))
	assertCounts(t, s, 0, 1)

	require.NoError(t, s.Clear(ctx, Synchronized))
	assertCounts(t, s, 0, 0)
}

func assertCounts(t *testing.T, s *Store, pending, synced int) {
	t.Helper()
	ctx := context.Background()

	n, err := s.Count(ctx, Pending)
	require.NoError(t, err)
	assert.Equal(t, pending, n, "pending count")

	n, err = s.Count(ctx, Synchronized)
	require.NoError(t, err)
	assert.Equal(t, synced, n, "synchronized count")
}
