package engine

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/submission"
	"github.com/roach88/fieldsync/internal/testutil"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakePusher records batches and optionally fails or blocks.
type fakePusher struct {
	mu      sync.Mutex
	batches [][]record.Submission
	err     error
	block   chan struct{} // when set, PushBatch waits for close or ctx
	started chan struct{} // receives once per PushBatch call when set
}

func (p *fakePusher) PushBatch(ctx context.Context, subs []record.Submission) error {
	p.mu.Lock()
	p.batches = append(p.batches, subs)
	p.mu.Unlock()

	if p.started != nil {
		p.started <- struct{}{}
	}
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return p.err
}

func (p *fakePusher) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.batches)
}

type fixture struct {
	store   *store.Store
	factory *submission.Factory
	pusher  *fakePusher
	engine  *Engine
}

func newFixture(t *testing.T, opts ...EngineOption) *fixture {
	t.Helper()
	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clk := testutil.NewStepClock(start, time.Second)
	p := &fakePusher{}
	opts = append([]EngineOption{WithClock(clk), WithLogger(zaptest.NewLogger(t))}, opts...)
	return &fixture{
		store: s,
		factory: submission.NewFactory(s,
			submission.WithClock(clk),
			submission.WithIDGenerator(testutil.NewSequenceIDGenerator("")),
		),
		pusher: p,
		engine: New(s, p, opts...),
	}
}

func (f *fixture) create(t *testing.T, n int) []record.Submission {
	t.Helper()
	subs := make([]record.Submission, n)
	for i := range subs {
		sub, err := f.factory.Create(context.Background(), record.RawInput{Text: "field note"})
		require.NoError(t, err)
		subs[i] = sub
	}
	return subs
}

func (f *fixture) all(t *testing.T, c store.Collection) []record.Submission {
	t.Helper()
	subs, err := f.store.GetAll(context.Background(), c)
	require.NoError(t, err)
	return subs
}

func TestSync_EmptyPendingMakesNoNetworkCall(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Synced: 0}, res)
	assert.Zero(t, f.pusher.calls())
}

func TestSync_SuccessMovesSnapshot(t *testing.T) {
	f := newFixture(t)
	created := f.create(t, 2)

	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)

	require.Equal(t, 1, f.pusher.calls())
	assert.ElementsMatch(t, record.IDs(created), record.IDs(f.pusher.batches[0]))

	assert.Empty(t, f.all(t, store.Pending))
	synced := f.all(t, store.Synchronized)
	require.Len(t, synced, 2)
	for _, sub := range synced {
		assert.Equal(t, record.StatusSynced, sub.Status)
		require.NotNil(t, sub.SyncedAt)
		assert.False(t, sub.SyncedAt.Before(sub.CreatedAt))
	}
	assert.ElementsMatch(t, record.IDs(created), record.IDs(synced))
}

func TestSync_PushedRecordsAreQueued(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1)

	_, err := f.engine.Sync(context.Background())
	require.NoError(t, err)

	require.Len(t, f.pusher.batches, 1)
	assert.Equal(t, record.StatusQueued, f.pusher.batches[0][0].Status)
	assert.Nil(t, f.pusher.batches[0][0].SyncedAt)
}

func TestSync_FailureLeavesStateUnchanged(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"transport", &remote.TransportError{Endpoint: "http://x", Err: errors.New("connection refused")}},
		{"server rejected", &remote.ServerRejectedError{Endpoint: "http://x", StatusCode: 500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.create(t, 2)
			f.pusher.err = tt.err
			before := f.all(t, store.Pending)

			res, err := f.engine.Sync(context.Background())
			require.Error(t, err)
			assert.Equal(t, Result{}, res)
			assert.ErrorIs(t, err, tt.err)
			assert.True(t, IsRetryable(err))

			var se *SyncError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, StagePush, se.Stage)
			assert.Equal(t, 2, se.Snapshot)

			assert.Equal(t, before, f.all(t, store.Pending))
			assert.Empty(t, f.all(t, store.Synchronized))
		})
	}
}

func TestSync_RetryAfterFailureSucceeds(t *testing.T) {
	f := newFixture(t)
	f.create(t, 2)
	f.pusher.err = &remote.TransportError{Err: errors.New("offline")}

	_, err := f.engine.Sync(context.Background())
	require.Error(t, err)

	f.pusher.err = nil
	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, 2, f.pusher.calls())
	assert.Equal(t, f.pusher.batches[0], f.pusher.batches[1], "replay sends the same snapshot")
}

func TestSync_HungPushTimesOutAsTransportError(t *testing.T) {
	f := newFixture(t, WithTimeout(50*time.Millisecond))
	f.create(t, 1)
	f.pusher.block = make(chan struct{})
	defer close(f.pusher.block)

	_, err := f.engine.Sync(context.Background())
	require.Error(t, err)
	assert.True(t, remote.IsTransportError(err), "got %v", err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsRetryable(err))

	assert.Len(t, f.all(t, store.Pending), 1)
	assert.Empty(t, f.all(t, store.Synchronized))
	assert.Nil(t, f.engine.InFlight())
}

func TestSync_ConcurrentCallsMoveEachRecordOnce(t *testing.T) {
	f := newFixture(t)
	f.create(t, 3)
	f.pusher.block = make(chan struct{})
	f.pusher.started = make(chan struct{}, 2)

	var wg sync.WaitGroup
	results := make([]Result, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.engine.Sync(context.Background())
		}(i)
	}

	<-f.pusher.started
	close(f.pusher.block)
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, 3, results[0].Synced+results[1].Synced)
	assert.Equal(t, 1, f.pusher.calls())

	assert.Empty(t, f.all(t, store.Pending))
	assert.Len(t, f.all(t, store.Synchronized), 3)
}

func TestSync_RecordsCreatedMidSyncStayPending(t *testing.T) {
	f := newFixture(t)
	before := f.create(t, 1)
	f.pusher.block = make(chan struct{})
	f.pusher.started = make(chan struct{}, 1)

	type outcome struct {
		res Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := f.engine.Sync(context.Background())
		done <- outcome{res, err}
	}()

	<-f.pusher.started
	assert.Equal(t, record.IDs(before), f.engine.InFlight())
	late := f.create(t, 1)
	close(f.pusher.block)

	out := <-done
	require.NoError(t, out.err)
	assert.Equal(t, 1, out.res.Synced)

	pending := f.all(t, store.Pending)
	require.Len(t, pending, 1)
	assert.Equal(t, late[0].ID, pending[0].ID)
	assert.Equal(t, record.StatusQueued, pending[0].Status)
	assert.Equal(t, record.IDs(before), record.IDs(f.all(t, store.Synchronized)))
	assert.Nil(t, f.engine.InFlight())
}

func TestSync_WaitingCallHonorsContext(t *testing.T) {
	f := newFixture(t)
	f.create(t, 1)
	f.pusher.block = make(chan struct{})
	f.pusher.started = make(chan struct{}, 1)

	first := make(chan error, 1)
	go func() {
		_, err := f.engine.Sync(context.Background())
		first <- err
	}()
	<-f.pusher.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := f.engine.Sync(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(f.pusher.block)
	require.NoError(t, <-first)
}

// brokenStore fails one of its operations.
type brokenStore struct {
	Store
	getErr  error
	moveErr error
}

func (b brokenStore) GetAll(ctx context.Context, c store.Collection) ([]record.Submission, error) {
	if b.getErr != nil {
		return nil, b.getErr
	}
	return b.Store.GetAll(ctx, c)
}

func (b brokenStore) MoveAtomically(ctx context.Context, from, to store.Collection, ids []string, fn func(record.Submission) record.Submission) (int, error) {
	if b.moveErr != nil {
		return 0, b.moveErr
	}
	return b.Store.MoveAtomically(ctx, from, to, ids, fn)
}

func TestSync_SnapshotFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("read failed")
	e := New(brokenStore{Store: f.store, getErr: boom}, f.pusher)

	_, err := e.Sync(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsRetryable(err))
	assert.Zero(t, f.pusher.calls())
}

func TestSync_MoveFailureKeepsRecordsForReplay(t *testing.T) {
	f := newFixture(t)
	f.create(t, 2)
	boom := errors.New("disk I/O error")
	e := New(brokenStore{Store: f.store, moveErr: boom}, f.pusher)

	_, err := e.Sync(context.Background())
	require.Error(t, err)

	var se *SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageMove, se.Stage)
	assert.True(t, IsRetryable(err))
	assert.Len(t, f.all(t, store.Pending), 2)

	// A later healthy sync replays the same ids; the remote dedupes them.
	res, err := f.engine.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Synced)
	assert.Equal(t, f.pusher.batches[0], f.pusher.batches[1])
}

func TestIsRetryable_ForeignError(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("other")))
	assert.False(t, IsRetryable(nil))
}
