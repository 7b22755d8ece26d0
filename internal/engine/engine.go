package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
	"github.com/roach88/fieldsync/internal/store"
)

// DefaultTimeout bounds one batch push.
const DefaultTimeout = 30 * time.Second

// Store is the part of the local store the engine needs.
type Store interface {
	GetAll(ctx context.Context, c store.Collection) ([]record.Submission, error)
	MoveAtomically(
		ctx context.Context,
		from, to store.Collection,
		ids []string,
		transform func(record.Submission) record.Submission,
	) (int, error)
}

// Result is the outcome of a successful Sync.
type Result struct {
	Synced int `json:"synced"`
}

// Engine runs the batch protocol against one store and one remote.
//
// Thread-safety model:
//   - Sync(): safe from any goroutine; calls are serialized
//   - InFlight(): safe from any goroutine
type Engine struct {
	store   Store
	pusher  remote.Pusher
	clock   clock.Clock
	timeout time.Duration
	logger  *zap.Logger

	slot chan struct{} // Single in-flight sync (buffered, size 1)

	mu       sync.Mutex
	inFlight []string // ids of the outstanding batch, the transient "syncing" set
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithTimeout sets the bound on one batch push.
//
// Default: 30s (DefaultTimeout)
func WithTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock overrides the clock used to stamp syncedAt.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// New creates an Engine moving records of s after p accepts them.
func New(s Store, p remote.Pusher, opts ...EngineOption) *Engine {
	e := &Engine{
		store:   s,
		pusher:  p,
		clock:   clock.System{},
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
		slot:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync pushes the current pending snapshot as one batch and, on acceptance,
// moves exactly that snapshot to synchronized.
//
// Waiting for a previous Sync honors ctx. Once the batch is issued it is
// bounded only by the engine timeout, and the move after an accepted batch
// is never cancelled, so an acknowledgement is not lost on caller shutdown.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
	defer func() { <-e.slot }()

	snapshot, err := e.store.GetAll(ctx, store.Pending)
	if err != nil {
		return Result{}, &SyncError{Stage: StageSnapshot, Err: err}
	}
	if len(snapshot) == 0 {
		e.logger.Debug("nothing to sync")
		return Result{}, nil
	}

	ids := record.IDs(snapshot)
	e.setInFlight(ids)
	defer e.setInFlight(nil)

	e.logger.Info("attempting to sync", zap.Int("count", len(snapshot)))

	if err := e.push(context.WithoutCancel(ctx), snapshot); err != nil {
		e.logger.Warn("sync failed, records stay pending",
			zap.Int("count", len(snapshot)),
			zap.Error(err),
		)
		return Result{}, &SyncError{Stage: StagePush, Snapshot: len(snapshot), Err: err}
	}

	moved, err := e.store.MoveAtomically(context.WithoutCancel(ctx),
		store.Pending, store.Synchronized, ids, e.stampSynced)
	if err != nil {
		e.logger.Error("batch accepted but local move failed",
			zap.Int("count", len(snapshot)),
			zap.Error(err),
		)
		return Result{}, &SyncError{Stage: StageMove, Snapshot: len(snapshot), Err: err}
	}

	e.logger.Info("sync complete", zap.Int("synced", moved))
	return Result{Synced: moved}, nil
}

// push sends the batch under the engine timeout. A push cut off by the
// timeout is always reported as a transport failure.
func (e *Engine) push(ctx context.Context, snapshot []record.Submission) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := e.pusher.PushBatch(ctx, snapshot)
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && !remote.IsTransportError(err) {
		return &remote.TransportError{Err: fmt.Errorf("timed out after %s: %w", e.timeout, err)}
	}
	return err
}

// stampSynced flips a pending record to synced.
func (e *Engine) stampSynced(sub record.Submission) record.Submission {
	return sub.MarkSynced(e.clock.Now())
}

// InFlight returns the ids of the outstanding batch, or nil when idle.
// These are the records a UI may label as syncing.
func (e *Engine) InFlight() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inFlight == nil {
		return nil
	}
	out := make([]string, len(e.inFlight))
	copy(out, e.inFlight)
	return out
}

func (e *Engine) setInFlight(ids []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inFlight = ids
}
