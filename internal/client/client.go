package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/engine"
	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/submission"
)

// ErrFatal wraps a store failure that survived the automatic reset and
// retry. Manual intervention is required.
var ErrFatal = errors.New("client: local store unrecoverable")

// Stats is a point-in-time view of the two collections.
type Stats struct {
	Pending      int      `json:"pending"`
	Synchronized int      `json:"synchronized"`
	InFlight     []string `json:"inFlight,omitempty"`
}

// Client binds one local database to one remote endpoint.
//
// Thread-safety: all methods are safe for concurrent use. Sync calls are
// serialized by the engine.
type Client struct {
	conn    *store.Connector
	factory *submission.Factory
	engine  *engine.Engine
	logger  *zap.Logger
	hold    bool

	mu    sync.RWMutex
	store *store.Store
}

// Option configures a Client.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	clock       clock.Clock
	ids         submission.IDGenerator
	timeout     time.Duration
	busyTimeout time.Duration
	hold        bool
}

// WithLogger sets the logger shared by the client and its components.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides the clock used for createdAt and syncedAt.
func WithClock(c clock.Clock) Option {
	return func(o *options) {
		o.clock = c
	}
}

// WithIDGenerator overrides the UUIDv4 id generator.
func WithIDGenerator(g submission.IDGenerator) Option {
	return func(o *options) {
		o.ids = g
	}
}

// WithSyncTimeout bounds one batch push.
//
// Default: 30s (engine.DefaultTimeout)
func WithSyncTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithBusyTimeout bounds how long the store waits on another process's lock.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		o.busyTimeout = d
	}
}

// WithHoldOnBlocking keeps this client's connection open when a newer
// session needs to upgrade the schema. The other session then sees BLOCKED.
func WithHoldOnBlocking() Option {
	return func(o *options) {
		o.hold = true
	}
}

// Open connects to the database at path and verifies both collections.
//
// An INITIALIZATION or CORRUPTION failure triggers one destructive Reset
// and a retry; if the retry fails too, the error wraps ErrFatal. A BLOCKED
// failure is returned unchanged and never retried.
func Open(ctx context.Context, path string, p remote.Pusher, opts ...Option) (*Client, error) {
	o := options{
		logger:  zap.NewNop(),
		clock:   clock.System{},
		ids:     submission.UUIDGenerator{},
		timeout: engine.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	connOpts := []store.ConnectorOption{store.WithLogger(o.logger)}
	if o.busyTimeout > 0 {
		connOpts = append(connOpts, store.WithBusyTimeout(o.busyTimeout))
	}

	c := &Client{
		conn:   store.NewConnector(path, connOpts...),
		logger: o.logger,
		hold:   o.hold,
	}
	h := handle{c: c}
	c.factory = submission.NewFactory(h,
		submission.WithIDGenerator(o.ids),
		submission.WithClock(o.clock),
		submission.WithLogger(o.logger),
	)
	c.engine = engine.New(h, p,
		engine.WithTimeout(o.timeout),
		engine.WithClock(o.clock),
		engine.WithLogger(o.logger),
	)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.recoverLocked(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// recoverLocked opens the store, falling back to one Reset and retry.
// Must be called with c.mu held.
func (c *Client) recoverLocked(ctx context.Context) error {
	err := c.openLocked(ctx)
	if err == nil {
		return nil
	}
	if store.IsBlockedError(err) || !store.IsRecoverable(err) {
		return err
	}

	c.logger.Warn("local store unusable, resetting",
		zap.String("path", c.conn.DBPath()),
		zap.Error(err),
	)
	if rerr := c.conn.Reset(ctx); rerr != nil {
		return fmt.Errorf("%w: reset after %v: %w", ErrFatal, err, rerr)
	}
	if err := c.openLocked(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrFatal, err)
	}
	c.logger.Info("local store recreated", zap.String("path", c.conn.DBPath()))
	return nil
}

// openLocked opens a connection and reads both collections once, so a
// broken schema surfaces here rather than on first use.
// Must be called with c.mu held.
func (c *Client) openLocked(ctx context.Context) error {
	var openOpts []store.OpenOption
	if c.hold {
		openOpts = append(openOpts, store.WithHoldOnBlocking())
	}

	s, event, err := c.conn.Open(ctx, openOpts...)
	if err != nil {
		c.logger.Debug("open failed", zap.Stringer("event", event), zap.Error(err))
		return err
	}
	for _, coll := range []store.Collection{store.Pending, store.Synchronized} {
		if _, err := s.Count(ctx, coll); err != nil {
			s.Close()
			return err
		}
	}
	c.store = s
	return nil
}

// current returns the live connection, reopening it when another session
// released it for an upgrade. Runtime failures are not reset automatically.
func (c *Client) current(ctx context.Context) (*store.Store, error) {
	c.mu.RLock()
	s := c.store
	c.mu.RUnlock()
	if s != nil && !s.Closed() {
		return s, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store != nil && !c.store.Closed() {
		return c.store, nil
	}
	if c.store == nil {
		return nil, store.ErrClosed
	}
	c.logger.Info("connection was released, reopening", zap.String("path", c.conn.DBPath()))
	if err := c.openLocked(ctx); err != nil {
		return nil, err
	}
	return c.store, nil
}

// Create persists a new queued submission in pending.
func (c *Client) Create(ctx context.Context, in record.RawInput) (record.Submission, error) {
	return c.factory.Create(ctx, in)
}

// Sync pushes everything pending as one batch. See engine.Engine.Sync.
func (c *Client) Sync(ctx context.Context) (engine.Result, error) {
	return c.engine.Sync(ctx)
}

// InFlight returns the ids of the batch currently being pushed.
func (c *Client) InFlight() []string {
	return c.engine.InFlight()
}

// ListPending returns pending records, oldest first.
func (c *Client) ListPending(ctx context.Context) ([]record.Submission, error) {
	s, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetAll(ctx, store.Pending)
}

// ListSynchronized returns synchronized records, most recently synced first.
func (c *Client) ListSynchronized(ctx context.Context) ([]record.Submission, error) {
	s, err := c.current(ctx)
	if err != nil {
		return nil, err
	}
	return s.ListBySyncedAt(ctx)
}

// Stats counts both collections.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	s, err := c.current(ctx)
	if err != nil {
		return Stats{}, err
	}
	pending, err := s.Count(ctx, store.Pending)
	if err != nil {
		return Stats{}, err
	}
	synced, err := s.Count(ctx, store.Synchronized)
	if err != nil {
		return Stats{}, err
	}
	return Stats{Pending: pending, Synchronized: synced, InFlight: c.InFlight()}, nil
}

// ResetStore destroys both collections and reopens an empty schema at the
// current version. Returns BLOCKED if another session holds the database.
func (c *Client) ResetStore(ctx context.Context) error {
	return c.reset(ctx, false)
}

// ForceReset is ResetStore that also closes sessions holding the database.
// It is the escape hatch for a BLOCKED open or reset.
func (c *Client) ForceReset(ctx context.Context) error {
	return c.reset(ctx, true)
}

func (c *Client) reset(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store == nil {
		return store.ErrClosed
	}

	var err error
	if force {
		err = c.conn.ForceReset(ctx)
	} else {
		err = c.conn.Reset(ctx)
	}
	if err != nil {
		return err
	}
	return c.openLocked(ctx)
}

// Close releases the connection. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store == nil {
		return nil
	}
	err := c.store.Close()
	c.store = nil
	return err
}

// handle routes factory and engine writes to the client's current connection.
type handle struct {
	c *Client
}

func (h handle) Put(ctx context.Context, coll store.Collection, sub record.Submission) error {
	s, err := h.c.current(ctx)
	if err != nil {
		return err
	}
	return s.Put(ctx, coll, sub)
}

func (h handle) GetAll(ctx context.Context, coll store.Collection) ([]record.Submission, error) {
	s, err := h.c.current(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetAll(ctx, coll)
}

func (h handle) MoveAtomically(
	ctx context.Context,
	from, to store.Collection,
	ids []string,
	transform func(record.Submission) record.Submission,
) (int, error) {
	s, err := h.c.current(ctx)
	if err != nil {
		return 0, err
	}
	return s.MoveAtomically(ctx, from, to, ids, transform)
}
