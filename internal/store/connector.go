package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultAppName identifies the local database file.
const DefaultAppName = "farmer-app-db"

// DefaultBusyTimeout bounds how long SQLite waits on another process's lock
// before the store reports BLOCKED.
const DefaultBusyTimeout = 5 * time.Second

// OpenEvent is the explicit outcome of a connection lifecycle step.
type OpenEvent int

const (
	// EventOpened means Open produced a live, fully migrated connection.
	EventOpened OpenEvent = iota + 1

	// EventBlocked means Open could not upgrade because another live
	// connection did not release.
	EventBlocked

	// EventBlocking is delivered to a live connection that obstructs an
	// upgrade requested by a newer Open.
	EventBlocking
)

// String returns the event name used in logs and CLI output.
func (e OpenEvent) String() string {
	switch e {
	case EventOpened:
		return "opened"
	case EventBlocked:
		return "blocked"
	case EventBlocking:
		return "blocking"
	}
	return fmt.Sprintf("OpenEvent(%d)", int(e))
}

// Path returns the database file for appName inside dir.
func Path(dir, appName string) string {
	if appName == "" {
		appName = DefaultAppName
	}
	return filepath.Join(dir, appName+".db")
}

// Connector owns every live connection to one database file.
//
// The driver constructs one Connector and passes the connections it opens to
// the submission factory and the sync engine. There is no package-level
// connection.
//
// Thread-safety: all methods are safe for concurrent use.
type Connector struct {
	path        string
	logger      *zap.Logger
	busyTimeout time.Duration

	mu   sync.Mutex
	live map[*Store]struct{}
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *zap.Logger) ConnectorOption {
	return func(c *Connector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithBusyTimeout overrides DefaultBusyTimeout.
func WithBusyTimeout(d time.Duration) ConnectorOption {
	return func(c *Connector) {
		c.busyTimeout = d
	}
}

// NewConnector creates a Connector for the database at path.
// Nothing touches the filesystem until Open.
func NewConnector(path string, opts ...ConnectorOption) *Connector {
	c := &Connector{
		path:        path,
		logger:      zap.NewNop(),
		busyTimeout: DefaultBusyTimeout,
		live:        make(map[*Store]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DBPath returns the database file path.
func (c *Connector) DBPath() string {
	return c.path
}

// OpenOption configures a single Open call.
type OpenOption func(*openConfig)

type openConfig struct {
	version int
	hold    bool
}

// WithVersion requests a schema version other than CurrentSchemaVersion.
func WithVersion(v int) OpenOption {
	return func(o *openConfig) {
		o.version = v
	}
}

// WithHoldOnBlocking keeps the connection open when it obstructs an upgrade.
// The upgrading Open then reports EventBlocked instead of proceeding.
func WithHoldOnBlocking() OpenOption {
	return func(o *openConfig) {
		o.hold = true
	}
}

// Open creates or opens the database, applying pragmas and any pending
// additive migrations.
//
// Returns EventOpened with a live connection, or EventBlocked with a
// BLOCKED *Error when another live connection obstructs the upgrade. Open
// never waits for obstructing connections to go away.
func (c *Connector) Open(ctx context.Context, opts ...OpenOption) (*Store, OpenEvent, error) {
	cfg := openConfig{version: CurrentSchemaVersion}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.version < 1 || cfg.version > CurrentSchemaVersion {
		return nil, 0, newInitializationError(c.path,
			fmt.Sprintf("unsupported schema version %d (max %d)", cfg.version, CurrentSchemaVersion), nil)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	db, err := c.connect(ctx)
	if err != nil {
		return nil, 0, err
	}

	s, event, err := c.prepare(ctx, db, cfg)
	if err != nil {
		db.Close()
		return nil, event, err
	}

	c.live[s] = struct{}{}
	c.logger.Debug("store opened",
		zap.String("path", c.path),
		zap.Int("version", s.version),
		zap.Bool("hold_on_blocking", s.hold),
	)
	return s, EventOpened, nil
}

// connect opens the SQL handle and applies pragmas.
func (c *Connector) connect(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_txlock=immediate", c.path))
	if err != nil {
		return nil, newInitializationError(c.path, "failed to open database", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, asInitialization(c.path, "failed to connect to database", err)
	}

	if err := applyPragmas(ctx, db, c.busyTimeout); err != nil {
		db.Close()
		return nil, asInitialization(c.path, "failed to apply pragmas", err)
	}
	return db, nil
}

// prepare brings the schema to cfg.version and verifies it.
// Must be called with c.mu held.
func (c *Connector) prepare(ctx context.Context, db *sql.DB, cfg openConfig) (*Store, OpenEvent, error) {
	onDisk, err := readVersion(ctx, db)
	if err != nil {
		return nil, 0, asInitialization(c.path, "failed to read schema version", err)
	}

	if onDisk > cfg.version {
		return nil, 0, newCorruptionError(c.path,
			fmt.Sprintf("on-disk schema version %d is newer than requested %d", onDisk, cfg.version), nil)
	}

	if onDisk < cfg.version {
		if holders := c.releaseForUpgradeLocked(onDisk, cfg.version); holders > 0 {
			return nil, EventBlocked, newBlockedError(c.path,
				fmt.Sprintf("upgrade to v%d obstructed by %d live connection(s)", cfg.version, holders), nil)
		}

		if err := migrate(ctx, db, onDisk, cfg.version); err != nil {
			err = classify(c.path, "failed to apply schema", err)
			if IsBlockedError(err) {
				return nil, EventBlocked, err
			}
			return nil, 0, err
		}
		c.logger.Info("schema migrated",
			zap.String("path", c.path),
			zap.Int("from", onDisk),
			zap.Int("to", cfg.version),
		)
	}

	missing, err := missingObjects(ctx, db, cfg.version)
	if err != nil {
		return nil, 0, classify(c.path, "failed to verify schema", err)
	}
	if len(missing) > 0 {
		return nil, 0, newCorruptionError(c.path, fmt.Sprintf("missing collections %v", missing), nil)
	}

	return &Store{
		db:      db,
		conn:    c,
		path:    c.path,
		version: cfg.version,
		hold:    cfg.hold,
		events:  make(chan OpenEvent, 1),
		logger:  c.logger,
	}, EventOpened, nil
}

// releaseForUpgradeLocked notifies every live connection that it is
// blocking an upgrade from -> to. Releasing connections close themselves.
// Returns the number of connections that held on.
func (c *Connector) releaseForUpgradeLocked(from, to int) int {
	holders := 0
	for s := range c.live {
		s.notify(EventBlocking)
		if s.hold {
			holders++
			c.logger.Warn("connection is blocking a schema upgrade",
				zap.String("path", c.path),
				zap.Int("from", from),
				zap.Int("to", to),
			)
			continue
		}
		c.closeLocked(s)
		c.logger.Info("connection released to unblock upgrade",
			zap.String("path", c.path),
			zap.Int("to", to),
		)
	}
	return holders
}

// Reset closes every live connection and deletes the database file.
// Returns a BLOCKED *Error, without touching anything, if a connection opened
// WithHoldOnBlocking is live. The next Open recreates an empty schema.
func (c *Connector) Reset(ctx context.Context) error {
	return c.reset(ctx, false)
}

// ForceReset is Reset that also closes connections opened WithHoldOnBlocking.
// It is the escape hatch for a BLOCKED Open.
func (c *Connector) ForceReset(ctx context.Context) error {
	return c.reset(ctx, true)
}

func (c *Connector) reset(ctx context.Context, force bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if !force {
		for s := range c.live {
			if s.hold {
				return newBlockedError(c.path, "reset obstructed by a held connection", nil)
			}
		}
	}

	for s := range c.live {
		s.notify(EventBlocking)
		c.closeLocked(s)
	}

	for _, p := range []string{c.path, c.path + "-wal", c.path + "-shm", c.path + "-journal"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("reset: remove %s: %w", p, err)
		}
	}

	c.logger.Info("store reset", zap.String("path", c.path), zap.Bool("forced", force))
	return nil
}

// LiveConnections returns the number of open connections.
func (c *Connector) LiveConnections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.live)
}

// closeLocked releases s. Must be called with c.mu held.
func (c *Connector) closeLocked(s *Store) {
	delete(c.live, s)
	if s.closed.Swap(true) {
		return
	}
	if err := s.db.Close(); err != nil {
		c.logger.Warn("error closing connection", zap.String("path", c.path), zap.Error(err))
	}
}

// detach releases s on behalf of Store.Close.
func (c *Connector) detach(s *Store) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.live, s)
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// asInitialization keeps corruption signals from the driver and reports
// everything else as an initialization failure.
func asInitialization(path, message string, err error) error {
	classified := classify(path, message, err)
	if IsCorruptionError(classified) || IsBlockedError(classified) {
		return classified
	}
	return newInitializationError(path, message, err)
}
