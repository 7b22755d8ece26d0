package client

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/fieldsync/internal/engine"
)

// Syncer is anything that can run one sync attempt.
type Syncer interface {
	Sync(ctx context.Context) (engine.Result, error)
}

// Pinger reports whether the remote is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Watcher invokes Sync on every offline to online edge of a connectivity
// signal. It never retries on its own; the next edge is the next attempt.
type Watcher struct {
	syncer   Syncer
	logger   *zap.Logger
	observer func(engine.Result, error)
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithObserver registers fn to receive the outcome of every triggered sync.
func WithObserver(fn func(engine.Result, error)) WatcherOption {
	return func(w *Watcher) {
		w.observer = fn
	}
}

// NewWatcher creates a Watcher driving s.
func NewWatcher(s Syncer, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		syncer: s,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes online until it is closed or ctx is done. The signal starts
// in the offline state, so a first true value triggers a sync.
//
// Returns nil when online is closed, ctx.Err() on cancellation.
func (w *Watcher) Run(ctx context.Context, online <-chan bool) error {
	connected := false
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up, ok := <-online:
			if !ok {
				return nil
			}
			edge := up && !connected
			if up != connected {
				w.logger.Info("connectivity changed", zap.Bool("online", up))
			}
			connected = up
			if edge {
				w.trigger(ctx)
			}
		}
	}
}

func (w *Watcher) trigger(ctx context.Context) {
	res, err := w.syncer.Sync(ctx)
	if err != nil {
		w.logger.Warn("sync on reconnect failed", zap.Error(err))
	} else if res.Synced > 0 {
		w.logger.Info("synced on reconnect", zap.Int("synced", res.Synced))
	}
	if w.observer != nil {
		w.observer(res, err)
	}
}

// Poll pings p every interval and sends the reachability on out. A probe
// runs immediately so a reachable remote is reported without waiting a
// full interval. Poll returns ctx.Err() when ctx is done.
func Poll(ctx context.Context, p Pinger, interval time.Duration, out chan<- bool) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		up := p.Ping(probeCtx) == nil
		cancel()

		select {
		case out <- up:
		case <-ctx.Done():
			return ctx.Err()
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
