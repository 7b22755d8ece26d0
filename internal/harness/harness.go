package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/roach88/fieldsync/internal/client"
	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/devserver"
	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
	"github.com/roach88/fieldsync/internal/store"
	"github.com/roach88/fieldsync/internal/testutil"
)

// scenarioStart is the step clock origin of every scenario.
var scenarioStart = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// errNetworkDown is what the switchable network returns while offline.
var errNetworkDown = errors.New("network is unreachable")

// Option configures Run.
type Option func(*runConfig)

type runConfig struct {
	logger *zap.Logger
}

// WithLogger routes client and endpoint logs to l.
func WithLogger(l *zap.Logger) Option {
	return func(c *runConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// Harness is the state of one scenario execution.
type Harness struct {
	path    string
	clock   *testutil.StepClock
	ids     *testutil.SequenceIDGenerator
	server  *devserver.Server
	network *switchTransport
	pusher  *remote.HTTPClient
	logger  *zap.Logger
	client  *client.Client
}

// Run executes a scenario and returns the result.
//
// Execution errors (the harness itself could not run) are returned as err.
// Steps and assertions that do not hold are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	dir, err := os.MkdirTemp("", "fieldsync-harness-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create scenario directory: %w", err)
	}
	defer os.RemoveAll(dir)

	server := devserver.New(
		devserver.WithClock(clock.Func(func() time.Time { return scenarioStart })),
		devserver.WithLogger(cfg.logger),
	)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	network := &switchTransport{base: http.DefaultTransport}
	h := &Harness{
		path:    store.Path(dir, ""),
		clock:   testutil.NewStepClock(scenarioStart, time.Second),
		ids:     testutil.NewSequenceIDGenerator("sub"),
		server:  server,
		network: network,
		pusher: remote.NewHTTPClient(ts.URL+devserver.SyncPath,
			remote.WithHTTPClient(&http.Client{Transport: network}),
			remote.WithLogger(cfg.logger),
		),
		logger: cfg.logger,
	}

	ctx := context.Background()
	if err := h.open(ctx); err != nil {
		return nil, fmt.Errorf("failed to open client: %w", err)
	}
	defer func() { h.client.Close() }()

	result := NewResult()
	for i, step := range scenario.Steps {
		ev, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Action, err)
		}
		ev = result.addTrace(ev)
		checkExpect(result, i, step, ev)
	}

	state, err := h.captureState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to capture state: %w", err)
	}
	result.State = state

	actx := &AssertionContext{Ctx: ctx, Client: h.client}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) open(ctx context.Context) error {
	c, err := client.Open(ctx, h.path, h.pusher,
		client.WithLogger(h.logger),
		client.WithClock(h.clock),
		client.WithIDGenerator(h.ids),
		client.WithSyncTimeout(5*time.Second),
	)
	if err != nil {
		return err
	}
	h.client = c
	return nil
}

// execute runs one step. Failures of the operation under test become the
// event outcome; only harness malfunctions are returned as error.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	ev := TraceEvent{Action: step.Action, Outcome: OutcomeOK}

	switch step.Action {
	case ActionCreate:
		ev.Text = step.Text
		n := max(step.Count, 1)
		for i := 0; i < n; i++ {
			sub, err := h.client.Create(ctx, record.RawInput{Text: step.Text, Image: step.Image})
			if err != nil {
				ev.Outcome = outcomeOf(err)
				break
			}
			ev.IDs = append(ev.IDs, sub.ID)
		}

	case ActionSync:
		res, err := h.client.Sync(ctx)
		ev.Outcome = outcomeOf(err)
		ev.Synced = &res.Synced

	case ActionSyncConcurrent:
		total, err := h.syncConcurrently(ctx, max(step.Count, 2))
		ev.Outcome = outcomeOf(err)
		ev.Synced = &total

	case ActionOffline:
		h.network.offline.Store(true)

	case ActionOnline:
		h.network.offline.Store(false)

	case ActionReject:
		status := step.Status
		if status == 0 {
			status = http.StatusInternalServerError
		}
		ev.Status = status
		h.server.RejectWith(status)

	case ActionAccept:
		h.server.RejectWith(0)

	case ActionReset:
		ev.Outcome = outcomeOf(h.client.ResetStore(ctx))

	case ActionReopen:
		if err := h.client.Close(); err != nil {
			return ev, err
		}
		ev.Outcome = outcomeOf(h.open(ctx))

	case ActionCorrupt:
		if err := h.client.Close(); err != nil {
			return ev, err
		}
		if err := dropTable(h.path, string(store.Synchronized)); err != nil {
			return ev, err
		}
		ev.Outcome = outcomeOf(h.open(ctx))

	default:
		return ev, fmt.Errorf("unknown action %q", step.Action)
	}
	return ev, nil
}

// syncConcurrently starts n Sync calls at once and sums what they moved.
// The first error, if any, is returned.
func (h *Harness) syncConcurrently(ctx context.Context, n int) (int, error) {
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		total    int
		firstErr error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			res, err := h.client.Sync(ctx)
			mu.Lock()
			defer mu.Unlock()
			total += res.Synced
			if err != nil && firstErr == nil {
				firstErr = err
			}
		}()
	}
	close(start)
	wg.Wait()
	return total, firstErr
}

func (h *Harness) captureState(ctx context.Context) (State, error) {
	pending, err := h.client.ListPending(ctx)
	if err != nil {
		return State{}, err
	}
	synced, err := h.client.ListSynchronized(ctx)
	if err != nil {
		return State{}, err
	}

	received := h.server.Received()
	receivedIDs := make([]string, len(received))
	for i, r := range received {
		receivedIDs[i] = r.ID
	}

	return State{
		Pending:      record.IDs(pending),
		Synchronized: record.IDs(synced),
		Received:     receivedIDs,
		Batches:      h.server.Batches(),
	}, nil
}

// checkExpect compares an executed step against its expect clause.
func checkExpect(result *Result, index int, step Step, ev TraceEvent) {
	want := OutcomeOK
	if step.Expect != nil && step.Expect.Outcome != "" {
		want = step.Expect.Outcome
	}
	if ev.Outcome != want {
		result.AddError(fmt.Sprintf("steps[%d] %s: expected outcome %s, got %s", index, step.Action, want, ev.Outcome))
	}
	if step.Expect != nil && step.Expect.Synced != nil && ev.Synced != nil && *ev.Synced != *step.Expect.Synced {
		result.AddError(fmt.Sprintf("steps[%d] %s: expected synced %d, got %d", index, step.Action, *step.Expect.Synced, *ev.Synced))
	}
}

// outcomeOf maps an operation error to its trace outcome.
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case remote.IsTransportError(err):
		return OutcomeTransport
	case remote.IsServerRejectedError(err):
		return OutcomeServerRejected
	case errors.Is(err, client.ErrFatal):
		return OutcomeFatal
	case store.IsBlockedError(err):
		return OutcomeBlocked
	}
	return OutcomeError
}

// dropTable removes table from the database at path, simulating a store
// that lost a collection.
func dropTable(path, table string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec("DROP TABLE " + table)
	return err
}

// switchTransport fails every request while offline, like a device with
// no connectivity. It never reaches the endpoint in that state.
type switchTransport struct {
	base    http.RoundTripper
	offline atomic.Bool
}

func (t *switchTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if t.offline.Load() {
		if r.Body != nil {
			r.Body.Close()
		}
		return nil, errNetworkDown
	}
	return t.base.RoundTrip(r)
}
