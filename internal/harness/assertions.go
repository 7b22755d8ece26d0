package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/fieldsync/internal/client"
	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/store"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s -> %s\n", event.Seq, event.Action, event.Outcome)
		}
	}
	return buf.String()
}

// AssertionContext provides the live client for assertions that read
// whole records rather than the captured id lists.
type AssertionContext struct {
	Ctx    context.Context
	Client *client.Client
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertCollectionCount:
			err = assertCollectionCount(result.State, assertion)
		case AssertRemoteBatches:
			err = assertRemoteBatches(result.State, assertion)
		case AssertUniqueIDs:
			err = assertUniqueIDs(result.State)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertCollectionStatus, AssertSyncedAfterCreated, AssertSynchronizedOrder:
			if actx == nil || actx.Client == nil {
				err = fmt.Errorf("assertion[%d]: %s requires a client", i, assertion.Type)
				break
			}
			err = assertRecords(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

// assertCollectionCount checks the size of a collection or of the
// endpoint's received set.
func assertCollectionCount(state State, a Assertion) error {
	var got []string
	switch a.Collection {
	case string(store.Pending):
		got = state.Pending
	case string(store.Synchronized):
		got = state.Synchronized
	case collectionRemote:
		got = state.Received
	default:
		return fmt.Errorf("collection_count: unknown collection %q", a.Collection)
	}

	if len(got) != a.Count {
		return &AssertionError{
			Type:     AssertCollectionCount,
			Expected: fmt.Sprintf("%d records in %s", a.Count, a.Collection),
			Actual:   fmt.Sprintf("%d records %v", len(got), got),
		}
	}
	return nil
}

func assertRemoteBatches(state State, a Assertion) error {
	if state.Batches != a.Count {
		return &AssertionError{
			Type:     AssertRemoteBatches,
			Expected: fmt.Sprintf("%d batch requests", a.Count),
			Actual:   fmt.Sprintf("%d batch requests", state.Batches),
		}
	}
	return nil
}

// assertUniqueIDs checks that no id is in both collections, or twice in one.
func assertUniqueIDs(state State) error {
	seen := make(map[string]string, len(state.Pending)+len(state.Synchronized))
	check := func(coll string, ids []string) error {
		for _, id := range ids {
			if prev, ok := seen[id]; ok {
				return &AssertionError{
					Type:     AssertUniqueIDs,
					Expected: "every id in exactly one collection",
					Actual:   fmt.Sprintf("%s in %s and %s", id, prev, coll),
				}
			}
			seen[id] = coll
		}
		return nil
	}
	if err := check(string(store.Pending), state.Pending); err != nil {
		return err
	}
	return check(string(store.Synchronized), state.Synchronized)
}

// assertTraceCount checks if the action appears exactly the specified number of times.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Action == a.Action {
			count++
		}
	}

	if count != a.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, a.Action),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertTraceOrder checks if actions appear in the specified order.
// Actions don't need to be consecutive (intervening actions are allowed),
// and a repeated action matches successive occurrences.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Actions) && event.Action == a.Actions[next] {
			next++
		}
	}

	if next < len(a.Actions) {
		return &AssertionError{
			Type:     AssertTraceOrder,
			Expected: fmt.Sprintf("actions in order: %v", a.Actions),
			Actual:   fmt.Sprintf("no %s after %v", a.Actions[next], a.Actions[:next]),
			Trace:    trace,
		}
	}
	return nil
}

// assertRecords runs the assertions that need whole records.
func assertRecords(actx *AssertionContext, a Assertion) error {
	switch a.Type {
	case AssertCollectionStatus:
		subs, err := listCollection(actx, a.Collection)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if sub.Status != record.Status(a.Status) {
				return &AssertionError{
					Type:     AssertCollectionStatus,
					Expected: fmt.Sprintf("every %s record has status %s", a.Collection, a.Status),
					Actual:   fmt.Sprintf("%s has status %s", sub.ID, sub.Status),
				}
			}
		}

	case AssertSyncedAfterCreated:
		subs, err := actx.Client.ListSynchronized(actx.Ctx)
		if err != nil {
			return err
		}
		for _, sub := range subs {
			if sub.SyncedAt == nil || sub.SyncedAt.Before(sub.CreatedAt) {
				return &AssertionError{
					Type:     AssertSyncedAfterCreated,
					Expected: "syncedAt >= createdAt",
					Actual:   fmt.Sprintf("%s created %s synced %v", sub.ID, sub.CreatedAt, sub.SyncedAt),
				}
			}
		}

	case AssertSynchronizedOrder:
		subs, err := actx.Client.ListSynchronized(actx.Ctx)
		if err != nil {
			return err
		}
		for i := 1; i < len(subs); i++ {
			if subs[i].SyncedAt.After(*subs[i-1].SyncedAt) {
				return &AssertionError{
					Type:     AssertSynchronizedOrder,
					Expected: "synchronized sorted by syncedAt descending",
					Actual:   fmt.Sprintf("%s (pos %d) synced after %s (pos %d)", subs[i].ID, i+1, subs[i-1].ID, i),
				}
			}
		}
	}
	return nil
}

func listCollection(actx *AssertionContext, coll string) ([]record.Submission, error) {
	if coll == string(store.Pending) {
		return actx.Client.ListPending(actx.Ctx)
	}
	return actx.Client.ListSynchronized(actx.Ctx)
}
