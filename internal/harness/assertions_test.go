package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func synced(n int) *int { return &n }

func sampleResult() *Result {
	r := NewResult()
	r.addTrace(TraceEvent{Action: ActionOffline, Outcome: OutcomeOK})
	r.addTrace(TraceEvent{Action: ActionCreate, Outcome: OutcomeOK, IDs: []string{"sub-0001", "sub-0002"}})
	r.addTrace(TraceEvent{Action: ActionSync, Outcome: OutcomeTransport, Synced: synced(0)})
	r.addTrace(TraceEvent{Action: ActionOnline, Outcome: OutcomeOK})
	r.addTrace(TraceEvent{Action: ActionSync, Outcome: OutcomeOK, Synced: synced(2)})
	r.State = State{
		Pending:      []string{},
		Synchronized: []string{"sub-0002", "sub-0001"},
		Received:     []string{"sub-0001", "sub-0002"},
		Batches:      1,
	}
	return r
}

func TestAddTrace_Sequences(t *testing.T) {
	r := sampleResult()
	for i, ev := range r.Trace {
		assert.Equal(t, i+1, ev.Seq)
	}
}

func TestEvaluateAssertions_Passing(t *testing.T) {
	assertions := []Assertion{
		{Type: AssertCollectionCount, Collection: "pending", Count: 0},
		{Type: AssertCollectionCount, Collection: "synchronized", Count: 2},
		{Type: AssertCollectionCount, Collection: "remote", Count: 2},
		{Type: AssertRemoteBatches, Count: 1},
		{Type: AssertUniqueIDs},
		{Type: AssertTraceCount, Action: ActionSync, Count: 2},
		{Type: AssertTraceOrder, Actions: []string{ActionOffline, ActionSync, ActionSync}},
	}
	assert.Empty(t, EvaluateAssertions(sampleResult(), assertions, nil))
}

func TestEvaluateAssertions_Failing(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		want      string
	}{
		{"count", Assertion{Type: AssertCollectionCount, Collection: "pending", Count: 1}, "1 records in pending"},
		{"batches", Assertion{Type: AssertRemoteBatches, Count: 3}, "3 batch requests"},
		{"trace count", Assertion{Type: AssertTraceCount, Action: ActionSync, Count: 1}, "1 occurrences of sync"},
		{"trace order", Assertion{Type: AssertTraceOrder, Actions: []string{ActionOnline, ActionOffline}}, "no offline after [online]"},
		{"record assertion without client", Assertion{Type: AssertSynchronizedOrder}, "requires a client"},
		{"unknown", Assertion{Type: "bogus"}, "unknown assertion type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := EvaluateAssertions(sampleResult(), []Assertion{tt.assertion}, nil)
			require.Len(t, errs, 1)
			assert.Contains(t, errs[0], tt.want)
		})
	}
}

func TestAssertUniqueIDs_Duplicate(t *testing.T) {
	r := sampleResult()
	r.State.Pending = []string{"sub-0001"}

	errs := EvaluateAssertions(r, []Assertion{{Type: AssertUniqueIDs}}, nil)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "sub-0001 in pending and synchronized")
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := assertTraceCount(sampleResult().Trace, Assertion{Type: AssertTraceCount, Action: ActionReset, Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Full trace:")
	assert.Contains(t, err.Error(), "[3] sync -> transport")
}
