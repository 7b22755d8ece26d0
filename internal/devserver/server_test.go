package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/remote"
)

var receivedAt = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New(
		WithClock(clock.Func(func() time.Time { return receivedAt })),
		WithLogger(zaptest.NewLogger(t)),
	)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func queued(id string) record.Submission {
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return record.Submission{
		ID:        id,
		Data:      record.Payload{Text: "leaf spots on " + id, Timestamp: at},
		CreatedAt: at,
		Status:    record.StatusQueued,
	}
}

func postBatch(t *testing.T, url string, subs ...record.Submission) (int, record.BatchResponse) {
	t.Helper()
	body, err := json.Marshal(record.NewBatch(subs))
	require.NoError(t, err)

	resp, err := http.Post(url+SyncPath, "application/json", strings.NewReader(string(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	var out record.BatchResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestSync_AcceptsAndDedupes(t *testing.T) {
	s, ts := newTestServer(t)

	status, resp := postBatch(t, ts.URL, queued("a"), queued("b"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 2, resp.Processed)
	assert.Zero(t, resp.Skipped)

	status, resp = postBatch(t, ts.URL, queued("b"), queued("c"))
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, resp.Processed)
	assert.Equal(t, 1, resp.Skipped)

	got := s.Received()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, StatusDiagnosisPending, got[0].ServerStatus)
	assert.Equal(t, receivedAt, got[0].ReceivedAt)
	assert.Equal(t, 2, s.Batches())
}

func TestSync_SkipsEntriesWithoutID(t *testing.T) {
	s, ts := newTestServer(t)

	_, resp := postBatch(t, ts.URL, queued(""), queued("a"))
	assert.Equal(t, 1, resp.Processed)
	assert.Zero(t, resp.Skipped)
	assert.Len(t, s.Received(), 1)
}

func TestSync_InvalidBody(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+SyncPath, "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRejectWith(t *testing.T) {
	s, ts := newTestServer(t)
	s.RejectWith(http.StatusServiceUnavailable)

	client := remote.NewHTTPClient(ts.URL + SyncPath)
	err := client.PushBatch(context.Background(), []record.Submission{queued("a")})
	require.Error(t, err)
	assert.True(t, remote.IsServerRejectedError(err))
	assert.Empty(t, s.Received())

	s.RejectWith(0)
	require.NoError(t, client.PushBatch(context.Background(), []record.Submission{queued("a")}))
	assert.Len(t, s.Received(), 1)
	assert.Equal(t, 2, s.Batches())
}

func TestListSubmissions(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + SubmissionsPath)
	require.NoError(t, err)
	var empty []Received
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&empty))
	resp.Body.Close()
	assert.Empty(t, empty)

	postBatch(t, ts.URL, queued("a"))

	resp, err = http.Get(ts.URL + SubmissionsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))

	var got []Received
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)
	assert.Equal(t, "leaf spots on a", got[0].Data.Text)
}

func TestPingReachesServer(t *testing.T) {
	_, ts := newTestServer(t)
	client := remote.NewHTTPClient(ts.URL + SyncPath)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s := New(WithLogger(zaptest.NewLogger(t)))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
}
