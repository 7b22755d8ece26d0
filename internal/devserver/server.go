// Package devserver is a reference batch endpoint for local runs and tests.
//
// It honors the contract the sync engine relies on: a batch is accepted or
// rejected as a whole, and submissions are deduplicated by id so a replayed
// batch is harmless. Received records are kept in memory.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/record"
)

// SyncPath and SubmissionsPath are the routes served by Handler.
const (
	SyncPath        = "/api/sync"
	SubmissionsPath = "/api/submissions"
)

// StatusDiagnosisPending is the server-side status of every received record.
const StatusDiagnosisPending = "diagnosis_pending"

// maxBodyBytes caps one batch. Images travel inline as data URLs.
const maxBodyBytes = 32 << 20

// Received is a submission as stored by the server.
type Received struct {
	record.Submission
	ReceivedAt   time.Time `json:"receivedAt"`
	ServerStatus string    `json:"serverStatus"`
}

// Server is an in-memory batch endpoint.
//
// Thread-safety: safe for concurrent use.
type Server struct {
	clock  clock.Clock
	logger *zap.Logger

	mu       sync.Mutex
	seen     map[string]struct{}
	received []Received
	reject   int // non-zero: answer every batch with this status
	batches  int
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the clock stamping receivedAt.
func WithClock(c clock.Clock) Option {
	return func(s *Server) {
		s.clock = c
	}
}

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New creates an empty Server.
func New(opts ...Option) *Server {
	s := &Server{
		clock:  clock.System{},
		logger: zap.NewNop(),
		seen:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the chi router serving the batch and debug routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestLogger(s.logger))
	r.Use(func(next http.Handler) http.Handler {
		return http.MaxBytesHandler(next, maxBodyBytes)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Head(SyncPath, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post(SyncPath, s.handleSync)
	r.Get(SubmissionsPath, s.handleList)
	return r
}

// ListenAndServe serves Handler on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

// RejectWith makes every following batch fail with status. Zero restores
// normal acceptance.
func (s *Server) RejectWith(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reject = status
}

// Received returns every accepted record in arrival order.
func (s *Server) Received() []Received {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Received, len(s.received))
	copy(out, s.received)
	return out
}

// Batches returns how many batch requests were answered, accepted or not.
func (s *Server) Batches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.batches
}

// Apply records a batch, skipping ids already seen and entries without one.
func (s *Server) Apply(subs []record.Submission) record.BatchResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now().UTC()
	resp := record.BatchResponse{
		Status:  "success",
		Message: "Data synced successfully. Diagnosis is pending.",
	}
	for _, sub := range subs {
		if sub.ID == "" {
			continue
		}
		if _, dup := s.seen[sub.ID]; dup {
			resp.Skipped++
			s.logger.Debug("skipped duplicate submission", zap.String("id", sub.ID))
			continue
		}
		s.seen[sub.ID] = struct{}{}
		s.received = append(s.received, Received{
			Submission:   sub,
			ReceivedAt:   now,
			ServerStatus: StatusDiagnosisPending,
		})
		resp.Processed++
	}
	return resp
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.batches++
	reject := s.reject
	s.mu.Unlock()

	if reject != 0 {
		writeError(w, reject, "batch rejected")
		return
	}

	var batch record.Batch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp := s.Apply(batch.Submissions)
	s.logger.Info("batch received",
		zap.Int("processed", resp.Processed),
		zap.Int("skipped", resp.Skipped),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Received())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"status": "error", "message": msg})
}
