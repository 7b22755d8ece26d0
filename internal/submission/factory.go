// Package submission builds new pending records from captured input.
package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/fieldsync/internal/clock"
	"github.com/roach88/fieldsync/internal/record"
	"github.com/roach88/fieldsync/internal/store"
)

// ErrEmptyInput is returned when the input has neither text nor image.
var ErrEmptyInput = errors.New("submission: input has no text or image")

// IDGenerator generates submission ids.
// Implemented by UUIDGenerator (production) and testutil.SequenceIDGenerator (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDGenerator generates random (version 4) UUIDs.
//
// Format: "550e8400-e29b-41d4-a716-446655440000" (36 characters)
//
// Thread-safety: UUIDGenerator is stateless and safe for concurrent use.
type UUIDGenerator struct{}

// Generate creates a new UUIDv4 string.
//
// Panics if the system random source fails.
func (UUIDGenerator) Generate() string {
	return uuid.Must(uuid.NewRandom()).String()
}

// Putter persists a record into a collection.
type Putter interface {
	Put(ctx context.Context, c store.Collection, sub record.Submission) error
}

// Factory creates queued submissions and persists them to pending.
type Factory struct {
	store  Putter
	ids    IDGenerator
	clock  clock.Clock
	logger *zap.Logger
}

// Option configures a Factory.
type Option func(*Factory)

// WithIDGenerator overrides the UUIDv4 generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(f *Factory) {
		f.ids = g
	}
}

// WithClock overrides the system clock.
func WithClock(c clock.Clock) Option {
	return func(f *Factory) {
		f.clock = c
	}
}

// WithLogger sets the factory logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// NewFactory creates a Factory writing to s.
func NewFactory(s Putter, opts ...Option) *Factory {
	f := &Factory{
		store:  s,
		ids:    UUIDGenerator{},
		clock:  clock.System{},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Create assigns a fresh id, stamps createdAt, marks the record queued and
// stores it in pending. Duplicate content is not detected here.
//
// Text is NFC-normalized. The capture timestamp defaults to createdAt.
func (f *Factory) Create(ctx context.Context, in record.RawInput) (record.Submission, error) {
	payload := record.Payload{
		Text:      norm.NFC.String(in.Text),
		Image:     in.Image,
		Timestamp: in.CapturedAt.UTC(),
	}
	if payload.Empty() {
		return record.Submission{}, ErrEmptyInput
	}

	now := f.clock.Now().UTC()
	if in.CapturedAt.IsZero() {
		payload.Timestamp = now
	}

	sub := record.Submission{
		ID:        f.ids.Generate(),
		Data:      payload,
		CreatedAt: now,
		Status:    record.StatusQueued,
	}

	if err := f.store.Put(ctx, store.Pending, sub); err != nil {
		return record.Submission{}, fmt.Errorf("create submission: %w", err)
	}

	f.logger.Debug("submission queued",
		zap.String("id", sub.ID),
		zap.Bool("has_image", sub.Data.Image != ""),
	)
	return sub, nil
}
