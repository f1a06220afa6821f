package docstore

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/labkit/pkg/observability"
)

// Store is a document store over named collections
type Store interface {
	// Get returns the document with the given id or ErrNotFound
	Get(ctx context.Context, collection, id string) (Document, error)

	// Find returns all documents matching the query
	Find(ctx context.Context, q Query) ([]Document, error)

	// Insert creates a document only if no document has the id yet,
	// otherwise it returns ErrAlreadyExists and leaves the stored one as is
	Insert(ctx context.Context, collection, id string, doc Document) error

	// Merge upserts a document, replacing only the top-level fields present in doc
	Merge(ctx context.Context, collection, id string, doc Document) error

	// Delete removes a document or returns ErrNotFound
	Delete(ctx context.Context, collection, id string) error

	// Ping checks backend availability
	Ping(ctx context.Context) error

	// Close releases backend resources
	Close() error
}

// Instrumented wraps a store and records operation counts and latency
type Instrumented struct {
	Store
	backend string
	metrics *observability.Metrics
}

// Instrument decorates store with Prometheus metrics labelled by backend
func Instrument(store Store, backend string, metrics *observability.Metrics) Store {
	if metrics == nil {
		return store
	}
	return &Instrumented{Store: store, backend: backend, metrics: metrics}
}

func (s *Instrumented) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyExists) {
		err = nil
	}
	s.metrics.RecordDocstoreOp(op, s.backend, err, time.Since(start))
}

func (s *Instrumented) Get(ctx context.Context, collection, id string) (doc Document, err error) {
	defer func(start time.Time) { s.observe("get", start, err) }(time.Now())
	return s.Store.Get(ctx, collection, id)
}

func (s *Instrumented) Find(ctx context.Context, q Query) (docs []Document, err error) {
	defer func(start time.Time) { s.observe("find", start, err) }(time.Now())
	return s.Store.Find(ctx, q)
}

func (s *Instrumented) Insert(ctx context.Context, collection, id string, doc Document) (err error) {
	defer func(start time.Time) { s.observe("insert", start, err) }(time.Now())
	return s.Store.Insert(ctx, collection, id, doc)
}

func (s *Instrumented) Merge(ctx context.Context, collection, id string, doc Document) (err error) {
	defer func(start time.Time) { s.observe("merge", start, err) }(time.Now())
	return s.Store.Merge(ctx, collection, id, doc)
}

func (s *Instrumented) Delete(ctx context.Context, collection, id string) (err error) {
	defer func(start time.Time) { s.observe("delete", start, err) }(time.Now())
	return s.Store.Delete(ctx, collection, id)
}
