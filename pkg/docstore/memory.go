package docstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. Documents are normalized through a
// JSON round-trip on write, so reads return the same value shapes as the
// database backends.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Document)}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return doc.Clone(), nil
}

func (s *MemoryStore) Find(ctx context.Context, q Query) ([]Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	docs := make([]Document, 0)
	for _, doc := range s.collections[q.Collection] {
		if q.Matches(doc) {
			docs = append(docs, doc.Clone())
		}
	}
	return sortDocuments(docs, q), nil
}

func (s *MemoryStore) Insert(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", ErrInvalidQuery)
	}
	created, err := Encode(doc)
	if err != nil {
		return err
	}
	if created == nil {
		created = Document{}
	}
	created[FieldID] = id

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Document)
		s.collections[collection] = coll
	}
	if _, taken := coll[id]; taken {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	coll[id] = created
	return nil
}

func (s *MemoryStore) Merge(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if collection == "" || id == "" {
		return fmt.Errorf("%w: collection and id are required", ErrInvalidQuery)
	}
	patch, err := Encode(doc)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.collections[collection]
	if !ok {
		coll = make(map[string]Document)
		s.collections[collection] = coll
	}
	current, ok := coll[id]
	if !ok {
		current = Document{}
	}
	for k, v := range patch {
		current[k] = v
	}
	current[FieldID] = id
	coll[id] = current
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.collections[collection][id]; !ok {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	delete(s.collections[collection], id)
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
