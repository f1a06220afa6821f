package audit

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/tenancy"
)

// CollectionEvents holds audit events
const CollectionEvents = "auditEvents"

const defaultSearchLimit = 100

// Store keeps audit events in the document store, partitioned by
// laboratory like every other business record
type Store struct {
	store docstore.Store
}

// NewStore creates an audit store
func NewStore(store docstore.Store) *Store {
	return &Store{store: store}
}

// Log stamps the event with its laboratory and persists it. Events without
// a laboratory are rejected.
func (s *Store) Log(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	doc, err := docstore.Encode(event)
	if err != nil {
		return err
	}
	doc, err = tenancy.StampTenant(doc, event.LaboratoryID)
	if err != nil {
		return fmt.Errorf("audit event %s: %w", event.EventType, err)
	}
	if err := s.store.Merge(ctx, CollectionEvents, event.ID, doc); err != nil {
		return fmt.Errorf("failed to store audit event: %w", err)
	}
	return nil
}

// Search returns the laboratory's events, newest first
func (s *Store) Search(ctx context.Context, laboratoryID string, filter SearchFilter) ([]*Event, error) {
	var filters []docstore.Filter
	if len(filter.EventTypes) > 0 {
		types := make([]interface{}, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		filters = append(filters, docstore.In("eventType", types...))
	}
	if filter.ActorID != "" {
		filters = append(filters, docstore.Eq("actorId", filter.ActorID))
	}
	if filter.ResourceID != "" {
		filters = append(filters, docstore.Eq("resourceId", filter.ResourceID))
	}

	q, err := tenancy.BuildQuery(CollectionEvents, laboratoryID, filters...)
	if err != nil {
		return nil, err
	}
	q.OrderBy = "timestamp"
	q.Descending = true
	q.Limit = filter.Limit
	if q.Limit <= 0 {
		q.Limit = defaultSearchLimit
	}

	docs, err := s.store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit events: %w", err)
	}

	events := make([]*Event, 0, len(docs))
	for _, doc := range docs {
		var event Event
		if err := docstore.Decode(doc, &event); err != nil {
			return nil, err
		}
		events = append(events, &event)
	}
	return events, nil
}

// Close implements Logger
func (s *Store) Close() error {
	return nil
}
