package tenancy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/observability"
)

// Collection is a tenant-scoped repository over one docstore collection.
// Every read is filtered by the bound laboratory and every write stamped.
// Records of other laboratories are reported as not found.
type Collection struct {
	store        docstore.Store
	name         string
	laboratoryID string
	metrics      *observability.Metrics
	logger       *observability.Logger
}

// Option configures a Collection
type Option func(*Collection)

// WithMetrics records guard rejections
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Collection) { c.metrics = m }
}

// WithLogger sets the logger for guard rejections
func WithLogger(l *observability.Logger) Option {
	return func(c *Collection) { c.logger = l }
}

// NewCollection binds a collection to a laboratory
func NewCollection(store docstore.Store, name, laboratoryID string, opts ...Option) (*Collection, error) {
	c := &Collection{store: store, name: name, laboratoryID: laboratoryID}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = observability.NopLogger()
	}
	if err := ValidateLaboratoryID(laboratoryID); err != nil {
		c.reject("bind", "missing_tenant")
		return nil, err
	}
	return c, nil
}

// Name returns the collection name
func (c *Collection) Name() string {
	return c.name
}

// LaboratoryID returns the bound laboratory
func (c *Collection) LaboratoryID() string {
	return c.laboratoryID
}

func (c *Collection) reject(operation, reason string) {
	c.metrics.RecordGuardRejection(operation, reason)
	c.logger.WithFields(map[string]interface{}{
		"collection":    c.name,
		"laboratory_id": c.laboratoryID,
		"operation":     operation,
		"reason":        reason,
	}).Warn("tenant guard rejected operation")
}

// List returns the laboratory's documents matching filters
func (c *Collection) List(ctx context.Context, filters ...docstore.Filter) ([]docstore.Document, error) {
	q, err := BuildQuery(c.name, c.laboratoryID, filters...)
	if err != nil {
		return nil, err
	}
	return c.store.Find(ctx, q)
}

// Query runs a prepared query after re-scoping it to the laboratory
func (c *Collection) Query(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	scopedQuery, err := BuildQuery(c.name, c.laboratoryID, q.Filters...)
	if err != nil {
		return nil, err
	}
	scopedQuery.OrderBy = q.OrderBy
	scopedQuery.Descending = q.Descending
	scopedQuery.Limit = q.Limit
	return c.store.Find(ctx, scopedQuery)
}

// Get loads a document by id and verifies it belongs to the laboratory
func (c *Collection) Get(ctx context.Context, id string) (docstore.Document, error) {
	return c.owned(ctx, "get", id)
}

func (c *Collection) owned(ctx context.Context, operation, id string) (docstore.Document, error) {
	doc, err := c.store.Get(ctx, c.name, id)
	if err != nil {
		return nil, err
	}
	if !BelongsToTenant(doc, c.laboratoryID) {
		c.reject(operation, "foreign_record")
		return nil, fmt.Errorf("%s/%s: %w", c.name, id, docstore.ErrNotFound)
	}
	return doc, nil
}

// Create stores a new document, generating an id when data has none.
// The write is a create-if-absent, so an id that is already taken fails
// with ErrAlreadyExists and the stored document is left untouched.
func (c *Collection) Create(ctx context.Context, data docstore.Document) (docstore.Document, error) {
	id := data.ID()
	if id == "" {
		id = uuid.NewString()
	}

	doc, err := StampTenant(data, c.laboratoryID)
	if err != nil {
		return nil, err
	}
	doc[docstore.FieldID] = id
	if _, ok := doc["createdAt"]; !ok {
		doc["createdAt"] = doc[FieldUpdatedAt]
	}

	if err := c.store.Insert(ctx, c.name, id, doc); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			c.rejectTakenID(ctx, id)
		}
		return nil, err
	}
	return c.store.Get(ctx, c.name, id)
}

func (c *Collection) rejectTakenID(ctx context.Context, id string) {
	existing, err := c.store.Get(ctx, c.name, id)
	if err != nil || BelongsToTenant(existing, c.laboratoryID) {
		return
	}
	c.reject("create", "foreign_record")
}

// Update merges patch into an owned document. The id and tenant stamp
// cannot be changed through the patch.
func (c *Collection) Update(ctx context.Context, id string, patch docstore.Document) (docstore.Document, error) {
	if _, err := c.owned(ctx, "update", id); err != nil {
		return nil, err
	}

	clean := patch.Clone()
	delete(clean, docstore.FieldID)
	delete(clean, "createdAt")

	doc, err := StampTenant(clean, c.laboratoryID)
	if err != nil {
		return nil, err
	}
	if err := c.store.Merge(ctx, c.name, id, doc); err != nil {
		return nil, err
	}
	return c.store.Get(ctx, c.name, id)
}

// Delete removes an owned document
func (c *Collection) Delete(ctx context.Context, id string) error {
	if _, err := c.owned(ctx, "delete", id); err != nil {
		return err
	}
	return c.store.Delete(ctx, c.name, id)
}
