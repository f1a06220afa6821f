package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/labs"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/platinummonkey/labkit/pkg/rbac"
)

// Collection names
const (
	CollectionUsers        = "users"
	CollectionRoles        = "roles"
	CollectionLaboratories = "laboratories"
)

var (
	// ErrNotFound is returned when a user, role or laboratory does not exist
	// or is not visible to the calling laboratory
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput is returned for rejected administration requests
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when a request clashes with existing data
	ErrConflict = errors.New("conflict")
)

// Directory gives typed access to users, roles and laboratories stored in
// a document store
type Directory struct {
	store  docstore.Store
	logger *observability.Logger
}

// New creates a directory over store
func New(store docstore.Store, logger *observability.Logger) *Directory {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Directory{store: store, logger: logger}
}

func (d *Directory) load(ctx context.Context, collection, id string, out interface{}) error {
	if id == "" {
		return fmt.Errorf("%s: empty id: %w", collection, ErrNotFound)
	}
	doc, err := d.store.Get(ctx, collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	} else if err != nil {
		return fmt.Errorf("failed to load %s/%s: %w", collection, id, err)
	}
	if err := docstore.Decode(doc, out); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return nil
}

// GetUser loads a user record by identity subject id
func (d *Directory) GetUser(ctx context.Context, id string) (*auth.UserRecord, error) {
	var user auth.UserRecord
	if err := d.load(ctx, CollectionUsers, id, &user); err != nil {
		return nil, err
	}
	if user.ID == "" {
		user.ID = id
	}
	return &user, nil
}

// GetRole loads a role by id
func (d *Directory) GetRole(ctx context.Context, id string) (*rbac.Role, error) {
	var role rbac.Role
	if err := d.load(ctx, CollectionRoles, id, &role); err != nil {
		return nil, err
	}
	if role.ID == "" {
		role.ID = id
	}
	return &role, nil
}

// GetLaboratory loads a laboratory by id
func (d *Directory) GetLaboratory(ctx context.Context, id string) (*labs.Laboratory, error) {
	var lab labs.Laboratory
	if err := d.load(ctx, CollectionLaboratories, id, &lab); err != nil {
		return nil, err
	}
	if lab.ID == "" {
		lab.ID = id
	}
	return &lab, nil
}

// insert writes a brand new record; a taken id fails with ErrConflict
func (d *Directory) insert(ctx context.Context, collection, id string, record interface{}) error {
	doc, err := docstore.Encode(record)
	if err != nil {
		return err
	}
	if err := d.store.Insert(ctx, collection, id, doc); err != nil {
		if errors.Is(err, docstore.ErrAlreadyExists) {
			return fmt.Errorf("%w: %s/%s already exists", ErrConflict, collection, id)
		}
		return fmt.Errorf("failed to create %s/%s: %w", collection, id, err)
	}
	return nil
}

func (d *Directory) save(ctx context.Context, collection, id string, record interface{}) error {
	doc, err := docstore.Encode(record)
	if err != nil {
		return err
	}
	if err := d.store.Merge(ctx, collection, id, doc); err != nil {
		return fmt.Errorf("failed to save %s/%s: %w", collection, id, err)
	}
	return nil
}
