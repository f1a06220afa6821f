package tenancy

import (
	"errors"

	"github.com/platinummonkey/labkit/pkg/docstore"
)

var (
	// ErrMissingTenantContext is returned when a tenant-scoped operation is
	// attempted without a laboratory id. It must propagate to the caller.
	ErrMissingTenantContext = errors.New("missing tenant context")

	// ErrAlreadyExists is returned when creating a document whose id is taken
	ErrAlreadyExists = docstore.ErrAlreadyExists
)
