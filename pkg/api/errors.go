package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/labkit/pkg/directory"
	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/httputil"
	"github.com/platinummonkey/labkit/pkg/labs"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/platinummonkey/labkit/pkg/rbac"
	"github.com/platinummonkey/labkit/pkg/tenancy"
)

// writeError maps domain errors to responses. Unknown errors are logged
// and reported as 500 without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, tenancy.ErrMissingTenantContext):
		httputil.WriteErrorResponse(w, http.StatusConflict, httputil.ErrorResponse{
			Error: "no laboratory is bound to this session",
			Code:  "missing_tenant_context",
		})
	case errors.Is(err, docstore.ErrPermissionDenied):
		httputil.WriteForbidden(w, "the operation was refused by the data store")
	case errors.Is(err, docstore.ErrUnavailable):
		httputil.WriteServiceUnavailable(w, "the data store is unavailable")
	case errors.Is(err, docstore.ErrNotFound), errors.Is(err, directory.ErrNotFound):
		httputil.WriteNotFoundError(w, "not found")
	case errors.Is(err, tenancy.ErrAlreadyExists), errors.Is(err, directory.ErrConflict):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, directory.ErrInvalidInput),
		errors.Is(err, labs.ErrInvalidInput),
		errors.Is(err, rbac.ErrUnknownPermission),
		errors.Is(err, docstore.ErrInvalidQuery):
		httputil.WriteBadRequest(w, err.Error())
	default:
		observability.FromContext(r.Context()).WithError(err).Error("request failed")
		httputil.WriteInternalError(w, errors.New("internal server error"))
	}
}
