package tenancy

import (
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/labkit/pkg/docstore"
)

const (
	// FieldLaboratoryID is the tenant stamp on every tenant-scoped document
	FieldLaboratoryID = "laboratoryId"

	// FieldUpdatedAt is refreshed by every stamped write
	FieldUpdatedAt = "updatedAt"

	// NoTenantSentinel replaces a missing laboratory id in safe queries.
	// ValidateLaboratoryID rejects it, so no stored record carries it.
	NoTenantSentinel = "__no_laboratory__"
)

// now is swapped in tests
var now = func() time.Time { return time.Now().UTC() }

// ValidateLaboratoryID rejects blank ids and the reserved sentinel
func ValidateLaboratoryID(laboratoryID string) error {
	if strings.TrimSpace(laboratoryID) == "" {
		return ErrMissingTenantContext
	}
	if laboratoryID == NoTenantSentinel {
		return fmt.Errorf("%w: %q is reserved", ErrMissingTenantContext, laboratoryID)
	}
	return nil
}

// BuildQuery returns a query on collection restricted to laboratoryID.
// The tenant filter is always the first filter.
func BuildQuery(collection, laboratoryID string, filters ...docstore.Filter) (docstore.Query, error) {
	if err := ValidateLaboratoryID(laboratoryID); err != nil {
		return docstore.Query{}, err
	}
	return scoped(collection, laboratoryID, filters), nil
}

// BuildSafeQuery never fails. Without a usable laboratory id it filters on
// NoTenantSentinel, which yields an empty result on any dataset.
func BuildSafeQuery(collection, laboratoryID string, filters ...docstore.Filter) docstore.Query {
	if ValidateLaboratoryID(laboratoryID) != nil {
		laboratoryID = NoTenantSentinel
	}
	return scoped(collection, laboratoryID, filters)
}

func scoped(collection, laboratoryID string, filters []docstore.Filter) docstore.Query {
	all := make([]docstore.Filter, 0, len(filters)+1)
	all = append(all, docstore.Eq(FieldLaboratoryID, laboratoryID))
	all = append(all, filters...)
	return docstore.Query{Collection: collection, Filters: all}
}

// StampTenant returns a copy of data with laboratoryId and updatedAt set.
// Every other field is preserved; the input is not modified.
func StampTenant(data docstore.Document, laboratoryID string) (docstore.Document, error) {
	if err := ValidateLaboratoryID(laboratoryID); err != nil {
		return nil, err
	}
	out := data.Clone()
	if out == nil {
		out = docstore.Document{}
	}
	out[FieldLaboratoryID] = laboratoryID
	out[FieldUpdatedAt] = now()
	return out, nil
}

// BelongsToTenant reports whether doc is stamped with exactly laboratoryID.
// It is false for a blank laboratory id.
func BelongsToTenant(doc docstore.Document, laboratoryID string) bool {
	if ValidateLaboratoryID(laboratoryID) != nil {
		return false
	}
	stamped, ok := doc[FieldLaboratoryID].(string)
	return ok && stamped == laboratoryID
}
