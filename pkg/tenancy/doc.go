// Package tenancy enforces logical tenant isolation on document access.
//
// Every business document carries a laboratoryId stamp. Reads go through
// BuildQuery (strict, fails with ErrMissingTenantContext) or BuildSafeQuery
// (substitutes a sentinel that matches nothing). Writes go through
// StampTenant. Lookups by id are followed by BelongsToTenant before a
// record is returned, updated or deleted.
//
// Collection bundles these rules into a repository bound to one laboratory:
//
//	samples, err := tenancy.NewCollection(store, "samples", snapshot.LaboratoryID())
//	if err != nil {
//	    return err // ErrMissingTenantContext
//	}
//	docs, err := samples.List(ctx, docstore.Eq("status", "received"))
package tenancy
