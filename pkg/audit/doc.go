// Package audit records changes to who may do what in a laboratory.
//
// Role assignments, permission overrides, role edits and onboarding are
// recorded as Events. Store keeps them in the document store under the
// same tenant stamp as business data, so a laboratory only ever reads its
// own trail. StructuredLogger mirrors events into the application log and
// MultiLogger fans out to several destinations.
//
//	trail := audit.NewMultiLogger(audit.NewStore(store), audit.NewStructuredLogger(logger))
//	event := audit.NewEvent(r, audit.EventTypeAuthzRoleAssign, labID, actorID).
//		WithResource(audit.ResourceTypeUser, userID).
//		WithChanges(map[string]interface{}{"roleId": oldRole}, map[string]interface{}{"roleId": newRole})
//	if err := trail.Log(ctx, event); err != nil {
//		// the change itself already happened; report and continue
//	}
package audit
