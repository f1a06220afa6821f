// Package auth defines the identity and user records shared by the
// authorization core.
//
// An Identity is what the external identity provider reports for a signed-in
// principal: an opaque subject id plus profile fields. The provider owns its
// lifecycle; this module only observes sign-in and sign-out transitions.
//
// A UserRecord is the laboratory-owned document keyed by the identity's
// subject id. It binds the identity to exactly one laboratory, optionally
// references a role, and carries per-user permission overrides:
//
//	user := &auth.UserRecord{
//		ID:                 identity.Subject,
//		LaboratoryID:       "lab-1",
//		RoleID:             "role-analyst",
//		GrantedPermissions: []string{"reports.export"},
//		RevokedPermissions: []string{"samples.delete"},
//	}
//
// An empty LaboratoryID means the user has not been assigned yet and the
// session is onboarding-pending.
//
// # Related Packages
//
//   - pkg/rbac: Resolves effective permissions from a user and role
//   - pkg/session: Loads user records for identities
package auth
