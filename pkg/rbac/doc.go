// Package rbac provides the permission catalog, roles and the effective
// permission resolver for laboratory users.
//
// # Overview
//
// Permissions are flat string identifiers ("samples.view", "results.approve")
// registered in a static catalog grouped by feature area. There is no
// hierarchy and no wildcard matching: a permission is either in a set or not.
//
// # Roles
//
// A Role belongs to exactly one laboratory and carries a set of base
// permissions. Every new laboratory is seeded from the built-in templates:
//
//	lab:admin       - every permission in the catalog
//	lab:analyst     - samples, results entry and approval, reports
//	lab:technician  - samples, equipment and inventory handling
//	lab:viewer      - read-only access
//
// # Effective Permissions
//
// A user's effective permission set is derived, never stored:
//
//	effective := rbac.Resolve(role, user)
//	// (role.Permissions ∪ user.GrantedPermissions) \ user.RevokedPermissions
//
// Revocation always wins. An administrator can lock down a single user
// without editing the shared role. A missing role behaves exactly like a user
// without a role: the base set is empty and only grants apply.
//
// # Related Packages
//
//   - pkg/auth: User records carrying grants and revokes
//   - pkg/session: Loads records and resolves permissions per session
//   - pkg/navigation: Hides UI entries the effective set does not cover
package rbac
