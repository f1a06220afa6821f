package rbac

import "github.com/platinummonkey/labkit/pkg/auth"

// Resolve computes the effective permission set of a user:
//
//	(role.Permissions ∪ user.GrantedPermissions) \ user.RevokedPermissions
//
// Revocation always wins, over both role permissions and explicit grants.
// Nil inputs degrade to empty sets.
func Resolve(role *Role, user *auth.UserRecord) PermissionSet {
	base := role.PermissionSet()
	if user == nil {
		return base
	}
	granted := SetFromStrings(user.GrantedPermissions)
	revoked := SetFromStrings(user.RevokedPermissions)
	return base.Union(granted).Difference(revoked)
}
