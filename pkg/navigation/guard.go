// Package navigation decides which parts of the application shell a user
// may see. Visibility is plain set membership: no hierarchy, no wildcards.
package navigation

import "github.com/platinummonkey/labkit/pkg/rbac"

// IsVisible reports whether set contains id
func IsVisible(id rbac.PermissionID, set rbac.PermissionSet) bool {
	return set.Has(id)
}

// Guard returns item when set contains id and fallback otherwise
func Guard[T any](id rbac.PermissionID, set rbac.PermissionSet, item, fallback T) T {
	if IsVisible(id, set) {
		return item
	}
	return fallback
}
