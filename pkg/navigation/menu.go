package navigation

import "github.com/platinummonkey/labkit/pkg/rbac"

// Entry is one item of the application menu. An entry without a Permission
// is shown whenever at least one of its children is.
type Entry struct {
	ID         string            `json:"id"`
	Label      string            `json:"label"`
	Path       string            `json:"path,omitempty"`
	Permission rbac.PermissionID `json:"permission,omitempty"`
	Children   []Entry           `json:"children,omitempty"`
}

// DefaultMenu returns the application menu
func DefaultMenu() []Entry {
	return []Entry{
		{ID: "dashboard", Label: "Dashboard", Path: "/", Permission: rbac.PermDashboardView},
		{ID: "samples", Label: "Samples", Path: "/samples", Permission: rbac.PermSamplesView},
		{ID: "results", Label: "Results", Path: "/results", Permission: rbac.PermResultsView},
		{ID: "equipment", Label: "Equipment", Path: "/equipment", Permission: rbac.PermEquipmentView},
		{ID: "inventory", Label: "Inventory", Path: "/inventory", Permission: rbac.PermInventoryView},
		{ID: "reports", Label: "Reports", Path: "/reports", Permission: rbac.PermReportsView},
		{
			ID:    "admin",
			Label: "Administration",
			Children: []Entry{
				{ID: "users", Label: "Users", Path: "/admin/users", Permission: rbac.PermUsersView},
				{ID: "roles", Label: "Roles", Path: "/admin/roles", Permission: rbac.PermRolesView},
				{ID: "settings", Label: "Settings", Path: "/admin/settings", Permission: rbac.PermSettingsView},
			},
		},
	}
}

// VisibleEntries returns the entries of menu that set allows, preserving
// order. Hidden entries take their children with them.
func VisibleEntries(menu []Entry, set rbac.PermissionSet) []Entry {
	out := make([]Entry, 0, len(menu))
	for _, entry := range menu {
		if entry.Permission != "" && !IsVisible(entry.Permission, set) {
			continue
		}
		var children []Entry
		if len(entry.Children) > 0 {
			children = VisibleEntries(entry.Children, set)
			if entry.Permission == "" && len(children) == 0 {
				continue
			}
		} else if entry.Permission == "" {
			continue
		}
		entry.Children = children
		out = append(out, entry)
	}
	return out
}
