package rbac

import (
	"errors"
	"fmt"
)

// PermissionID identifies a single permission. IDs are flat: there is no
// hierarchy and no wildcard matching.
type PermissionID string

// Feature areas used to group the catalog for display
const (
	AreaDashboard = "dashboard"
	AreaSamples   = "samples"
	AreaResults   = "results"
	AreaEquipment = "equipment"
	AreaInventory = "inventory"
	AreaReports   = "reports"
	AreaUsers     = "users"
	AreaRoles     = "roles"
	AreaSettings  = "settings"
)

const (
	PermDashboardView PermissionID = "dashboard.view"

	PermSamplesView   PermissionID = "samples.view"
	PermSamplesCreate PermissionID = "samples.create"
	PermSamplesEdit   PermissionID = "samples.edit"
	PermSamplesDelete PermissionID = "samples.delete"

	PermResultsView    PermissionID = "results.view"
	PermResultsEnter   PermissionID = "results.enter"
	PermResultsApprove PermissionID = "results.approve"

	PermEquipmentView   PermissionID = "equipment.view"
	PermEquipmentManage PermissionID = "equipment.manage"

	PermInventoryView   PermissionID = "inventory.view"
	PermInventoryManage PermissionID = "inventory.manage"

	PermReportsView   PermissionID = "reports.view"
	PermReportsExport PermissionID = "reports.export"

	PermUsersView   PermissionID = "users.view"
	PermUsersManage PermissionID = "users.manage"

	PermRolesView   PermissionID = "roles.view"
	PermRolesManage PermissionID = "roles.manage"

	PermSettingsView   PermissionID = "settings.view"
	PermSettingsManage PermissionID = "settings.manage"
)

// ErrUnknownPermission is returned when an id is not in the catalog
var ErrUnknownPermission = errors.New("unknown permission")

// PermissionDescriptor describes one catalog entry
type PermissionDescriptor struct {
	ID          PermissionID `json:"id"`
	Description string       `json:"description"`
}

// PermissionGroup is a display grouping of permissions for one feature area
type PermissionGroup struct {
	Area        string                 `json:"area"`
	Label       string                 `json:"label"`
	Permissions []PermissionDescriptor `json:"permissions"`
}

var catalog = []PermissionGroup{
	{
		Area:  AreaDashboard,
		Label: "Dashboard",
		Permissions: []PermissionDescriptor{
			{ID: PermDashboardView, Description: "View the laboratory dashboard"},
		},
	},
	{
		Area:  AreaSamples,
		Label: "Samples",
		Permissions: []PermissionDescriptor{
			{ID: PermSamplesView, Description: "View samples"},
			{ID: PermSamplesCreate, Description: "Register new samples"},
			{ID: PermSamplesEdit, Description: "Edit sample details"},
			{ID: PermSamplesDelete, Description: "Delete samples"},
		},
	},
	{
		Area:  AreaResults,
		Label: "Results",
		Permissions: []PermissionDescriptor{
			{ID: PermResultsView, Description: "View analysis results"},
			{ID: PermResultsEnter, Description: "Enter analysis results"},
			{ID: PermResultsApprove, Description: "Approve and release results"},
		},
	},
	{
		Area:  AreaEquipment,
		Label: "Equipment",
		Permissions: []PermissionDescriptor{
			{ID: PermEquipmentView, Description: "View equipment and calibration records"},
			{ID: PermEquipmentManage, Description: "Manage equipment and calibration records"},
		},
	},
	{
		Area:  AreaInventory,
		Label: "Inventory",
		Permissions: []PermissionDescriptor{
			{ID: PermInventoryView, Description: "View reagents and consumables"},
			{ID: PermInventoryManage, Description: "Manage reagents and consumables"},
		},
	},
	{
		Area:  AreaReports,
		Label: "Reports",
		Permissions: []PermissionDescriptor{
			{ID: PermReportsView, Description: "View reports"},
			{ID: PermReportsExport, Description: "Export reports"},
		},
	},
	{
		Area:  AreaUsers,
		Label: "Users",
		Permissions: []PermissionDescriptor{
			{ID: PermUsersView, Description: "View laboratory members"},
			{ID: PermUsersManage, Description: "Manage members and their permission overrides"},
		},
	},
	{
		Area:  AreaRoles,
		Label: "Roles",
		Permissions: []PermissionDescriptor{
			{ID: PermRolesView, Description: "View roles"},
			{ID: PermRolesManage, Description: "Create and edit roles"},
		},
	},
	{
		Area:  AreaSettings,
		Label: "Settings",
		Permissions: []PermissionDescriptor{
			{ID: PermSettingsView, Description: "View laboratory settings"},
			{ID: PermSettingsManage, Description: "Change laboratory settings"},
		},
	},
}

var known = func() map[PermissionID]struct{} {
	m := make(map[PermissionID]struct{})
	for _, g := range catalog {
		for _, p := range g.Permissions {
			m[p.ID] = struct{}{}
		}
	}
	return m
}()

// Catalog returns a copy of the permission catalog grouped by feature area
func Catalog() []PermissionGroup {
	out := make([]PermissionGroup, len(catalog))
	for i, g := range catalog {
		perms := make([]PermissionDescriptor, len(g.Permissions))
		copy(perms, g.Permissions)
		out[i] = PermissionGroup{Area: g.Area, Label: g.Label, Permissions: perms}
	}
	return out
}

// AllPermissions returns every permission id in catalog order
func AllPermissions() []PermissionID {
	ids := make([]PermissionID, 0, len(known))
	for _, g := range catalog {
		for _, p := range g.Permissions {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// IsKnown reports whether id is in the catalog
func IsKnown(id PermissionID) bool {
	_, ok := known[id]
	return ok
}

// ValidatePermissions returns ErrUnknownPermission for the first id not in
// the catalog
func ValidatePermissions(ids []PermissionID) error {
	for _, id := range ids {
		if !IsKnown(id) {
			return fmt.Errorf("%w: %q", ErrUnknownPermission, id)
		}
	}
	return nil
}
