package rbac

import (
	"time"
)

// Role is a named set of base permissions owned by exactly one laboratory
type Role struct {
	ID           string         `json:"id"`
	LaboratoryID string         `json:"laboratoryId"`
	Name         string         `json:"name"`
	Description  string         `json:"description,omitempty"`
	Permissions  []PermissionID `json:"permissions"`
	IsBuiltIn    bool           `json:"isBuiltIn,omitempty"`
	CreatedAt    time.Time      `json:"createdAt,omitempty"`
	UpdatedAt    time.Time      `json:"updatedAt,omitempty"`
	CreatedBy    string         `json:"createdBy,omitempty"`
}

// PermissionSet returns the role's permissions as a set. A nil role yields
// an empty set.
func (r *Role) PermissionSet() PermissionSet {
	if r == nil {
		return PermissionSet{}
	}
	return NewPermissionSet(r.Permissions...)
}

// Built-in role template names
const (
	RoleLabAdmin   = "lab:admin"
	RoleAnalyst    = "lab:analyst"
	RoleTechnician = "lab:technician"
	RoleViewer     = "lab:viewer"
)

// RoleTemplate is a blueprint used to seed roles into a new laboratory
type RoleTemplate struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Permissions []PermissionID `json:"permissions"`
}

// BuiltInRoles returns the role templates every laboratory starts with
func BuiltInRoles() []RoleTemplate {
	return []RoleTemplate{
		{
			Name:        RoleLabAdmin,
			Description: "Full access to laboratory data and administration",
			Permissions: AllPermissions(),
		},
		{
			Name:        RoleAnalyst,
			Description: "Registers samples, enters and approves results",
			Permissions: []PermissionID{
				PermDashboardView,
				PermSamplesView,
				PermSamplesCreate,
				PermSamplesEdit,
				PermResultsView,
				PermResultsEnter,
				PermResultsApprove,
				PermEquipmentView,
				PermInventoryView,
				PermReportsView,
				PermReportsExport,
			},
		},
		{
			Name:        RoleTechnician,
			Description: "Handles samples, equipment and inventory",
			Permissions: []PermissionID{
				PermDashboardView,
				PermSamplesView,
				PermSamplesCreate,
				PermResultsView,
				PermResultsEnter,
				PermEquipmentView,
				PermEquipmentManage,
				PermInventoryView,
				PermInventoryManage,
			},
		},
		{
			Name:        RoleViewer,
			Description: "Read-only access to laboratory data",
			Permissions: []PermissionID{
				PermDashboardView,
				PermSamplesView,
				PermResultsView,
				PermEquipmentView,
				PermInventoryView,
				PermReportsView,
			},
		},
	}
}
