package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/labkit/pkg/audit"
	"github.com/platinummonkey/labkit/pkg/directory"
	"github.com/platinummonkey/labkit/pkg/httputil"
	"github.com/platinummonkey/labkit/pkg/middleware"
	"github.com/platinummonkey/labkit/pkg/rbac"
)

// AdminHandlers serves user and role administration for the caller's
// laboratory
type AdminHandlers struct {
	directory *directory.Directory
	audit     audit.Logger
}

// NewAdminHandlers creates admin handlers. Changes are recorded to trail.
func NewAdminHandlers(dir *directory.Directory, trail audit.Logger) *AdminHandlers {
	if trail == nil {
		trail = audit.NopLogger{}
	}
	return &AdminHandlers{directory: dir, audit: trail}
}

// RegisterRoutes registers user and role routes
func (h *AdminHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/users", guarded(rbac.PermUsersView, h.listUsers)).Methods("GET")
	router.Handle("/users/{id}/overrides", guarded(rbac.PermUsersManage, h.setOverrides)).Methods("PUT")
	router.Handle("/users/{id}/role", guarded(rbac.PermUsersManage, h.assignRole)).Methods("PUT")

	router.Handle("/roles", guarded(rbac.PermRolesView, h.listRoles)).Methods("GET")
	router.Handle("/roles", guarded(rbac.PermRolesManage, h.createRole)).Methods("POST")
	router.Handle("/roles/{id}/permissions", guarded(rbac.PermRolesManage, h.updateRolePermissions)).Methods("PUT")
}

// OverridesRequest replaces a user's granted and revoked permissions
type OverridesRequest struct {
	Granted []rbac.PermissionID `json:"granted"`
	Revoked []rbac.PermissionID `json:"revoked"`
}

// AssignRoleRequest sets a user's role. An empty RoleID clears it.
type AssignRoleRequest struct {
	RoleID string `json:"roleId"`
}

// RolePermissionsRequest replaces a role's permissions
type RolePermissionsRequest struct {
	Permissions []rbac.PermissionID `json:"permissions"`
}

func laboratoryID(r *http.Request) string {
	if snap := middleware.GetSession(r); snap != nil {
		return snap.LaboratoryID()
	}
	return ""
}

// listUsers handles GET /api/users
func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.directory.ListUsers(r.Context(), laboratoryID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"users": users})
}

// setOverrides handles PUT /api/users/{id}/overrides
func (h *AdminHandlers) setOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req OverridesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.directory.SetUserOverrides(r.Context(), laboratoryID(r), userID, req.Granted, req.Revoked)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record(h.audit, r, audit.NewEvent(r, audit.EventTypeAuthzOverridesUpdate, laboratoryID(r), actorID(r)).
		WithResource(audit.ResourceTypeUser, userID).
		WithChanges(nil, map[string]interface{}{
			"grantedPermissions": user.GrantedPermissions,
			"revokedPermissions": user.RevokedPermissions,
		}))
	httputil.WriteSuccess(w, user)
}

// assignRole handles PUT /api/users/{id}/role
func (h *AdminHandlers) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req AssignRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.directory.AssignRole(r.Context(), laboratoryID(r), userID, req.RoleID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record(h.audit, r, audit.NewEvent(r, audit.EventTypeAuthzRoleAssign, laboratoryID(r), actorID(r)).
		WithResource(audit.ResourceTypeUser, userID).
		WithChanges(nil, map[string]interface{}{"roleId": user.RoleID}))
	httputil.WriteSuccess(w, user)
}

// listRoles handles GET /api/roles
func (h *AdminHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.directory.ListRoles(r.Context(), laboratoryID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"roles": roles})
}

// createRole handles POST /api/roles
func (h *AdminHandlers) createRole(w http.ResponseWriter, r *http.Request) {
	var req directory.RoleInput
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	createdBy := ""
	if snap := middleware.GetSession(r); snap != nil && snap.User != nil {
		createdBy = snap.User.ID
	}
	role, err := h.directory.CreateRole(r.Context(), laboratoryID(r), createdBy, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record(h.audit, r, audit.NewEvent(r, audit.EventTypeAuthzRoleCreate, laboratoryID(r), actorID(r)).
		WithResource(audit.ResourceTypeRole, role.ID).
		WithChanges(nil, map[string]interface{}{"name": role.Name, "permissions": role.Permissions}))
	httputil.WriteCreated(w, role)
}

// updateRolePermissions handles PUT /api/roles/{id}/permissions
func (h *AdminHandlers) updateRolePermissions(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	var req RolePermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.directory.UpdateRolePermissions(r.Context(), laboratoryID(r), roleID, req.Permissions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record(h.audit, r, audit.NewEvent(r, audit.EventTypeAuthzRoleUpdate, laboratoryID(r), actorID(r)).
		WithResource(audit.ResourceTypeRole, roleID).
		WithChanges(nil, map[string]interface{}{"permissions": role.Permissions}))
	httputil.WriteSuccess(w, role)
}
