package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/labs"
	"github.com/platinummonkey/labkit/pkg/rbac"
	"github.com/platinummonkey/labkit/pkg/tenancy"
)

// ListUsers returns the users of a laboratory ordered by id
func (d *Directory) ListUsers(ctx context.Context, laboratoryID string) ([]*auth.UserRecord, error) {
	q, err := tenancy.BuildQuery(CollectionUsers, laboratoryID)
	if err != nil {
		return nil, err
	}
	docs, err := d.store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := make([]*auth.UserRecord, 0, len(docs))
	for _, doc := range docs {
		var user auth.UserRecord
		if err := docstore.Decode(doc, &user); err != nil {
			return nil, err
		}
		users = append(users, &user)
	}
	return users, nil
}

// ListRoles returns the roles of a laboratory ordered by id
func (d *Directory) ListRoles(ctx context.Context, laboratoryID string) ([]*rbac.Role, error) {
	q, err := tenancy.BuildQuery(CollectionRoles, laboratoryID)
	if err != nil {
		return nil, err
	}
	docs, err := d.store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	roles := make([]*rbac.Role, 0, len(docs))
	for _, doc := range docs {
		var role rbac.Role
		if err := docstore.Decode(doc, &role); err != nil {
			return nil, err
		}
		roles = append(roles, &role)
	}
	return roles, nil
}

// userInLab loads a user and hides users of other laboratories
func (d *Directory) userInLab(ctx context.Context, laboratoryID, userID string) (*auth.UserRecord, error) {
	if err := tenancy.ValidateLaboratoryID(laboratoryID); err != nil {
		return nil, err
	}
	user, err := d.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.LaboratoryID != laboratoryID {
		return nil, fmt.Errorf("%s/%s: %w", CollectionUsers, userID, ErrNotFound)
	}
	return user, nil
}

func (d *Directory) roleInLab(ctx context.Context, laboratoryID, roleID string) (*rbac.Role, error) {
	if err := tenancy.ValidateLaboratoryID(laboratoryID); err != nil {
		return nil, err
	}
	role, err := d.GetRole(ctx, roleID)
	if err != nil {
		return nil, err
	}
	if role.LaboratoryID != laboratoryID {
		return nil, fmt.Errorf("%s/%s: %w", CollectionRoles, roleID, ErrNotFound)
	}
	return role, nil
}

// writeStamped merges fields into a tenant-owned record through the tenant stamp
func (d *Directory) writeStamped(ctx context.Context, collection, id, laboratoryID string, fields docstore.Document) error {
	doc, err := tenancy.StampTenant(fields, laboratoryID)
	if err != nil {
		return err
	}
	if err := d.store.Merge(ctx, collection, id, doc); err != nil {
		return fmt.Errorf("failed to update %s/%s: %w", collection, id, err)
	}
	return nil
}

// SetUserOverrides replaces a user's granted and revoked permission lists.
// Every id must exist in the permission catalog.
func (d *Directory) SetUserOverrides(ctx context.Context, laboratoryID, userID string, granted, revoked []rbac.PermissionID) (*auth.UserRecord, error) {
	if err := rbac.ValidatePermissions(granted); err != nil {
		return nil, fmt.Errorf("%w: granted: %v", ErrInvalidInput, err)
	}
	if err := rbac.ValidatePermissions(revoked); err != nil {
		return nil, fmt.Errorf("%w: revoked: %v", ErrInvalidInput, err)
	}
	if _, err := d.userInLab(ctx, laboratoryID, userID); err != nil {
		return nil, err
	}

	err := d.writeStamped(ctx, CollectionUsers, userID, laboratoryID, docstore.Document{
		"grantedPermissions": rbac.NewPermissionSet(granted...).Strings(),
		"revokedPermissions": rbac.NewPermissionSet(revoked...).Strings(),
	})
	if err != nil {
		return nil, err
	}

	d.logger.WithFields(map[string]interface{}{
		"laboratory_id": laboratoryID,
		"user_id":       userID,
		"granted":       len(granted),
		"revoked":       len(revoked),
	}).Info("user permission overrides updated")

	return d.GetUser(ctx, userID)
}

// AssignRole points a user at a role of the same laboratory. An empty
// roleID removes the role.
func (d *Directory) AssignRole(ctx context.Context, laboratoryID, userID, roleID string) (*auth.UserRecord, error) {
	if _, err := d.userInLab(ctx, laboratoryID, userID); err != nil {
		return nil, err
	}
	if roleID != "" {
		if _, err := d.roleInLab(ctx, laboratoryID, roleID); err != nil {
			return nil, err
		}
	}

	if err := d.writeStamped(ctx, CollectionUsers, userID, laboratoryID, docstore.Document{"roleId": roleID}); err != nil {
		return nil, err
	}

	d.logger.WithFields(map[string]interface{}{
		"laboratory_id": laboratoryID,
		"user_id":       userID,
		"role_id":       roleID,
	}).Info("role assigned")

	return d.GetUser(ctx, userID)
}

// RoleInput describes a role to create
type RoleInput struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Permissions []rbac.PermissionID `json:"permissions"`
}

// CreateRole adds a custom role to a laboratory. Role names are unique
// within a laboratory.
func (d *Directory) CreateRole(ctx context.Context, laboratoryID, createdBy string, input RoleInput) (*rbac.Role, error) {
	return d.createRole(ctx, laboratoryID, createdBy, input, false)
}

func (d *Directory) createRole(ctx context.Context, laboratoryID, createdBy string, input RoleInput, builtIn bool) (*rbac.Role, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	if err := rbac.ValidatePermissions(input.Permissions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	q, err := tenancy.BuildQuery(CollectionRoles, laboratoryID, docstore.Eq("name", name))
	if err != nil {
		return nil, err
	}
	existing, err := d.store.Find(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to check role name: %w", err)
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: role %q already exists", ErrConflict, name)
	}

	now := time.Now().UTC()
	role := &rbac.Role{
		ID:           uuid.NewString(),
		LaboratoryID: laboratoryID,
		Name:         name,
		Description:  input.Description,
		Permissions:  rbac.NewPermissionSet(input.Permissions...).Sorted(),
		IsBuiltIn:    builtIn,
		CreatedAt:    now,
		UpdatedAt:    now,
		CreatedBy:    createdBy,
	}
	if err := d.insert(ctx, CollectionRoles, role.ID, role); err != nil {
		return nil, err
	}

	d.logger.WithFields(map[string]interface{}{
		"laboratory_id": laboratoryID,
		"role_id":       role.ID,
		"role":          role.Name,
	}).Info("role created")

	return role, nil
}

// UpdateRolePermissions replaces a role's permission list. The lab admin
// role always keeps every permission so a laboratory cannot lock itself out.
func (d *Directory) UpdateRolePermissions(ctx context.Context, laboratoryID, roleID string, permissions []rbac.PermissionID) (*rbac.Role, error) {
	if err := rbac.ValidatePermissions(permissions); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	role, err := d.roleInLab(ctx, laboratoryID, roleID)
	if err != nil {
		return nil, err
	}
	if role.IsBuiltIn && role.Name == rbac.RoleLabAdmin {
		return nil, fmt.Errorf("%w: the %s role cannot be modified", ErrInvalidInput, rbac.RoleLabAdmin)
	}

	perms := rbac.NewPermissionSet(permissions...).Strings()
	if err := d.writeStamped(ctx, CollectionRoles, roleID, laboratoryID, docstore.Document{"permissions": perms}); err != nil {
		return nil, err
	}
	return d.GetRole(ctx, roleID)
}

// SeedRoles creates the built-in roles missing from a laboratory and
// returns every built-in role, keyed by name
func (d *Directory) SeedRoles(ctx context.Context, laboratoryID, createdBy string) (map[string]*rbac.Role, error) {
	existing, err := d.ListRoles(ctx, laboratoryID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*rbac.Role, len(existing))
	for _, role := range existing {
		byName[role.Name] = role
	}

	seeded := make(map[string]*rbac.Role)
	for _, tmpl := range rbac.BuiltInRoles() {
		if role, ok := byName[tmpl.Name]; ok {
			seeded[tmpl.Name] = role
			continue
		}
		role, err := d.createRole(ctx, laboratoryID, createdBy, RoleInput{
			Name:        tmpl.Name,
			Description: tmpl.Description,
			Permissions: tmpl.Permissions,
		}, true)
		if err != nil {
			return nil, fmt.Errorf("failed to seed role %s: %w", tmpl.Name, err)
		}
		seeded[tmpl.Name] = role
	}
	return seeded, nil
}

// CompleteOnboarding finishes onboarding for the calling user. A user
// already assigned to an incomplete laboratory names that laboratory; any
// other user gets a new laboratory, its built-in roles, and the lab admin
// role.
func (d *Directory) CompleteOnboarding(ctx context.Context, identity *auth.Identity, req labs.OnboardingRequest) (*labs.Laboratory, error) {
	if identity == nil || identity.Subject == "" {
		return nil, fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	if err := req.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	user, err := d.GetUser(ctx, identity.Subject)
	switch {
	case err == nil:
	case isNotFound(err):
		user = auth.SyntheticUser(identity)
	default:
		return nil, err
	}

	if user.HasLaboratory() {
		lab, err := d.GetLaboratory(ctx, user.LaboratoryID)
		switch {
		case err == nil && lab.IsComplete():
			return nil, fmt.Errorf("%w: laboratory %s is already onboarded", ErrConflict, lab.ID)
		case err == nil:
			return d.nameLaboratory(ctx, lab, req)
		case !isNotFound(err):
			return nil, err
		}
	}

	return d.createLaboratory(ctx, identity, user, req)
}

func (d *Directory) nameLaboratory(ctx context.Context, lab *labs.Laboratory, req labs.OnboardingRequest) (*labs.Laboratory, error) {
	fields := docstore.Document{
		"name":      req.Name,
		"slug":      labs.GenerateSlug(req.Name),
		"updatedAt": time.Now().UTC(),
	}
	if req.ThemeColors != nil {
		fields["themeColors"] = req.ThemeColors
	}
	if err := d.save(ctx, CollectionLaboratories, lab.ID, fields); err != nil {
		return nil, err
	}

	d.logger.WithField("laboratory_id", lab.ID).Info("laboratory onboarding completed")
	return d.GetLaboratory(ctx, lab.ID)
}

func (d *Directory) createLaboratory(ctx context.Context, identity *auth.Identity, user *auth.UserRecord, req labs.OnboardingRequest) (*labs.Laboratory, error) {
	now := time.Now().UTC()
	lab := &labs.Laboratory{
		ID:          labs.NewID(),
		Name:        req.Name,
		Slug:        labs.GenerateSlug(req.Name),
		OwnerID:     identity.Subject,
		Status:      labs.LabStatusActive,
		ThemeColors: req.ThemeColors,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := d.insert(ctx, CollectionLaboratories, lab.ID, lab); err != nil {
		return nil, err
	}

	roles, err := d.SeedRoles(ctx, lab.ID, identity.Subject)
	if err != nil {
		return nil, err
	}

	record := *user
	record.ID = identity.Subject
	record.LaboratoryID = lab.ID
	record.RoleID = roles[rbac.RoleLabAdmin].ID
	record.Status = auth.UserStatusActive
	if record.Email == "" {
		record.Email = identity.Email
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if err := d.save(ctx, CollectionUsers, record.ID, &record); err != nil {
		return nil, err
	}

	d.logger.WithFields(map[string]interface{}{
		"laboratory_id": lab.ID,
		"user_id":       record.ID,
	}).Info("laboratory created")

	return lab, nil
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
