package auth

import (
	"strings"
	"time"
)

// Identity is the signed-in principal reported by the external identity
// provider. Its lifecycle is owned entirely by the provider.
type Identity struct {
	Subject     string `json:"subject"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
}

// UserStatus represents the lifecycle status of a user record
type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusInvited   UserStatus = "invited"
)

// UserRecord is the laboratory-owned user document linked to an identity
// by subject id.
type UserRecord struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	PhotoURL           string     `json:"photoURL,omitempty"`
	Status             UserStatus `json:"status"`
	LaboratoryID       string     `json:"laboratoryId"`
	RoleID             string     `json:"roleId,omitempty"`
	GrantedPermissions []string   `json:"grantedPermissions,omitempty"`
	RevokedPermissions []string   `json:"revokedPermissions,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`

	// Synthetic is set on records built from the identity alone because the
	// stored record could not be loaded. Never persisted.
	Synthetic bool `json:"-"`
}

// HasLaboratory reports whether the user is assigned to a laboratory
func (u *UserRecord) HasLaboratory() bool {
	return u != nil && strings.TrimSpace(u.LaboratoryID) != ""
}

// IsActive reports whether the user may use the application
func (u *UserRecord) IsActive() bool {
	return u != nil && u.Status == UserStatusActive
}

// HasRole reports whether the user references a role record
func (u *UserRecord) HasRole() bool {
	return u != nil && strings.TrimSpace(u.RoleID) != ""
}

// SyntheticUser builds the stand-in user record used when the stored record
// is missing or unreadable. It has no laboratory, so the session routes to
// onboarding instead of failing.
func SyntheticUser(identity *Identity) *UserRecord {
	if identity == nil {
		return nil
	}
	name := identity.DisplayName
	if name == "" {
		name = identity.Email
	}
	return &UserRecord{
		ID:        identity.Subject,
		Email:     identity.Email,
		Name:      name,
		PhotoURL:  identity.AvatarURL,
		Status:    UserStatusActive,
		CreatedAt: time.Now().UTC(),
		Synthetic: true,
	}
}
