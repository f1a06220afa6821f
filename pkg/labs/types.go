package labs

import (
	"strings"
	"time"
)

// LabStatus represents laboratory status
type LabStatus string

const (
	LabStatusActive    LabStatus = "active"
	LabStatusSuspended LabStatus = "suspended"
)

// ThemeColors holds the laboratory's branding palette as hex colors
type ThemeColors struct {
	Primary   string `json:"primary,omitempty"`
	Secondary string `json:"secondary,omitempty"`
	Accent    string `json:"accent,omitempty"`
}

// Laboratory is the tenant record. All business data is partitioned by its ID.
type Laboratory struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Slug        string         `json:"slug,omitempty"`
	OwnerID     string         `json:"ownerId,omitempty"`
	Status      LabStatus      `json:"status,omitempty"`
	ThemeColors *ThemeColors   `json:"themeColors,omitempty"`
	Settings    map[string]any `json:"settings,omitempty"`
	CreatedAt   time.Time      `json:"createdAt,omitempty"`
	UpdatedAt   time.Time      `json:"updatedAt,omitempty"`
}

// IsComplete reports whether onboarding has finished. A laboratory without a
// name is incomplete no matter which other fields are populated.
func (l *Laboratory) IsComplete() bool {
	return l != nil && strings.TrimSpace(l.Name) != ""
}

// OnboardingRequest carries the fields a user submits to finish onboarding
type OnboardingRequest struct {
	Name        string       `json:"name"`
	ThemeColors *ThemeColors `json:"themeColors,omitempty"`
}
