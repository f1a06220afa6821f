package audit

import (
	"time"
)

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAuthzOverridesUpdate EventType = "authz.overrides_update"
	EventTypeAuthzRoleAssign      EventType = "authz.role_assign"
	EventTypeAuthzRoleCreate      EventType = "authz.role_create"
	EventTypeAuthzRoleUpdate      EventType = "authz.role_update"

	// Laboratory events
	EventTypeLabOnboardingComplete EventType = "lab.onboarding_complete"

	// Data mutation events
	EventTypeDataSampleDelete EventType = "data.sample_delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being changed
type ResourceType string

const (
	ResourceTypeUser       ResourceType = "user"
	ResourceTypeRole       ResourceType = "role"
	ResourceTypeLaboratory ResourceType = "laboratory"
	ResourceTypeSample     ResourceType = "sample"
)

// Event is one audit log entry. Events belong to the laboratory in which
// the change happened.
type Event struct {
	ID           string      `json:"id"`
	LaboratoryID string      `json:"laboratoryId"`
	Timestamp    time.Time   `json:"timestamp"`
	EventType    EventType   `json:"eventType"`
	Status       EventStatus `json:"status"`

	// Actor
	ActorID string `json:"actorId,omitempty"`

	// Resource
	ResourceType ResourceType `json:"resourceType,omitempty"`
	ResourceID   string       `json:"resourceId,omitempty"`

	// Request context
	RequestID string `json:"requestId,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	Message  string                 `json:"message,omitempty"`
	Changes  *ChangeDetails         `json:"changes,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ChangeDetails tracks before/after values for updates
type ChangeDetails struct {
	Before map[string]interface{} `json:"before,omitempty"`
	After  map[string]interface{} `json:"after,omitempty"`
}

// SearchFilter narrows a laboratory's audit log
type SearchFilter struct {
	EventTypes []EventType
	ActorID    string
	ResourceID string
	Limit      int
}
