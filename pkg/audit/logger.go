package audit

import (
	"context"
	"net/http"
	"time"

	"github.com/platinummonkey/labkit/pkg/contextkeys"
)

// Logger is the interface for audit logging
type Logger interface {
	// Log records an event
	Log(ctx context.Context, event *Event) error

	// Close flushes buffered events
	Close() error
}

// NewEvent builds a successful event carrying the request context
func NewEvent(r *http.Request, eventType EventType, laboratoryID, actorID string) *Event {
	event := &Event{
		LaboratoryID: laboratoryID,
		Timestamp:    time.Now().UTC(),
		EventType:    eventType,
		Status:       EventStatusSuccess,
		ActorID:      actorID,
	}
	if r != nil {
		event.Method = r.Method
		event.Path = r.URL.Path
		event.RequestID = contextkeys.GetRequestID(r.Context())
	}
	return event
}

// WithResource sets the changed resource
func (e *Event) WithResource(resourceType ResourceType, resourceID string) *Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

// WithChanges records before and after values
func (e *Event) WithChanges(before, after map[string]interface{}) *Event {
	e.Changes = &ChangeDetails{Before: before, After: after}
	return e
}

// NopLogger discards every event
type NopLogger struct{}

func (NopLogger) Log(context.Context, *Event) error { return nil }
func (NopLogger) Close() error                      { return nil }
