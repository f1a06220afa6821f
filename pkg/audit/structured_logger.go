package audit

import (
	"context"

	"github.com/platinummonkey/labkit/pkg/observability"
)

// StructuredLogger writes audit events to the application log
type StructuredLogger struct {
	logger *observability.Logger
}

// NewStructuredLogger creates a logger that writes through logger
func NewStructuredLogger(logger *observability.Logger) *StructuredLogger {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &StructuredLogger{logger: logger.WithField("component", "audit")}
}

// Log implements Logger
func (l *StructuredLogger) Log(ctx context.Context, event *Event) error {
	fields := map[string]interface{}{
		"event_type":    string(event.EventType),
		"status":        string(event.Status),
		"laboratory_id": event.LaboratoryID,
		"actor_id":      event.ActorID,
	}
	if event.ResourceID != "" {
		fields["resource_type"] = string(event.ResourceType)
		fields["resource_id"] = event.ResourceID
	}
	if event.RequestID != "" {
		fields["request_id"] = event.RequestID
	}

	entry := observability.UpdateLoggerWithTraceContext(ctx, l.logger).WithFields(fields)
	if event.Status == EventStatusSuccess {
		entry.Info("audit event")
	} else {
		entry.Warn("audit event")
	}
	return nil
}

// Close implements Logger
func (l *StructuredLogger) Close() error {
	return nil
}
