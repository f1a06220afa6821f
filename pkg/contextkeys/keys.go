// Package contextkeys provides centralized context key definitions
//
// All context keys used across the application are defined here. This
// prevents typos, documents dependencies, and makes key usage discoverable.
//
// USAGE PATTERN:
//
//	ctx = contextkeys.WithSession(ctx, snapshot)
//	snapshot, ok := ctx.Value(contextkeys.SessionKey).(*session.Snapshot)
package contextkeys

import "context"

// Key is the type for context keys to prevent collisions
type Key string

const (
	// SessionKey contains *session.Snapshot
	// Set by: middleware.Authenticator (pkg/middleware/auth.go)
	// Required by: RequireState, RequirePermission and every tenant-scoped handler
	// Type: *session.Snapshot
	SessionKey Key = "session"

	// LaboratoryIDKey contains the resolved laboratory id
	// Set by: middleware.Authenticator once the session is resolved
	// Used by: Logger enrichment, tenancy.Collection construction
	// Type: string
	LaboratoryIDKey Key = "laboratory_id"

	// RequestIDKey contains request ID string (UUID)
	// Set by: middleware.RequestID
	// Used by: Logger, error responses
	// Type: string
	RequestIDKey Key = "request_id"

	// UserIDKey contains the identity subject id
	// Set by: middleware.Authenticator after token verification
	// Used by: Logger, audit fields on writes
	// Type: string
	UserIDKey Key = "user_id"

	// LoggerKey contains *observability.Logger
	// Set by: middleware.RequestID
	// Used by: Handlers that need structured logging with request context
	// Type: *observability.Logger
	LoggerKey Key = "logger"
)

// WithSession adds the resolved session snapshot to the context
func WithSession(ctx context.Context, snapshot interface{}) context.Context {
	return context.WithValue(ctx, SessionKey, snapshot)
}

// WithLaboratoryID adds the resolved laboratory id to the context
func WithLaboratoryID(ctx context.Context, laboratoryID string) context.Context {
	return context.WithValue(ctx, LaboratoryIDKey, laboratoryID)
}

// WithRequestID adds request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithUserID adds user ID to the context
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithLogger adds logger to the context
func WithLogger(ctx context.Context, logger interface{}) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLaboratoryID retrieves the laboratory id from context
func GetLaboratoryID(ctx context.Context) string {
	if id, ok := ctx.Value(LaboratoryIDKey).(string); ok {
		return id
	}
	return ""
}

// GetRequestID retrieves request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetUserID retrieves user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(UserIDKey).(string); ok {
		return userID
	}
	return ""
}
