package docstore

import "errors"

var (
	// ErrNotFound is returned when a document does not exist
	ErrNotFound = errors.New("document not found")

	// ErrPermissionDenied is returned when the backend rejects an operation
	// for authorization reasons. Callers surface it as a retryable notice.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrUnavailable is returned when the backend cannot be reached.
	// Callers surface it as a retryable 503.
	ErrUnavailable = errors.New("document store unavailable")

	// ErrAlreadyExists is returned by Insert when the id is taken
	ErrAlreadyExists = errors.New("document already exists")

	// ErrInvalidQuery is returned for malformed queries or documents
	ErrInvalidQuery = errors.New("invalid query")
)
