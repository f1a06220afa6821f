package session

// Reason records why a resolution fell back to a synthetic user. The
// fallback itself is never returned as an error.
type Reason string

const (
	// ReasonNone marks a resolution built from stored records
	ReasonNone Reason = ""

	// RecordNotFound means the user record was still absent after every
	// retry. Usually a new user whose record has not been provisioned yet.
	RecordNotFound Reason = "record_not_found"

	// TransientFetchFailure means the user record could not be read because
	// of a backend error
	TransientFetchFailure Reason = "transient_fetch_failure"
)

// Resolution outcomes used as metric labels
const (
	outcomeResolved  = "resolved"
	outcomeAnonymous = "anonymous"
)

func (r Reason) outcome() string {
	if r == ReasonNone {
		return outcomeResolved
	}
	return string(r)
}
