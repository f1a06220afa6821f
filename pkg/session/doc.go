// Package session turns identity-provider session events into the
// authorization context the rest of the application reads.
//
// A Resolver loads the user, role and laboratory records for an identity
// and computes the effective permissions. A Manager subscribes to an
// identity.Provider, runs one resolution per session event and exposes the
// latest result as an immutable Snapshot. Resolutions are tagged with a
// monotonic generation so that a slow, superseded resolution can never
// overwrite a newer one.
//
// The route state machine classifies a snapshot into Loading,
// Unauthenticated, OnboardingRequired or Authenticated and decides, for a
// requested path, whether to render it, redirect or wait:
//
//	state := session.Classify(snap.Loading, snap.Identity, snap.Laboratory)
//	decision := routes.Decide(state, "/samples")
package session
