package middleware

import (
	"net/http"
	"strings"

	"github.com/platinummonkey/labkit/pkg/contextkeys"
	"github.com/platinummonkey/labkit/pkg/httputil"
	"github.com/platinummonkey/labkit/pkg/identity"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/platinummonkey/labkit/pkg/rbac"
	"github.com/platinummonkey/labkit/pkg/session"
)

// Authenticator verifies bearer tokens and attaches the resolved session
// snapshot to the request context
type Authenticator struct {
	verifier identity.TokenVerifier
	resolver *session.Resolver
	optional bool // If true, allow requests without a token
}

// NewAuthenticator creates the authentication middleware. With optional
// set, requests without a token continue with a signed-out snapshot.
// Resolution never waits for a missing user record: the resolver's retry
// schedule is dropped for the request path.
func NewAuthenticator(verifier identity.TokenVerifier, resolver *session.Resolver, optional bool) *Authenticator {
	return &Authenticator{
		verifier: verifier,
		resolver: resolver.WithoutRetries(),
		optional: optional,
	}
}

// Handler wraps an HTTP handler with authentication
func (a *Authenticator) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Format: "Bearer <token>"
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if a.optional {
				snap := session.NewSnapshot(session.Resolution{})
				next.ServeHTTP(w, r.WithContext(session.WithSnapshot(r.Context(), &snap)))
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		ctx := r.Context()
		id, err := a.verifier.Verify(ctx, parts[1])
		if err != nil {
			observability.FromContext(ctx).WithError(err).Debug("token rejected")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}

		ctx = contextkeys.WithUserID(ctx, id.Subject)
		res := a.resolver.Resolve(ctx, id)
		snap := session.NewSnapshot(res)
		if labID := snap.LaboratoryID(); labID != "" {
			ctx = contextkeys.WithLaboratoryID(ctx, labID)
		}
		ctx = session.WithSnapshot(ctx, &snap)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetSession extracts the session snapshot from the request
func GetSession(r *http.Request) *session.Snapshot {
	snap, ok := session.FromContext(r.Context())
	if !ok {
		return nil
	}
	return snap
}

// RequireState rejects requests whose session is not in one of states.
// Signed-out sessions get 401; sessions that still need onboarding get 409
// with the onboarding redirect.
func RequireState(states ...session.State) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := GetSession(r)
			if snap == nil || snap.State == session.StateUnauthenticated {
				for _, s := range states {
					if s == session.StateUnauthenticated {
						next.ServeHTTP(w, r)
						return
					}
				}
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			for _, s := range states {
				if snap.State == s {
					next.ServeHTTP(w, r)
					return
				}
			}

			if snap.State == session.StateOnboardingRequired {
				httputil.WriteErrorResponse(w, http.StatusConflict, httputil.ErrorResponse{
					Error: "laboratory onboarding required",
					Code:  "onboarding_required",
				})
				return
			}
			httputil.WriteErrorResponse(w, http.StatusConflict, httputil.ErrorResponse{
				Error: "session is " + string(snap.State),
				Code:  "invalid_session_state",
			})
		})
	}
}

// RequirePermission rejects requests whose session lacks id
func RequirePermission(id rbac.PermissionID) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := GetSession(r)
			if snap == nil || snap.State == session.StateUnauthenticated {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !snap.Can(id) {
				httputil.WriteForbidden(w, "missing permission "+string(id))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
