// Package middleware provides HTTP middleware for authentication and
// authorization.
//
// # Overview
//
// Authenticator verifies the bearer token, resolves the caller's session
// (user, role, laboratory and effective permissions) and stores it on the
// request context. RequireState and RequirePermission gate handlers on the
// resolved session.
//
//	authn := middleware.NewAuthenticator(verifier, resolver, false)
//	router.Use(authn.Handler)
//	router.Handle("/api/samples", middleware.RequirePermission(rbac.PermSamplesView)(h))
//
// # Responses
//
//   - 401: missing, malformed or rejected token
//   - 409: session still needs onboarding (code "onboarding_required")
//   - 403: permission missing, with "retryable": true
//
// # Related Packages
//
//   - pkg/identity: Token verification
//   - pkg/session: Session resolution
//   - pkg/navigation: Permission-gated menus
package middleware
