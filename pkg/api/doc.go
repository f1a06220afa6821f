// Package api provides the JSON HTTP shell over the access-control core.
//
// Every /api route runs behind middleware.Authenticator, which resolves
// the caller's session. Session routes answer in every state; the
// onboarding route requires StateOnboardingRequired; everything else
// requires StateAuthenticated plus the route's permission.
//
// # Routes
//
//	GET    /api/session                   current session snapshot
//	GET    /api/session/route?path=       routing decision for path
//	GET    /api/navigation                permission-filtered menu
//	GET    /api/permissions/catalog       permission catalog and role templates
//	GET    /api/samples                   samples.view
//	POST   /api/samples                   samples.create
//	GET    /api/samples/{id}              samples.view
//	PATCH  /api/samples/{id}              samples.edit
//	DELETE /api/samples/{id}              samples.delete
//	GET    /api/users                     users.view
//	PUT    /api/users/{id}/overrides      users.manage
//	PUT    /api/users/{id}/role           users.manage
//	GET    /api/roles                     roles.view
//	POST   /api/roles                     roles.manage
//	PUT    /api/roles/{id}/permissions    roles.manage
//	GET    /api/audit                     settings.view, when an audit store is set
//	POST   /api/onboarding                onboarding only
//	GET    /auth/login, /auth/callback    OIDC login, when configured
//	GET    /healthz, /readyz, /metrics
//
// # Errors
//
// A missing tenant context is 409, a store permission refusal or missing
// permission is 403 with "retryable": true, and records outside the
// caller's laboratory are 404.
package api
