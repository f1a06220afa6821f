// Package identity connects labkit to the external identity provider.
//
// Provider is the session-change feed consumed by the session manager; Hub
// is its in-process implementation. TokenVerifier turns bearer tokens into
// identities, backed by OpenID Connect (OIDCVerifier) or a shared HS256
// secret for local development (JWTVerifier). Credential storage and token
// issuance stay with the provider.
package identity
