// Package config loads labkit configuration from environment variables.
//
// Every setting has a default; LoadConfig validates the result.
//
// Server settings:
//
//	LABKIT_HOST="0.0.0.0"
//	LABKIT_PORT="8080"
//	LABKIT_CORS_ORIGINS="https://app.example.com"
//	LABKIT_MAX_BODY_BYTES="1048576"
//
// Document store settings:
//
//	LABKIT_STORE_TYPE="postgres"  # memory, postgres, sqlite, mongo
//	LABKIT_STORE_URL="postgres://localhost/labkit"
//	LABKIT_MONGO_URI="mongodb://localhost:27017"
//	LABKIT_MONGO_DATABASE="labkit"
//
// Cache settings:
//
//	LABKIT_CACHE_ENABLED="true"
//	LABKIT_L1_CACHE_SIZE="1000"
//	LABKIT_L1_CACHE_TTL="30s"
//	LABKIT_REDIS_URL="redis://localhost:6379/0"
//
// Identity settings. OIDC wins when an issuer is set:
//
//	LABKIT_JWT_SECRET="..."  # at least 32 bytes
//	LABKIT_OIDC_ISSUER="https://accounts.example.com"
//	LABKIT_OIDC_CLIENT_ID="labkit"
//	LABKIT_OIDC_CLIENT_SECRET="..."
//	LABKIT_OIDC_REDIRECT_URL="https://labkit.example.com/auth/callback"
//
// Session settings:
//
//	LABKIT_RETRY_SCHEDULE="1s,2s,3s"  # empty disables retries
//	LABKIT_REFRESH_SCHEDULE="@every 5m"
//	LABKIT_ROUTE_FILE="/etc/labkit/routes.yaml"
//
// Audit settings:
//
//	LABKIT_AUDIT_ASYNC="true"  # write audit events off the request path
//
// Observability settings:
//
//	LABKIT_LOG_LEVEL="info"  # debug, info, warn, error
//	LABKIT_METRICS_ENABLED="true"
//	LABKIT_OTEL_ENABLED="true"
//	LABKIT_OTEL_ENDPOINT="otel-collector:4317"
//	LABKIT_OTEL_SAMPLE_RATIO="1.0"  # fraction of root traces kept
package config
