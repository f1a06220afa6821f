package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/platinummonkey/labkit/pkg/session"
)

// Store backends
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMongo    = "mongo"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Document store configuration
	Store StoreConfig

	// Read cache configuration
	Cache CacheConfig

	// Identity provider configuration
	Identity IdentityConfig

	// Session resolution configuration
	Session SessionConfig

	// Audit trail configuration
	Audit AuditConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	MaxBodyBytes    int64
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// StoreConfig selects and configures the document store backend
type StoreConfig struct {
	Type         string
	URL          string // postgres DSN or sqlite file
	MaxOpenConns int
	MaxIdleConns int
	Timeout      time.Duration

	MongoURI      string
	MongoDatabase string
}

// CacheConfig configures the read-through document cache
type CacheConfig struct {
	Enabled  bool
	L1Size   int
	L1TTL    time.Duration
	L2TTL    time.Duration
	RedisURL string
}

// Docstore converts the settings for docstore.NewCachedStore
func (c CacheConfig) Docstore() docstore.CacheConfig {
	cfg := docstore.DefaultCacheConfig()
	if c.L1Size > 0 {
		cfg.L1Size = c.L1Size
	}
	if c.L1TTL > 0 {
		cfg.L1TTL = c.L1TTL
	}
	if c.L2TTL > 0 {
		cfg.L2TTL = c.L2TTL
	}
	return cfg
}

// IdentityConfig configures token verification. OIDC is used when
// OIDCIssuer is set, otherwise tokens are HS256 JWTs signed with JWTSecret.
type IdentityConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	OIDCIssuer       string
	OIDCClientID     string
	OIDCClientSecret string
	OIDCRedirectURL  string
}

// UsesOIDC reports whether an OIDC issuer is configured
func (c IdentityConfig) UsesOIDC() bool {
	return c.OIDCIssuer != ""
}

// SessionConfig configures tenant context resolution
type SessionConfig struct {
	RetrySchedule   []time.Duration
	ResolveTimeout  time.Duration
	RefreshSchedule string
	RouteFile       string
}

// AuditConfig controls how audit events are written. Async writes do not
// block the request; their failures are only logged.
type AuditConfig struct {
	Async bool
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
	OTelSampleRatio    float64
}

// OTel converts the settings for observability.InitOTel
func (o ObservabilityConfig) OTel() observability.OTelConfig {
	return observability.OTelConfig{
		Enabled:        o.OTelEnabled,
		Endpoint:       o.OTelEndpoint,
		ServiceName:    o.OTelServiceName,
		ServiceVersion: o.OTelServiceVersion,
		Insecure:       o.OTelInsecure,
		SampleRatio:    o.OTelSampleRatio,
	}
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	sessionCfg, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Store:         loadStoreConfig(),
		Cache:         loadCacheConfig(),
		Identity:      loadIdentityConfig(),
		Session:       sessionCfg,
		Audit:         AuditConfig{Async: getEnvBool("LABKIT_AUDIT_ASYNC", false)},
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("LABKIT_HOST", "0.0.0.0"),
		Port:            getEnv("LABKIT_PORT", "8080"),
		ReadTimeout:     getEnvDuration("LABKIT_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("LABKIT_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("LABKIT_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("LABKIT_SHUTDOWN_TIMEOUT", 30*time.Second),
		CORSOrigins:     getEnvList("LABKIT_CORS_ORIGINS"),
		MaxBodyBytes:    getEnvInt64("LABKIT_MAX_BODY_BYTES", 1<<20),
	}
}

// loadStoreConfig loads document store configuration from environment
func loadStoreConfig() StoreConfig {
	return StoreConfig{
		Type:          strings.ToLower(getEnv("LABKIT_STORE_TYPE", StoreMemory)),
		URL:           getEnv("LABKIT_STORE_URL", ""),
		MaxOpenConns:  getEnvInt("LABKIT_STORE_MAX_OPEN_CONNS", 20),
		MaxIdleConns:  getEnvInt("LABKIT_STORE_MAX_IDLE_CONNS", 5),
		Timeout:       getEnvDuration("LABKIT_STORE_TIMEOUT", 10*time.Second),
		MongoURI:      getEnv("LABKIT_MONGO_URI", ""),
		MongoDatabase: getEnv("LABKIT_MONGO_DATABASE", "labkit"),
	}
}

// loadCacheConfig loads cache configuration from environment
func loadCacheConfig() CacheConfig {
	defaults := docstore.DefaultCacheConfig()
	return CacheConfig{
		Enabled:  getEnvBool("LABKIT_CACHE_ENABLED", false),
		L1Size:   getEnvInt("LABKIT_L1_CACHE_SIZE", defaults.L1Size),
		L1TTL:    getEnvDuration("LABKIT_L1_CACHE_TTL", defaults.L1TTL),
		L2TTL:    getEnvDuration("LABKIT_L2_CACHE_TTL", defaults.L2TTL),
		RedisURL: getEnv("LABKIT_REDIS_URL", ""),
	}
}

// loadIdentityConfig loads identity provider configuration from environment
func loadIdentityConfig() IdentityConfig {
	return IdentityConfig{
		JWTSecret:        getEnv("LABKIT_JWT_SECRET", ""),
		JWTIssuer:        getEnv("LABKIT_JWT_ISSUER", ""),
		JWTAudience:      getEnv("LABKIT_JWT_AUDIENCE", ""),
		OIDCIssuer:       getEnv("LABKIT_OIDC_ISSUER", ""),
		OIDCClientID:     getEnv("LABKIT_OIDC_CLIENT_ID", ""),
		OIDCClientSecret: getEnv("LABKIT_OIDC_CLIENT_SECRET", ""),
		OIDCRedirectURL:  getEnv("LABKIT_OIDC_REDIRECT_URL", ""),
	}
}

// loadSessionConfig loads session configuration from environment
func loadSessionConfig() (SessionConfig, error) {
	schedule := append([]time.Duration(nil), session.DefaultRetrySchedule...)
	if raw, ok := os.LookupEnv("LABKIT_RETRY_SCHEDULE"); ok {
		parsed, err := parseDurations(raw)
		if err != nil {
			return SessionConfig{}, fmt.Errorf("invalid LABKIT_RETRY_SCHEDULE: %w", err)
		}
		schedule = parsed
	}

	return SessionConfig{
		RetrySchedule:   schedule,
		ResolveTimeout:  getEnvDuration("LABKIT_RESOLVE_TIMEOUT", 30*time.Second),
		RefreshSchedule: getEnv("LABKIT_REFRESH_SCHEDULE", ""),
		RouteFile:       getEnv("LABKIT_ROUTE_FILE", ""),
	}, nil
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.ParseLogLevel(getEnv("LABKIT_LOG_LEVEL", "info")),
		MetricsEnabled:     getEnvBool("LABKIT_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("LABKIT_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("LABKIT_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("LABKIT_OTEL_SERVICE_NAME", "labkit"),
		OTelServiceVersion: getEnv("LABKIT_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("LABKIT_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("LABKIT_OTEL_SAMPLE_RATIO", 1.0),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	switch c.Store.Type {
	case StoreMemory:
	case StorePostgres, StoreSQLite:
		if c.Store.URL == "" {
			return fmt.Errorf("store URL is required for %s storage", c.Store.Type)
		}
	case StoreMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("mongo URI is required for mongo storage")
		}
		if c.Store.MongoDatabase == "" {
			return fmt.Errorf("mongo database is required for mongo storage")
		}
	default:
		return fmt.Errorf("invalid store type: %s (must be memory, postgres, sqlite, or mongo)", c.Store.Type)
	}

	if c.Cache.Enabled && c.Cache.L1Size <= 0 {
		return fmt.Errorf("L1 cache size must be positive when the cache is enabled")
	}

	if c.Identity.UsesOIDC() {
		if c.Identity.OIDCClientID == "" {
			return fmt.Errorf("OIDC client id is required when an OIDC issuer is set")
		}
	} else if len(c.Identity.JWTSecret) < 32 {
		return fmt.Errorf("JWT secret of at least 32 bytes is required when OIDC is not configured")
	}

	for _, d := range c.Session.RetrySchedule {
		if d < 0 {
			return fmt.Errorf("retry delays must not be negative")
		}
	}
	if c.Session.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.Session.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", c.Session.RefreshSchedule, err)
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
		if r := c.Observability.OTelSampleRatio; r < 0 || r > 1 {
			return fmt.Errorf("OpenTelemetry sample ratio must be between 0 and 1, got %g", r)
		}
	}

	return nil
}

// parseDurations parses a comma-separated duration list. An empty string
// yields an empty schedule, which disables retries.
func parseDurations(raw string) ([]time.Duration, error) {
	out := []time.Duration{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		d, err := time.ParseDuration(part)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList returns a comma-separated environment variable as a list
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvFloat returns a float environment variable or a default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
