package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/platinummonkey/labkit/pkg/audit"
	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/platinummonkey/labkit/pkg/directory"
	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/httputil"
	"github.com/platinummonkey/labkit/pkg/middleware"
	"github.com/platinummonkey/labkit/pkg/navigation"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/platinummonkey/labkit/pkg/rbac"
	"github.com/platinummonkey/labkit/pkg/session"
)

// LoginFlow runs the browser login against the identity provider
type LoginFlow interface {
	LoginURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.Identity, string, error)
}

// Config holds the server dependencies. Store, Directory, Authenticator
// and Routes are required; the rest are optional.
type Config struct {
	Store         docstore.Store
	Directory     *directory.Directory
	Authenticator *middleware.Authenticator
	Routes        *session.Routes
	Login         LoginFlow
	Health        *observability.HealthChecker
	Registry      *prometheus.Registry
	Metrics       *observability.Metrics
	Logger        *observability.Logger
	Menu          []navigation.Entry

	// AuditStore enables GET /api/audit. Audit receives change events and
	// defaults to AuditStore.
	AuditStore *audit.Store
	Audit      audit.Logger

	CORSOrigins   []string
	MaxBodyBytes  int64
}

// Server is the HTTP shell over the access-control core
type Server struct {
	store     docstore.Store
	directory *directory.Directory
	authn     *middleware.Authenticator
	routes    *session.Routes
	login     LoginFlow
	health    *observability.HealthChecker
	registry  *prometheus.Registry
	metrics   *observability.Metrics
	logger    *observability.Logger
	menu      []navigation.Entry
	trail     *audit.Store
	audit     audit.Logger

	router  *mux.Router
	handler http.Handler
}

// NewServer creates the server and registers all routes
func NewServer(cfg Config) *Server {
	s := &Server{
		store:     cfg.Store,
		directory: cfg.Directory,
		authn:     cfg.Authenticator,
		routes:    cfg.Routes,
		login:     cfg.Login,
		health:    cfg.Health,
		registry:  cfg.Registry,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		menu:      cfg.Menu,
		trail:     cfg.AuditStore,
		audit:     cfg.Audit,
		router:    mux.NewRouter(),
	}
	if s.logger == nil {
		s.logger = observability.NopLogger()
	}
	if s.audit == nil {
		if s.trail != nil {
			s.audit = s.trail
		} else {
			s.audit = audit.NopLogger{}
		}
	}
	if s.menu == nil {
		s.menu = navigation.DefaultMenu()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}

	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware(s.logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.CORSMiddleware(cfg.CORSOrigins),
		httputil.MaxBytesMiddleware(maxBody),
	)(s.router)
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(observability.HTTPMetricsMiddleware(s.metrics, routeTemplate))

	if s.health != nil {
		s.router.HandleFunc("/healthz", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/readyz", s.health.Readiness).Methods("GET")
	}
	if s.registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods("GET")
	}
	if s.login != nil {
		NewAuthHandlers(s.login, s.logger).RegisterRoutes(s.router)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(s.authn.Handler)
	api.Use(httputil.ContentTypeMiddleware)

	// Session routes are open in every state
	api.HandleFunc("/session", s.getSession).Methods("GET")
	api.HandleFunc("/session/route", s.getRouteDecision).Methods("GET")

	onboarding := api.PathPrefix("/onboarding").Subrouter()
	onboarding.Use(middleware.RequireState(session.StateOnboardingRequired))
	onboarding.HandleFunc("", s.completeOnboarding).Methods("POST")

	app := api.NewRoute().Subrouter()
	app.Use(middleware.RequireState(session.StateAuthenticated))
	app.HandleFunc("/navigation", s.getNavigation).Methods("GET")
	app.HandleFunc("/permissions/catalog", s.getCatalog).Methods("GET")

	NewSampleHandlers(s.store, s.metrics, s.audit).RegisterRoutes(app)
	NewAdminHandlers(s.directory, s.audit).RegisterRoutes(app)
	if s.trail != nil {
		app.Handle("/audit", guarded(rbac.PermSettingsView, s.listAudit)).Methods("GET")
	}
}

// guarded wraps h with a permission check
func guarded(id rbac.PermissionID, h http.HandlerFunc) http.Handler {
	return middleware.RequirePermission(id)(h)
}

// record logs an audit event. The change it describes already happened,
// so failures are only logged.
func record(l audit.Logger, r *http.Request, event *audit.Event) {
	if err := l.Log(r.Context(), event); err != nil {
		observability.FromContext(r.Context()).WithError(err).
			WithField("event_type", string(event.EventType)).Warn("failed to record audit event")
	}
}

// actorID returns the calling user's id
func actorID(r *http.Request) string {
	if snap := middleware.GetSession(r); snap != nil && snap.Identity != nil {
		return snap.Identity.Subject
	}
	return ""
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return ""
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the router, e.g. for walking registered routes
func (s *Server) Router() *mux.Router {
	return s.router
}
