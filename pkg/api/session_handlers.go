package api

import (
	"net/http"

	"github.com/platinummonkey/labkit/pkg/audit"
	"github.com/platinummonkey/labkit/pkg/httputil"
	"github.com/platinummonkey/labkit/pkg/labs"
	"github.com/platinummonkey/labkit/pkg/middleware"
	"github.com/platinummonkey/labkit/pkg/navigation"
	"github.com/platinummonkey/labkit/pkg/rbac"
)

// getSession handles GET /api/session
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, middleware.GetSession(r))
}

// getRouteDecision handles GET /api/session/route?path=
func (s *Server) getRouteDecision(w http.ResponseWriter, r *http.Request) {
	snap := middleware.GetSession(r)
	path := httputil.ParseQueryString(r, "path", "/")
	httputil.WriteSuccess(w, map[string]interface{}{
		"state":    snap.State,
		"path":     path,
		"decision": s.routes.Decide(snap.State, path),
	})
}

// getNavigation handles GET /api/navigation
func (s *Server) getNavigation(w http.ResponseWriter, r *http.Request) {
	snap := middleware.GetSession(r)
	resp := map[string]interface{}{
		"entries": navigation.VisibleEntries(s.menu, snap.Permissions),
	}
	if snap.Laboratory != nil {
		resp["laboratory"] = map[string]interface{}{
			"id":          snap.Laboratory.ID,
			"name":        snap.Laboratory.Name,
			"themeColors": snap.Laboratory.ThemeColors,
		}
	}
	httputil.WriteSuccess(w, resp)
}

// getCatalog handles GET /api/permissions/catalog
func (s *Server) getCatalog(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"groups": rbac.Catalog(),
		"roles":  rbac.BuiltInRoles(),
	})
}

// completeOnboarding handles POST /api/onboarding
func (s *Server) completeOnboarding(w http.ResponseWriter, r *http.Request) {
	snap := middleware.GetSession(r)

	var req labs.OnboardingRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	lab, err := s.directory.CompleteOnboarding(r.Context(), snap.Identity, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	record(s.audit, r, audit.NewEvent(r, audit.EventTypeLabOnboardingComplete, lab.ID, actorID(r)).
		WithResource(audit.ResourceTypeLaboratory, lab.ID).
		WithChanges(nil, map[string]interface{}{"name": lab.Name}))
	httputil.WriteCreated(w, lab)
}
