package api

import (
	"net/http"

	"github.com/platinummonkey/labkit/pkg/audit"
	"github.com/platinummonkey/labkit/pkg/httputil"
)

// listAudit handles GET /api/audit?eventType=&actor=&resource=&limit=
func (s *Server) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil || limit < 0 {
		httputil.WriteBadRequest(w, "limit must be a non-negative integer")
		return
	}

	filter := audit.SearchFilter{
		ActorID:    r.URL.Query().Get("actor"),
		ResourceID: r.URL.Query().Get("resource"),
		Limit:      limit,
	}
	for _, t := range r.URL.Query()["eventType"] {
		filter.EventTypes = append(filter.EventTypes, audit.EventType(t))
	}

	events, err := s.trail.Search(r.Context(), laboratoryID(r), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"events": events})
}
