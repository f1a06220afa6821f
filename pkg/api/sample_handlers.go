package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/platinummonkey/labkit/pkg/audit"
	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/httputil"
	"github.com/platinummonkey/labkit/pkg/middleware"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/platinummonkey/labkit/pkg/rbac"
	"github.com/platinummonkey/labkit/pkg/tenancy"
)

// CollectionSamples holds the laboratory's samples
const CollectionSamples = "samples"

// sampleFilterFields are the fields GET /api/samples filters on
var sampleFilterFields = []string{"status", "type", "assignedTo"}

// SampleHandlers serves the tenant-scoped sample collection
type SampleHandlers struct {
	store   docstore.Store
	metrics *observability.Metrics
	audit   audit.Logger
}

// NewSampleHandlers creates sample handlers over store. Deletions are
// recorded to trail.
func NewSampleHandlers(store docstore.Store, metrics *observability.Metrics, trail audit.Logger) *SampleHandlers {
	if trail == nil {
		trail = audit.NopLogger{}
	}
	return &SampleHandlers{store: store, metrics: metrics, audit: trail}
}

// RegisterRoutes registers sample routes
func (h *SampleHandlers) RegisterRoutes(router *mux.Router) {
	router.Handle("/samples", guarded(rbac.PermSamplesView, h.listSamples)).Methods("GET")
	router.Handle("/samples", guarded(rbac.PermSamplesCreate, h.createSample)).Methods("POST")
	router.Handle("/samples/{id}", guarded(rbac.PermSamplesView, h.getSample)).Methods("GET")
	router.Handle("/samples/{id}", guarded(rbac.PermSamplesEdit, h.updateSample)).Methods("PATCH")
	router.Handle("/samples/{id}", guarded(rbac.PermSamplesDelete, h.deleteSample)).Methods("DELETE")
}

// collection binds the sample collection to the caller's laboratory
func (h *SampleHandlers) collection(r *http.Request) (*tenancy.Collection, error) {
	snap := middleware.GetSession(r)
	labID := ""
	if snap != nil {
		labID = snap.LaboratoryID()
	}
	return tenancy.NewCollection(h.store, CollectionSamples, labID,
		tenancy.WithMetrics(h.metrics),
		tenancy.WithLogger(observability.FromContext(r.Context())),
	)
}

// listSamples handles GET /api/samples
func (h *SampleHandlers) listSamples(w http.ResponseWriter, r *http.Request) {
	samples, err := h.collection(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	limit, err := httputil.ParseQueryInt(r, "limit", 100)
	if err != nil || limit < 0 {
		httputil.WriteBadRequest(w, "limit must be a non-negative integer")
		return
	}

	q := docstore.Query{OrderBy: "createdAt", Descending: true, Limit: limit}
	for _, field := range sampleFilterFields {
		if v := r.URL.Query().Get(field); v != "" {
			q.Filters = append(q.Filters, docstore.Eq(field, v))
		}
	}

	docs, err := samples.Query(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"samples": docs, "count": len(docs)})
}

// createSample handles POST /api/samples
func (h *SampleHandlers) createSample(w http.ResponseWriter, r *http.Request) {
	samples, err := h.collection(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var doc docstore.Document
	if !httputil.ParseJSONOrError(w, r, &doc) {
		return
	}
	if doc == nil {
		httputil.WriteBadRequest(w, "sample must be a JSON object")
		return
	}
	// ids are server-assigned, never taken from the body
	doc[docstore.FieldID] = uuid.NewString()

	created, err := samples.Create(r.Context(), doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteCreated(w, created)
}

// getSample handles GET /api/samples/{id}
func (h *SampleHandlers) getSample(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	samples, err := h.collection(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	doc, err := samples.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

// updateSample handles PATCH /api/samples/{id}
func (h *SampleHandlers) updateSample(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	samples, err := h.collection(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var patch docstore.Document
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	doc, err := samples.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteSuccess(w, doc)
}

// deleteSample handles DELETE /api/samples/{id}
func (h *SampleHandlers) deleteSample(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return
	}
	samples, err := h.collection(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := samples.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	record(h.audit, r, audit.NewEvent(r, audit.EventTypeDataSampleDelete, samples.LaboratoryID(), actorID(r)).
		WithResource(audit.ResourceTypeSample, id))
	httputil.WriteNoContent(w)
}
