package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/labkit/pkg/audit"
	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/platinummonkey/labkit/pkg/directory"
	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/httputil"
	"github.com/platinummonkey/labkit/pkg/identity"
	"github.com/platinummonkey/labkit/pkg/labs"
	"github.com/platinummonkey/labkit/pkg/middleware"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/platinummonkey/labkit/pkg/rbac"
	"github.com/platinummonkey/labkit/pkg/session"
)

const testSecret = "test-secret-test-secret-test-secret"

type testServer struct {
	*Server
	store   *docstore.MemoryStore
	dir     *directory.Directory
	metrics *observability.Metrics
	roles   map[string]*rbac.Role
}

func newTestServer(t *testing.T, wrap func(docstore.Store) docstore.Store) *testServer {
	t.Helper()
	ctx := context.Background()

	memory := docstore.NewMemoryStore()
	var store docstore.Store = memory
	if wrap != nil {
		store = wrap(memory)
	}
	dir := directory.New(memory, nil)

	roles, err := dir.SeedRoles(ctx, "lab-1", "admin")
	require.NoError(t, err)
	_, err = dir.SeedRoles(ctx, "lab-2", "other-admin")
	require.NoError(t, err)

	put := func(collection, id string, record interface{}) {
		doc, err := docstore.Encode(record)
		require.NoError(t, err)
		require.NoError(t, memory.Merge(ctx, collection, id, doc))
	}
	put(directory.CollectionLaboratories, "lab-1", labs.Laboratory{ID: "lab-1", Name: "Acme"})
	put(directory.CollectionLaboratories, "lab-2", labs.Laboratory{ID: "lab-2", Name: "Other"})
	put(directory.CollectionUsers, "admin", auth.UserRecord{ID: "admin", Status: auth.UserStatusActive, LaboratoryID: "lab-1", RoleID: roles[rbac.RoleLabAdmin].ID})
	put(directory.CollectionUsers, "viewer", auth.UserRecord{ID: "viewer", Status: auth.UserStatusActive, LaboratoryID: "lab-1", RoleID: roles[rbac.RoleViewer].ID})
	put(directory.CollectionUsers, "outsider", auth.UserRecord{ID: "outsider", Status: auth.UserStatusActive, LaboratoryID: "lab-2"})
	put(CollectionSamples, "s-1", docstore.Document{"id": "s-1", "laboratoryId": "lab-1", "name": "Water A", "status": "open"})
	put(CollectionSamples, "s-2", docstore.Document{"id": "s-2", "laboratoryId": "lab-1", "name": "Water B", "status": "closed"})
	put(CollectionSamples, "s-foreign", docstore.Document{"id": "s-foreign", "laboratoryId": "lab-2", "name": "Secret"})

	verifier, err := identity.NewJWTVerifier(testSecret, "", "")
	require.NoError(t, err)
	resolver := session.NewResolver(dir, session.WithRetrySchedule(nil))
	routes, err := session.NewRoutes(session.DefaultRouteTable())
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	health := observability.NewHealthChecker("test")
	health.Register("docstore", memory, true)

	srv := NewServer(Config{
		Store:         store,
		Directory:     dir,
		Authenticator: middleware.NewAuthenticator(verifier, resolver, true),
		Routes:        routes,
		Health:        health,
		Registry:      registry,
		Metrics:       metrics,
		AuditStore:    audit.NewStore(memory),
	})
	return &testServer{Server: srv, store: memory, dir: dir, metrics: metrics, roles: roles}
}

func token(t *testing.T, subject string) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, identity.Claims{
		Email: subject + "@lab.io",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func (s *testServer) do(t *testing.T, method, path, subject string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if subject != "" {
		req.Header.Set("Authorization", "Bearer "+token(t, subject))
	}
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestServer_Session(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("signed out", func(t *testing.T) {
		w := s.do(t, "GET", "/api/session", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var snap session.Snapshot
		decode(t, w, &snap)
		assert.Equal(t, session.StateUnauthenticated, snap.State)
	})

	t.Run("member", func(t *testing.T) {
		w := s.do(t, "GET", "/api/session", "viewer", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var snap session.Snapshot
		decode(t, w, &snap)
		assert.Equal(t, session.StateAuthenticated, snap.State)
		assert.True(t, snap.Can(rbac.PermSamplesView))
		assert.False(t, snap.Can(rbac.PermSamplesDelete))
	})

	t.Run("request id echoed", func(t *testing.T) {
		w := s.do(t, "GET", "/api/session", "", nil)
		assert.NotEmpty(t, w.Header().Get(httputil.RequestIDHeader))
	})
}

func TestServer_RouteDecision(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		subject string
		path    string
		want    session.RouteDecision
	}{
		{"", "/samples", session.RouteDecision{Action: session.ActionRedirect, Target: "/login"}},
		{"", "/login", session.RouteDecision{Action: session.ActionRender}},
		{"newcomer", "/samples", session.RouteDecision{Action: session.ActionRedirect, Target: "/onboarding"}},
		{"newcomer", "/login", session.RouteDecision{Action: session.ActionRedirect, Target: "/onboarding"}},
		{"viewer", "/onboarding", session.RouteDecision{Action: session.ActionRedirect, Target: "/"}},
		{"viewer", "/samples", session.RouteDecision{Action: session.ActionRender, Shell: true}},
	}
	for _, tt := range tests {
		t.Run(tt.subject+tt.path, func(t *testing.T) {
			w := s.do(t, "GET", "/api/session/route?path="+url.QueryEscape(tt.path), tt.subject, nil)
			require.Equal(t, http.StatusOK, w.Code)
			var resp struct {
				Decision session.RouteDecision `json:"decision"`
			}
			decode(t, w, &resp)
			assert.Equal(t, tt.want, resp.Decision)
		})
	}
}

func TestServer_Navigation(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, "GET", "/api/navigation", "", nil).Code)

	w := s.do(t, "GET", "/api/navigation", "viewer", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Entries []struct {
			ID string `json:"id"`
		} `json:"entries"`
		Laboratory struct {
			Name string `json:"name"`
		} `json:"laboratory"`
	}
	decode(t, w, &resp)
	ids := make([]string, 0, len(resp.Entries))
	for _, e := range resp.Entries {
		ids = append(ids, e.ID)
	}
	assert.NotContains(t, ids, "admin")
	assert.Contains(t, ids, "samples")
	assert.Equal(t, "Acme", resp.Laboratory.Name)

	w = s.do(t, "GET", "/api/permissions/catalog", "viewer", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), string(rbac.PermSettingsManage))
}

func TestServer_SamplesAreTenantScoped(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("list", func(t *testing.T) {
		w := s.do(t, "GET", "/api/samples", "viewer", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Samples []docstore.Document `json:"samples"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Samples, 2)
		for _, doc := range resp.Samples {
			assert.Equal(t, "lab-1", doc["laboratoryId"])
		}
	})

	t.Run("filter", func(t *testing.T) {
		w := s.do(t, "GET", "/api/samples?status=open", "viewer", nil)
		var resp struct {
			Samples []docstore.Document `json:"samples"`
		}
		decode(t, w, &resp)
		require.Len(t, resp.Samples, 1)
		assert.Equal(t, "s-1", resp.Samples[0].ID())
	})

	t.Run("foreign record is not found", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, s.do(t, "GET", "/api/samples/s-foreign", "viewer", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, "DELETE", "/api/samples/s-foreign", "admin", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, "PATCH", "/api/samples/s-foreign", "admin", map[string]string{"name": "x"}).Code)

		doc, err := s.store.Get(context.Background(), CollectionSamples, "s-foreign")
		require.NoError(t, err)
		assert.Equal(t, "Secret", doc["name"])
		for _, op := range []string{"get", "delete", "update"} {
			rejections := s.metrics.TenantGuardRejectionsTotal.WithLabelValues(op, "foreign_record")
			assert.Equal(t, 1.0, testutil.ToFloat64(rejections), op)
		}
	})

	t.Run("create is stamped with the caller's laboratory", func(t *testing.T) {
		w := s.do(t, "POST", "/api/samples", "admin", map[string]string{"name": "Soil", "laboratoryId": "lab-2"})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var doc docstore.Document
		decode(t, w, &doc)
		assert.Equal(t, "lab-1", doc["laboratoryId"])
		assert.NotEmpty(t, doc.ID())
		assert.NotEmpty(t, doc["updatedAt"])
	})

	t.Run("caller ids are replaced", func(t *testing.T) {
		for _, id := range []string{"s-1", "s-foreign"} {
			w := s.do(t, "POST", "/api/samples", "admin", map[string]string{"id": id, "name": "dup"})
			require.Equal(t, http.StatusCreated, w.Code, id)
			var doc docstore.Document
			decode(t, w, &doc)
			assert.NotEqual(t, id, doc.ID())
			assert.Equal(t, "lab-1", doc["laboratoryId"])
		}

		original, err := s.store.Get(context.Background(), CollectionSamples, "s-1")
		require.NoError(t, err)
		assert.Equal(t, "Water A", original["name"])
		foreign, err := s.store.Get(context.Background(), CollectionSamples, "s-foreign")
		require.NoError(t, err)
		assert.Equal(t, "Secret", foreign["name"])
		assert.Equal(t, "lab-2", foreign["laboratoryId"])
	})

	t.Run("update keeps the stamp", func(t *testing.T) {
		w := s.do(t, "PATCH", "/api/samples/s-2", "admin", map[string]string{"status": "open", "laboratoryId": "lab-2"})
		require.Equal(t, http.StatusOK, w.Code)
		var doc docstore.Document
		decode(t, w, &doc)
		assert.Equal(t, "open", doc["status"])
		assert.Equal(t, "lab-1", doc["laboratoryId"])
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, s.do(t, "DELETE", "/api/samples/s-2", "admin", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(t, "GET", "/api/samples/s-2", "admin", nil).Code)
	})
}

func TestServer_PermissionDeniedIsRetryable(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, "DELETE", "/api/samples/s-1", "viewer", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	var resp httputil.ErrorResponse
	decode(t, w, &resp)
	assert.True(t, resp.Retryable)
}

// denyingStore fails reads of one collection with err, permission denied
// by default, the way a backend rule would
type denyingStore struct {
	docstore.Store
	collection string
	err        error
}

func (d denyingStore) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	if q.Collection == d.collection {
		err := d.err
		if err == nil {
			err = docstore.ErrPermissionDenied
		}
		return nil, fmt.Errorf("find %s: %w", q.Collection, err)
	}
	return d.Store.Find(ctx, q)
}

func TestServer_StorePermissionDenied(t *testing.T) {
	s := newTestServer(t, func(store docstore.Store) docstore.Store {
		return denyingStore{Store: store, collection: CollectionSamples}
	})

	w := s.do(t, "GET", "/api/samples", "viewer", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
	var resp httputil.ErrorResponse
	decode(t, w, &resp)
	assert.True(t, resp.Retryable)
}

func TestServer_StoreUnavailable(t *testing.T) {
	s := newTestServer(t, func(store docstore.Store) docstore.Store {
		return denyingStore{Store: store, collection: CollectionSamples, err: docstore.ErrUnavailable}
	})

	w := s.do(t, "GET", "/api/samples", "viewer", nil)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	var resp httputil.ErrorResponse
	decode(t, w, &resp)
	assert.True(t, resp.Retryable)
}

func TestServer_Onboarding(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, "GET", "/api/samples", "newcomer", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "onboarding_required")

	w = s.do(t, "POST", "/api/onboarding", "newcomer", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, "POST", "/api/onboarding", "newcomer", map[string]string{"name": "New Lab"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var lab labs.Laboratory
	decode(t, w, &lab)
	assert.Equal(t, "New Lab", lab.Name)

	w = s.do(t, "GET", "/api/session", "newcomer", nil)
	var snap session.Snapshot
	decode(t, w, &snap)
	assert.Equal(t, session.StateAuthenticated, snap.State)
	assert.Equal(t, lab.ID, snap.LaboratoryID())
	assert.True(t, snap.Can(rbac.PermSettingsManage))

	// The new laboratory sees none of lab-1's samples
	w = s.do(t, "GET", "/api/samples", "newcomer", nil)
	var resp struct {
		Samples []docstore.Document `json:"samples"`
	}
	decode(t, w, &resp)
	assert.Empty(t, resp.Samples)

	assert.Equal(t, http.StatusConflict, s.do(t, "POST", "/api/onboarding", "newcomer", map[string]string{"name": "Again"}).Code)
}

func TestServer_Administration(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("list users is scoped", func(t *testing.T) {
		w := s.do(t, "GET", "/api/users", "admin", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"viewer"`)
		assert.NotContains(t, w.Body.String(), "outsider")
	})

	t.Run("viewer cannot manage", func(t *testing.T) {
		w := s.do(t, "PUT", "/api/users/viewer/overrides", "viewer", OverridesRequest{Granted: []rbac.PermissionID{rbac.PermUsersManage}})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("overrides apply on next request", func(t *testing.T) {
		w := s.do(t, "PUT", "/api/users/viewer/overrides", "admin", OverridesRequest{
			Granted: []rbac.PermissionID{rbac.PermSamplesDelete},
			Revoked: []rbac.PermissionID{rbac.PermReportsView},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var snap session.Snapshot
		decode(t, s.do(t, "GET", "/api/session", "viewer", nil), &snap)
		assert.True(t, snap.Can(rbac.PermSamplesDelete))
		assert.False(t, snap.Can(rbac.PermReportsView))
	})

	t.Run("unknown permission rejected", func(t *testing.T) {
		w := s.do(t, "PUT", "/api/users/viewer/overrides", "admin", map[string][]string{"granted": {"samples.*"}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("foreign user not found", func(t *testing.T) {
		w := s.do(t, "PUT", "/api/users/outsider/role", "admin", AssignRoleRequest{RoleID: s.roles[rbac.RoleViewer].ID})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("roles", func(t *testing.T) {
		w := s.do(t, "POST", "/api/roles", "admin", directory.RoleInput{Name: "Auditor", Permissions: []rbac.PermissionID{rbac.PermReportsView}})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		var role rbac.Role
		decode(t, w, &role)
		assert.Equal(t, "lab-1", role.LaboratoryID)

		w = s.do(t, "POST", "/api/roles", "admin", directory.RoleInput{Name: "Auditor"})
		assert.Equal(t, http.StatusConflict, w.Code)

		w = s.do(t, "PUT", "/api/roles/"+role.ID+"/permissions", "admin", RolePermissionsRequest{Permissions: []rbac.PermissionID{rbac.PermReportsExport}})
		require.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "PUT", "/api/users/viewer/role", "admin", AssignRoleRequest{RoleID: role.ID})
		require.Equal(t, http.StatusOK, w.Code)

		w = s.do(t, "GET", "/api/roles", "admin", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Auditor")
	})
}

func TestServer_Operational(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/readyz", "", nil).Code)

	s.do(t, "GET", "/api/session", "", nil)
	w := s.do(t, "GET", "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `path="/api/session"`)
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("bind: %w", errors.New("boom")), http.StatusInternalServerError},
		{fmt.Errorf("x: %w", docstore.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", directory.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("x: %w", docstore.ErrPermissionDenied), http.StatusForbidden},
		{fmt.Errorf("x: %w", docstore.ErrUnavailable), http.StatusServiceUnavailable},
		{fmt.Errorf("x: %w", directory.ErrConflict), http.StatusConflict},
		{fmt.Errorf("x: %w", docstore.ErrAlreadyExists), http.StatusConflict},
		{fmt.Errorf("x: %w", directory.ErrInvalidInput), http.StatusBadRequest},
		{fmt.Errorf("x: %w", docstore.ErrInvalidQuery), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, httptest.NewRequest("GET", "/", nil), tt.err)
			assert.Equal(t, tt.code, w.Code)
			assert.False(t, strings.Contains(w.Body.String(), "boom"))
		})
	}
}

func TestServer_AuditTrail(t *testing.T) {
	s := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, s.do(t, "PUT", "/api/users/viewer/role", "admin", AssignRoleRequest{RoleID: s.roles[rbac.RoleAnalyst].ID}).Code)
	require.Equal(t, http.StatusNoContent, s.do(t, "DELETE", "/api/samples/s-2", "admin", nil).Code)
	// Rejected changes are not recorded
	require.Equal(t, http.StatusForbidden, s.do(t, "DELETE", "/api/samples/s-1", "viewer", nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, "GET", "/api/audit", "viewer", nil).Code)

	w := s.do(t, "GET", "/api/audit", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Events []audit.Event `json:"events"`
	}
	decode(t, w, &resp)
	require.Len(t, resp.Events, 2)
	types := []audit.EventType{resp.Events[0].EventType, resp.Events[1].EventType}
	assert.ElementsMatch(t, []audit.EventType{audit.EventTypeAuthzRoleAssign, audit.EventTypeDataSampleDelete}, types)
	for _, e := range resp.Events {
		assert.Equal(t, "lab-1", e.LaboratoryID)
		assert.Equal(t, "admin", e.ActorID)
		assert.NotEmpty(t, e.RequestID)
	}

	w = s.do(t, "GET", "/api/audit?eventType=data.sample_delete", "admin", nil)
	decode(t, w, &resp)
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "s-2", resp.Events[0].ResourceID)

	// The onboarding event belongs to the new laboratory only
	require.Equal(t, http.StatusCreated, s.do(t, "POST", "/api/onboarding", "newcomer", map[string]string{"name": "New Lab"}).Code)
	w = s.do(t, "GET", "/api/audit?eventType=lab.onboarding_complete", "admin", nil)
	decode(t, w, &resp)
	assert.Empty(t, resp.Events)
}
