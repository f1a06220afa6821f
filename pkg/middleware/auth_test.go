package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/platinummonkey/labkit/pkg/contextkeys"
	"github.com/platinummonkey/labkit/pkg/directory"
	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/httputil"
	"github.com/platinummonkey/labkit/pkg/identity"
	"github.com/platinummonkey/labkit/pkg/labs"
	"github.com/platinummonkey/labkit/pkg/rbac"
	"github.com/platinummonkey/labkit/pkg/session"
)

// tokenTable verifies tokens by lookup
type tokenTable map[string]*auth.Identity

func (t tokenTable) Verify(ctx context.Context, raw string) (*auth.Identity, error) {
	id, ok := t[raw]
	if !ok {
		return nil, identity.ErrInvalidToken
	}
	return id, nil
}

func newAuthenticator(t *testing.T, optional bool, opts ...session.ResolverOption) *Authenticator {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	put := func(collection, id string, record interface{}) {
		doc, err := docstore.Encode(record)
		require.NoError(t, err)
		require.NoError(t, store.Merge(ctx, collection, id, doc))
	}
	put(directory.CollectionUsers, "member", auth.UserRecord{ID: "member", Status: auth.UserStatusActive, LaboratoryID: "lab-1", RoleID: "viewer"})
	put(directory.CollectionRoles, "viewer", rbac.Role{ID: "viewer", LaboratoryID: "lab-1", Permissions: []rbac.PermissionID{rbac.PermSamplesView}})
	put(directory.CollectionLaboratories, "lab-1", labs.Laboratory{ID: "lab-1", Name: "Acme"})

	tokens := tokenTable{
		"member-token":   {Subject: "member"},
		"newcomer-token": {Subject: "newcomer", Email: "new@lab.io"},
	}
	if opts == nil {
		opts = []session.ResolverOption{session.WithRetrySchedule(nil)}
	}
	resolver := session.NewResolver(directory.New(store, nil), opts...)
	return NewAuthenticator(tokens, resolver, optional)
}

func TestAuthenticator_NewcomerIsNotDelayed(t *testing.T) {
	// The default schedule would hold a missing record for 6s.
	a := newAuthenticator(t, false, session.WithRetrySchedule(session.DefaultRetrySchedule))

	var got *session.Snapshot
	h := a.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetSession(r)
		w.WriteHeader(http.StatusOK)
	}))

	start := time.Now()
	w := serve(h, "Bearer newcomer-token")
	elapsed := time.Since(start)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Less(t, elapsed, 500*time.Millisecond)
	require.NotNil(t, got)
	assert.Equal(t, session.StateOnboardingRequired, got.State)
	assert.True(t, got.Degraded)
	assert.Equal(t, session.RecordNotFound, got.Reason)
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuthenticator_Handler(t *testing.T) {
	var got *session.Snapshot
	var labID, userID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetSession(r)
		labID = contextkeys.GetLaboratoryID(r.Context())
		userID = contextkeys.GetUserID(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	t.Run("rejects missing header when required", func(t *testing.T) {
		w := serve(newAuthenticator(t, false).Handler(next), "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "missing authorization header")
	})

	t.Run("signed-out snapshot when optional", func(t *testing.T) {
		got = nil
		w := serve(newAuthenticator(t, true).Handler(next), "")
		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, got)
		assert.Equal(t, session.StateUnauthenticated, got.State)
	})

	t.Run("rejects malformed header", func(t *testing.T) {
		w := serve(newAuthenticator(t, false).Handler(next), "Token member-token")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "invalid authorization header format")
	})

	t.Run("rejects unknown token", func(t *testing.T) {
		w := serve(newAuthenticator(t, false).Handler(next), "Bearer forged")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("resolves member", func(t *testing.T) {
		w := serve(newAuthenticator(t, false).Handler(next), "Bearer member-token")
		assert.Equal(t, http.StatusOK, w.Code)
		require.NotNil(t, got)
		assert.Equal(t, session.StateAuthenticated, got.State)
		assert.True(t, got.Can(rbac.PermSamplesView))
		assert.Equal(t, "lab-1", labID)
		assert.Equal(t, "member", userID)
	})

	t.Run("newcomer needs onboarding", func(t *testing.T) {
		labID = "unset"
		w := serve(newAuthenticator(t, false).Handler(next), "bearer newcomer-token")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, session.StateOnboardingRequired, got.State)
		assert.True(t, got.Degraded)
		assert.Empty(t, labID)
	})
}

func TestRequireState(t *testing.T) {
	authn := newAuthenticator(t, true)
	h := authn.Handler(RequireState(session.StateAuthenticated)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	assert.Equal(t, http.StatusOK, serve(h, "Bearer member-token").Code)

	w := serve(h, "Bearer newcomer-token")
	assert.Equal(t, http.StatusConflict, w.Code)
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "onboarding_required", resp.Code)

	onboarding := authn.Handler(RequireState(session.StateOnboardingRequired)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))
	assert.Equal(t, http.StatusOK, serve(onboarding, "Bearer newcomer-token").Code)
	assert.Equal(t, http.StatusConflict, serve(onboarding, "Bearer member-token").Code)
}

func TestRequirePermission(t *testing.T) {
	authn := newAuthenticator(t, true)
	handler := func(id rbac.PermissionID) http.Handler {
		return authn.Handler(RequirePermission(id)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})))
	}

	assert.Equal(t, http.StatusOK, serve(handler(rbac.PermSamplesView), "Bearer member-token").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(handler(rbac.PermSamplesView), "").Code)

	w := serve(handler(rbac.PermSamplesDelete), "Bearer member-token")
	assert.Equal(t, http.StatusForbidden, w.Code)
	var resp httputil.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Retryable)
	assert.Contains(t, resp.Error, "samples.delete")
}

func TestGetSession_Missing(t *testing.T) {
	assert.Nil(t, GetSession(httptest.NewRequest(http.MethodGet, "/", nil)))
}
