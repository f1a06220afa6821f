package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/platinummonkey/labkit/pkg/directory"
	"github.com/platinummonkey/labkit/pkg/docstore"
	"github.com/platinummonkey/labkit/pkg/labs"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/platinummonkey/labkit/pkg/rbac"
)

// fakeLoader serves records from maps. The first missingFor lookups of a
// user report not found, and gates block GetUser for a subject until the
// gate channel is closed.
type fakeLoader struct {
	mu         sync.Mutex
	users      map[string]*auth.UserRecord
	roles      map[string]*rbac.Role
	labs       map[string]*labs.Laboratory
	userErr    error
	roleErr    error
	missingFor int
	gates      map[string]chan struct{}
	userCalls  int
	roleCalls  int
	labCalls   int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		users: make(map[string]*auth.UserRecord),
		roles: make(map[string]*rbac.Role),
		labs:  make(map[string]*labs.Laboratory),
		gates: make(map[string]chan struct{}),
	}
}

func (f *fakeLoader) GetUser(ctx context.Context, id string) (*auth.UserRecord, error) {
	f.mu.Lock()
	f.userCalls++
	gate := f.gates[id]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return nil, f.userErr
	}
	if f.missingFor > 0 {
		f.missingFor--
		return nil, fmt.Errorf("users/%s: %w", id, directory.ErrNotFound)
	}
	u, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("users/%s: %w", id, directory.ErrNotFound)
	}
	cp := *u
	return &cp, nil
}

func (f *fakeLoader) GetRole(ctx context.Context, id string) (*rbac.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleCalls++
	if f.roleErr != nil {
		return nil, f.roleErr
	}
	r, ok := f.roles[id]
	if !ok {
		return nil, fmt.Errorf("roles/%s: %w", id, directory.ErrNotFound)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeLoader) GetLaboratory(ctx context.Context, id string) (*labs.Laboratory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.labCalls++
	l, ok := f.labs[id]
	if !ok {
		return nil, fmt.Errorf("laboratories/%s: %w", id, directory.ErrNotFound)
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLoader) calls() (users, roles, labs int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userCalls, f.roleCalls, f.labCalls
}

func seededLoader() *fakeLoader {
	f := newFakeLoader()
	f.users["u1"] = &auth.UserRecord{
		ID: "u1", Email: "ana@lab.io", Status: auth.UserStatusActive,
		LaboratoryID: "lab-1", RoleID: "analyst",
		GrantedPermissions: []string{string(rbac.PermUsersView)},
		RevokedPermissions: []string{string(rbac.PermResultsApprove)},
	}
	f.roles["analyst"] = &rbac.Role{
		ID: "analyst", LaboratoryID: "lab-1", Name: "Analyst",
		Permissions: []rbac.PermissionID{rbac.PermSamplesView, rbac.PermResultsApprove},
	}
	f.labs["lab-1"] = &labs.Laboratory{ID: "lab-1", Name: "Acme Labs"}
	return f
}

// recordDelays replaces real timers and records each retry delay
func recordDelays(r *Resolver) *[]time.Duration {
	var delays []time.Duration
	r.wait = func(ctx context.Context, state *retryState, delay time.Duration) error {
		state.attempt++
		delays = append(delays, delay)
		return ctx.Err()
	}
	return &delays
}

var ana = &auth.Identity{Subject: "u1", Email: "ana@lab.io", DisplayName: "Ana"}

func TestResolver_NilIdentity(t *testing.T) {
	loader := seededLoader()
	res := NewResolver(loader).Resolve(context.Background(), nil)

	assert.Nil(t, res.User)
	assert.Nil(t, res.Identity)
	assert.Equal(t, 0, res.Permissions.Len())
	assert.False(t, res.Degraded)

	users, roles, labs := loader.calls()
	assert.Zero(t, users+roles+labs)
}

func TestResolver_ResolvesStoredRecords(t *testing.T) {
	loader := seededLoader()
	r := NewResolver(loader)
	delays := recordDelays(r)

	res := r.Resolve(context.Background(), ana)

	require.NotNil(t, res.User)
	assert.False(t, res.User.Synthetic)
	assert.False(t, res.Degraded)
	assert.Equal(t, ReasonNone, res.Reason)
	assert.Equal(t, "lab-1", res.LaboratoryID())
	require.NotNil(t, res.Role)
	require.NotNil(t, res.Laboratory)
	assert.Equal(t, "Acme Labs", res.Laboratory.Name)
	assert.Equal(t,
		rbac.NewPermissionSet(rbac.PermSamplesView, rbac.PermUsersView),
		res.Permissions)
	assert.Empty(t, *delays)
}

func TestResolver_Idempotent(t *testing.T) {
	r := NewResolver(seededLoader())
	first := r.Resolve(context.Background(), ana)
	second := r.Resolve(context.Background(), ana)
	assert.True(t, first.Permissions.Equal(second.Permissions))
	assert.Equal(t, first.User, second.User)
}

func TestResolver_RecordAppearsOnThirdAttempt(t *testing.T) {
	loader := seededLoader()
	loader.missingFor = 2
	r := NewResolver(loader)
	delays := recordDelays(r)

	res := r.Resolve(context.Background(), ana)

	assert.False(t, res.Degraded)
	assert.False(t, res.User.Synthetic)
	assert.Equal(t, "lab-1", res.User.LaboratoryID)
	assert.True(t, res.Permissions.Has(rbac.PermSamplesView))
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *delays)

	users, _, _ := loader.calls()
	assert.Equal(t, 3, users)
}

func TestResolver_FallsBackAfterRetries(t *testing.T) {
	loader := newFakeLoader()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	r := NewResolver(loader, WithResolverMetrics(metrics))
	delays := recordDelays(r)

	res := r.Resolve(context.Background(), ana)

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *delays)
	users, roles, labCalls := loader.calls()
	assert.Equal(t, 4, users)
	assert.Zero(t, roles)
	assert.Zero(t, labCalls)

	require.NotNil(t, res.User)
	assert.True(t, res.Degraded)
	assert.Equal(t, RecordNotFound, res.Reason)
	assert.True(t, res.User.Synthetic)
	assert.Equal(t, "u1", res.User.ID)
	assert.Equal(t, "ana@lab.io", res.User.Email)
	assert.Equal(t, "Ana", res.User.Name)
	assert.Equal(t, auth.UserStatusActive, res.User.Status)
	assert.Empty(t, res.User.LaboratoryID)
	assert.Nil(t, res.Laboratory)
	assert.Equal(t, 0, res.Permissions.Len())
	assert.Equal(t, StateOnboardingRequired, NewSnapshot(res).State)

	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.SessionRetriesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SessionResolutionsTotal.WithLabelValues(string(RecordNotFound))))
}

func TestResolver_TransientFailureDoesNotRetry(t *testing.T) {
	loader := seededLoader()
	loader.userErr = errors.New("connection reset")
	r := NewResolver(loader)
	delays := recordDelays(r)

	res := r.Resolve(context.Background(), ana)

	assert.Empty(t, *delays)
	assert.True(t, res.Degraded)
	assert.Equal(t, TransientFetchFailure, res.Reason)
	assert.True(t, res.User.Synthetic)
	assert.Empty(t, res.LaboratoryID())
}

func TestResolver_RetryCancelledWithContext(t *testing.T) {
	r := NewResolver(newFakeLoader(), WithRetrySchedule([]time.Duration{time.Hour}))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan Resolution, 1)
	go func() { done <- r.Resolve(ctx, ana) }()
	cancel()

	select {
	case res := <-done:
		assert.True(t, res.Degraded)
	case <-time.After(5 * time.Second):
		t.Fatal("resolution did not observe cancellation")
	}
}

func TestResolver_EmptyScheduleDisablesRetry(t *testing.T) {
	loader := newFakeLoader()
	res := NewResolver(loader, WithRetrySchedule(nil)).Resolve(context.Background(), ana)

	users, _, _ := loader.calls()
	assert.Equal(t, 1, users)
	assert.Equal(t, RecordNotFound, res.Reason)
}

func TestResolver_WithoutRetries(t *testing.T) {
	loader := newFakeLoader()
	base := NewResolver(loader)
	delays := recordDelays(base)

	res := base.WithoutRetries().Resolve(context.Background(), ana)
	users, _, _ := loader.calls()
	assert.Equal(t, 1, users)
	assert.Equal(t, RecordNotFound, res.Reason)
	assert.Empty(t, *delays)

	base.Resolve(context.Background(), ana)
	assert.Equal(t, DefaultRetrySchedule, *delays, "the original keeps its schedule")
}

func TestResolver_RoleProblemsMeanNoRole(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeLoader)
	}{
		{"missing role", func(f *fakeLoader) { delete(f.roles, "analyst") }},
		{"role fetch error", func(f *fakeLoader) { f.roleErr = errors.New("permission denied") }},
		{"foreign role", func(f *fakeLoader) { f.roles["analyst"].LaboratoryID = "lab-2" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loader := seededLoader()
			tt.setup(loader)

			res := NewResolver(loader).Resolve(context.Background(), ana)

			assert.Nil(t, res.Role)
			assert.False(t, res.Degraded)
			assert.Equal(t, rbac.NewPermissionSet(rbac.PermUsersView), res.Permissions)
		})
	}
}

func TestResolver_NoRoleSkipsFetch(t *testing.T) {
	loader := seededLoader()
	loader.users["u1"].RoleID = ""

	res := NewResolver(loader).Resolve(context.Background(), ana)

	_, roles, _ := loader.calls()
	assert.Zero(t, roles)
	assert.Equal(t, rbac.NewPermissionSet(rbac.PermUsersView), res.Permissions)
}

func TestResolver_MissingLaboratory(t *testing.T) {
	loader := seededLoader()
	delete(loader.labs, "lab-1")

	res := NewResolver(loader).Resolve(context.Background(), ana)

	assert.Nil(t, res.Laboratory)
	assert.Equal(t, "lab-1", res.LaboratoryID())
	assert.Equal(t, StateOnboardingRequired, NewSnapshot(res).State)
}

func TestResolver_OverDirectory(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	put := func(collection, id string, record interface{}) {
		doc, err := docstore.Encode(record)
		require.NoError(t, err)
		require.NoError(t, store.Merge(ctx, collection, id, doc))
	}
	put(directory.CollectionUsers, "u1", auth.UserRecord{ID: "u1", Status: auth.UserStatusActive, LaboratoryID: "lab-1", RoleID: "r1"})
	put(directory.CollectionRoles, "r1", rbac.Role{ID: "r1", LaboratoryID: "lab-1", Permissions: []rbac.PermissionID{rbac.PermReportsView}})
	put(directory.CollectionLaboratories, "lab-1", labs.Laboratory{ID: "lab-1", Name: "Acme"})

	r := NewResolver(directory.New(store, nil))
	recordDelays(r)

	res := r.Resolve(ctx, ana)
	assert.False(t, res.Degraded)
	assert.Equal(t, rbac.NewPermissionSet(rbac.PermReportsView), res.Permissions)
	assert.Equal(t, StateAuthenticated, NewSnapshot(res).State)

	res = r.Resolve(ctx, &auth.Identity{Subject: "nobody"})
	assert.Equal(t, RecordNotFound, res.Reason)
}
