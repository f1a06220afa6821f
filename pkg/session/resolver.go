package session

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/platinummonkey/labkit/pkg/directory"
	"github.com/platinummonkey/labkit/pkg/labs"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/platinummonkey/labkit/pkg/rbac"
)

// Loader fetches the records a resolution needs. Missing records are
// reported with an error matching directory.ErrNotFound.
type Loader interface {
	GetUser(ctx context.Context, id string) (*auth.UserRecord, error)
	GetRole(ctx context.Context, id string) (*rbac.Role, error)
	GetLaboratory(ctx context.Context, id string) (*labs.Laboratory, error)
}

// DefaultRetrySchedule is the delay before each retry of a missing user
// record
var DefaultRetrySchedule = []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second}

// Resolution is the derived authorization state for one identity
type Resolution struct {
	Identity    *auth.Identity
	User        *auth.UserRecord
	Role        *rbac.Role
	Laboratory  *labs.Laboratory
	Permissions rbac.PermissionSet

	// Degraded is set when User is synthetic. Reason says why.
	Degraded bool
	Reason   Reason
}

// LaboratoryID returns the resolved tenant id, or "" when unassigned
func (r Resolution) LaboratoryID() string {
	if r.User == nil {
		return ""
	}
	return r.User.LaboratoryID
}

// retryState tracks the bounded retry of a missing user record. The timer
// is stopped when the resolution context is cancelled.
type retryState struct {
	attempt int
	timer   *time.Timer
}

func (s *retryState) wait(ctx context.Context, delay time.Duration) error {
	s.attempt++
	s.timer = time.NewTimer(delay)
	defer s.timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.timer.C:
		return nil
	}
}

// Resolver computes Resolutions from stored records
type Resolver struct {
	loader   Loader
	schedule []time.Duration
	logger   *observability.Logger
	metrics  *observability.Metrics

	// wait is replaced in tests to skip real delays
	wait func(ctx context.Context, state *retryState, delay time.Duration) error
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithRetrySchedule overrides DefaultRetrySchedule. An empty schedule
// disables retries.
func WithRetrySchedule(schedule []time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.schedule = append([]time.Duration(nil), schedule...)
	}
}

// WithResolverLogger sets the logger
func WithResolverLogger(logger *observability.Logger) ResolverOption {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithResolverMetrics records resolution metrics
func WithResolverMetrics(metrics *observability.Metrics) ResolverOption {
	return func(r *Resolver) {
		r.metrics = metrics
	}
}

// NewResolver creates a resolver reading from loader
func NewResolver(loader Loader, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		loader:   loader,
		schedule: DefaultRetrySchedule,
		logger:   observability.NopLogger(),
		wait: func(ctx context.Context, state *retryState, delay time.Duration) error {
			return state.wait(ctx, delay)
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithoutRetries returns a copy of r that falls back as soon as the user
// record is missing. Request handlers use it: a client's next request
// plays the part of the retry.
func (r *Resolver) WithoutRetries() *Resolver {
	c := *r
	c.schedule = nil
	return &c
}

// Resolve loads the records linked to identity and computes its effective
// permissions. It never fails: missing or unreadable records degrade to a
// synthetic user without a laboratory, and a missing role or laboratory
// leaves the corresponding field nil. A nil identity resolves to the empty
// state without any I/O.
func (r *Resolver) Resolve(ctx context.Context, identity *auth.Identity) Resolution {
	if identity == nil {
		r.metrics.RecordResolution(outcomeAnonymous, 0)
		return Resolution{Permissions: rbac.PermissionSet{}}
	}

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "session.Resolve", attribute.String("user.id", identity.Subject))
	logger := observability.UpdateLoggerWithTraceContext(ctx, r.logger).WithField("user_id", identity.Subject)

	id := *identity
	res := Resolution{Identity: &id}

	user, reason := r.loadUser(ctx, logger, identity.Subject)
	if user == nil {
		user = auth.SyntheticUser(identity)
		res.Degraded = true
		res.Reason = reason
		logger.WithField("reason", string(reason)).Warn("using synthetic user record")
	}
	res.User = user

	var g errgroup.Group
	if user.HasRole() {
		g.Go(func() error {
			res.Role = r.loadRole(ctx, logger, user)
			return nil
		})
	}
	if user.HasLaboratory() {
		g.Go(func() error {
			res.Laboratory = r.loadLaboratory(ctx, logger, user.LaboratoryID)
			return nil
		})
	}
	_ = g.Wait()

	res.Permissions = rbac.Resolve(res.Role, user)

	span.SetAttributes(
		attribute.String("laboratory.id", user.LaboratoryID),
		attribute.Bool("session.degraded", res.Degraded),
		attribute.Int("session.permissions", res.Permissions.Len()),
	)
	observability.EndSpan(span, nil)
	r.metrics.RecordResolution(res.Reason.outcome(), time.Since(start))

	return res
}

// loadUser fetches the user record, retrying while it is absent. It returns
// nil and the fallback reason when no record could be loaded.
func (r *Resolver) loadUser(ctx context.Context, logger *observability.Logger, subject string) (*auth.UserRecord, Reason) {
	state := &retryState{}
	for {
		user, err := r.loader.GetUser(ctx, subject)
		switch {
		case err == nil && user != nil:
			return user, ReasonNone
		case err != nil && !errors.Is(err, directory.ErrNotFound):
			logger.WithError(err).Error("failed to fetch user record")
			return nil, TransientFetchFailure
		}

		if state.attempt >= len(r.schedule) {
			return nil, RecordNotFound
		}
		delay := r.schedule[state.attempt]
		logger.WithFields(map[string]interface{}{
			"attempt": state.attempt + 1,
			"delay":   delay.String(),
		}).Debug("user record not found, retrying")
		r.metrics.RecordRetry()

		if err := r.wait(ctx, state, delay); err != nil {
			return nil, RecordNotFound
		}
	}
}

// loadRole fetches the user's role. Errors, absence and roles owned by
// another laboratory all mean no role.
func (r *Resolver) loadRole(ctx context.Context, logger *observability.Logger, user *auth.UserRecord) *rbac.Role {
	role, err := r.loader.GetRole(ctx, user.RoleID)
	if err != nil {
		if !errors.Is(err, directory.ErrNotFound) {
			logger.WithError(err).WithField("role_id", user.RoleID).Warn("failed to fetch role")
		}
		return nil
	}
	if role == nil {
		return nil
	}
	if role.LaboratoryID != user.LaboratoryID {
		logger.WithFields(map[string]interface{}{
			"role_id":         role.ID,
			"role_laboratory": role.LaboratoryID,
		}).Warn("ignoring role owned by another laboratory")
		return nil
	}
	return role
}

func (r *Resolver) loadLaboratory(ctx context.Context, logger *observability.Logger, laboratoryID string) *labs.Laboratory {
	lab, err := r.loader.GetLaboratory(ctx, laboratoryID)
	if err != nil {
		if !errors.Is(err, directory.ErrNotFound) {
			logger.WithError(err).WithField("laboratory_id", laboratoryID).Warn("failed to fetch laboratory")
		}
		return nil
	}
	return lab
}
