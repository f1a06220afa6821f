package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/labkit/pkg/async"
	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/platinummonkey/labkit/pkg/identity"
	"github.com/platinummonkey/labkit/pkg/observability"
)

// ErrClosed is returned by operations on a closed Manager
var ErrClosed = errors.New("session manager closed")

// Manager owns the process-wide authorization context. It re-resolves on
// every identity event and every Refresh, and applies a resolution only if
// no newer event arrived while it was running.
type Manager struct {
	provider identity.Provider
	resolver *Resolver
	logger   *observability.Logger
	metrics  *observability.Metrics
	timeout  time.Duration
	schedule string

	ctx  context.Context
	stop context.CancelFunc

	mu          sync.RWMutex
	generation  uint64
	cancel      context.CancelFunc
	identity    *auth.Identity
	snapshot    Snapshot
	watchers    map[int]chan Snapshot
	nextWatcher int
	closed      bool

	unsubscribe func()
	cron        *cron.Cron
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger
func WithManagerLogger(logger *observability.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerMetrics records state transitions and stale discards
func WithManagerMetrics(metrics *observability.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithResolveTimeout bounds each resolution, retries included. Zero means
// no bound.
func WithResolveTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// WithRefreshSchedule refreshes on a cron schedule, e.g. "@every 5m"
func WithRefreshSchedule(schedule string) ManagerOption {
	return func(m *Manager) {
		m.schedule = schedule
	}
}

// NewManager subscribes to provider and starts resolving. The provider's
// current session, if it replays one, is handled before NewManager returns.
func NewManager(ctx context.Context, provider identity.Provider, resolver *Resolver, opts ...ManagerOption) (*Manager, error) {
	m := &Manager{
		provider: provider,
		resolver: resolver,
		logger:   observability.NopLogger(),
		snapshot: loadingSnapshot(nil),
		watchers: make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.WithField("component", "session")
	m.ctx, m.stop = context.WithCancel(ctx)

	if m.schedule != "" {
		m.cron = cron.New()
		if _, err := m.cron.AddFunc(m.schedule, func() {
			if err := m.Refresh(); err != nil && !errors.Is(err, ErrClosed) {
				m.logger.WithError(err).Warn("scheduled refresh failed")
			}
		}); err != nil {
			m.stop()
			return nil, fmt.Errorf("invalid refresh schedule %q: %w", m.schedule, err)
		}
	}

	m.unsubscribe = provider.Subscribe(m.handle)
	if m.cron != nil {
		m.cron.Start()
	}
	return m, nil
}

func (m *Manager) handle(id *auth.Identity) {
	m.begin(id, false)
}

// begin starts a new generation. A refresh re-resolves the identity of the
// latest event.
func (m *Manager) begin(id *auth.Identity, refresh bool) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if refresh {
		id = m.identity
	}

	m.generation++
	gen := m.generation
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.identity = id

	if id == nil {
		// Sign-out settles immediately
		snap := NewSnapshot(Resolution{})
		m.setLocked(gen, snap)
		m.mu.Unlock()
		m.logger.Debug("session signed out")
		return nil
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.setLocked(gen, loadingSnapshot(id))
	m.mu.Unlock()

	subject := id.Subject
	async.SafeGo(ctx, m.logger, m.timeout, "session resolve", func(ctx context.Context) error {
		res := m.resolver.Resolve(ctx, id)
		m.apply(gen, subject, res)
		return nil
	})
	return nil
}

// apply publishes res if gen is still the latest generation
func (m *Manager) apply(gen uint64, subject string, res Resolution) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	if gen != m.generation {
		m.metrics.RecordStaleDiscard()
		m.logger.WithFields(map[string]interface{}{
			"generation": gen,
			"current":    m.generation,
			"user_id":    subject,
		}).Debug("discarding stale resolution")
		return
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.setLocked(gen, NewSnapshot(res))
}

// setLocked stores snap and notifies watchers. m.mu must be held.
func (m *Manager) setLocked(gen uint64, snap Snapshot) {
	snap.Generation = gen
	m.metrics.RecordTransition(string(m.snapshot.State), string(snap.State))
	m.snapshot = snap

	for _, ch := range m.watchers {
		deliverLatest(ch, snap.Clone())
	}
}

// deliverLatest replaces any undelivered snapshot in ch with snap
func deliverLatest(ch chan Snapshot, snap Snapshot) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- snap:
	default:
	}
}

// Snapshot returns a copy of the current authorization context
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot.Clone()
}

// Watch delivers the current snapshot followed by every change. A slow
// reader only sees the latest snapshot. The channel is closed by the
// returned cancel function or by Close.
func (m *Manager) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := m.nextWatcher
	m.nextWatcher++
	m.watchers[id] = ch
	ch <- m.snapshot.Clone()
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if _, ok := m.watchers[id]; ok {
				delete(m.watchers, id)
				close(ch)
			}
		})
	}
}

// Refresh re-resolves the current identity, superseding any resolution in
// flight. Use it after the user, role or laboratory records change.
func (m *Manager) Refresh() error {
	return m.begin(nil, true)
}

// SignOut asks the provider to end the session
func (m *Manager) SignOut(ctx context.Context) error {
	return m.provider.SignOut(ctx)
}

// Close unsubscribes from the provider, stops scheduled refreshes and
// cancels the resolution in flight
func (m *Manager) Close() error {
	m.unsubscribe()
	if m.cron != nil {
		<-m.cron.Stop().Done()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.stop()
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
	return nil
}
