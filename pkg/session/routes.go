package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/platinummonkey/labkit/pkg/observability"
)

// RouteCategory groups application paths for routing decisions
type RouteCategory string

const (
	RouteAuth       RouteCategory = "auth"
	RouteOnboarding RouteCategory = "onboarding"
	RouteApp        RouteCategory = "app"
)

// RouteTable names the auth routes, the onboarding route and the
// application root. Every other path is an app route.
type RouteTable struct {
	Login      string   `yaml:"login" json:"login"`
	Auth       []string `yaml:"auth" json:"auth"`
	Onboarding string   `yaml:"onboarding" json:"onboarding"`
	AppRoot    string   `yaml:"app_root" json:"appRoot"`
}

// DefaultRouteTable returns the built-in routes
func DefaultRouteTable() RouteTable {
	return RouteTable{
		Login:      "/login",
		Auth:       []string{"/login", "/signup", "/forgot-password"},
		Onboarding: "/onboarding",
		AppRoot:    "/",
	}
}

// Validate checks the table and fills missing entries with defaults
func (t *RouteTable) Validate() error {
	defaults := DefaultRouteTable()
	if t.Login == "" {
		t.Login = defaults.Login
	}
	if len(t.Auth) == 0 {
		t.Auth = defaults.Auth
	}
	if t.Onboarding == "" {
		t.Onboarding = defaults.Onboarding
	}
	if t.AppRoot == "" {
		t.AppRoot = defaults.AppRoot
	}

	t.Login = cleanPath(t.Login)
	t.Onboarding = cleanPath(t.Onboarding)
	t.AppRoot = cleanPath(t.AppRoot)
	auth := make([]string, 0, len(t.Auth)+1)
	for _, p := range t.Auth {
		auth = append(auth, cleanPath(p))
	}
	t.Auth = auth

	if !t.isAuth(t.Login) {
		t.Auth = append(t.Auth, t.Login)
	}
	if t.isAuth(t.Onboarding) {
		return fmt.Errorf("onboarding route %s is also an auth route", t.Onboarding)
	}
	if t.Categorize(t.AppRoot) != RouteApp {
		return fmt.Errorf("app root %s must be an app route", t.AppRoot)
	}
	return nil
}

// Categorize returns the category of p. Sub-paths of an auth or onboarding
// route share its category.
func (t RouteTable) Categorize(p string) RouteCategory {
	p = cleanPath(p)
	switch {
	case t.isAuth(p):
		return RouteAuth
	case matchRoute(t.Onboarding, p):
		return RouteOnboarding
	default:
		return RouteApp
	}
}

func (t RouteTable) isAuth(p string) bool {
	for _, route := range t.Auth {
		if matchRoute(route, p) {
			return true
		}
	}
	return false
}

func matchRoute(route, p string) bool {
	if route == "" || route == "/" {
		return false
	}
	return p == route || strings.HasPrefix(p, route+"/")
}

func cleanPath(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// LoadRouteTable reads a route table from a YAML file
func LoadRouteTable(file string) (RouteTable, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return RouteTable{}, fmt.Errorf("failed to read route table: %w", err)
	}

	var t RouteTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return RouteTable{}, fmt.Errorf("failed to parse route table %s: %w", file, err)
	}
	if err := t.Validate(); err != nil {
		return RouteTable{}, fmt.Errorf("invalid route table %s: %w", file, err)
	}
	return t, nil
}

// Routes holds the active route table. A file-backed table is reloaded
// when the file changes; invalid edits are logged and ignored.
type Routes struct {
	mu     sync.RWMutex
	table  RouteTable
	file   string
	logger *observability.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRoutes serves a fixed table
func NewRoutes(table RouteTable) (*Routes, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Routes{table: table}, nil
}

// WatchRoutes loads file and reloads it on every write until ctx is done or
// Close is called
func WatchRoutes(ctx context.Context, file string, logger *observability.Logger) (*Routes, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	table, err := LoadRouteTable(file)
	if err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory so editors that replace the file are seen too
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", file, err)
	}

	r := &Routes{
		table:   table,
		file:    filepath.Clean(file),
		logger:  logger.WithField("route_table", file),
		watcher: watcher,
		done:    make(chan struct{}),
	}
	go r.watch(ctx)
	return r, nil
}

func (r *Routes) watch(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case <-ctx.Done():
			r.watcher.Close()
			return
		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != r.file {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			r.reload()
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.WithError(err).Warn("route table watcher error")
		}
	}
}

func (r *Routes) reload() {
	table, err := LoadRouteTable(r.file)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			r.logger.WithError(err).Warn("keeping previous route table")
		}
		return
	}
	r.mu.Lock()
	r.table = table
	r.mu.Unlock()
	r.logger.Info("route table reloaded")
}

// Table returns the active route table
func (r *Routes) Table() RouteTable {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t := r.table
	t.Auth = append([]string(nil), r.table.Auth...)
	return t
}

// Decide applies the active table
func (r *Routes) Decide(state State, p string) RouteDecision {
	return r.Table().Decide(state, p)
}

// Close stops watching. It is a no-op for fixed tables.
func (r *Routes) Close() error {
	if r.watcher == nil {
		return nil
	}
	err := r.watcher.Close()
	<-r.done
	return err
}
