package identity

import (
	"context"
	"errors"
	"sync"

	"github.com/platinummonkey/labkit/pkg/auth"
)

// ErrInvalidToken indicates a token failed verification
var ErrInvalidToken = errors.New("invalid token")

// Provider is the session-change feed of an identity provider. A nil
// identity means signed out.
type Provider interface {
	// Subscribe registers fn for session changes and returns a function
	// that removes the subscription
	Subscribe(fn func(*auth.Identity)) (unsubscribe func())

	// SignOut ends the current session
	SignOut(ctx context.Context) error

	// Reload re-announces the current session
	Reload(ctx context.Context) error
}

// TokenVerifier turns a bearer token into an identity
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*auth.Identity, error)
}

// Hub is an in-process Provider. New subscribers immediately receive the
// current session, and events are delivered in publish order.
type Hub struct {
	mu      sync.Mutex
	current *auth.Identity
	subs    map[int]func(*auth.Identity)
	nextID  int

	// deliver serializes publishes so subscribers observe event order
	deliver sync.Mutex
}

// NewHub creates a signed-out hub
func NewHub() *Hub {
	return &Hub{subs: make(map[int]func(*auth.Identity))}
}

// Subscribe implements Provider
func (h *Hub) Subscribe(fn func(*auth.Identity)) func() {
	h.deliver.Lock()
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	current := copyIdentity(h.current)
	h.mu.Unlock()

	fn(current)
	h.deliver.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// SignIn publishes a signed-in session
func (h *Hub) SignIn(identity *auth.Identity) {
	h.publish(copyIdentity(identity))
}

// SignOut implements Provider
func (h *Hub) SignOut(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.publish(nil)
	return nil
}

// Reload implements Provider
func (h *Hub) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	current := h.current
	h.mu.Unlock()
	h.publish(copyIdentity(current))
	return nil
}

// Current returns the current session identity
func (h *Hub) Current() *auth.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return copyIdentity(h.current)
}

func (h *Hub) publish(identity *auth.Identity) {
	h.deliver.Lock()
	defer h.deliver.Unlock()

	h.mu.Lock()
	h.current = identity
	subs := make([]func(*auth.Identity), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(copyIdentity(identity))
	}
}

func copyIdentity(identity *auth.Identity) *auth.Identity {
	if identity == nil {
		return nil
	}
	cp := *identity
	return &cp
}
