package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []*auth.Identity
}

func (r *recorder) record(identity *auth.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, identity)
}

func (r *recorder) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		if e != nil {
			out[i] = e.Subject
		}
	}
	return out
}

func TestHub_ReplaysCurrentOnSubscribe(t *testing.T) {
	hub := NewHub()
	hub.SignIn(&auth.Identity{Subject: "u1"})

	rec := &recorder{}
	unsubscribe := hub.Subscribe(rec.record)
	defer unsubscribe()

	assert.Equal(t, []string{"u1"}, rec.subjects())
}

func TestHub_EventOrder(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	rec := &recorder{}
	unsubscribe := hub.Subscribe(rec.record)

	hub.SignIn(&auth.Identity{Subject: "u1"})
	require.NoError(t, hub.Reload(ctx))
	require.NoError(t, hub.SignOut(ctx))
	hub.SignIn(&auth.Identity{Subject: "u2"})

	assert.Equal(t, []string{"", "u1", "u1", "", "u2"}, rec.subjects())

	unsubscribe()
	unsubscribe()
	hub.SignIn(&auth.Identity{Subject: "u3"})
	assert.Len(t, rec.subjects(), 5)
	assert.Equal(t, "u3", hub.Current().Subject)
}

func TestHub_DeliversCopies(t *testing.T) {
	hub := NewHub()
	original := &auth.Identity{Subject: "u1", Email: "a@lab.io"}
	hub.SignIn(original)

	var got *auth.Identity
	hub.Subscribe(func(identity *auth.Identity) { got = identity })
	got.Email = "changed"

	assert.Equal(t, "a@lab.io", hub.Current().Email)
	assert.Equal(t, "a@lab.io", original.Email)
}

func TestHub_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub := NewHub()
	assert.ErrorIs(t, hub.SignOut(ctx), context.Canceled)
	assert.ErrorIs(t, hub.Reload(ctx), context.Canceled)
}
