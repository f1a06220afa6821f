package session

import (
	"context"
	"time"

	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/platinummonkey/labkit/pkg/contextkeys"
	"github.com/platinummonkey/labkit/pkg/labs"
	"github.com/platinummonkey/labkit/pkg/rbac"
)

// Snapshot is an immutable view of the authorization context. Callers get
// their own copy and may not affect the Manager's state through it.
type Snapshot struct {
	Generation  uint64             `json:"generation"`
	State       State              `json:"state"`
	Identity    *auth.Identity     `json:"identity,omitempty"`
	User        *auth.UserRecord   `json:"user,omitempty"`
	Role        *rbac.Role         `json:"role,omitempty"`
	Laboratory  *labs.Laboratory   `json:"laboratory,omitempty"`
	Permissions rbac.PermissionSet `json:"permissions"`
	Degraded    bool               `json:"degraded,omitempty"`
	Reason      Reason             `json:"reason,omitempty"`
	ResolvedAt  time.Time          `json:"resolvedAt,omitempty"`
}

// NewSnapshot builds a settled snapshot from a resolution
func NewSnapshot(res Resolution) Snapshot {
	perms := res.Permissions
	if perms == nil {
		perms = rbac.PermissionSet{}
	}
	return Snapshot{
		State:       Classify(false, res.Identity, res.Laboratory),
		Identity:    res.Identity,
		User:        res.User,
		Role:        res.Role,
		Laboratory:  res.Laboratory,
		Permissions: perms,
		Degraded:    res.Degraded,
		Reason:      res.Reason,
		ResolvedAt:  time.Now().UTC(),
	}
}

func loadingSnapshot(identity *auth.Identity) Snapshot {
	return Snapshot{State: StateLoading, Identity: identity, Permissions: rbac.PermissionSet{}}
}

// Can reports whether the snapshot grants id
func (s Snapshot) Can(id rbac.PermissionID) bool {
	return s.Permissions.Has(id)
}

// LaboratoryID returns the user's laboratory id, or "" when unassigned
func (s Snapshot) LaboratoryID() string {
	if s.User == nil {
		return ""
	}
	return s.User.LaboratoryID
}

// Clone returns a deep copy
func (s Snapshot) Clone() Snapshot {
	out := s
	if s.Identity != nil {
		id := *s.Identity
		out.Identity = &id
	}
	if s.User != nil {
		u := *s.User
		u.GrantedPermissions = append([]string(nil), s.User.GrantedPermissions...)
		u.RevokedPermissions = append([]string(nil), s.User.RevokedPermissions...)
		out.User = &u
	}
	if s.Role != nil {
		r := *s.Role
		r.Permissions = append([]rbac.PermissionID(nil), s.Role.Permissions...)
		out.Role = &r
	}
	if s.Laboratory != nil {
		l := *s.Laboratory
		if s.Laboratory.ThemeColors != nil {
			tc := *s.Laboratory.ThemeColors
			l.ThemeColors = &tc
		}
		if s.Laboratory.Settings != nil {
			l.Settings = make(map[string]any, len(s.Laboratory.Settings))
			for k, v := range s.Laboratory.Settings {
				l.Settings[k] = v
			}
		}
		out.Laboratory = &l
	}
	out.Permissions = s.Permissions.Clone()
	return out
}

// WithSnapshot stores s on the context
func WithSnapshot(ctx context.Context, s *Snapshot) context.Context {
	return contextkeys.WithSession(ctx, s)
}

// FromContext returns the snapshot stored by WithSnapshot
func FromContext(ctx context.Context) (*Snapshot, bool) {
	s, ok := ctx.Value(contextkeys.SessionKey).(*Snapshot)
	return s, ok && s != nil
}
