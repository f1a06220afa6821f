package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/labkit/pkg/auth"
	"github.com/platinummonkey/labkit/pkg/rbac"
	"github.com/platinummonkey/labkit/pkg/session"
)

func (s *Shell) signIn(ctx context.Context, args []string) error {
	if s.verifier == nil {
		return errors.New("no token verifier is configured")
	}
	id, err := s.verifier.Verify(ctx, args[0])
	if err != nil {
		return err
	}
	s.hub.SignIn(id)
	return s.printSettled(ctx)
}

func (s *Shell) signInAs(ctx context.Context, args []string) error {
	id := &auth.Identity{Subject: args[0]}
	if len(args) > 1 {
		id.Email = args[1]
	}
	s.hub.SignIn(id)
	return s.printSettled(ctx)
}

func (s *Shell) signOut(ctx context.Context, _ []string) error {
	if err := s.manager.SignOut(ctx); err != nil {
		return err
	}
	return s.print(s.manager.Snapshot())
}

func (s *Shell) refresh(ctx context.Context, _ []string) error {
	if err := s.manager.Refresh(); err != nil {
		return err
	}
	return s.printSettled(ctx)
}

func (s *Shell) state(context.Context, []string) error {
	return s.print(s.manager.Snapshot())
}

func (s *Shell) route(_ context.Context, args []string) error {
	snap := s.manager.Snapshot()
	return s.print(map[string]interface{}{
		"state":    snap.State,
		"path":     args[0],
		"decision": s.routes.Decide(snap.State, args[0]),
	})
}

func (s *Shell) can(_ context.Context, args []string) error {
	id := rbac.PermissionID(args[0])
	if !rbac.IsKnown(id) {
		return fmt.Errorf("%w: %s", rbac.ErrUnknownPermission, id)
	}
	fmt.Fprintln(s.out, s.manager.Snapshot().Can(id))
	return nil
}

// printSettled waits for the latest generation to leave the loading state
// and prints it
func (s *Shell) printSettled(ctx context.Context) error {
	snap, err := s.awaitSettled(ctx)
	if err != nil {
		return err
	}
	return s.print(snap)
}

func (s *Shell) awaitSettled(ctx context.Context) (session.Snapshot, error) {
	updates, cancel := s.manager.Watch()
	defer cancel()

	timer := time.NewTimer(s.settleTimeout)
	defer timer.Stop()

	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				return session.Snapshot{}, session.ErrClosed
			}
			if snap.State != session.StateLoading {
				return snap, nil
			}
		case <-timer.C:
			return session.Snapshot{}, errors.New("timed out waiting for the session to resolve")
		case <-ctx.Done():
			return session.Snapshot{}, ctx.Err()
		}
	}
}
