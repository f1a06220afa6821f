package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/platinummonkey/labkit/pkg/cli"
	"github.com/platinummonkey/labkit/pkg/config"
	"github.com/platinummonkey/labkit/pkg/directory"
	"github.com/platinummonkey/labkit/pkg/identity"
	"github.com/platinummonkey/labkit/pkg/observability"
	"github.com/platinummonkey/labkit/pkg/session"
)

func main() {
	script := flag.String("script", "", "Read commands from a file instead of stdin")
	flag.Parse()

	if err := run(*script); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(script string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Logs go to stderr so stdout carries only snapshots
	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stderr).WithField("service", "labkit-session")

	store, err := cfg.Store.Open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	defer store.Close()

	var verifier identity.TokenVerifier
	if cfg.Identity.UsesOIDC() {
		verifier, err = identity.NewOIDCVerifier(ctx, identity.OIDCConfig{
			IssuerURL: cfg.Identity.OIDCIssuer,
			ClientID:  cfg.Identity.OIDCClientID,
		})
	} else {
		verifier, err = identity.NewJWTVerifier(cfg.Identity.JWTSecret, cfg.Identity.JWTIssuer, cfg.Identity.JWTAudience)
	}
	if err != nil {
		return err
	}

	routes, err := session.NewRoutes(session.DefaultRouteTable())
	if cfg.Session.RouteFile != "" {
		routes, err = session.WatchRoutes(ctx, cfg.Session.RouteFile, logger)
	}
	if err != nil {
		return err
	}
	defer routes.Close()

	resolver := session.NewResolver(directory.New(store, logger),
		session.WithRetrySchedule(cfg.Session.RetrySchedule),
		session.WithResolverLogger(logger),
	)

	hub := identity.NewHub()
	manager, err := session.NewManager(ctx, hub, resolver,
		session.WithManagerLogger(logger),
		session.WithResolveTimeout(cfg.Session.ResolveTimeout),
		session.WithRefreshSchedule(cfg.Session.RefreshSchedule),
	)
	if err != nil {
		return err
	}
	defer manager.Close()

	in := os.Stdin
	if script != "" {
		f, err := os.Open(script)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	return cli.NewShell(hub, manager, verifier, routes, os.Stdout).Run(ctx, in)
}
