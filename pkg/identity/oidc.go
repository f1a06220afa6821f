package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/platinummonkey/labkit/pkg/auth"
	"golang.org/x/oauth2"
)

// OIDCConfig configures an OpenID Connect relying party
type OIDCConfig struct {
	IssuerURL    string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// OIDCVerifier verifies ID tokens from an OpenID Connect provider and runs
// the authorization code flow for the login endpoints
type OIDCVerifier struct {
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCVerifier discovers the provider configuration from the issuer
func NewOIDCVerifier(ctx context.Context, cfg OIDCConfig) (*OIDCVerifier, error) {
	if cfg.IssuerURL == "" || cfg.ClientID == "" {
		return nil, errors.New("OIDC issuer URL and client ID are required")
	}

	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
	}, nil
}

// Verify implements TokenVerifier for raw ID tokens
func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (*auth.Identity, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims struct {
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return &auth.Identity{
		Subject:     idToken.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		AvatarURL:   claims.Picture,
	}, nil
}

// LoginURL returns the provider authorization URL for state
func (v *OIDCVerifier) LoginURL(state string) string {
	return v.oauth2Config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a verified identity and the
// raw ID token the client presents as its bearer token
func (v *OIDCVerifier) Exchange(ctx context.Context, code string) (*auth.Identity, string, error) {
	if code == "" {
		return nil, "", errors.New("missing authorization code")
	}

	token, err := v.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, "", errors.New("missing id_token in response")
	}

	identity, err := v.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, "", err
	}
	return identity, rawIDToken, nil
}
