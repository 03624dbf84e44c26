package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/quackback/quackback/internal/models"
)

// OIDCOptions configures the behaviour of OIDC clients.
type OIDCOptions struct {
	HTTPClient *http.Client
	Now        func() time.Time
	Timeout    time.Duration
}

// Identity describes the person asserted by an upstream identity provider.
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	AvatarURL     string
	RawClaims     map[string]any
}

// OIDCClient wraps the OAuth2 and token verification plumbing for a single
// organization's configured identity provider.
type OIDCClient struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	timeout     time.Duration
}

// NewOIDCClient performs issuer discovery and prepares an OIDC client.
func NewOIDCClient(ctx context.Context, cfg models.OIDCConfig, opts OIDCOptions) (*OIDCClient, error) {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, errors.New("oidc: issuer is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, errors.New("oidc: client id is required")
	}
	if strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, errors.New("oidc: client secret is required")
	}
	if strings.TrimSpace(cfg.RedirectURL) == "" {
		return nil, errors.New("oidc: redirect url is required")
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "profile", "email"}
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if opts.HTTPClient != nil {
		ctx = oidc.ClientContext(ctx, opts.HTTPClient)
	}

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	issuer, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc: discovery failed: %w", err)
	}

	oauthConfig := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint:     issuer.Endpoint(),
		RedirectURL:  cfg.RedirectURL,
		Scopes:       scopes,
	}

	verifier := issuer.Verifier(&oidc.Config{ClientID: cfg.ClientID})

	return &OIDCClient{
		oauthConfig: oauthConfig,
		verifier:    verifier,
		timeout:     opts.Timeout,
	}, nil
}

// AuthCodeURL builds the provider authorization URL for the supplied state material.
func (c *OIDCClient) AuthCodeURL(state, nonce, pkceChallenge string) (string, error) {
	if strings.TrimSpace(state) == "" {
		return "", errors.New("oidc: state is required")
	}
	if strings.TrimSpace(nonce) == "" {
		return "", errors.New("oidc: nonce is required")
	}
	if strings.TrimSpace(pkceChallenge) == "" {
		return "", errors.New("oidc: pkce challenge is required")
	}

	authOpts := []oauth2.AuthCodeOption{
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("code_challenge", pkceChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	}

	return c.oauthConfig.AuthCodeURL(state, authOpts...), nil
}

// Exchange redeems the authorization code, verifies the ID token, and returns
// the asserted identity.
func (c *OIDCClient) Exchange(ctx context.Context, code, pkceVerifier, expectedNonce string) (*Identity, error) {
	if strings.TrimSpace(code) == "" {
		return nil, errors.New("oidc: authorization code missing")
	}
	if strings.TrimSpace(pkceVerifier) == "" {
		return nil, errors.New("oidc: pkce verifier is required")
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	token, err := c.oauthConfig.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", pkceVerifier))
	if err != nil {
		return nil, fmt.Errorf("oidc: exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("oidc: id token missing")
	}

	idToken, err := c.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("oidc: verify id token: %w", err)
	}
	if expectedNonce != "" && idToken.Nonce != expectedNonce {
		return nil, errors.New("oidc: nonce mismatch")
	}

	var claims map[string]any
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("oidc: decode claims: %w", err)
	}

	return &Identity{
		Subject:       idToken.Subject,
		Email:         stringClaim(claims, "email"),
		EmailVerified: boolClaim(claims, "email_verified"),
		Name:          stringClaim(claims, "name"),
		AvatarURL:     stringClaim(claims, "picture"),
		RawClaims:     claims,
	}, nil
}

func stringClaim(claims map[string]any, key string) string {
	if v, ok := claims[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func boolClaim(claims map[string]any, key string) bool {
	if v, ok := claims[key]; ok {
		switch val := v.(type) {
		case bool:
			return val
		case string:
			return strings.EqualFold(val, "true")
		}
	}
	return false
}
