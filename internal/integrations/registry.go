// Package integrations holds the OAuth provider catalog used to connect
// organizations to third-party trackers and messengers.
package integrations

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/oauth2"

	"github.com/quackback/quackback/internal/models"
)

// ErrProviderUnknown indicates the provider name is not in the catalog or has
// no OAuth client configured.
var ErrProviderUnknown = errors.New("integrations: unknown provider")

// ClientCredentials identifies the OAuth application registered with a
// provider.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}

// endpointCatalog maps provider names to their OAuth2 endpoints and the scopes
// the connection needs.
var endpointCatalog = map[string]struct {
	endpoint oauth2.Endpoint
	scopes   []string
}{
	models.IntegrationSlack: {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://slack.com/oauth/v2/authorize",
			TokenURL: "https://slack.com/api/oauth.v2.access",
		},
		scopes: []string{"chat:write", "channels:read"},
	},
	models.IntegrationNotion: {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://api.notion.com/v1/oauth/authorize",
			TokenURL: "https://api.notion.com/v1/oauth/token",
		},
	},
	models.IntegrationLinear: {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://linear.app/oauth/authorize",
			TokenURL: "https://api.linear.app/oauth/token",
		},
		scopes: []string{"read", "write"},
	},
	models.IntegrationClickUp: {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://app.clickup.com/api",
			TokenURL: "https://api.clickup.com/api/v2/oauth/token",
		},
	},
	models.IntegrationTrello: {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://trello.com/1/authorize",
			TokenURL: "https://trello.com/1/OAuthGetAccessToken",
		},
		scopes: []string{"read", "write"},
	},
	models.IntegrationAsana: {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://app.asana.com/-/oauth_authorize",
			TokenURL: "https://app.asana.com/-/oauth_token",
		},
		scopes: []string{"default"},
	},
	models.IntegrationDiscord: {
		endpoint: oauth2.Endpoint{
			AuthURL:  "https://discord.com/oauth2/authorize",
			TokenURL: "https://discord.com/api/oauth2/token",
		},
		scopes: []string{"webhook.incoming"},
	},
}

// Registry resolves provider names to ready oauth2 configurations.
type Registry struct {
	configs map[string]*oauth2.Config
}

// NewRegistry builds the catalog from configured client credentials. Providers
// without credentials are left out and reported as unknown.
func NewRegistry(credentials map[string]ClientCredentials, redirectBase string) *Registry {
	redirectBase = strings.TrimRight(redirectBase, "/")
	configs := make(map[string]*oauth2.Config, len(credentials))

	for name, creds := range credentials {
		name = strings.ToLower(strings.TrimSpace(name))
		entry, ok := endpointCatalog[name]
		if !ok || creds.ClientID == "" {
			continue
		}
		configs[name] = &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     entry.endpoint,
			Scopes:       entry.scopes,
			RedirectURL:  fmt.Sprintf("%s/api/integrations/%s/callback", redirectBase, name),
		}
	}
	return &Registry{configs: configs}
}

// Names returns the configured provider names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.configs))
	for name := range r.configs {
		names = append(names, name)
	}
	return names
}

// Has reports whether the provider is configured.
func (r *Registry) Has(name string) bool {
	_, ok := r.configs[strings.ToLower(name)]
	return ok
}

// AuthCodeURL builds the provider's consent redirect carrying the state value.
func (r *Registry) AuthCodeURL(name, state string) (string, error) {
	cfg, ok := r.configs[strings.ToLower(name)]
	if !ok {
		return "", ErrProviderUnknown
	}
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Exchange swaps the authorization code for a token set.
func (r *Registry) Exchange(ctx context.Context, name, code string) (*oauth2.Token, error) {
	cfg, ok := r.configs[strings.ToLower(name)]
	if !ok {
		return nil, ErrProviderUnknown
	}
	token, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("integrations: exchange code with %s: %w", name, err)
	}
	return token, nil
}
