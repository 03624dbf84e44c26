package services

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/internal/secrets"
	"github.com/quackback/quackback/pkg/crypto"
)

type stubCatalog struct {
	exchanged []string
}

func (c *stubCatalog) Has(name string) bool {
	return name == models.IntegrationSlack || name == models.IntegrationLinear
}

func (c *stubCatalog) AuthCodeURL(name, state string) (string, error) {
	if !c.Has(name) {
		return "", ErrIntegrationState
	}
	return "https://provider.example.com/authorize?state=" + url.QueryEscape(state), nil
}

func (c *stubCatalog) Exchange(_ context.Context, name, code string) (*oauth2.Token, error) {
	c.exchanged = append(c.exchanged, name+":"+code)
	return &oauth2.Token{
		AccessToken:  "access-" + code,
		RefreshToken: "refresh-" + code,
		Expiry:       time.Now().Add(time.Hour),
	}, nil
}

var testStateKey = []byte("integration-state-signing-key")

func newIntegrationService(t *testing.T, db *gorm.DB, catalog OAuthCatalog) *IntegrationService {
	t.Helper()

	engine, err := secrets.NewCrypto([]byte("0123456789abcdef0123456789abcdef"),
		secrets.WithArgon2Parameters(crypto.Argon2Parameters{
			Memory:    8 * 1024,
			Time:      1,
			Threads:   1,
			KeyLength: 32,
		}))
	require.NoError(t, err)

	svc, err := NewIntegrationService(db, mustAudit(t, db), catalog, engine, testStateKey)
	require.NoError(t, err)
	return svc
}

func TestIntegrationConnectAndCallback(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	user := seedUser(t, db, "admin@example.com")
	catalog := &stubCatalog{}
	svc := newIntegrationService(t, db, catalog)

	redirect, err := svc.Connect(context.Background(), org.ID, "Slack", user.ID)
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	require.NotEmpty(t, state)

	integration, err := svc.Callback(context.Background(), state, "auth-code-1")
	require.NoError(t, err)
	require.Equal(t, models.IntegrationSlack, integration.Provider)
	require.True(t, integration.Enabled)
	require.NotEmpty(t, integration.WebhookSecret)
	require.NotContains(t, integration.Credentials, "access-auth-code-1")

	token, err := svc.Token(context.Background(), org.ID, models.IntegrationSlack)
	require.NoError(t, err)
	require.Equal(t, "access-auth-code-1", token.AccessToken)
}

func TestIntegrationCallbackRejectsTamperedState(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	user := seedUser(t, db, "admin@example.com")
	svc := newIntegrationService(t, db, &stubCatalog{})

	redirect, err := svc.Connect(context.Background(), org.ID, models.IntegrationSlack, user.ID)
	require.NoError(t, err)

	parsed, err := url.Parse(redirect)
	require.NoError(t, err)
	state := parsed.Query().Get("state")

	_, err = svc.Callback(context.Background(), state+"x", "auth-code")
	require.ErrorIs(t, err, ErrIntegrationState)

	_, err = svc.Callback(context.Background(), "garbage", "auth-code")
	require.ErrorIs(t, err, ErrIntegrationState)
}

func TestIntegrationStateExpires(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	user := seedUser(t, db, "admin@example.com")

	now := time.Now().UTC()
	clock := now
	svc := newIntegrationService(t, db, &stubCatalog{})
	svc.now = func() time.Time { return clock }

	redirect, err := svc.Connect(context.Background(), org.ID, models.IntegrationSlack, user.ID)
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)
	state := parsed.Query().Get("state")

	clock = now.Add(integrationStateTTL + time.Minute)
	_, err = svc.Callback(context.Background(), state, "auth-code")
	require.ErrorIs(t, err, ErrIntegrationState)
}

func TestIntegrationConnectUnknownProvider(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	user := seedUser(t, db, "admin@example.com")
	svc := newIntegrationService(t, db, &stubCatalog{})

	_, err := svc.Connect(context.Background(), org.ID, "github", user.ID)
	require.Error(t, err)
}

func TestIntegrationReconnectReplacesCredentials(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	user := seedUser(t, db, "admin@example.com")
	svc := newIntegrationService(t, db, &stubCatalog{})

	connect := func(code string) *models.Integration {
		redirect, err := svc.Connect(context.Background(), org.ID, models.IntegrationLinear, user.ID)
		require.NoError(t, err)
		parsed, _ := url.Parse(redirect)
		integration, err := svc.Callback(context.Background(), parsed.Query().Get("state"), code)
		require.NoError(t, err)
		return integration
	}

	first := connect("code-1")
	second := connect("code-2")
	require.Equal(t, first.ID, second.ID)

	token, err := svc.Token(context.Background(), org.ID, models.IntegrationLinear)
	require.NoError(t, err)
	require.Equal(t, "access-code-2", token.AccessToken)

	list, err := svc.List(context.Background(), org.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestIntegrationDisconnectWipesCredentials(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	user := seedUser(t, db, "admin@example.com")
	svc := newIntegrationService(t, db, &stubCatalog{})

	redirect, err := svc.Connect(context.Background(), org.ID, models.IntegrationSlack, user.ID)
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)
	_, err = svc.Callback(context.Background(), parsed.Query().Get("state"), "auth-code")
	require.NoError(t, err)

	require.NoError(t, svc.Disconnect(context.Background(), org.ID, models.IntegrationSlack))

	integration, err := svc.Get(context.Background(), org.ID, models.IntegrationSlack)
	require.NoError(t, err)
	require.False(t, integration.Enabled)
	require.Empty(t, integration.Credentials)

	_, err = svc.Token(context.Background(), org.ID, models.IntegrationSlack)
	require.ErrorIs(t, err, ErrIntegrationNotFound)
}

func TestIntegrationInboundSignature(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	user := seedUser(t, db, "admin@example.com")
	svc := newIntegrationService(t, db, &stubCatalog{})

	redirect, err := svc.Connect(context.Background(), org.ID, models.IntegrationSlack, user.ID)
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)
	integration, err := svc.Callback(context.Background(), parsed.Query().Get("state"), "auth-code")
	require.NoError(t, err)

	body := []byte(`{"event":"issue.created"}`)
	signature := crypto.SignHMAC(body, []byte(integration.WebhookSecret))

	ok, err := svc.VerifyInboundSignature(context.Background(), org.ID, models.IntegrationSlack, body, signature)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.VerifyInboundSignature(context.Background(), org.ID, models.IntegrationSlack, body, "deadbeef")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIntegrationUpdateSettings(t *testing.T) {
	db := newTestDB(t)
	org := seedOrg(t, db, "Acme")
	user := seedUser(t, db, "admin@example.com")
	svc := newIntegrationService(t, db, &stubCatalog{})

	redirect, err := svc.Connect(context.Background(), org.ID, models.IntegrationSlack, user.ID)
	require.NoError(t, err)
	parsed, _ := url.Parse(redirect)
	_, err = svc.Callback(context.Background(), parsed.Query().Get("state"), "auth-code")
	require.NoError(t, err)

	updated, err := svc.UpdateSettings(context.Background(), org.ID, models.IntegrationSlack, map[string]any{
		"channel": "#feedback",
	})
	require.NoError(t, err)
	require.Contains(t, string(updated.Settings), "#feedback")
}
