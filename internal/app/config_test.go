package app

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quackback/quackback/internal/auth"
)

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join("testdata")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "https://feedback.example.com", cfg.Server.PublicURL)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.True(t, cfg.Database.Postgres.Enabled)
	require.Equal(t, "db.example.com", cfg.Database.Postgres.Host)

	require.True(t, cfg.Cache.Redis.Enabled)
	require.Equal(t, "redis.example.com:6380", cfg.Cache.Redis.Address)
	require.Equal(t, 2, cfg.Cache.Redis.DB)
	require.Equal(t, 3*time.Second, cfg.Cache.Redis.Timeout)

	require.Equal(t, "quackback.app", cfg.Tenant.BaseDomain)
	require.Equal(t, "/portal", cfg.Tenant.PathPrefix)
	require.False(t, cfg.Tenant.SingleTenant)
	require.Equal(t, 10*time.Minute, cfg.Tenant.CacheTTL)

	require.False(t, cfg.Features.ActivityFeed.Enabled)
	require.True(t, cfg.Features.Import.Enabled)
	require.Equal(t, 1000, cfg.Features.Import.MaxRows)

	require.Equal(t, "jwt-secret", cfg.Auth.JWT.Secret)
	require.Equal(t, 30*time.Minute, cfg.Auth.JWT.TTL)
	require.Equal(t, 1440*time.Hour, cfg.Auth.Session.RefreshTTL)
	require.Equal(t, 64, cfg.Auth.Session.RefreshLength)
	require.Equal(t, 7, cfg.Auth.Password.LockoutThreshold)
	require.Equal(t, 20*time.Minute, cfg.Auth.Password.LockoutDuration)
	require.Equal(t, 5*time.Minute, cfg.Auth.LoginCodes.TTL)
	require.Equal(t, 8, cfg.Auth.LoginCodes.Digits)
	require.Equal(t, 3, cfg.Auth.LoginCodes.MaxAttempts)

	require.True(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, "smtp.example.com", cfg.Email.SMTP.Host)
	require.Equal(t, 2525, cfg.Email.SMTP.Port)
	require.Equal(t, "smtp-user", cfg.Email.SMTP.Username)
	require.Equal(t, "smtp-pass", cfg.Email.SMTP.Password)
	require.Equal(t, "no-reply@example.com", cfg.Email.SMTP.From)
	require.True(t, cfg.Email.SMTP.UseTLS)
	require.Equal(t, 15*time.Second, cfg.Email.SMTP.Timeout)

	require.Len(t, cfg.Integrations.Providers, 2)
	require.Equal(t, "slack-id", cfg.Integrations.Providers["slack"].ClientID)
	require.Equal(t, "linear-secret", cfg.Integrations.Providers["linear"].ClientSecret)
}

func TestAuthConfigAdapters(t *testing.T) {
	cfg := Config{
		Auth: AuthConfig{
			JWT: JWTSettings{
				Secret: "secret",
				Issuer: "issuer",
				TTL:    30 * time.Minute,
			},
			Session: SessionSettings{
				RefreshTTL:    10 * time.Hour,
				RefreshLength: 32,
			},
			Password: PasswordSettings{
				LockoutThreshold: 4,
				LockoutDuration:  10 * time.Minute,
			},
			LoginCodes: LoginCodeSettings{
				TTL:         5 * time.Minute,
				Digits:      8,
				MaxAttempts: 3,
			},
		},
	}

	jwtCfg := cfg.Auth.JWTServiceConfig()
	require.Equal(t, auth.JWTConfig{
		Secret:         "secret",
		Issuer:         "issuer",
		AccessTokenTTL: 30 * time.Minute,
	}, jwtCfg)

	sessionCfg := cfg.Auth.SessionServiceConfig()
	require.Equal(t, auth.SessionConfig{
		RefreshTokenTTL: 10 * time.Hour,
		RefreshLength:   32,
	}, sessionCfg)

	passwordCfg := cfg.Auth.PasswordPolicy()
	require.Equal(t, auth.PasswordConfig{
		LockoutThreshold: 4,
		LockoutDuration:  10 * time.Minute,
	}, passwordCfg)

	codeCfg := cfg.Auth.LoginCodeServiceConfig()
	require.Equal(t, auth.LoginCodeConfig{
		TTL:         5 * time.Minute,
		Digits:      8,
		MaxAttempts: 3,
	}, codeCfg)
}

func TestAuthConfigAdaptersFallback(t *testing.T) {
	var cfg AuthConfig

	jwtCfg := cfg.JWTServiceConfig()
	require.Equal(t, auth.DefaultAccessTokenTTL, jwtCfg.AccessTokenTTL)

	sessionCfg := cfg.SessionServiceConfig()
	require.Equal(t, auth.DefaultRefreshTokenTTL, sessionCfg.RefreshTokenTTL)
	require.Equal(t, 48, sessionCfg.RefreshLength)

	passwordCfg := cfg.PasswordPolicy()
	require.Equal(t, defaultLockoutThreshold, passwordCfg.LockoutThreshold)
	require.Equal(t, defaultLockoutDuration, passwordCfg.LockoutDuration)

	codeCfg := cfg.LoginCodeServiceConfig()
	require.Equal(t, auth.DefaultLoginCodeTTL, codeCfg.TTL)
	require.Equal(t, auth.DefaultLoginCodeDigits, codeCfg.Digits)
	require.Equal(t, auth.DefaultLoginCodeAttempts, codeCfg.MaxAttempts)
}

func TestEmailConfigAdapter(t *testing.T) {
	cfg := EmailConfig{
		SMTP: SMTPConfig{
			Enabled:  true,
			Host:     "smtp.example.com",
			Port:     2525,
			Username: "user",
			Password: "pass",
			From:     "no-reply@example.com",
			UseTLS:   true,
			Timeout:  10 * time.Second,
		},
	}

	settings := cfg.SMTPSettings()
	require.True(t, settings.Enabled)
	require.Equal(t, "smtp.example.com", settings.Host)
	require.Equal(t, 2525, settings.Port)
	require.Equal(t, "user", settings.Username)
	require.Equal(t, "pass", settings.Password)
	require.Equal(t, "no-reply@example.com", settings.From)
	require.True(t, settings.UseTLS)
	require.Equal(t, 10*time.Second, settings.Timeout)
}
