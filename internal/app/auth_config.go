package app

import (
	"time"

	"github.com/quackback/quackback/internal/auth"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
)

// JWTServiceConfig converts AuthConfig into the parameters expected by the JWT service.
func (c AuthConfig) JWTServiceConfig() auth.JWTConfig {
	ttl := c.JWT.TTL
	if ttl <= 0 {
		ttl = auth.DefaultAccessTokenTTL
	}

	return auth.JWTConfig{
		Secret:         c.JWT.Secret,
		Issuer:         c.JWT.Issuer,
		AccessTokenTTL: ttl,
	}
}

// SessionServiceConfig converts AuthConfig into SessionService parameters.
func (c AuthConfig) SessionServiceConfig() auth.SessionConfig {
	ttl := c.Session.RefreshTTL
	if ttl <= 0 {
		ttl = auth.DefaultRefreshTokenTTL
	}

	length := c.Session.RefreshLength
	if length <= 0 {
		length = 48
	}

	return auth.SessionConfig{
		RefreshTokenTTL: ttl,
		RefreshLength:   length,
	}
}

// PasswordPolicy converts AuthConfig into member password login parameters.
func (c AuthConfig) PasswordPolicy() auth.PasswordConfig {
	duration := c.Password.LockoutDuration
	if duration <= 0 {
		duration = defaultLockoutDuration
	}

	threshold := c.Password.LockoutThreshold
	if threshold <= 0 {
		threshold = defaultLockoutThreshold
	}

	return auth.PasswordConfig{
		LockoutThreshold: threshold,
		LockoutDuration:  duration,
	}
}

// LoginCodeServiceConfig converts AuthConfig into LoginCodeService parameters.
func (c AuthConfig) LoginCodeServiceConfig() auth.LoginCodeConfig {
	cfg := auth.LoginCodeConfig{
		TTL:         c.LoginCodes.TTL,
		Digits:      c.LoginCodes.Digits,
		MaxAttempts: c.LoginCodes.MaxAttempts,
	}
	if cfg.TTL <= 0 {
		cfg.TTL = auth.DefaultLoginCodeTTL
	}
	if cfg.Digits <= 0 {
		cfg.Digits = auth.DefaultLoginCodeDigits
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = auth.DefaultLoginCodeAttempts
	}
	return cfg
}
