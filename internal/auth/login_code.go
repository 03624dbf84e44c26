package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/pkg/crypto"
)

// Defaults for the email login code flow.
const (
	DefaultLoginCodeTTL      = 10 * time.Minute
	DefaultLoginCodeDigits   = 6
	DefaultLoginCodeAttempts = 5
)

var (
	// ErrLoginCodeInvalid is returned when no matching code exists or the digits are wrong.
	ErrLoginCodeInvalid = errors.New("login code: invalid")
	// ErrLoginCodeExpired signals the code has passed its validity window.
	ErrLoginCodeExpired = errors.New("login code: expired")
	// ErrLoginCodeConsumed signals a code that has already been used.
	ErrLoginCodeConsumed = errors.New("login code: consumed")
	// ErrLoginCodeAttempts is returned once the failed verification limit is reached.
	ErrLoginCodeAttempts = errors.New("login code: too many attempts")
)

// LoginCodeConfig describes tunable behaviour for the LoginCodeService.
type LoginCodeConfig struct {
	TTL         time.Duration
	Digits      int
	MaxAttempts int
	Clock       func() time.Time
}

// LoginCodeService issues and verifies the short numeric codes emailed to
// portal users. Only SHA-256 hashes of codes are persisted.
type LoginCodeService struct {
	db          *gorm.DB
	ttl         time.Duration
	digits      int
	maxAttempts int
	now         func() time.Time
}

// NewLoginCodeService constructs a LoginCodeService.
func NewLoginCodeService(db *gorm.DB, cfg LoginCodeConfig) (*LoginCodeService, error) {
	if db == nil {
		return nil, errors.New("login code service: db is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultLoginCodeTTL
	}
	digits := cfg.Digits
	if digits <= 0 {
		digits = DefaultLoginCodeDigits
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultLoginCodeAttempts
	}
	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LoginCodeService{
		db:          db,
		ttl:         ttl,
		digits:      digits,
		maxAttempts: attempts,
		now:         clock,
	}, nil
}

// Issue generates a fresh code for the email address, invalidating any
// outstanding codes first. The plain code is returned once for delivery and
// never stored.
func (s *LoginCodeService) Issue(ctx context.Context, email string) (string, *models.LoginCode, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", nil, errors.New("login code service: email is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	code, err := crypto.GenerateNumericCode(s.digits)
	if err != nil {
		return "", nil, fmt.Errorf("login code service: generate code: %w", err)
	}

	now := s.now()
	record := &models.LoginCode{
		Email:     email,
		CodeHash:  hashLoginCode(code),
		ExpiresAt: now.Add(s.ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("email = ? AND consumed_at IS NULL", email).
			Delete(&models.LoginCode{}).Error; err != nil {
			return fmt.Errorf("invalidate previous codes: %w", err)
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("create code: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("login code service: %w", err)
	}

	return code, record, nil
}

// Verify checks a submitted code, consuming it on success and returning the
// portal user, creating the account on first sign-in.
func (s *LoginCodeService) Verify(ctx context.Context, email, code string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	code = strings.TrimSpace(code)
	if email == "" || code == "" {
		return nil, ErrLoginCodeInvalid
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var record models.LoginCode
	err := s.db.WithContext(ctx).
		Where("email = ? AND consumed_at IS NULL", email).
		Order("created_at DESC").
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrLoginCodeInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("login code service: find code: %w", err)
	}

	now := s.now()
	if record.ExpiresAt.Before(now) {
		return nil, ErrLoginCodeExpired
	}
	if record.Attempts >= s.maxAttempts {
		return nil, ErrLoginCodeAttempts
	}

	expected := []byte(record.CodeHash)
	actual := []byte(hashLoginCode(code))
	if subtle.ConstantTimeCompare(expected, actual) != 1 {
		record.Attempts++
		if err := s.db.WithContext(ctx).Model(&record).
			Update("attempts", record.Attempts).Error; err != nil {
			return nil, fmt.Errorf("login code service: record attempt: %w", err)
		}
		if record.Attempts >= s.maxAttempts {
			return nil, ErrLoginCodeAttempts
		}
		return nil, ErrLoginCodeInvalid
	}

	if err := s.db.WithContext(ctx).Model(&record).
		Update("consumed_at", now).Error; err != nil {
		return nil, fmt.Errorf("login code service: consume code: %w", err)
	}

	user, err := s.findOrCreateUser(ctx, email, now)
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *LoginCodeService) findOrCreateUser(ctx context.Context, email string, now time.Time) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Where("LOWER(email) = ?", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		user = models.User{
			Email:    email,
			IsActive: true,
		}
		if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
			return nil, fmt.Errorf("login code service: create user: %w", err)
		}
		return &user, nil
	}
	if err != nil {
		return nil, fmt.Errorf("login code service: find user: %w", err)
	}

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if err := s.db.WithContext(ctx).Model(&user).
		Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("login code service: update last login: %w", err)
	}
	user.LastLoginAt = &now

	return &user, nil
}

func hashLoginCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
