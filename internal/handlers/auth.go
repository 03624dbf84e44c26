package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/quackback/quackback/internal/auth"
	"github.com/quackback/quackback/internal/auth/mfa"
	"github.com/quackback/quackback/internal/middleware"
	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/mail"
	"github.com/quackback/quackback/pkg/metrics"
	"github.com/quackback/quackback/pkg/response"
)

// AuthHandler manages authentication flows: password login for team members,
// email login codes for portal users, refresh, and logout.
type AuthHandler struct {
	db       *gorm.DB
	sessions *iauth.SessionService
	password *iauth.PasswordAuthenticator
	codes    *iauth.LoginCodeService
	mfa      *mfa.TOTPService
	mailer   mail.Mailer
	from     string
}

func NewAuthHandler(
	db *gorm.DB,
	sessions *iauth.SessionService,
	password *iauth.PasswordAuthenticator,
	codes *iauth.LoginCodeService,
	totp *mfa.TOTPService,
	mailer mail.Mailer,
	from string,
) *AuthHandler {
	return &AuthHandler{
		db:       db,
		sessions: sessions,
		password: password,
		codes:    codes,
		mfa:      totp,
		mailer:   mailer,
		from:     from,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfa_code"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.password.Authenticate(iauth.AuthenticateInput{
		Email:     strings.ToLower(strings.TrimSpace(req.Email)),
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		// Normalise auth errors to 401
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		response.Error(c, errors.ErrInvalidCredentials)
		return
	}

	if h.mfa != nil {
		enabled, err := h.mfa.Enabled(user.ID)
		if err != nil {
			response.Error(c, errors.ErrInternalServer)
			return
		}
		if enabled {
			code := strings.TrimSpace(req.MFACode)
			if code == "" {
				response.Error(c, errors.ErrMFARequired)
				return
			}
			ok, err := h.mfa.VerifyCode(user.ID, code)
			if err == nil && !ok {
				// Fall back to a single-use backup code.
				ok, err = h.mfa.UseBackupCode(user.ID, code)
			}
			if err != nil || !ok {
				metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
				response.Error(c, errors.ErrMFAInvalid)
				return
			}
		}
	}

	pair, _, err := h.createSession(c, user)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("password", "failure").Inc()
		response.Error(c, errors.ErrInternalServer)
		return
	}

	metrics.AuthAttempts.WithLabelValues("password", "success").Inc()
	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		"user":   userPayload(user),
	})
}

type requestCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// POST /api/auth/code/request
func (h *AuthHandler) RequestLoginCode(c *gin.Context) {
	var req requestCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	code, _, err := h.codes.Issue(requestContext(c), req.Email)
	if err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	if h.mailer != nil {
		err := h.mailer.Send(requestContext(c), mail.Message{
			From:    h.from,
			To:      []string{strings.ToLower(strings.TrimSpace(req.Email))},
			Subject: "Your sign-in code",
			Body:    fmt.Sprintf("Your sign-in code is %s. It expires in 10 minutes.", code),
		})
		if err != nil && err != mail.ErrSMTPDisabled {
			response.Error(c, errors.ErrInternalServer)
			return
		}
	}

	// The response never reveals whether the address is known.
	response.Success(c, http.StatusOK, gin.H{"sent": true})
}

type verifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6"`
}

// POST /api/auth/code/verify
func (h *AuthHandler) VerifyLoginCode(c *gin.Context) {
	var req verifyCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.codes.Verify(requestContext(c), req.Email, req.Code)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login_code", "failure").Inc()
		response.Error(c, errors.ErrInvalidCredentials)
		return
	}

	pair, _, err := h.createSession(c, user)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("login_code", "failure").Inc()
		response.Error(c, errors.ErrInternalServer)
		return
	}

	metrics.AuthAttempts.WithLabelValues("login_code", "success").Inc()
	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken},
		"user":   userPayload(user),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, _, err := h.sessions.RefreshSession(strings.TrimSpace(req.RefreshToken), h.sessionMetadata(c))
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, tokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sid := c.GetString(middleware.CtxSessionIDKey)
	if sid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(sid); err != nil {
		response.Error(c, errors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	uid := userID(c)
	if uid == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var user models.User
	if err := h.db.WithContext(requestContext(c)).First(&user, "id = ?", uid).Error; err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	payload := gin.H{"user": userPayload(&user)}
	if member := middleware.MemberFromContext(c); member != nil {
		payload["role"] = member.Role
	}
	response.Success(c, http.StatusOK, payload)
}

func (h *AuthHandler) createSession(c *gin.Context, user *models.User) (iauth.TokenPair, *models.Session, error) {
	return h.sessions.CreateSession(user.ID, h.sessionMetadata(c))
}

func (h *AuthHandler) sessionMetadata(c *gin.Context) iauth.SessionMetadata {
	meta := iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if oid := orgID(c); oid != "" {
		meta.OrgID = oid
	}
	return meta
}

func userPayload(user *models.User) gin.H {
	return gin.H{
		"id":        user.ID,
		"email":     user.Email,
		"name":      user.Name,
		"is_active": user.IsActive,
	}
}
