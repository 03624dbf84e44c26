package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/quackback/quackback/internal/auth"
	"github.com/quackback/quackback/internal/middleware"
	appErrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/metrics"
	"github.com/quackback/quackback/pkg/response"
)

const (
	ssoVerifierCookie = "quackback_sso_verifier"
	ssoCookieMaxAge   = 600
)

// SSOHandler runs the browser half of the OIDC login flow. The state travels
// through the provider round-trip; the PKCE verifier stays in a short-lived
// cookie.
type SSOHandler struct {
	sso *iauth.SSOService
}

func NewSSOHandler(sso *iauth.SSOService) *SSOHandler {
	return &SSOHandler{sso: sso}
}

// GET /api/auth/sso/begin
func (h *SSOHandler) Begin(c *gin.Context) {
	result, err := h.sso.Begin(requestContext(c), orgID(c), c.Query("return_url"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.SetCookie(ssoVerifierCookie, result.PKCEVerifier, ssoCookieMaxAge, "/", "", c.Request.TLS != nil, true)
	c.Redirect(http.StatusFound, result.RedirectURL)
}

// GET /api/auth/sso/callback
func (h *SSOHandler) Callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		response.Error(c, appErrors.NewBadRequest("missing state or code"))
		return
	}

	verifier, err := c.Cookie(ssoVerifierCookie)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	c.SetCookie(ssoVerifierCookie, "", -1, "/", "", c.Request.TLS != nil, true)

	org := middleware.OrgFromContext(c)
	meta := iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
	if org != nil {
		meta.OrgID = org.ID
	}

	result, err := h.sso.Callback(requestContext(c), state, code, verifier, meta)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("sso", "failure").Inc()
		respondError(c, err)
		return
	}
	metrics.AuthAttempts.WithLabelValues("sso", "success").Inc()

	if result.ReturnURL != "" {
		c.Redirect(http.StatusFound, result.ReturnURL)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokenResponse{
			AccessToken:  result.Tokens.AccessToken,
			RefreshToken: result.Tokens.RefreshToken,
		},
		"user":   userPayload(result.User),
		"member": result.Member,
	})
}
