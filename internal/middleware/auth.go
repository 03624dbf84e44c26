package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/auditctx"
	iauth "github.com/quackback/quackback/internal/auth"
	"github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSessionIDKey = "sessionID"
)

// Auth enforces JWT authentication using the supplied JWT service.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		claims, err := jwt.ValidateAccessToken(token)
		if err != nil {
			// Normalise all validation failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		// Propagate identity into request context
		c.Set(CtxClaimsKey, claims)
		c.Set(CtxUserIDKey, claims.UserID)
		if claims.SessionID != "" {
			c.Set(CtxSessionIDKey, claims.SessionID)
		}
		attachActor(c, claims.UserID)

		c.Next()
	}
}

// OptionalAuth populates the identity context when a valid token is present
// but lets anonymous requests through. Portal routes use it so signed-in
// visitors get attributed votes while guests can still browse.
func OptionalAuth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token != "" {
			if claims, err := jwt.ValidateAccessToken(token); err == nil {
				c.Set(CtxClaimsKey, claims)
				c.Set(CtxUserIDKey, claims.UserID)
				if claims.SessionID != "" {
					c.Set(CtxSessionIDKey, claims.SessionID)
				}
				attachActor(c, claims.UserID)
			}
		}
		c.Next()
	}
}

// attachActor derives a request context carrying the actor so service-layer
// audit records can attribute the write.
func attachActor(c *gin.Context, userID string) {
	ctx := auditctx.WithActor(c.Request.Context(), auditctx.Actor{
		UserID:    userID,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	c.Request = c.Request.WithContext(ctx)
}

func bearerToken(c *gin.Context) string {
	authz := c.GetHeader("Authorization")
	if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(authz[7:])
}
