package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/middleware"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// orgID returns the tenant organization ID resolved for the request.
func orgID(c *gin.Context) string {
	return c.GetString(middleware.CtxOrgIDKey)
}

// userID returns the authenticated user's ID, or "" for anonymous requests.
func userID(c *gin.Context) string {
	return c.GetString(middleware.CtxUserIDKey)
}

// isManager reports whether the request carries a membership allowed to
// administer the organization.
func isManager(c *gin.Context) bool {
	member := middleware.MemberFromContext(c)
	return member != nil && member.CanManage()
}

// isMember reports whether the request carries any membership in the
// resolved organization.
func isMember(c *gin.Context) bool {
	return middleware.MemberFromContext(c) != nil
}
