package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/internal/services"
	"github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

const (
	CtxMemberKey     = "orgMember"
	CtxMemberRoleKey = "orgMemberRole"
)

// RequireMember checks that the authenticated user belongs to the resolved
// organization with one of the listed roles. An empty role list accepts any
// member. The member row is stored in the context for handlers.
func RequireMember(members *services.MemberService, roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		orgID := c.GetString(CtxOrgIDKey)
		if orgID == "" {
			response.Error(c, errors.ErrTenantNotFound)
			c.Abort()
			return
		}

		member, err := members.Get(c.Request.Context(), orgID, userID)
		if err != nil {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		if len(allowed) > 0 {
			if _, ok := allowed[member.Role]; !ok {
				response.Error(c, errors.ErrForbidden)
				c.Abort()
				return
			}
		}

		c.Set(CtxMemberKey, member)
		c.Set(CtxMemberRoleKey, member.Role)
		c.Next()
	}
}

// AttachMember stores the requester's membership in the context when one
// exists, without rejecting outsiders. Portal routes use it so team members
// see private boards and internal comments while visitors do not.
func AttachMember(members *services.MemberService) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetString(CtxUserIDKey)
		oid := c.GetString(CtxOrgIDKey)
		if uid != "" && oid != "" {
			if member, err := members.Get(c.Request.Context(), oid, uid); err == nil {
				c.Set(CtxMemberKey, member)
				c.Set(CtxMemberRoleKey, member.Role)
			}
		}
		c.Next()
	}
}

// RequireManager is RequireMember restricted to owners and admins.
func RequireManager(members *services.MemberService) gin.HandlerFunc {
	return RequireMember(members, models.RoleOwner, models.RoleAdmin)
}

// MemberFromContext returns the membership row set by RequireMember, or nil.
func MemberFromContext(c *gin.Context) *models.Member {
	value, ok := c.Get(CtxMemberKey)
	if !ok {
		return nil
	}
	member, _ := value.(*models.Member)
	return member
}
