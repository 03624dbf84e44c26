package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/internal/tenant"
	appErrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

const (
	CtxOrgKey   = "tenantOrg"
	CtxOrgIDKey = "tenantOrgID"

	// TenantSlugHeader carries a path-derived organization slug once the
	// "/org/<slug>" prefix has been stripped by StripTenantPrefix.
	TenantSlugHeader = "X-Tenant-Slug"
)

// StripTenantPrefix moves a leading "/org/<slug>" path segment into the
// tenant slug header before routing, so route patterns stay uniform across
// host-based and path-based tenancy. It must wrap the router, not run inside
// it: gin matches routes before middleware can rewrite the path.
func StripTenantPrefix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Header.Del(TenantSlugHeader)
		if rest, ok := strings.CutPrefix(r.URL.Path, "/org/"); ok {
			slug, remainder, _ := strings.Cut(rest, "/")
			if slug != "" {
				r.Header.Set(TenantSlugHeader, slug)
				r.URL.Path = "/" + remainder
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Tenant resolves the organization for the request host and path and stores
// it in the request context. Unresolvable hosts get a 404.
func Tenant(resolver *tenant.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if slug := strings.TrimSpace(c.GetHeader(TenantSlugHeader)); slug != "" {
			path = "/org/" + slug
		}

		resolution, err := resolver.Resolve(c.Request.Context(), c.Request.Host, path)
		if err != nil {
			if errors.Is(err, tenant.ErrTenantNotFound) {
				response.Error(c, appErrors.ErrTenantNotFound)
			} else {
				response.Error(c, err)
			}
			c.Abort()
			return
		}

		c.Set(CtxOrgKey, resolution.Organization)
		c.Set(CtxOrgIDKey, resolution.Organization.ID)
		c.Next()
	}
}

// OptionalTenant resolves the organization when the host or path names one,
// and lets the request through untouched otherwise. Login endpoints use this
// so instance-level sign-in still works outside any portal.
func OptionalTenant(resolver *tenant.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if slug := strings.TrimSpace(c.GetHeader(TenantSlugHeader)); slug != "" {
			path = "/org/" + slug
		}

		resolution, err := resolver.Resolve(c.Request.Context(), c.Request.Host, path)
		if err == nil {
			c.Set(CtxOrgKey, resolution.Organization)
			c.Set(CtxOrgIDKey, resolution.Organization.ID)
		}
		c.Next()
	}
}

// OrgFromContext returns the resolved organization, or nil outside tenant routes.
func OrgFromContext(c *gin.Context) *models.Organization {
	value, ok := c.Get(CtxOrgKey)
	if !ok {
		return nil
	}
	org, _ := value.(*models.Organization)
	return org
}
