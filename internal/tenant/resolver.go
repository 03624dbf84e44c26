package tenant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/cache"
	"github.com/quackback/quackback/internal/database"
	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/pkg/metrics"
)

// ErrTenantNotFound indicates no organization matches the request host or path.
var ErrTenantNotFound = errors.New("tenant: not found")

const (
	defaultCacheTTL = 5 * time.Minute
	cacheKeyPrefix  = "tenant:host:"
)

// Config controls how hosts and paths are mapped to organizations.
type Config struct {
	// BaseDomain is the shared portal domain; "acme.feedback.example" resolves
	// the organization with slug "acme" when BaseDomain is "feedback.example".
	BaseDomain string
	// PathPrefix is the prefix for slug-based resolution, e.g. "/org".
	PathPrefix string
	// SingleTenant maps every request to the sole configured organization.
	SingleTenant bool
	CacheTTL     time.Duration
}

// Resolver maps incoming request hosts and paths to organizations.
// Resolution order: verified custom domain, subdomain of the base domain,
// path slug, then the single-tenant fallback.
type Resolver struct {
	db           *gorm.DB
	store        cache.Store
	baseDomain   string
	pathPrefix   string
	singleTenant bool
	cacheTTL     time.Duration
}

// NewResolver constructs a tenant resolver. The cache store is optional.
func NewResolver(db *gorm.DB, store cache.Store, cfg Config) (*Resolver, error) {
	if db == nil {
		return nil, errors.New("tenant resolver: db is required")
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	prefix := strings.TrimSpace(cfg.PathPrefix)
	if prefix == "" {
		prefix = "/org"
	}
	prefix = "/" + strings.Trim(prefix, "/")

	return &Resolver{
		db:           db,
		store:        store,
		baseDomain:   strings.ToLower(strings.TrimSpace(cfg.BaseDomain)),
		pathPrefix:   prefix,
		singleTenant: cfg.SingleTenant,
		cacheTTL:     ttl,
	}, nil
}

// Resolution describes a successful tenant lookup.
type Resolution struct {
	Organization *models.Organization
	// Mode records which rule matched: custom_domain, subdomain, path, or single_tenant.
	Mode string
	// PathSlug is set when the organization was resolved from the URL path;
	// handlers strip the prefix before routing.
	PathSlug string
}

// Resolve maps a request host and path to an organization.
func (r *Resolver) Resolve(ctx context.Context, host, path string) (*Resolution, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	hostname := normalizeHost(host)

	if hostname != "" {
		if org, err := r.resolveCustomDomain(ctx, hostname); err == nil {
			metrics.TenantResolutions.WithLabelValues("custom_domain", "hit").Inc()
			return &Resolution{Organization: org, Mode: "custom_domain"}, nil
		} else if !errors.Is(err, ErrTenantNotFound) {
			return nil, err
		}

		if slug, ok := r.subdomainSlug(hostname); ok {
			org, err := r.findBySlug(ctx, slug)
			if err == nil {
				metrics.TenantResolutions.WithLabelValues("subdomain", "hit").Inc()
				return &Resolution{Organization: org, Mode: "subdomain"}, nil
			}
			if !errors.Is(err, ErrTenantNotFound) {
				return nil, err
			}
		}
	}

	if slug, ok := r.pathSlug(path); ok {
		org, err := r.findBySlug(ctx, slug)
		if err == nil {
			metrics.TenantResolutions.WithLabelValues("path", "hit").Inc()
			return &Resolution{Organization: org, Mode: "path", PathSlug: slug}, nil
		}
		if !errors.Is(err, ErrTenantNotFound) {
			return nil, err
		}
	}

	if r.singleTenant {
		org, err := r.resolveSingleTenant(ctx)
		if err == nil {
			metrics.TenantResolutions.WithLabelValues("single_tenant", "hit").Inc()
			return &Resolution{Organization: org, Mode: "single_tenant"}, nil
		}
		if !errors.Is(err, ErrTenantNotFound) {
			return nil, err
		}
	}

	metrics.TenantResolutions.WithLabelValues("none", "miss").Inc()
	return nil, ErrTenantNotFound
}

func (r *Resolver) resolveCustomDomain(ctx context.Context, hostname string) (*models.Organization, error) {
	if orgID, ok := r.cachedOrgID(ctx, hostname); ok {
		if org, err := r.findByID(ctx, orgID); err == nil {
			return org, nil
		}
		// Stale cache entry; fall through to the database.
		r.invalidate(ctx, hostname)
	}

	var domain models.CustomDomain
	err := r.db.WithContext(ctx).
		Where("hostname = ? AND verified_at IS NOT NULL", hostname).
		Take(&domain).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenant resolver: lookup custom domain: %w", err)
	}

	org, err := r.findByID(ctx, domain.OrganizationID)
	if err != nil {
		return nil, err
	}

	r.cacheOrgID(ctx, hostname, org.ID)
	return org, nil
}

func (r *Resolver) subdomainSlug(hostname string) (string, bool) {
	if r.baseDomain == "" {
		return "", false
	}
	suffix := "." + r.baseDomain
	if !strings.HasSuffix(hostname, suffix) {
		return "", false
	}
	slug := strings.TrimSuffix(hostname, suffix)
	if slug == "" || strings.Contains(slug, ".") {
		return "", false
	}
	return slug, true
}

func (r *Resolver) pathSlug(path string) (string, bool) {
	path = strings.TrimSpace(path)
	if path == "" || !strings.HasPrefix(path, r.pathPrefix+"/") {
		return "", false
	}
	rest := strings.TrimPrefix(path, r.pathPrefix+"/")
	slug := rest
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		slug = rest[:idx]
	}
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return "", false
	}
	return slug, true
}

func (r *Resolver) resolveSingleTenant(ctx context.Context) (*models.Organization, error) {
	if orgID, err := database.GetSystemSetting(ctx, r.db, database.SingleTenantOrgSetting); err == nil && orgID != "" {
		return r.findByID(ctx, orgID)
	}

	var orgs []models.Organization
	if err := r.db.WithContext(ctx).Limit(2).Find(&orgs).Error; err != nil {
		return nil, fmt.Errorf("tenant resolver: list organizations: %w", err)
	}
	if len(orgs) != 1 {
		return nil, ErrTenantNotFound
	}
	return &orgs[0], nil
}

func (r *Resolver) findBySlug(ctx context.Context, slug string) (*models.Organization, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if slug == "" {
		return nil, ErrTenantNotFound
	}

	var org models.Organization
	err := r.db.WithContext(ctx).Where("slug = ?", slug).Take(&org).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenant resolver: lookup slug: %w", err)
	}
	return &org, nil
}

func (r *Resolver) findByID(ctx context.Context, id string) (*models.Organization, error) {
	var org models.Organization
	err := r.db.WithContext(ctx).Take(&org, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("tenant resolver: lookup org: %w", err)
	}
	return &org, nil
}

func (r *Resolver) cachedOrgID(ctx context.Context, hostname string) (string, bool) {
	if r.store == nil {
		return "", false
	}
	value, found, err := r.store.Get(ctx, cacheKeyPrefix+hostname)
	if err != nil || !found {
		return "", false
	}
	return string(value), true
}

func (r *Resolver) cacheOrgID(ctx context.Context, hostname, orgID string) {
	if r.store == nil {
		return
	}
	_ = r.store.Set(ctx, cacheKeyPrefix+hostname, []byte(orgID), r.cacheTTL)
}

func (r *Resolver) invalidate(ctx context.Context, hostname string) {
	if r.store == nil {
		return
	}
	_ = r.store.Delete(ctx, cacheKeyPrefix+hostname)
}

// Invalidate drops the cached mapping for a hostname, used after domain changes.
func (r *Resolver) Invalidate(ctx context.Context, hostname string) {
	r.invalidate(ctx, normalizeHost(hostname))
}

func normalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}
