package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/middleware"
	"github.com/quackback/quackback/internal/services"
	appErrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

const maxLogoBytes = 1 << 20

// OrganizationHandler manages the current tenant: branding, settings, logo,
// and custom portal domains.
type OrganizationHandler struct {
	orgs *services.OrganizationService
}

func NewOrganizationHandler(orgs *services.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{orgs: orgs}
}

// GET /api/organization
func (h *OrganizationHandler) Get(c *gin.Context) {
	org, err := h.orgs.GetByID(requestContext(c), orgID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, org)
}

type updateOrganizationRequest struct {
	Name     *string        `json:"name" validate:"omitempty,min=2,max=120"`
	Slug     *string        `json:"slug" validate:"omitempty,slug"`
	Settings map[string]any `json:"settings"`
}

// PATCH /api/organization
func (h *OrganizationHandler) Update(c *gin.Context) {
	var req updateOrganizationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	org, err := h.orgs.Update(requestContext(c), orgID(c), services.UpdateOrganizationInput{
		Name:     req.Name,
		Slug:     req.Slug,
		Settings: req.Settings,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, org)
}

// PUT /api/organization/logo
func (h *OrganizationHandler) UploadLogo(c *gin.Context) {
	mimeType := c.ContentType()
	switch mimeType {
	case "image/png", "image/jpeg", "image/svg+xml", "image/webp":
	default:
		response.Error(c, appErrors.NewBadRequest("unsupported logo content type"))
		return
	}

	data, err := io.ReadAll(io.LimitReader(c.Request.Body, maxLogoBytes+1))
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("could not read logo body"))
		return
	}
	if len(data) > maxLogoBytes {
		response.Error(c, appErrors.NewBadRequest("logo exceeds the 1 MiB limit"))
		return
	}

	if err := h.orgs.SetLogo(requestContext(c), orgID(c), data, mimeType); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"uploaded": true})
}

// GET /api/organization/logo
func (h *OrganizationHandler) Logo(c *gin.Context) {
	org := middleware.OrgFromContext(c)
	if org == nil || len(org.Logo) == 0 {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	c.Header("Cache-Control", "public, max-age=300")
	c.Data(http.StatusOK, org.LogoMimeType, org.Logo)
}

type addDomainRequest struct {
	Hostname string `json:"hostname" validate:"required,fqdn"`
}

// POST /api/organization/domains
func (h *OrganizationHandler) AddDomain(c *gin.Context) {
	var req addDomainRequest
	if !bindAndValidate(c, &req) {
		return
	}

	domain, err := h.orgs.AddCustomDomain(requestContext(c), orgID(c), req.Hostname)
	if err != nil {
		respondError(c, err)
		return
	}
	// The verification token is surfaced so the admin can create the DNS
	// record; the stored record hides it from list responses.
	response.Success(c, http.StatusCreated, gin.H{
		"domain":             domain,
		"verification_token": domain.VerificationToken,
	})
}

// GET /api/organization/domains
func (h *OrganizationHandler) ListDomains(c *gin.Context) {
	domains, err := h.orgs.ListCustomDomains(requestContext(c), orgID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, domains)
}

type verifyDomainRequest struct {
	Token string `json:"token" validate:"required"`
}

// POST /api/organization/domains/:id/verify
func (h *OrganizationHandler) VerifyDomain(c *gin.Context) {
	var req verifyDomainRequest
	if !bindAndValidate(c, &req) {
		return
	}

	domain, err := h.orgs.VerifyCustomDomain(requestContext(c), orgID(c), c.Param("id"), req.Token)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, domain)
}

// DELETE /api/organization/domains/:id
func (h *OrganizationHandler) RemoveDomain(c *gin.Context) {
	if err := h.orgs.RemoveCustomDomain(requestContext(c), orgID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}
