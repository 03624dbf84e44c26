package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	"github.com/quackback/quackback/pkg/response"
)

// SetupHandler serves the one-time installation bootstrap.
type SetupHandler struct {
	setup *services.SetupService
}

func NewSetupHandler(setup *services.SetupService) *SetupHandler {
	return &SetupHandler{setup: setup}
}

// GET /api/setup/status
func (h *SetupHandler) Status(c *gin.Context) {
	status, err := h.setup.Status(requestContext(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

type initializeRequest struct {
	OrganizationName string `json:"organization_name" validate:"required,min=2,max=120"`
	OrganizationSlug string `json:"organization_slug" validate:"omitempty,slug"`
	AdminEmail       string `json:"admin_email" validate:"required,email"`
	AdminName        string `json:"admin_name" validate:"required,min=1,max=120"`
	AdminPassword    string `json:"admin_password" validate:"required,min=10"`
	SingleTenant     bool   `json:"single_tenant"`
}

// POST /api/setup/initialize
func (h *SetupHandler) Initialize(c *gin.Context) {
	var req initializeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.setup.Initialize(requestContext(c), services.InitializeInput{
		OrganizationName: req.OrganizationName,
		OrganizationSlug: req.OrganizationSlug,
		AdminEmail:       req.AdminEmail,
		AdminName:        req.AdminName,
		AdminPassword:    req.AdminPassword,
		SingleTenant:     req.SingleTenant,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{
		"organization": result.Organization,
		"owner":        userPayload(result.Owner),
	})
}
