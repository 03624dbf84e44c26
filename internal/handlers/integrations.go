package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	appErrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

const maxInboundWebhookBytes = 1 << 20

// IntegrationHandler manages third-party OAuth connections and receives the
// providers' inbound webhooks.
type IntegrationHandler struct {
	integrations *services.IntegrationService
}

func NewIntegrationHandler(integrations *services.IntegrationService) *IntegrationHandler {
	return &IntegrationHandler{integrations: integrations}
}

// GET /api/integrations
func (h *IntegrationHandler) List(c *gin.Context) {
	integrations, err := h.integrations.List(requestContext(c), orgID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, integrations)
}

// POST /api/integrations/:provider/connect
func (h *IntegrationHandler) Connect(c *gin.Context) {
	redirectURL, err := h.integrations.Connect(requestContext(c), orgID(c), c.Param("provider"), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"redirect_url": redirectURL})
}

// GET /api/integrations/:provider/callback
//
// The organization rides inside the signed state, so this route is mounted
// outside tenant resolution.
func (h *IntegrationHandler) Callback(c *gin.Context) {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		response.Error(c, appErrors.NewBadRequest("missing state or code"))
		return
	}

	integration, err := h.integrations.Callback(requestContext(c), state, code)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, integration)
}

type integrationSettingsRequest struct {
	Settings map[string]any `json:"settings" validate:"required"`
}

// PATCH /api/integrations/:provider
func (h *IntegrationHandler) UpdateSettings(c *gin.Context) {
	var req integrationSettingsRequest
	if !bindAndValidate(c, &req) {
		return
	}

	integration, err := h.integrations.UpdateSettings(requestContext(c), orgID(c), c.Param("provider"), req.Settings)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, integration)
}

// DELETE /api/integrations/:provider
func (h *IntegrationHandler) Disconnect(c *gin.Context) {
	if err := h.integrations.Disconnect(requestContext(c), orgID(c), c.Param("provider")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"disconnected": true})
}

// POST /api/integrations/:provider/inbound
//
// Receives a provider's webhook. The body is accepted only when its HMAC
// signature matches the integration's webhook secret.
func (h *IntegrationHandler) Inbound(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxInboundWebhookBytes))
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("could not read body"))
		return
	}

	signature := c.GetHeader("X-Signature")
	ok, err := h.integrations.VerifyInboundSignature(requestContext(c), orgID(c), c.Param("provider"), body, signature)
	if err != nil {
		respondError(c, err)
		return
	}
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	response.Success(c, http.StatusAccepted, gin.H{"received": true})
}
