package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	"github.com/quackback/quackback/pkg/response"
)

// WebhookHandler manages outbound webhook targets.
type WebhookHandler struct {
	webhooks *services.WebhookService
}

func NewWebhookHandler(webhooks *services.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

type createWebhookRequest struct {
	URL    string   `json:"url" validate:"required,url"`
	Events []string `json:"events" validate:"omitempty,dive,min=1"`
}

// POST /api/webhooks
func (h *WebhookHandler) Create(c *gin.Context) {
	var req createWebhookRequest
	if !bindAndValidate(c, &req) {
		return
	}

	target, err := h.webhooks.Create(requestContext(c), orgID(c), services.CreateWebhookInput{
		URL:    req.URL,
		Events: req.Events,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	// The signing secret is returned once, on creation.
	response.Success(c, http.StatusCreated, gin.H{
		"webhook": target,
		"secret":  target.Secret,
	})
}

// GET /api/webhooks
func (h *WebhookHandler) List(c *gin.Context) {
	targets, err := h.webhooks.List(requestContext(c), orgID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, targets)
}

type updateWebhookRequest struct {
	URL     *string  `json:"url" validate:"omitempty,url"`
	Enabled *bool    `json:"enabled"`
	Events  []string `json:"events" validate:"omitempty,dive,min=1"`
}

// PATCH /api/webhooks/:id
func (h *WebhookHandler) Update(c *gin.Context) {
	var req updateWebhookRequest
	if !bindAndValidate(c, &req) {
		return
	}

	target, err := h.webhooks.Update(requestContext(c), orgID(c), c.Param("id"), services.UpdateWebhookInput{
		URL:     req.URL,
		Enabled: req.Enabled,
		Events:  req.Events,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, target)
}

// DELETE /api/webhooks/:id
func (h *WebhookHandler) Delete(c *gin.Context) {
	if err := h.webhooks.Delete(requestContext(c), orgID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
