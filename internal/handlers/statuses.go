package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	"github.com/quackback/quackback/pkg/response"
)

// StatusHandler manages the organization's workflow statuses.
type StatusHandler struct {
	statuses *services.StatusService
}

func NewStatusHandler(statuses *services.StatusService) *StatusHandler {
	return &StatusHandler{statuses: statuses}
}

type createStatusRequest struct {
	Name      string `json:"name" validate:"required,min=2,max=60"`
	Slug      string `json:"slug" validate:"omitempty,slug"`
	Color     string `json:"color" validate:"omitempty,hexcolor"`
	Category  string `json:"category" validate:"required"`
	IsDefault bool   `json:"is_default"`
}

// POST /api/statuses
func (h *StatusHandler) Create(c *gin.Context) {
	var req createStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	status, err := h.statuses.Create(requestContext(c), orgID(c), services.CreateStatusInput{
		Name:      req.Name,
		Slug:      req.Slug,
		Color:     req.Color,
		Category:  req.Category,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, status)
}

// GET /api/statuses
func (h *StatusHandler) List(c *gin.Context) {
	statuses, err := h.statuses.List(requestContext(c), orgID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, statuses)
}

type updateStatusRequest struct {
	Name      *string `json:"name" validate:"omitempty,min=2,max=60"`
	Color     *string `json:"color" validate:"omitempty,hexcolor"`
	Category  *string `json:"category"`
	Position  *int    `json:"position" validate:"omitempty,min=0"`
	IsDefault *bool   `json:"is_default"`
}

// PATCH /api/statuses/:id
func (h *StatusHandler) Update(c *gin.Context) {
	var req updateStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	status, err := h.statuses.Update(requestContext(c), orgID(c), c.Param("id"), services.UpdateStatusInput{
		Name:      req.Name,
		Color:     req.Color,
		Category:  req.Category,
		Position:  req.Position,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// DELETE /api/statuses/:id
func (h *StatusHandler) Delete(c *gin.Context) {
	if err := h.statuses.Delete(requestContext(c), orgID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
