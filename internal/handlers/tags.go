package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	"github.com/quackback/quackback/pkg/response"
)

// TagHandler manages post tags.
type TagHandler struct {
	tags *services.TagService
}

func NewTagHandler(tags *services.TagService) *TagHandler {
	return &TagHandler{tags: tags}
}

type createTagRequest struct {
	Name  string `json:"name" validate:"required,min=1,max=60"`
	Slug  string `json:"slug" validate:"omitempty,slug"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

// POST /api/tags
func (h *TagHandler) Create(c *gin.Context) {
	var req createTagRequest
	if !bindAndValidate(c, &req) {
		return
	}

	tag, err := h.tags.Create(requestContext(c), orgID(c), services.CreateTagInput{
		Name:  req.Name,
		Slug:  req.Slug,
		Color: req.Color,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, tag)
}

// GET /api/tags
func (h *TagHandler) List(c *gin.Context) {
	tags, err := h.tags.List(requestContext(c), orgID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, tags)
}

type updateTagRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=1,max=60"`
	Slug  *string `json:"slug" validate:"omitempty,slug"`
	Color *string `json:"color" validate:"omitempty,hexcolor"`
}

// PATCH /api/tags/:id
func (h *TagHandler) Update(c *gin.Context) {
	var req updateTagRequest
	if !bindAndValidate(c, &req) {
		return
	}

	tag, err := h.tags.Update(requestContext(c), orgID(c), c.Param("id"), services.UpdateTagInput{
		Name:  req.Name,
		Slug:  req.Slug,
		Color: req.Color,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, tag)
}

// DELETE /api/tags/:id
func (h *TagHandler) Delete(c *gin.Context) {
	if err := h.tags.Delete(requestContext(c), orgID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
