package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	"github.com/quackback/quackback/pkg/response"
)

// RoadmapHandler manages roadmaps and serves their kanban columns.
type RoadmapHandler struct {
	roadmaps *services.RoadmapService
}

func NewRoadmapHandler(roadmaps *services.RoadmapService) *RoadmapHandler {
	return &RoadmapHandler{roadmaps: roadmaps}
}

type createRoadmapRequest struct {
	Name      string   `json:"name" validate:"required,min=2,max=120"`
	Slug      string   `json:"slug" validate:"omitempty,slug"`
	Public    bool     `json:"public"`
	StatusIDs []string `json:"status_ids" validate:"required,min=1,dive,uuid"`
}

// POST /api/roadmaps
func (h *RoadmapHandler) Create(c *gin.Context) {
	var req createRoadmapRequest
	if !bindAndValidate(c, &req) {
		return
	}

	roadmap, err := h.roadmaps.Create(requestContext(c), orgID(c), services.CreateRoadmapInput{
		Name:      req.Name,
		Slug:      req.Slug,
		Public:    req.Public,
		StatusIDs: req.StatusIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, roadmap)
}

// GET /api/roadmaps
func (h *RoadmapHandler) List(c *gin.Context) {
	roadmaps, err := h.roadmaps.List(requestContext(c), orgID(c), !isMember(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, roadmaps)
}

// GET /api/roadmaps/:id
func (h *RoadmapHandler) Get(c *gin.Context) {
	roadmap, err := h.roadmaps.GetByID(requestContext(c), orgID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !roadmap.Public && !isMember(c) {
		respondError(c, services.ErrRoadmapNotFound)
		return
	}
	response.Success(c, http.StatusOK, roadmap)
}

// GET /api/roadmaps/:id/columns
func (h *RoadmapHandler) Columns(c *gin.Context) {
	roadmap, err := h.roadmaps.GetByID(requestContext(c), orgID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if !roadmap.Public && !isMember(c) {
		respondError(c, services.ErrRoadmapNotFound)
		return
	}

	columns, err := h.roadmaps.Columns(requestContext(c), orgID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, columns)
}

type updateRoadmapRequest struct {
	Name      *string  `json:"name" validate:"omitempty,min=2,max=120"`
	Slug      *string  `json:"slug" validate:"omitempty,slug"`
	Public    *bool    `json:"public"`
	StatusIDs []string `json:"status_ids" validate:"omitempty,dive,uuid"`
}

// PATCH /api/roadmaps/:id
func (h *RoadmapHandler) Update(c *gin.Context) {
	var req updateRoadmapRequest
	if !bindAndValidate(c, &req) {
		return
	}

	roadmap, err := h.roadmaps.Update(requestContext(c), orgID(c), c.Param("id"), services.UpdateRoadmapInput{
		Name:      req.Name,
		Slug:      req.Slug,
		Public:    req.Public,
		StatusIDs: req.StatusIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, roadmap)
}

// DELETE /api/roadmaps/:id
func (h *RoadmapHandler) Delete(c *gin.Context) {
	if err := h.roadmaps.Delete(requestContext(c), orgID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
