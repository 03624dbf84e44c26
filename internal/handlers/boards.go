package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	"github.com/quackback/quackback/pkg/response"
)

// BoardHandler exposes feedback board management and the public board listing.
type BoardHandler struct {
	boards *services.BoardService
}

func NewBoardHandler(boards *services.BoardService) *BoardHandler {
	return &BoardHandler{boards: boards}
}

type createBoardRequest struct {
	Name        string `json:"name" validate:"required,min=2,max=120"`
	Slug        string `json:"slug" validate:"omitempty,slug"`
	Description string `json:"description" validate:"max=500"`
	Private     bool   `json:"private"`
}

// POST /api/boards
func (h *BoardHandler) Create(c *gin.Context) {
	var req createBoardRequest
	if !bindAndValidate(c, &req) {
		return
	}

	board, err := h.boards.Create(requestContext(c), orgID(c), services.CreateBoardInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Private:     req.Private,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, board)
}

// GET /api/boards
func (h *BoardHandler) List(c *gin.Context) {
	boards, err := h.boards.List(requestContext(c), orgID(c), isMember(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, boards)
}

// GET /api/boards/:id
func (h *BoardHandler) Get(c *gin.Context) {
	board, err := h.boards.GetByID(requestContext(c), orgID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if board.Private && !isMember(c) {
		respondError(c, services.ErrBoardNotFound)
		return
	}
	response.Success(c, http.StatusOK, board)
}

type updateBoardRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=2,max=120"`
	Slug        *string `json:"slug" validate:"omitempty,slug"`
	Description *string `json:"description" validate:"omitempty,max=500"`
	Private     *bool   `json:"private"`
	Position    *int    `json:"position" validate:"omitempty,min=0"`
}

// PATCH /api/boards/:id
func (h *BoardHandler) Update(c *gin.Context) {
	var req updateBoardRequest
	if !bindAndValidate(c, &req) {
		return
	}

	board, err := h.boards.Update(requestContext(c), orgID(c), c.Param("id"), services.UpdateBoardInput{
		Name:        req.Name,
		Slug:        req.Slug,
		Description: req.Description,
		Private:     req.Private,
		Position:    req.Position,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, board)
}

// DELETE /api/boards/:id
func (h *BoardHandler) Delete(c *gin.Context) {
	if err := h.boards.Delete(requestContext(c), orgID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
