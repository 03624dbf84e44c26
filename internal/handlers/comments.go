package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	appErrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

// CommentHandler exposes post comment threads and emoji reactions.
type CommentHandler struct {
	comments *services.CommentService
}

func NewCommentHandler(comments *services.CommentService) *CommentHandler {
	return &CommentHandler{comments: comments}
}

type createCommentRequest struct {
	ParentID string `json:"parent_id" validate:"omitempty,uuid"`
	Body     string `json:"body" validate:"required,min=1,max=5000"`
	Internal bool   `json:"internal"`
}

// POST /api/posts/:id/comments
func (h *CommentHandler) Create(c *gin.Context) {
	var req createCommentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if req.Internal && !isMember(c) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	comment, err := h.comments.Create(requestContext(c), orgID(c), services.CreateCommentInput{
		PostID:   c.Param("id"),
		AuthorID: userID(c),
		ParentID: req.ParentID,
		Body:     req.Body,
		Internal: req.Internal,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, comment)
}

// GET /api/posts/:id/comments
func (h *CommentHandler) ListByPost(c *gin.Context) {
	comments, err := h.comments.ListByPost(requestContext(c), orgID(c), c.Param("id"), isMember(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, comments)
}

type updateCommentRequest struct {
	Body string `json:"body" validate:"required,min=1,max=5000"`
}

// PATCH /api/comments/:id
func (h *CommentHandler) Update(c *gin.Context) {
	var req updateCommentRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if !h.canModify(c) {
		return
	}

	comment, err := h.comments.UpdateBody(requestContext(c), orgID(c), c.Param("id"), req.Body)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, comment)
}

// DELETE /api/comments/:id
func (h *CommentHandler) Delete(c *gin.Context) {
	if !h.canModify(c) {
		return
	}

	if err := h.comments.Delete(requestContext(c), orgID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

type reactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=16"`
}

// POST /api/comments/:id/reactions
func (h *CommentHandler) ToggleReaction(c *gin.Context) {
	var req reactionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	added, err := h.comments.ToggleReaction(requestContext(c), orgID(c), c.Param("id"), userID(c), req.Emoji)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reacted": added})
}

// canModify allows managers, or the comment's author, to change a comment.
// It writes the error response itself when access is denied.
func (h *CommentHandler) canModify(c *gin.Context) bool {
	if isManager(c) {
		return true
	}
	comment, err := h.comments.GetByID(requestContext(c), orgID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return false
	}
	if comment.AuthorID != userID(c) {
		response.Error(c, appErrors.ErrForbidden)
		return false
	}
	return true
}
