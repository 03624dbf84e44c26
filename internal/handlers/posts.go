package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	appErrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

// PostHandler exposes feedback posts: submission, listing with filters,
// voting, and status changes.
type PostHandler struct {
	posts  *services.PostService
	boards *services.BoardService
}

func NewPostHandler(posts *services.PostService, boards *services.BoardService) *PostHandler {
	return &PostHandler{posts: posts, boards: boards}
}

type createPostRequest struct {
	BoardID  string   `json:"board_id" validate:"required,uuid"`
	Title    string   `json:"title" validate:"required,min=3,max=200"`
	Content  string   `json:"content" validate:"max=10000"`
	StatusID string   `json:"status_id" validate:"omitempty,uuid"`
	TagIDs   []string `json:"tag_ids" validate:"omitempty,dive,uuid"`
}

// POST /api/posts
func (h *PostHandler) Create(c *gin.Context) {
	var req createPostRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.CreatePostInput{
		BoardID:  req.BoardID,
		AuthorID: userID(c),
		Title:    req.Title,
		Content:  req.Content,
	}
	// Only team members may pre-assign a status or tags on submission.
	if isMember(c) {
		input.StatusID = req.StatusID
		input.TagIDs = req.TagIDs
	}

	post, err := h.posts.Create(requestContext(c), orgID(c), input)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, post)
}

// GET /api/posts
func (h *PostHandler) List(c *gin.Context) {
	filters := services.PostFilters{
		BoardID:  c.Query("board_id"),
		StatusID: c.Query("status_id"),
		TagID:    c.Query("tag_id"),
		Search:   c.Query("search"),
		Sort:     c.Query("sort"),
	}
	opts := services.PostListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 0),
	}

	if filters.BoardID != "" && !isMember(c) {
		board, err := h.boards.GetByID(requestContext(c), orgID(c), filters.BoardID)
		if err != nil {
			respondError(c, err)
			return
		}
		if board.Private {
			respondError(c, services.ErrBoardNotFound)
			return
		}
	}

	posts, total, err := h.posts.List(requestContext(c), orgID(c), filters, opts)
	if err != nil {
		respondError(c, err)
		return
	}

	page := opts.Page
	if page < 1 {
		page = 1
	}
	perPage := opts.PageSize
	if perPage < 1 {
		perPage = len(posts)
		if perPage == 0 {
			perPage = 1
		}
	}
	totalPages := (int(total) + perPage - 1) / perPage
	response.SuccessWithMeta(c, http.StatusOK, posts, &response.Meta{
		Page:       page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: totalPages,
	})
}

// GET /api/posts/:id
func (h *PostHandler) Get(c *gin.Context) {
	post, err := h.posts.GetByID(requestContext(c), orgID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if post.Board != nil && post.Board.Private && !isMember(c) {
		respondError(c, services.ErrPostNotFound)
		return
	}
	response.Success(c, http.StatusOK, post)
}

type updatePostRequest struct {
	Title   *string  `json:"title" validate:"omitempty,min=3,max=200"`
	Content *string  `json:"content" validate:"omitempty,max=10000"`
	BoardID *string  `json:"board_id" validate:"omitempty,uuid"`
	Pinned  *bool    `json:"pinned"`
	TagIDs  []string `json:"tag_ids" validate:"omitempty,dive,uuid"`
}

// PATCH /api/posts/:id
func (h *PostHandler) Update(c *gin.Context) {
	var req updatePostRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if !isManager(c) {
		// Authors may edit their own title and content; everything else
		// is reserved for the team.
		post, err := h.posts.GetByID(requestContext(c), orgID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if post.AuthorID != userID(c) {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		req.Pinned = nil
		req.TagIDs = nil
		req.BoardID = nil
	}

	post, err := h.posts.Update(requestContext(c), orgID(c), c.Param("id"), services.UpdatePostInput{
		Title:   req.Title,
		Content: req.Content,
		BoardID: req.BoardID,
		Pinned:  req.Pinned,
		TagIDs:  req.TagIDs,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

type changeStatusRequest struct {
	StatusID string `json:"status_id" validate:"required,uuid"`
}

// PUT /api/posts/:id/status
func (h *PostHandler) ChangeStatus(c *gin.Context) {
	var req changeStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	post, err := h.posts.ChangeStatus(requestContext(c), orgID(c), c.Param("id"), req.StatusID, userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, post)
}

// DELETE /api/posts/:id
func (h *PostHandler) Delete(c *gin.Context) {
	if !isManager(c) {
		post, err := h.posts.GetByID(requestContext(c), orgID(c), c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if post.AuthorID != userID(c) {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
	}

	if err := h.posts.Delete(requestContext(c), orgID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/posts/:id/vote
func (h *PostHandler) Vote(c *gin.Context) {
	post, err := h.posts.Vote(requestContext(c), orgID(c), c.Param("id"), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"vote_count": post.VoteCount, "voted": true})
}

// DELETE /api/posts/:id/vote
func (h *PostHandler) Unvote(c *gin.Context) {
	post, err := h.posts.Unvote(requestContext(c), orgID(c), c.Param("id"), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"vote_count": post.VoteCount, "voted": false})
}

// GET /api/posts/:id/vote
func (h *PostHandler) HasVoted(c *gin.Context) {
	voted, err := h.posts.HasVoted(requestContext(c), c.Param("id"), userID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"voted": voted})
}
