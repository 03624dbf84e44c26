package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/middleware"
	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/internal/services"
	appErrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

// MemberHandler manages the organization's team.
type MemberHandler struct {
	members *services.MemberService
}

func NewMemberHandler(members *services.MemberService) *MemberHandler {
	return &MemberHandler{members: members}
}

// GET /api/members
func (h *MemberHandler) List(c *gin.Context) {
	members, err := h.members.List(requestContext(c), orgID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, members)
}

type updateRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

// PUT /api/members/:userID/role
func (h *MemberHandler) UpdateRole(c *gin.Context) {
	var req updateRoleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !models.ValidRole(req.Role) {
		response.Error(c, appErrors.NewBadRequest("unknown role"))
		return
	}

	// Owners can assign any role; admins cannot mint or demote owners.
	actor := middleware.MemberFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	if actor.Role != models.RoleOwner && req.Role == models.RoleOwner {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	member, err := h.members.UpdateRole(requestContext(c), orgID(c), c.Param("userID"), req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, member)
}

// DELETE /api/members/:userID
func (h *MemberHandler) Remove(c *gin.Context) {
	target, err := h.members.Get(requestContext(c), orgID(c), c.Param("userID"))
	if err != nil {
		respondError(c, err)
		return
	}

	actor := middleware.MemberFromContext(c)
	if actor == nil {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	// Members may leave on their own; removing someone else takes a role
	// strictly above the target's.
	if target.UserID != userID(c) {
		if actor.Role != models.RoleOwner && target.Role != models.RoleMember {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
	}

	if err := h.members.Remove(requestContext(c), orgID(c), c.Param("userID")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"removed": true})
}
