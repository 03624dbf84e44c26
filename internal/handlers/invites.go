package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	iauth "github.com/quackback/quackback/internal/auth"
	"github.com/quackback/quackback/internal/middleware"
	"github.com/quackback/quackback/internal/models"
	"github.com/quackback/quackback/internal/services"
	appErrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

// InviteHandler manages team invitations and their redemption.
type InviteHandler struct {
	invites  *services.InviteService
	sessions *iauth.SessionService
}

func NewInviteHandler(invites *services.InviteService, sessions *iauth.SessionService) *InviteHandler {
	return &InviteHandler{invites: invites, sessions: sessions}
}

type createInviteRequest struct {
	Email string `json:"email" validate:"required,email"`
	Role  string `json:"role" validate:"required"`
}

// POST /api/invitations
func (h *InviteHandler) Create(c *gin.Context) {
	var req createInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}
	if !models.ValidRole(req.Role) {
		response.Error(c, appErrors.NewBadRequest("unknown role"))
		return
	}
	actor := middleware.MemberFromContext(c)
	if actor != nil && actor.Role != models.RoleOwner && req.Role == models.RoleOwner {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	token, invitation, err := h.invites.Create(requestContext(c), orgID(c), services.CreateInviteInput{
		Email:     req.Email,
		Role:      req.Role,
		InvitedBy: userID(c),
	})
	if err != nil {
		respondError(c, err)
		return
	}
	// The raw token appears only here; the stored record keeps a hash.
	response.Success(c, http.StatusCreated, gin.H{
		"invitation": invitation,
		"token":      token,
	})
}

// GET /api/invitations
func (h *InviteHandler) List(c *gin.Context) {
	invitations, err := h.invites.List(requestContext(c), orgID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, invitations)
}

// DELETE /api/invitations/:id
func (h *InviteHandler) Revoke(c *gin.Context) {
	if err := h.invites.Revoke(requestContext(c), orgID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"revoked": true})
}

type redeemInviteRequest struct {
	Token    string `json:"token" validate:"required"`
	Name     string `json:"name" validate:"required,min=1,max=120"`
	Password string `json:"password" validate:"required,min=10"`
}

// POST /api/invitations/redeem
func (h *InviteHandler) Redeem(c *gin.Context) {
	var req redeemInviteRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, member, err := h.invites.Redeem(requestContext(c), services.RedeemInput{
		Token:    req.Token,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	tokens, _, err := h.sessions.CreateSession(user.ID, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
		OrgID:     member.OrganizationID,
		Role:      member.Role,
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user":   userPayload(user),
		"member": member,
		"tokens": tokens,
	})
}
