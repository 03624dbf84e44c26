package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	appErrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

// notFoundSentinels are the service-layer lookups that surface as 404s.
var notFoundSentinels = []error{
	services.ErrBoardNotFound,
	services.ErrPostNotFound,
	services.ErrCommentNotFound,
	services.ErrStatusNotFound,
	services.ErrTagNotFound,
	services.ErrRoadmapNotFound,
	services.ErrMemberNotFound,
	services.ErrInviteNotFound,
	services.ErrWebhookNotFound,
	services.ErrIntegrationNotFound,
	services.ErrOrganizationNotFound,
	services.ErrCustomDomainNotFound,
	services.ErrAuditLogNotFound,
}

// respondError writes a service error as an API response, translating plain
// not-found sentinels into 404s. AppErrors pass through with their own codes.
func respondError(c *gin.Context, err error) {
	for _, sentinel := range notFoundSentinels {
		if errors.Is(err, sentinel) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
	}
	if errors.Is(err, services.ErrWebhookURLBlocked) {
		response.Error(c, appErrors.NewBadRequest("webhook target url is not allowed"))
		return
	}
	response.Error(c, err)
}
