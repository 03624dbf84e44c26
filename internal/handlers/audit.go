package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	appErrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

// AuditHandler serves the organization's audit trail.
type AuditHandler struct {
	audit *services.AuditService
}

func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit-logs
func (h *AuditHandler) List(c *gin.Context) {
	filters, ok := h.filters(c)
	if !ok {
		return
	}
	opts := services.AuditListOptions{
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 0),
	}

	logs, total, err := h.audit.List(requestContext(c), filters, opts)
	if err != nil {
		respondError(c, err)
		return
	}

	perPage := opts.PageSize
	if perPage < 1 {
		perPage = len(logs)
		if perPage == 0 {
			perPage = 1
		}
	}
	response.SuccessWithMeta(c, http.StatusOK, logs, &response.Meta{
		Page:       opts.Page,
		PerPage:    perPage,
		Total:      int(total),
		TotalPages: (int(total) + perPage - 1) / perPage,
	})
}

func (h *AuditHandler) filters(c *gin.Context) (services.AuditFilters, bool) {
	filters := services.AuditFilters{
		OrganizationID: orgID(c),
		UserID:         c.Query("user_id"),
		Action:         c.Query("action"),
		Resource:       c.Query("resource"),
		Result:         c.Query("result"),
	}
	for query, target := range map[string]**time.Time{"from": &filters.From, "to": &filters.To} {
		raw := c.Query(query)
		if raw == "" {
			continue
		}
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.NewBadRequest("invalid "+query+" timestamp, want RFC 3339"))
			return filters, false
		}
		*target = &parsed
	}
	return filters, true
}
