package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quackback/quackback/internal/services"
	appErrors "github.com/quackback/quackback/pkg/errors"
	"github.com/quackback/quackback/pkg/response"
)

// TransferHandler moves feedback in and out of the portal as CSV.
type TransferHandler struct {
	export *services.ExportService
	imp    *services.ImportService
}

func NewTransferHandler(export *services.ExportService, imp *services.ImportService) *TransferHandler {
	return &TransferHandler{export: export, imp: imp}
}

// GET /api/export/posts
func (h *TransferHandler) ExportPosts(c *gin.Context) {
	filename := fmt.Sprintf("posts-%s.csv", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := h.export.ExportPosts(requestContext(c), orgID(c), c.Writer); err != nil {
		// Headers may already be written; the row stream just stops.
		c.Error(err) //nolint:errcheck
		c.Abort()
	}
}

// POST /api/import/posts
//
// Accepts either a multipart upload under the "file" field or a raw CSV body.
func (h *TransferHandler) ImportPosts(c *gin.Context) {
	reader := c.Request.Body
	if file, _, err := c.Request.FormFile("file"); err == nil {
		defer file.Close()
		reader = file
	}

	result, err := h.imp.ImportPosts(requestContext(c), orgID(c), userID(c), reader)
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if result.Imported == 0 && len(result.Errors) > 0 {
		status = http.StatusUnprocessableEntity
		response.Error(c, appErrors.New("import.no_rows", "no rows could be imported", status))
		return
	}
	response.Success(c, status, result)
}
