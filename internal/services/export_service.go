package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
)

// csvColumns is the fixed export/import column set.
var csvColumns = []string{
	"title", "content", "status", "tags", "board",
	"author_name", "author_email", "vote_count", "created_at",
}

// ExportService streams an organization's posts as CSV.
type ExportService struct {
	db *gorm.DB
}

// NewExportService constructs an ExportService.
func NewExportService(db *gorm.DB) (*ExportService, error) {
	if db == nil {
		return nil, errors.New("export service: db is required")
	}
	return &ExportService{db: db}, nil
}

// exportBatchSize bounds how many posts are loaded per query.
const exportBatchSize = 500

// ExportPosts writes every post in the organization to w, oldest first. Cells
// that could execute as spreadsheet formulas are escaped.
func (s *ExportService) ExportPosts(ctx context.Context, orgID string, w io.Writer) error {
	ctx = ensureContext(ctx)

	writer := csv.NewWriter(w)
	if err := writer.Write(csvColumns); err != nil {
		return fmt.Errorf("export service: write header: %w", err)
	}

	var batch []models.Post
	err := s.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at ASC").
		Preload("Board").
		Preload("Status").
		Preload("Tags").
		Preload("Author").
		FindInBatches(&batch, exportBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range batch {
				if err := writer.Write(exportRow(&batch[i])); err != nil {
					return fmt.Errorf("write row: %w", err)
				}
			}
			return nil
		}).Error
	if err != nil {
		return fmt.Errorf("export service: export posts: %w", err)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("export service: flush csv: %w", err)
	}
	return nil
}

func exportRow(post *models.Post) []string {
	var statusName, boardName, authorName, authorEmail string
	if post.Status != nil {
		statusName = post.Status.Name
	}
	if post.Board != nil {
		boardName = post.Board.Name
	}
	if post.Author != nil {
		authorName = post.Author.Name
		authorEmail = post.Author.Email
	}

	tagNames := make([]string, 0, len(post.Tags))
	for _, tag := range post.Tags {
		tagNames = append(tagNames, tag.Name)
	}

	return []string{
		escapeCSVCell(post.Title),
		escapeCSVCell(post.Content),
		escapeCSVCell(statusName),
		escapeCSVCell(strings.Join(tagNames, ",")),
		escapeCSVCell(boardName),
		escapeCSVCell(authorName),
		escapeCSVCell(authorEmail),
		strconv.Itoa(post.VoteCount),
		post.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// escapeCSVCell prefixes cells that spreadsheet applications would interpret
// as formulas.
func escapeCSVCell(value string) string {
	if value == "" {
		return value
	}
	switch value[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + value
	}
	return value
}
