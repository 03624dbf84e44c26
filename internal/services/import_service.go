package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
	apperrors "github.com/quackback/quackback/pkg/errors"
)

// ErrImportTooLarge indicates the CSV exceeds the configured row limit.
var ErrImportTooLarge = &apperrors.AppError{
	Code:       "import.too_large",
	Message:    "The CSV exceeds the import row limit",
	StatusCode: http.StatusRequestEntityTooLarge,
}

// defaultImportMaxRows caps imports when no limit is configured.
const defaultImportMaxRows = 5000

// ImportService loads posts from the fixed CSV column set, resolving or
// creating boards, statuses, and tags by name.
type ImportService struct {
	db      *gorm.DB
	audit   *AuditService
	maxRows int
}

// ImportOption customises the service.
type ImportOption func(*ImportService)

// WithImportMaxRows overrides the per-file row limit.
func WithImportMaxRows(maxRows int) ImportOption {
	return func(s *ImportService) {
		if maxRows > 0 {
			s.maxRows = maxRows
		}
	}
}

// NewImportService constructs an ImportService.
func NewImportService(db *gorm.DB, audit *AuditService, opts ...ImportOption) (*ImportService, error) {
	if db == nil {
		return nil, errors.New("import service: db is required")
	}
	svc := &ImportService{db: db, audit: audit, maxRows: defaultImportMaxRows}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// ImportRowError reports one rejected row. Line numbers are 1-based and count
// the header.
type ImportRowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// ImportResult summarises an import run.
type ImportResult struct {
	Imported int              `json:"imported"`
	Skipped  int              `json:"skipped"`
	Errors   []ImportRowError `json:"errors,omitempty"`
}

// ImportPosts parses CSV rows into posts. Rows with a missing title are
// skipped and reported; a malformed file fails wholesale. actorID attributes
// rows without an author email.
func (s *ImportService) ImportPosts(ctx context.Context, orgID, actorID string, r io.Reader) (*ImportResult, error) {
	ctx = ensureContext(ctx)

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.NewBadRequest("CSV is empty or unreadable")
	}
	columns, err := mapImportColumns(header)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, ImportRowError{Line: line, Message: "malformed row"})
			continue
		}
		if result.Imported+result.Skipped >= s.maxRows {
			return nil, ErrImportTooLarge
		}

		row := readImportRow(record, columns)
		if row.title == "" {
			result.Skipped++
			result.Errors = append(result.Errors, ImportRowError{Line: line, Message: "missing title"})
			continue
		}

		if err := s.importRow(ctx, orgID, actorID, row); err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, ImportRowError{Line: line, Message: err.Error()})
			continue
		}
		result.Imported++
	}

	recordAudit(ctx, s.audit, AuditEntry{
		OrganizationID: orgID,
		UserID:         &actorID,
		Action:         "posts.import",
		Result:         "success",
		Metadata: map[string]any{
			"imported": result.Imported,
			"skipped":  result.Skipped,
		},
	})
	return result, nil
}

type importRow struct {
	title       string
	content     string
	status      string
	tags        []string
	board       string
	authorName  string
	authorEmail string
	voteCount   int
	createdAt   *time.Time
}

func mapImportColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, name := range header {
		columns[strings.ToLower(strings.TrimSpace(name))] = i
	}
	if _, ok := columns["title"]; !ok {
		return nil, apperrors.NewBadRequest("CSV is missing the title column")
	}
	return columns, nil
}

func readImportRow(record []string, columns map[string]int) importRow {
	cell := func(name string) string {
		idx, ok := columns[name]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimPrefix(strings.TrimSpace(record[idx]), "'")
	}

	row := importRow{
		title:       cell("title"),
		content:     cell("content"),
		status:      cell("status"),
		board:       cell("board"),
		authorName:  cell("author_name"),
		authorEmail: strings.ToLower(cell("author_email")),
	}
	for _, tag := range strings.Split(cell("tags"), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			row.tags = append(row.tags, tag)
		}
	}
	if votes, err := strconv.Atoi(cell("vote_count")); err == nil && votes > 0 {
		row.voteCount = votes
	}
	if ts, err := time.Parse(time.RFC3339, cell("created_at")); err == nil {
		row.createdAt = &ts
	}
	return row
}

func (s *ImportService) importRow(ctx context.Context, orgID, actorID string, row importRow) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		board, err := s.resolveBoard(tx, orgID, row.board)
		if err != nil {
			return err
		}
		status, err := s.resolveStatus(tx, orgID, row.status)
		if err != nil {
			return err
		}
		authorID, err := s.resolveAuthor(tx, actorID, row.authorName, row.authorEmail)
		if err != nil {
			return err
		}

		post := &models.Post{
			OrganizationID: orgID,
			BoardID:        board.ID,
			AuthorID:       authorID,
			Title:          row.title,
			Content:        row.content,
			StatusID:       status.ID,
			VoteCount:      row.voteCount,
		}
		if err := tx.Create(post).Error; err != nil {
			return fmt.Errorf("create post: %w", err)
		}
		if row.createdAt != nil {
			if err := tx.Model(post).Update("created_at", row.createdAt.UTC()).Error; err != nil {
				return fmt.Errorf("set created_at: %w", err)
			}
		}

		for _, tagName := range row.tags {
			tag, err := s.resolveTag(tx, orgID, tagName)
			if err != nil {
				return err
			}
			if err := tx.Model(post).Association("Tags").Append(tag); err != nil {
				return fmt.Errorf("attach tag: %w", err)
			}
		}
		return nil
	})
}

func (s *ImportService) resolveBoard(tx *gorm.DB, orgID, name string) (*models.Board, error) {
	if name == "" {
		name = "Feedback"
	}
	slug := slugify(name)

	var board models.Board
	err := tx.First(&board, "organization_id = ? AND slug = ?", orgID, slug).Error
	if err == nil {
		return &board, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load board: %w", err)
	}

	board = models.Board{OrganizationID: orgID, Name: name, Slug: slug}
	if err := tx.Create(&board).Error; err != nil {
		return nil, fmt.Errorf("create board: %w", err)
	}
	return &board, nil
}

func (s *ImportService) resolveStatus(tx *gorm.DB, orgID, name string) (*models.Status, error) {
	if name == "" {
		var status models.Status
		err := tx.First(&status, "organization_id = ? AND is_default = ?", orgID, true).Error
		if err != nil {
			return nil, fmt.Errorf("load default status: %w", err)
		}
		return &status, nil
	}

	slug := slugify(name)
	var status models.Status
	err := tx.First(&status, "organization_id = ? AND slug = ?", orgID, slug).Error
	if err == nil {
		return &status, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load status: %w", err)
	}

	var position int64
	if err := tx.Model(&models.Status{}).Where("organization_id = ?", orgID).Count(&position).Error; err != nil {
		return nil, fmt.Errorf("count statuses: %w", err)
	}
	status = models.Status{
		OrganizationID: orgID,
		Name:           name,
		Slug:           slug,
		Category:       models.StatusCategoryOpen,
		Position:       int(position),
	}
	if err := tx.Create(&status).Error; err != nil {
		return nil, fmt.Errorf("create status: %w", err)
	}
	return &status, nil
}

func (s *ImportService) resolveTag(tx *gorm.DB, orgID, name string) (*models.Tag, error) {
	slug := slugify(name)

	var tag models.Tag
	err := tx.First(&tag, "organization_id = ? AND slug = ?", orgID, slug).Error
	if err == nil {
		return &tag, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load tag: %w", err)
	}

	tag = models.Tag{OrganizationID: orgID, Name: name, Slug: slug}
	if err := tx.Create(&tag).Error; err != nil {
		return nil, fmt.Errorf("create tag: %w", err)
	}
	return &tag, nil
}

func (s *ImportService) resolveAuthor(tx *gorm.DB, actorID, name, email string) (string, error) {
	if email == "" {
		return actorID, nil
	}

	var user models.User
	err := tx.First(&user, "email = ?", email).Error
	if err == nil {
		return user.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("load author: %w", err)
	}

	user = models.User{Email: email, Name: name, IsActive: true}
	if err := tx.Create(&user).Error; err != nil {
		return "", fmt.Errorf("create author: %w", err)
	}
	return user.ID, nil
}
