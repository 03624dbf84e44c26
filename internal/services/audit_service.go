package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
)

// ErrAuditLogNotFound indicates the requested audit record does not exist.
var ErrAuditLogNotFound = errors.New("audit service: log not found")

// AuditService persists and queries the per-organization audit trail.
type AuditService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewAuditService constructs an AuditService backed by the provided database.
func NewAuditService(db *gorm.DB) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	return &AuditService{db: db, now: time.Now}, nil
}

// AuditEntry describes a single action to record.
type AuditEntry struct {
	OrganizationID string
	UserID         *string
	Action         string
	Resource       string
	Result         string
	IPAddress      string
	UserAgent      string
	Metadata       map[string]any
}

// AuditFilters narrows List and Export queries.
type AuditFilters struct {
	OrganizationID string
	UserID         string
	Action         string
	Resource       string
	Result         string
	From           *time.Time
	To             *time.Time
}

// AuditListOptions controls pagination.
type AuditListOptions struct {
	Page     int
	PageSize int
}

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
)

// Log writes one audit record. Metadata is serialized to JSON.
func (s *AuditService) Log(ctx context.Context, entry AuditEntry) (*models.AuditLog, error) {
	ctx = ensureContext(ctx)

	if entry.Action == "" {
		return nil, errors.New("audit service: action is required")
	}
	if entry.Result == "" {
		entry.Result = "success"
	}

	metadata := "{}"
	if len(entry.Metadata) > 0 {
		raw, err := json.Marshal(entry.Metadata)
		if err != nil {
			return nil, fmt.Errorf("audit service: marshal metadata: %w", err)
		}
		metadata = string(raw)
	}

	record := &models.AuditLog{
		OrganizationID: entry.OrganizationID,
		UserID:         entry.UserID,
		Action:         entry.Action,
		Resource:       entry.Resource,
		Result:         entry.Result,
		IPAddress:      entry.IPAddress,
		UserAgent:      entry.UserAgent,
		Metadata:       metadata,
		CreatedAt:      s.now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, fmt.Errorf("audit service: create log: %w", err)
	}
	return record, nil
}

// List returns a page of audit records, newest first, with the total count.
func (s *AuditService) List(ctx context.Context, filters AuditFilters, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = defaultAuditPageSize
	}
	if pageSize > maxAuditPageSize {
		pageSize = maxAuditPageSize
	}

	query := applyAuditFilters(s.db.WithContext(ctx).Model(&models.AuditLog{}), filters)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	var logs []models.AuditLog
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}
	return logs, total, nil
}

// Export returns every record matching the filters, oldest first.
func (s *AuditService) Export(ctx context.Context, filters AuditFilters) ([]models.AuditLog, error) {
	ctx = ensureContext(ctx)

	var logs []models.AuditLog
	err := applyAuditFilters(s.db.WithContext(ctx).Model(&models.AuditLog{}), filters).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("audit service: export logs: %w", err)
	}
	return logs, nil
}

// CleanupOlderThan deletes records older than the retention window and reports
// how many rows were removed. A non-positive retention is a no-op.
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, nil
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.OrganizationID != "" {
		query = query.Where("organization_id = ?", filters.OrganizationID)
	}
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.Resource != "" {
		query = query.Where("resource = ?", filters.Resource)
	}
	if filters.Result != "" {
		query = query.Where("result = ?", filters.Result)
	}
	if filters.From != nil {
		query = query.Where("created_at >= ?", filters.From.UTC())
	}
	if filters.To != nil {
		query = query.Where("created_at <= ?", filters.To.UTC())
	}
	return query
}
