package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/quackback/quackback/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Organization{},
		&models.CustomDomain{},
		&models.Member{},
		&models.Board{},
		&models.Post{},
		&models.Vote{},
		&models.Comment{},
		&models.Reaction{},
		&models.Status{},
		&models.Tag{},
		&models.Invitation{},
		&models.SsoProvider{},
		&models.Integration{},
		&models.WebhookTarget{},
		&models.Roadmap{},
		&models.Session{},
		&models.LoginCode{},
		&models.MFASecret{},
		&models.AuditLog{},
		&models.SystemSetting{},
		&models.CacheEntry{},
	)
}

// defaultStatuses is the canonical status set created for each new organization.
var defaultStatuses = []models.Status{
	{Name: "Open", Slug: "open", Color: "#6b7280", Category: models.StatusCategoryOpen, IsDefault: true, Position: 0},
	{Name: "Planned", Slug: "planned", Color: "#3b82f6", Category: models.StatusCategoryPlanned, Position: 1},
	{Name: "In Progress", Slug: "in-progress", Color: "#8b5cf6", Category: models.StatusCategoryInProgress, Position: 2},
	{Name: "Done", Slug: "done", Color: "#22c55e", Category: models.StatusCategoryDone, Position: 3},
	{Name: "Closed", Slug: "closed", Color: "#ef4444", Category: models.StatusCategoryClosed, Position: 4},
}

// SeedOrganizationDefaults creates the default status set for a freshly
// created organization. Safe to call repeatedly; existing slugs are kept.
func SeedOrganizationDefaults(db *gorm.DB, orgID string) error {
	for _, status := range defaultStatuses {
		status.OrganizationID = orgID
		err := db.Where(models.Status{OrganizationID: orgID, Slug: status.Slug}).
			Attrs(status).
			FirstOrCreate(&models.Status{}).Error
		if err != nil {
			return fmt.Errorf("seed status %q: %w", status.Slug, err)
		}
	}
	return nil
}
