package postgres

import (
	"fmt"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"gorm.io/gorm"
)

// AutoMigrate creates or updates the tables the engine writes to.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.AssessmentRecord{},
		&models.QuestionRecord{},
		&models.AttemptRecord{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
