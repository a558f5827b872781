package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AssessmentPostgreSQL struct {
	db *gorm.DB
}

func NewAssessmentPostgreSQL(db *gorm.DB) repositories.AssessmentRepository {
	return &AssessmentPostgreSQL{db: db}
}

func orderedQuestions(db *gorm.DB) *gorm.DB {
	return db.Order("sort_order ASC")
}

// GetAssessment retrieves an assessment with its questions
func (a *AssessmentPostgreSQL) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	var record models.AssessmentRecord
	err := a.db.WithContext(ctx).
		Preload("Questions", orderedQuestions).
		First(&record, "id = ?", id).Error
	if err != nil {
		return nil, translateError(err, "failed to load assessment %s", id)
	}

	return record.ToAssessment()
}

// Save upserts an assessment and replaces its questions
func (a *AssessmentPostgreSQL) Save(ctx context.Context, assessment *models.Assessment) error {
	record, err := models.NewAssessmentRecord(assessment)
	if err != nil {
		return err
	}
	questions := record.Questions
	record.Questions = nil

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(record).Error; err != nil {
			return fmt.Errorf("failed to save assessment: %w", err)
		}

		if err := tx.Where("assessment_id = ?", record.ID).Delete(&models.QuestionRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear questions: %w", err)
		}

		if len(questions) > 0 {
			if err := tx.Create(&questions).Error; err != nil {
				return fmt.Errorf("failed to save questions: %w", err)
			}
		}
		return nil
	})
}

// ListPublished returns every published assessment with its questions
func (a *AssessmentPostgreSQL) ListPublished(ctx context.Context) ([]*models.Assessment, error) {
	var records []models.AssessmentRecord
	if err := a.db.WithContext(ctx).
		Where("status = ?", models.StatusPublished).
		Preload("Questions", orderedQuestions).
		Order("title ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}

	out := make([]*models.Assessment, 0, len(records))
	for i := range records {
		a, err := records[i].ToAssessment()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
