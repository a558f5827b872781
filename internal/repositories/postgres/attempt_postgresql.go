package postgres

import (
	"context"
	"fmt"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories"
	"gorm.io/gorm"
)

var attemptSortColumns = map[string]string{
	"":             "submitted_at",
	"submitted_at": "submitted_at",
	"score":        "score",
	"attempt":      "attempt",
}

type AttemptPostgreSQL struct {
	db      *gorm.DB
	helpers *SharedHelpers
}

func NewAttemptPostgreSQL(db *gorm.DB) repositories.AttemptRepository {
	return &AttemptPostgreSQL{
		db:      db,
		helpers: NewSharedHelpers(db),
	}
}

func (a *AttemptPostgreSQL) Create(ctx context.Context, record *models.AttemptRecord) error {
	if err := a.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create attempt record: %w", err)
	}
	return nil
}

func (a *AttemptPostgreSQL) GetBySession(ctx context.Context, sessionID string) ([]*models.AttemptRecord, error) {
	var records []*models.AttemptRecord
	if err := a.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("attempt ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to load attempts for session %s: %w", sessionID, err)
	}
	return records, nil
}

func (a *AttemptPostgreSQL) List(ctx context.Context, filters repositories.AttemptFilters) ([]*models.AttemptRecord, int64, error) {
	var records []*models.AttemptRecord
	var total int64

	// apply filter first
	query := a.db.WithContext(ctx).Model(&models.AttemptRecord{})
	query = a.helpers.ApplyAttemptFilters(query, filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// then apply pagination and sorting
	query = a.helpers.ApplyPaginationAndSort(query, filters.SortBy, filters.SortOrder, filters.Limit, filters.Offset, attemptSortColumns)

	if err := query.Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (a *AttemptPostgreSQL) CountByLearner(ctx context.Context, learnerID, assessmentID string) (int64, error) {
	var count int64
	err := a.db.WithContext(ctx).
		Model(&models.AttemptRecord{}).
		Where("learner_id = ? AND assessment_id = ?", learnerID, assessmentID).
		Count(&count).Error
	return count, err
}
