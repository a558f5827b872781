package postgres

import (
	"errors"
	"fmt"

	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories"
	"gorm.io/gorm"
)

const defaultPageSize = 50

type SharedHelpers struct {
	db *gorm.DB
}

func NewSharedHelpers(db *gorm.DB) *SharedHelpers {
	return &SharedHelpers{db: db}
}

// ApplyPaginationAndSort orders by an allowed column and pages the query
func (h *SharedHelpers) ApplyPaginationAndSort(query *gorm.DB, sortBy, sortOrder string, limit, offset int, allowed map[string]string) *gorm.DB {
	column, ok := allowed[sortBy]
	if !ok {
		column = allowed[""]
	}
	if sortOrder != "asc" {
		sortOrder = "desc"
	}
	query = query.Order(fmt.Sprintf("%s %s", column, sortOrder))

	if limit <= 0 {
		limit = defaultPageSize
	}
	query = query.Limit(limit)
	if offset > 0 {
		query = query.Offset(offset)
	}
	return query
}

// ApplyAttemptFilters narrows an attempt query
func (h *SharedHelpers) ApplyAttemptFilters(query *gorm.DB, filters repositories.AttemptFilters) *gorm.DB {
	if filters.LearnerID != "" {
		query = query.Where("learner_id = ?", filters.LearnerID)
	}
	if filters.AssessmentID != "" {
		query = query.Where("assessment_id = ?", filters.AssessmentID)
	}
	if filters.Passed != nil {
		query = query.Where("passed = ?", *filters.Passed)
	}
	return query
}

// translateError maps gorm's not-found onto the repository sentinel
func translateError(err error, format string, args ...interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), repositories.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
