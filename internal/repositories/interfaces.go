package repositories

import (
	"context"
	"errors"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
)

var ErrNotFound = errors.New("record not found")

// ===== SHARED FILTER STRUCTS =====

type AttemptFilters struct {
	LearnerID    string `json:"learner_id"`
	AssessmentID string `json:"assessment_id"`
	Passed       *bool  `json:"passed"`
	Limit        int    `json:"limit"`
	Offset       int    `json:"offset"`
	SortBy       string `json:"sort_by"`    // "submitted_at", "score", "attempt"
	SortOrder    string `json:"sort_order"` // "asc", "desc"
}

// ===== REPOSITORY INTERFACES =====

// AssessmentRepository stores assessment definitions. GetAssessment makes
// every implementation usable as a session source.
type AssessmentRepository interface {
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
	Save(ctx context.Context, assessment *models.Assessment) error
	ListPublished(ctx context.Context) ([]*models.Assessment, error)
}

// AttemptRepository records graded attempts
type AttemptRepository interface {
	Create(ctx context.Context, record *models.AttemptRecord) error
	GetBySession(ctx context.Context, sessionID string) ([]*models.AttemptRecord, error)
	List(ctx context.Context, filters AttemptFilters) ([]*models.AttemptRecord, int64, error)
	CountByLearner(ctx context.Context, learnerID, assessmentID string) (int64, error)
}
