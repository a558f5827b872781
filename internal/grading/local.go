// Package grading contains the grading collaborators a submission is sent to.
package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/registry"
	"github.com/SAP-F-2025/assessment-session-engine/internal/session"
)

const pendingReview = "pending manual review"

// LocalGrader grades a submission in-process. Multiple-choice and matching
// answers are compared against the key; open-ended answers go through the
// optional TextMatcher; everything else is left for manual review with zero
// points.
type LocalGrader struct {
	source   session.AssessmentSource
	registry *registry.Registry
	matcher  TextMatcher
	logger   *slog.Logger
}

func NewLocalGrader(source session.AssessmentSource, reg *registry.Registry, matcher TextMatcher, logger *slog.Logger) *LocalGrader {
	return &LocalGrader{
		source:   source,
		registry: reg,
		matcher:  matcher,
		logger:   logger,
	}
}

// Grade looks the definition up by id. Sessions grade through GradeAgainst
// so a definition changed at the source after loading cannot alter the key.
func (g *LocalGrader) Grade(ctx context.Context, payload *models.SubmissionPayload) (*models.GradingResult, error) {
	a, err := g.source.GetAssessment(ctx, payload.AssessmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load assessment %s for grading: %w", payload.AssessmentID, err)
	}
	if a == nil {
		return nil, fmt.Errorf("assessment %s not found for grading", payload.AssessmentID)
	}
	return g.GradeAgainst(ctx, a, payload)
}

// GradeAgainst grades payload against the given definition.
func (g *LocalGrader) GradeAgainst(_ context.Context, a *models.Assessment, payload *models.SubmissionPayload) (*models.GradingResult, error) {
	if a == nil || a.ID != payload.AssessmentID {
		return nil, fmt.Errorf("submission for assessment %s graded against a different definition", payload.AssessmentID)
	}

	answers := make(map[string]models.SerializedAnswer, len(payload.Answers))
	for _, sa := range payload.Answers {
		answers[sa.QuestionID] = sa
	}

	result := &models.GradingResult{PerQuestion: make([]models.QuestionResult, 0, len(a.Questions))}
	pending := 0
	for i := range a.Questions {
		q := &a.Questions[i]
		r, err := g.gradeQuestion(q, answers)
		if err != nil {
			return nil, err
		}
		if r.Provisional {
			pending++
		}
		result.Score += r.PointsAwarded
		result.PerQuestion = append(result.PerQuestion, r)
	}

	if pending > 0 {
		result.Feedback = fmt.Sprintf("%d question(s) %s", pending, pendingReview)
	}

	g.logger.Debug("Graded submission locally",
		"session_id", payload.SessionID,
		"score", result.Score,
		"pending", pending)

	return result, nil
}

func (g *LocalGrader) gradeQuestion(q *models.Question, answers map[string]models.SerializedAnswer) (models.QuestionResult, error) {
	h, err := g.registry.For(q)
	if err != nil {
		return models.QuestionResult{}, err
	}

	content := h.EmptyAnswer(q)
	if sa, ok := answers[q.ID]; ok {
		raw, err := json.Marshal(sa.Content)
		if err != nil {
			return models.QuestionResult{}, fmt.Errorf("failed to encode answer for question %s: %w", q.ID, err)
		}
		if content, err = h.Decode(q, raw); err != nil {
			return models.QuestionResult{}, err
		}
	}

	r := models.QuestionResult{QuestionID: q.ID}
	if correct, gradable := h.Compare(q, content); gradable {
		r.IsCorrect = correct
		r.CorrectAnswer = h.CorrectAnswer(q)
		if correct {
			r.PointsAwarded = float64(q.Points)
		}
		return r, nil
	}

	if text, ok := content.(models.OpenEndedAnswer); ok && g.matcher != nil {
		if credit, matched := g.matcher.Match(q, text.Text); matched {
			credit = math.Max(0, math.Min(1, credit))
			r.PointsAwarded = credit * float64(q.Points)
			r.IsCorrect = credit >= 1
			if credit > 0 && credit < 1 {
				r.Feedback = "partially correct"
			}
			return r, nil
		}
	}

	r.Feedback = pendingReview
	r.Provisional = true
	return r, nil
}
