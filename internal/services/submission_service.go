package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	apperrors "github.com/SAP-F-2025/assessment-session-engine/internal/errors"
	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/registry"
	"github.com/SAP-F-2025/assessment-session-engine/internal/session"
)

// Grader is the external grading collaborator.
type Grader interface {
	Grade(ctx context.Context, payload *models.SubmissionPayload) (*models.GradingResult, error)
}

// DefinitionGrader is implemented by graders that can score against the
// definition a session loaded instead of fetching it again by id.
type DefinitionGrader interface {
	GradeAgainst(ctx context.Context, a *models.Assessment, payload *models.SubmissionPayload) (*models.GradingResult, error)
}

// SubmissionPipeline serializes a frozen session, sends it to the grader
// and maps the grader's answer into a ResultSummary.
type SubmissionPipeline struct {
	registry *registry.Registry
	grader   Grader
	logger   *slog.Logger
	now      func() time.Time
}

func NewSubmissionPipeline(reg *registry.Registry, grader Grader, logger *slog.Logger) *SubmissionPipeline {
	return &SubmissionPipeline{
		registry: reg,
		grader:   grader,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit implements session.Submitter.
func (p *SubmissionPipeline) Submit(ctx context.Context, in session.SubmissionInput) (*models.ResultSummary, error) {
	payload, err := p.BuildPayload(in)
	if err != nil {
		return nil, &apperrors.SubmissionError{SessionID: in.SessionID, Attempt: in.Attempt, Cause: err}
	}

	provisional := p.PreScore(in)
	p.logger.Info("Submitting session for grading",
		"session_id", in.SessionID,
		"assessment_id", payload.AssessmentID,
		"learner_id", in.LearnerID,
		"attempt", in.Attempt,
		"answers", len(payload.Answers),
		"auto_submit", in.AutoSubmit,
		"provisional_score", provisionalScore(provisional))

	graded, err := p.grade(ctx, in.Assessment, payload)
	if err != nil {
		p.logger.Error("Grading failed",
			"session_id", in.SessionID,
			"attempt", in.Attempt,
			"error", err)
		return nil, &apperrors.SubmissionError{SessionID: in.SessionID, Attempt: in.Attempt, Cause: err}
	}
	if graded == nil {
		return nil, &apperrors.SubmissionError{SessionID: in.SessionID, Attempt: in.Attempt, Cause: ErrGraderUnavailable}
	}

	summary := p.Summarize(in.Assessment, in.Questions, graded, provisional)
	summary.SubmittedAt = payload.SubmittedAt

	p.logger.Info("Session graded",
		"session_id", in.SessionID,
		"score", summary.Score,
		"total_points", summary.TotalPoints,
		"percentage", summary.Percentage,
		"passed", summary.Passed)

	return summary, nil
}

func (p *SubmissionPipeline) grade(ctx context.Context, a *models.Assessment, payload *models.SubmissionPayload) (*models.GradingResult, error) {
	if dg, ok := p.grader.(DefinitionGrader); ok {
		return dg.GradeAgainst(ctx, a, payload)
	}
	return p.grader.Grade(ctx, payload)
}

// BuildPayload serializes every answer through the registry.
func (p *SubmissionPipeline) BuildPayload(in session.SubmissionInput) (*models.SubmissionPayload, error) {
	questions := make(map[string]*models.Question, len(in.Questions))
	for _, q := range in.Questions {
		questions[q.ID] = q
	}

	answers := make([]models.SerializedAnswer, 0, len(in.Answers))
	for _, a := range in.Answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			return nil, fmt.Errorf("answer for unknown question %s", a.QuestionID)
		}
		h, err := p.registry.For(q)
		if err != nil {
			return nil, err
		}
		content, err := h.Serialize(a.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize answer for question %s: %w", q.ID, err)
		}
		answers = append(answers, models.SerializedAnswer{QuestionID: q.ID, Type: q.Type, Content: content})
	}

	return &models.SubmissionPayload{
		SessionID:    in.SessionID,
		AssessmentID: in.Assessment.ID,
		LearnerID:    in.LearnerID,
		Attempt:      in.Attempt,
		SubmittedAt:  p.now().UTC(),
		Answers:      answers,
	}, nil
}

// PreScore grades the auto-gradable answers locally. The results are
// provisional; the grader's answer takes precedence.
func (p *SubmissionPipeline) PreScore(in session.SubmissionInput) map[string]models.QuestionResult {
	questions := make(map[string]*models.Question, len(in.Questions))
	for _, q := range in.Questions {
		questions[q.ID] = q
	}

	results := make(map[string]models.QuestionResult)
	for _, a := range in.Answers {
		q, ok := questions[a.QuestionID]
		if !ok {
			continue
		}
		h, err := p.registry.For(q)
		if err != nil {
			continue
		}
		correct, gradable := h.Compare(q, a.Content)
		if !gradable {
			continue
		}
		r := models.QuestionResult{
			QuestionID:    q.ID,
			IsCorrect:     correct,
			CorrectAnswer: h.CorrectAnswer(q),
			Provisional:   true,
		}
		if correct {
			r.PointsAwarded = float64(q.Points)
		}
		results[q.ID] = r
	}
	return results
}

// Summarize maps a grading result onto the session's questions. The
// grader's score is authoritative, minus points it awarded for questions the
// session does not have; it is clamped to the total from the question point
// values.
func (p *SubmissionPipeline) Summarize(a *models.Assessment, questions []*models.Question, graded *models.GradingResult, provisional map[string]models.QuestionResult) *models.ResultSummary {
	known := make(map[string]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}

	score := graded.Score
	byID := make(map[string]models.QuestionResult, len(graded.PerQuestion))
	for _, r := range graded.PerQuestion {
		if !known[r.QuestionID] {
			score -= r.PointsAwarded
			p.logger.Warn("Grader returned a result for an unknown question", "question_id", r.QuestionID)
			continue
		}
		byID[r.QuestionID] = r
	}

	total := a.TotalPoints()
	score = math.Max(0, math.Min(score, float64(total)))
	summary := &models.ResultSummary{
		Score:       score,
		TotalPoints: total,
		Percentage:  Percentage(score, total),
		Feedback:    graded.Feedback,
	}
	summary.Passed = summary.Percentage >= a.PassingScore

	summary.PerQuestion = make([]models.QuestionResult, 0, len(questions))
	for _, q := range questions {
		r, ok := byID[q.ID]
		switch {
		case ok:
			if r.CorrectAnswer == nil {
				r.CorrectAnswer = provisional[q.ID].CorrectAnswer
			}
		case provisional != nil && provisional[q.ID].QuestionID != "":
			r = provisional[q.ID]
		default:
			r = models.QuestionResult{QuestionID: q.ID, Feedback: "not graded", Provisional: true}
		}
		summary.PerQuestion = append(summary.PerQuestion, r)
	}
	return summary
}

// Percentage returns round(score / total * 100) within [0, 100], or 0
// without points.
func Percentage(score float64, total int) int {
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(score / float64(total) * 100))
	return max(0, min(pct, 100))
}

func provisionalScore(results map[string]models.QuestionResult) float64 {
	score := 0.0
	for _, r := range results {
		score += r.PointsAwarded
	}
	return score
}
