package models

import "time"

// SerializedAnswer is the transport form of one slot.
type SerializedAnswer struct {
	QuestionID string       `json:"question_id"`
	Type       QuestionType `json:"type"`
	Content    any          `json:"content"`
}

// SubmissionPayload is the batch sent to the grading collaborator.
type SubmissionPayload struct {
	SessionID    string             `json:"session_id"`
	AssessmentID string             `json:"assessment_id"`
	LearnerID    string             `json:"learner_id"`
	Attempt      int                `json:"attempt"`
	SubmittedAt  time.Time          `json:"submitted_at"`
	Answers      []SerializedAnswer `json:"answers"`
}

// GradingResult is what the grading collaborator returns.
type GradingResult struct {
	Score       float64          `json:"score"`
	Feedback    string           `json:"feedback"`
	PerQuestion []QuestionResult `json:"per_question"`
}

type QuestionResult struct {
	QuestionID    string  `json:"question_id"`
	IsCorrect     bool    `json:"is_correct"`
	PointsAwarded float64 `json:"points_awarded"`
	CorrectAnswer any     `json:"correct_answer,omitempty"`
	Feedback      string  `json:"feedback,omitempty"`
	Provisional   bool    `json:"provisional,omitempty"`
}

type ResultSummary struct {
	Score       float64          `json:"score"`
	TotalPoints int              `json:"total_points"`
	Percentage  int              `json:"percentage"`
	Passed      bool             `json:"passed"`
	Feedback    string           `json:"feedback,omitempty"`
	PerQuestion []QuestionResult `json:"per_question,omitempty"`
	SubmittedAt time.Time        `json:"submitted_at"`
	AutoSubmit  bool             `json:"auto_submit"`
}

// LearnerView returns the summary as it may be shown to the learner.
// Per-question detail is withheld when showResults is false.
func (r *ResultSummary) LearnerView(showResults bool) *ResultSummary {
	if r == nil {
		return nil
	}
	view := *r
	if !showResults {
		view.PerQuestion = nil
		return &view
	}
	view.PerQuestion = append([]QuestionResult(nil), r.PerQuestion...)
	return &view
}
