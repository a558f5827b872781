package models

import "time"

type SessionState string

const (
	SessionLoading    SessionState = "loading"
	SessionActive     SessionState = "active"
	SessionSubmitting SessionState = "submitting"
	SessionCompleted  SessionState = "completed"
	SessionError      SessionState = "error"
)

// SessionSnapshot is a point-in-time read model of a session.
type SessionSnapshot struct {
	ID               string             `json:"id"`
	AssessmentID     string             `json:"assessment_id"`
	LearnerID        string             `json:"learner_id"`
	State            SessionState       `json:"state"`
	Attempt          int                `json:"attempt"`
	CurrentIndex     int                `json:"current_index"`
	QuestionOrder    []string           `json:"question_order"`
	Answered         []bool             `json:"answered"`
	Answers          []SerializedAnswer `json:"answers,omitempty"`
	RemainingSeconds *int               `json:"remaining_seconds"`
	Expired          bool               `json:"expired"`
	StartedAt        time.Time          `json:"started_at"`
	Result           *ResultSummary     `json:"result,omitempty"`
	LastError        string             `json:"last_error,omitempty"`
}

// AnsweredCount counts slots flagged as answered.
func (s *SessionSnapshot) AnsweredCount() int {
	n := 0
	for _, ok := range s.Answered {
		if ok {
			n++
		}
	}
	return n
}
