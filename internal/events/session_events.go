package events

import (
	"time"

	"github.com/ThreeDotsLabs/watermill"
)

// EventType represents the session lifecycle events published to the bus
type EventType string

const (
	EventSessionStarted     EventType = "session.started"
	EventSessionLoadFailed  EventType = "session.load_failed"
	EventSessionTimeWarning EventType = "session.time_warning"
	EventSessionExpired     EventType = "session.expired"
	EventSessionSubmitted   EventType = "session.submitted"
	EventSessionGraded      EventType = "session.graded"
	EventSubmissionFailed   EventType = "session.submission_failed"
	EventSessionRetake      EventType = "session.retake"
)

const (
	eventSource  = "assessment-session-engine"
	eventVersion = "1.0"
)

// SessionEvent is the envelope for every session event
type SessionEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// SessionRef identifies the session an event belongs to
type SessionRef struct {
	SessionID    string `json:"session_id"`
	AssessmentID string `json:"assessment_id"`
	LearnerID    string `json:"learner_id"`
	Attempt      int    `json:"attempt"`
}

// Session event payloads

type SessionStartedEvent struct {
	SessionRef
	AssessmentTitle  string    `json:"assessment_title"`
	QuestionCount    int       `json:"question_count"`
	RemainingSeconds *int      `json:"remaining_seconds,omitempty"`
	StartedAt        time.Time `json:"started_at"`
}

type SessionLoadFailedEvent struct {
	SessionRef
	Reason string `json:"reason"`
	Fatal  bool   `json:"fatal"`
}

type SessionTimeWarningEvent struct {
	SessionRef
	RemainingSeconds int       `json:"remaining_seconds"`
	WarningTime      time.Time `json:"warning_time"`
}

type SessionExpiredEvent struct {
	SessionRef
	ExpiredAt time.Time `json:"expired_at"`
}

type SessionSubmittedEvent struct {
	SessionRef
	AutoSubmit  bool      `json:"auto_submit"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type SessionGradedEvent struct {
	SessionRef
	Score       float64   `json:"score"`
	TotalPoints int       `json:"total_points"`
	Percentage  int       `json:"percentage"`
	Passed      bool      `json:"passed"`
	AutoSubmit  bool      `json:"auto_submit"`
	GradedAt    time.Time `json:"graded_at"`
}

type SubmissionFailedEvent struct {
	SessionRef
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}

type SessionRetakeEvent struct {
	SessionRef
	PreviousAttempt int `json:"previous_attempt"`
}

// NewSessionEvent wraps a payload in an envelope with a fresh id.
func NewSessionEvent(eventType EventType, data interface{}) *SessionEvent {
	return &SessionEvent{
		ID:        watermill.NewUUID(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Source:    eventSource,
		Version:   eventVersion,
		Data:      data,
	}
}

// PartitionKey returns the key used to keep one session's events in order.
func (e *SessionEvent) PartitionKey() string {
	if ref, ok := e.Data.(interface{ Ref() SessionRef }); ok {
		return ref.Ref().SessionID
	}
	return e.ID
}

// Ref is promoted to every payload that embeds SessionRef.
func (r SessionRef) Ref() SessionRef {
	return r
}
