package session

import (
	"time"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
)

type EventKind string

const (
	EventStarted          EventKind = "started"
	EventLoadFailed       EventKind = "load_failed"
	EventTimeWarning      EventKind = "time_warning"
	EventExpired          EventKind = "expired"
	EventSubmitting       EventKind = "submitting"
	EventCompleted        EventKind = "completed"
	EventSubmissionFailed EventKind = "submission_failed"
	EventRetake           EventKind = "retake"
)

// Event describes a lifecycle change. Observers receive events after the
// machine lock has been released, in the order they happened.
type Event struct {
	Kind             EventKind
	SessionID        string
	AssessmentID     string
	LearnerID        string
	Attempt          int
	State            models.SessionState
	RemainingSeconds *int
	AutoSubmit       bool
	Result           *models.ResultSummary
	Err              error
	At               time.Time

	// Snapshot is the graded session as it was when the result was stored.
	// Set on EventCompleted only.
	Snapshot *models.SessionSnapshot
}

// Observer receives lifecycle events.
type Observer func(Event)
