package services

import (
	"context"
	"encoding/json"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories"
	"github.com/SAP-F-2025/assessment-session-engine/internal/session"
)

// SessionService is the learner-facing API of the engine. Every call is
// checked against the learner the session was started for.
type SessionService interface {
	Start(ctx context.Context, req *StartSessionRequest, learnerID string) (*models.SessionSnapshot, error)
	Snapshot(ctx context.Context, sessionID, learnerID string) (*models.SessionSnapshot, error)

	// Answers
	ReplaceAnswer(ctx context.Context, sessionID, learnerID, questionID string, req *ReplaceAnswerRequest) (*models.SessionSnapshot, error)
	ToggleOption(ctx context.Context, sessionID, learnerID, questionID string, req *ToggleOptionRequest) (*models.SessionSnapshot, error)
	SetMatch(ctx context.Context, sessionID, learnerID, questionID string, req *SetMatchRequest) (*models.SessionSnapshot, error)
	UploadFile(ctx context.Context, sessionID, learnerID, questionID string, file *FileUploadRequest) (*models.SessionSnapshot, error)

	Navigate(ctx context.Context, sessionID, learnerID string, req *NavigateRequest) (*NavigationResponse, error)

	// Lifecycle
	Submit(ctx context.Context, sessionID, learnerID string) (*models.ResultSummary, error)
	Retake(ctx context.Context, sessionID, learnerID string) (*models.SessionSnapshot, error)
	Result(ctx context.Context, sessionID, learnerID string) (*models.ResultSummary, error)
	ExportResult(ctx context.Context, sessionID, learnerID string) ([]byte, error)
	Close(ctx context.Context, sessionID, learnerID string) error

	// History
	ListAttempts(ctx context.Context, learnerID string, filters repositories.AttemptFilters) ([]*models.AttemptRecord, int64, error)

	Shutdown()
}

// SnapshotSaver autosaves answers after every change.
type SnapshotSaver interface {
	Save(ctx context.Context, snapshot models.SessionSnapshot) error
	Delete(ctx context.Context, sessionID string) error
}

// SessionMetrics receives lifecycle events and session counts.
type SessionMetrics interface {
	Observe(e session.Event)
	SessionOpened()
	SessionClosed()
}

// ===== REQUESTS =====

type StartSessionRequest struct {
	AssessmentID string `json:"assessment_id" validate:"required,max=64"`
}

// ReplaceAnswerRequest carries the raw answer content. Its shape depends on
// the question type and is decoded by the registry. A missing or null
// content clears the slot.
type ReplaceAnswerRequest struct {
	Content json.RawMessage `json:"content"`
}

type ToggleOptionRequest struct {
	OptionID string `json:"option_id" validate:"required"`
}

// SetMatchRequest maps one left item to a right item. An empty RightID
// clears the mapping.
type SetMatchRequest struct {
	LeftID  string `json:"left_id" validate:"required"`
	RightID string `json:"right_id"`
}

type FileUploadRequest struct {
	Filename string `validate:"required"`
	MimeType string
	Data     []byte
}

const (
	NavigateNext     = "next"
	NavigatePrevious = "previous"
	NavigateGoTo     = "goto"
)

type NavigateRequest struct {
	Action string `json:"action" validate:"required,oneof=next previous goto"`
	Index  *int   `json:"index,omitempty" validate:"omitempty,min=0"`
}

// ===== RESPONSES =====

type NavigationResponse struct {
	Moved        bool `json:"moved"`
	CurrentIndex int  `json:"current_index"`
	Total        int  `json:"total"`
}
