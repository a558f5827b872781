package errors

import (
	stderrors "errors"
	"fmt"
)

// ===== SESSION ENGINE ERRORS =====

var (
	// Fatal: the session cannot leave Loading.
	ErrAssessmentUnavailable   = stderrors.New("assessment unavailable")
	ErrUnsupportedQuestionType = stderrors.New("unsupported question type")

	// Recoverable: the request is rejected and the session is unchanged.
	ErrSessionNotActive = stderrors.New("session is not active")
	ErrRetakeNotAllowed = stderrors.New("retake not allowed")
	ErrAnswerRejected   = stderrors.New("answer rejected")

	// Recoverable: the session returns to active and may be submitted again.
	ErrSubmissionFailed = stderrors.New("submission failed")
)

// UnsupportedQuestionTypeError names the type a registry lookup missed.
type UnsupportedQuestionTypeError struct {
	Type       string
	QuestionID string
}

func (e *UnsupportedQuestionTypeError) Error() string {
	if e.QuestionID != "" {
		return fmt.Sprintf("unsupported question type %q on question %s", e.Type, e.QuestionID)
	}
	return fmt.Sprintf("unsupported question type %q", e.Type)
}

func (e *UnsupportedQuestionTypeError) Unwrap() error {
	return ErrUnsupportedQuestionType
}

// AssessmentUnavailableError carries the reason a definition was refused.
type AssessmentUnavailableError struct {
	AssessmentID string
	Reason       string
	Cause        error
}

func (e *AssessmentUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("assessment %s unavailable: %s: %v", e.AssessmentID, e.Reason, e.Cause)
	}
	return fmt.Sprintf("assessment %s unavailable: %s", e.AssessmentID, e.Reason)
}

func (e *AssessmentUnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrAssessmentUnavailable}
	}
	return []error{ErrAssessmentUnavailable, e.Cause}
}

// SubmissionError wraps a grading or transport failure.
type SubmissionError struct {
	SessionID string
	Attempt   int
	Cause     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("submission of session %s (attempt %d) failed: %v", e.SessionID, e.Attempt, e.Cause)
}

func (e *SubmissionError) Unwrap() []error {
	return []error{ErrSubmissionFailed, e.Cause}
}

// StateError reports a request the current lifecycle state does not accept.
type StateError struct {
	Operation string
	State     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Operation, e.State)
}

func (e *StateError) Unwrap() error {
	return ErrSessionNotActive
}

// IsFatal reports errors that must block the session and never be retried.
func IsFatal(err error) bool {
	return stderrors.Is(err, ErrAssessmentUnavailable) ||
		stderrors.Is(err, ErrUnsupportedQuestionType)
}

// IsRecoverable reports errors after which the session keeps its state.
func IsRecoverable(err error) bool {
	return stderrors.Is(err, ErrSessionNotActive) ||
		stderrors.Is(err, ErrSubmissionFailed) ||
		stderrors.Is(err, ErrRetakeNotAllowed) ||
		stderrors.Is(err, ErrAnswerRejected)
}
