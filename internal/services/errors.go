package services

import (
	"errors"
	"fmt"

	apperrors "github.com/SAP-F-2025/assessment-session-engine/internal/errors"
)

// ===== COMMON SERVICE ERRORS =====

var (
	// Generic errors
	ErrNotFound         = errors.New("resource not found")
	ErrUnauthorized     = errors.New("unauthorized access")
	ErrValidationFailed = errors.New("validation failed")

	// Session specific errors
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionAccessDenied = errors.New("access denied to session")
	ErrResultNotAvailable  = errors.New("session has no result yet")

	// Grading specific errors
	ErrGraderUnavailable = errors.New("grading service unavailable")
)

// Engine errors, re-exported so callers only import this package.
var (
	ErrAssessmentUnavailable   = apperrors.ErrAssessmentUnavailable
	ErrUnsupportedQuestionType = apperrors.ErrUnsupportedQuestionType
	ErrSessionNotActive        = apperrors.ErrSessionNotActive
	ErrSubmissionFailed        = apperrors.ErrSubmissionFailed
	ErrRetakeNotAllowed        = apperrors.ErrRetakeNotAllowed
	ErrAnswerRejected          = apperrors.ErrAnswerRejected
)

// ===== CUSTOM ERROR TYPES =====

// Use shared validation errors from errors package
type ValidationError = apperrors.ValidationError
type ValidationErrors = apperrors.ValidationErrors

type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID string `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (pe *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %s - %s",
		pe.UserID, pe.Action, pe.Resource, pe.ResourceID, pe.Reason)
}

func (pe *PermissionError) Unwrap() error {
	return ErrSessionAccessDenied
}

// ===== ERROR HELPERS =====

// NewValidationError creates a new validation error using the shared type
func NewValidationError(field, message string, value interface{}) *ValidationError {
	return apperrors.NewValidationError(field, message, value)
}

func NewPermissionError(userID, resourceID, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsNotFound checks if error represents a "not found" condition
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrSessionNotFound) ||
		errors.Is(err, ErrResultNotAvailable) ||
		errors.Is(err, ErrAssessmentUnavailable)
}

// IsUnauthorized checks if error represents an "unauthorized" condition
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrSessionAccessDenied)
}

// IsValidation checks if error represents a validation failure
func IsValidation(err error) bool {
	if errors.Is(err, ErrValidationFailed) || errors.Is(err, ErrAnswerRejected) {
		return true
	}
	var ve apperrors.ValidationErrors
	return errors.As(err, &ve)
}

// IsConflict checks if error represents a request the session state refuses
func IsConflict(err error) bool {
	return errors.Is(err, ErrSessionNotActive) ||
		errors.Is(err, ErrRetakeNotAllowed)
}

// IsUnprocessable checks if error represents a definition the engine cannot run
func IsUnprocessable(err error) bool {
	return errors.Is(err, ErrUnsupportedQuestionType)
}

// IsFatal reports errors that block a session for good.
func IsFatal(err error) bool {
	return apperrors.IsFatal(err)
}

// IsRecoverable reports errors after which the session may continue.
func IsRecoverable(err error) bool {
	return apperrors.IsRecoverable(err)
}
