package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/assessment-session-engine/internal/services"
	"github.com/SAP-F-2025/assessment-session-engine/internal/utils"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ListResponse wraps a page of records
type ListResponse struct {
	Data   interface{} `json:"data"`
	Total  int64       `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides common logging functionality for all handlers
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{
		logger: logger,
	}
}

// requestLogger prefers the request-scoped logger set by RequestLogger
func (h *BaseHandler) requestLogger(c *gin.Context) utils.Logger {
	if _, ok := c.Get("logger"); ok {
		return utils.GetLoggerFromContext(c)
	}
	return h.logger
}

func (h *BaseHandler) LogInfo(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := append([]interface{}{"learner_id", c.GetString(learnerIDKey)}, additionalFields...)
	h.requestLogger(c).Info(message, fields...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := append([]interface{}{
		"learner_id", c.GetString(learnerIDKey),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}, additionalFields...)
	h.requestLogger(c).LogError(err, message, fields...)
}

// RespondWithError sends a consistent error response and logs it
func (h *BaseHandler) RespondWithError(c *gin.Context, statusCode int, message string, err error, details ...interface{}) {
	errorResp := ErrorResponse{
		Message: message,
	}
	if len(details) > 0 {
		errorResp.Details = details[0]
	}

	if statusCode >= http.StatusInternalServerError {
		h.LogError(c, err, message, "status_code", statusCode)
	}
	c.AbortWithStatusJSON(statusCode, errorResp)
}

// handleServiceError maps service errors onto HTTP status codes
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	// Definition problems first: they may wrap validation errors.
	switch {
	case services.IsUnprocessable(err):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Assessment contains an unsupported question type",
			Details: err.Error(),
			Code:    "unsupported_question_type",
		})
		return
	case errors.Is(err, services.ErrAssessmentUnavailable):
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{
			Message: "Assessment unavailable",
			Details: err.Error(),
			Code:    "assessment_unavailable",
		})
		return
	}

	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
			Code:    "validation_failed",
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
			Code: "access_denied",
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrUnauthorized):
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Message: "User not authenticated"})
	case errors.Is(err, services.ErrSessionNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Message: "Session not found", Code: "session_not_found"})
	case errors.Is(err, services.ErrResultNotAvailable):
		c.AbortWithStatusJSON(http.StatusNotFound, ErrorResponse{Message: "Session has no result yet", Code: "result_not_available"})
	case errors.Is(err, services.ErrRetakeNotAllowed):
		c.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{Message: "Retakes are not allowed", Details: err.Error(), Code: "retake_not_allowed"})
	case errors.Is(err, services.ErrSessionNotActive):
		c.AbortWithStatusJSON(http.StatusConflict, ErrorResponse{Message: "Session is not active", Details: err.Error(), Code: "session_not_active"})
	case errors.Is(err, services.ErrSubmissionFailed):
		h.LogError(c, err, "Submission failed")
		c.AbortWithStatusJSON(http.StatusBadGateway, ErrorResponse{
			Message: "Submission failed, answers were kept and can be submitted again",
			Details: err.Error(),
			Code:    "submission_failed",
		})
	case services.IsValidation(err):
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Message: "Answer rejected", Details: err.Error(), Code: "answer_rejected"})
	default:
		h.RespondWithError(c, http.StatusInternalServerError, "Internal server error", err)
	}
}
