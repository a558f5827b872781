package handlers

import (
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories"
	"github.com/SAP-F-2025/assessment-session-engine/internal/services"
	"github.com/SAP-F-2025/assessment-session-engine/internal/utils"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
	maxUploadBytes int64
}

func NewSessionHandler(sessionService services.SessionService, maxUploadMB int, logger utils.Logger) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		maxUploadBytes: int64(maxUploadMB) * 1024 * 1024,
	}
}

// StartSession loads an assessment and starts a session for the caller
// @Summary Start session
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body services.StartSessionRequest true "Assessment to take"
// @Success 201 {object} models.SessionSnapshot
// @Failure 404 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	learnerID, ok := GetLearnerID(c)
	if !ok {
		return
	}

	var req services.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}

	snapshot, err := h.sessionService.Start(c.Request.Context(), &req, learnerID)
	if err != nil {
		if snapshot != nil {
			c.Header("X-Session-ID", snapshot.ID)
		}
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Session started", "session_id", snapshot.ID, "assessment_id", req.AssessmentID)
	c.JSON(http.StatusCreated, snapshot)
}

// GetSession returns the current snapshot
// @Summary Get session
// @Tags sessions
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} models.SessionSnapshot
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	learnerID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	snapshot, err := h.sessionService.Snapshot(c.Request.Context(), sessionID, learnerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// CloseSession stops the session clock and forgets the session
// @Summary Close session
// @Tags sessions
// @Param id path string true "Session ID"
// @Success 204
// @Router /sessions/{id} [delete]
func (h *SessionHandler) CloseSession(c *gin.Context) {
	learnerID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	if err := h.sessionService.Close(c.Request.Context(), sessionID, learnerID); err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ===== ANSWERS =====

// ReplaceAnswer replaces the whole answer of one question
// @Summary Replace answer
// @Tags answers
// @Accept json
// @Produce json
// @Param id path string true "Session ID"
// @Param question_id path string true "Question ID"
// @Param request body services.ReplaceAnswerRequest true "Answer content"
// @Success 200 {object} models.SessionSnapshot
// @Router /sessions/{id}/answers/{question_id} [put]
func (h *SessionHandler) ReplaceAnswer(c *gin.Context) {
	learnerID, sessionID, questionID, ok := h.answerParams(c)
	if !ok {
		return
	}

	var req services.ReplaceAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}

	snapshot, err := h.sessionService.ReplaceAnswer(c.Request.Context(), sessionID, learnerID, questionID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ToggleOption flips one option of a multiple-choice answer
// @Summary Toggle option
// @Tags answers
// @Accept json
// @Produce json
// @Param request body services.ToggleOptionRequest true "Option"
// @Success 200 {object} models.SessionSnapshot
// @Router /sessions/{id}/answers/{question_id}/toggle [post]
func (h *SessionHandler) ToggleOption(c *gin.Context) {
	learnerID, sessionID, questionID, ok := h.answerParams(c)
	if !ok {
		return
	}

	var req services.ToggleOptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}

	snapshot, err := h.sessionService.ToggleOption(c.Request.Context(), sessionID, learnerID, questionID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// SetMatch maps one left item of a matching answer
// @Summary Set match
// @Tags answers
// @Accept json
// @Produce json
// @Param request body services.SetMatchRequest true "Pair"
// @Success 200 {object} models.SessionSnapshot
// @Router /sessions/{id}/answers/{question_id}/pairs [put]
func (h *SessionHandler) SetMatch(c *gin.Context) {
	learnerID, sessionID, questionID, ok := h.answerParams(c)
	if !ok {
		return
	}

	var req services.SetMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}

	snapshot, err := h.sessionService.SetMatch(c.Request.Context(), sessionID, learnerID, questionID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// UploadFile stores a multipart file as the answer of a file-upload question
// @Summary Upload file answer
// @Tags answers
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Answer file"
// @Success 200 {object} models.SessionSnapshot
// @Failure 413 {object} ErrorResponse
// @Router /sessions/{id}/answers/{question_id}/file [post]
func (h *SessionHandler) UploadFile(c *gin.Context) {
	learnerID, sessionID, questionID, ok := h.answerParams(c)
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Missing file", err, err.Error())
		return
	}
	if h.maxUploadBytes > 0 && header.Size > h.maxUploadBytes {
		h.RespondWithError(c, http.StatusRequestEntityTooLarge, "File too large", nil,
			fmt.Sprintf("limit is %d bytes", h.maxUploadBytes))
		return
	}

	f, err := header.Open()
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Unreadable file", err, err.Error())
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Unreadable file", err, err.Error())
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}

	snapshot, err := h.sessionService.UploadFile(c.Request.Context(), sessionID, learnerID, questionID, &services.FileUploadRequest{
		Filename: header.Filename,
		MimeType: mimeType,
		Data:     data,
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ===== NAVIGATION & LIFECYCLE =====

// Navigate moves the current question pointer
// @Summary Navigate
// @Tags sessions
// @Accept json
// @Produce json
// @Param request body services.NavigateRequest true "Navigation"
// @Success 200 {object} services.NavigationResponse
// @Router /sessions/{id}/navigation [post]
func (h *SessionHandler) Navigate(c *gin.Context) {
	learnerID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	var req services.NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.RespondWithError(c, http.StatusBadRequest, "Invalid request payload", err, err.Error())
		return
	}

	resp, err := h.sessionService.Navigate(c.Request.Context(), sessionID, learnerID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SubmitSession grades the session. Concurrent calls share one submission.
// @Summary Submit session
// @Tags sessions
// @Produce json
// @Success 200 {object} models.ResultSummary
// @Failure 409 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	learnerID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), sessionID, learnerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	h.LogInfo(c, "Session submitted", "session_id", sessionID, "percentage", result.Percentage, "passed", result.Passed)
	c.JSON(http.StatusOK, result)
}

// RetakeSession restarts a completed session
// @Summary Retake session
// @Tags sessions
// @Produce json
// @Success 200 {object} models.SessionSnapshot
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/retake [post]
func (h *SessionHandler) RetakeSession(c *gin.Context) {
	learnerID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	snapshot, err := h.sessionService.Retake(c.Request.Context(), sessionID, learnerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// GetResult returns the graded result as the learner may see it
// @Summary Get result
// @Tags sessions
// @Produce json
// @Success 200 {object} models.ResultSummary
// @Router /sessions/{id}/result [get]
func (h *SessionHandler) GetResult(c *gin.Context) {
	learnerID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	result, err := h.sessionService.Result(c.Request.Context(), sessionID, learnerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ExportResult downloads the result as a workbook
// @Summary Export result
// @Tags sessions
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Router /sessions/{id}/result/export [get]
func (h *SessionHandler) ExportResult(c *gin.Context) {
	learnerID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	data, err := h.sessionService.ExportResult(c.Request.Context(), sessionID, learnerID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="result-%s.xlsx"`, sessionID))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// ListAttempts returns the caller's graded attempts
// @Summary List attempts
// @Tags attempts
// @Produce json
// @Param assessment_id query string false "Assessment"
// @Param passed query bool false "Passed only"
// @Success 200 {object} ListResponse
// @Router /attempts [get]
func (h *SessionHandler) ListAttempts(c *gin.Context) {
	learnerID, ok := GetLearnerID(c)
	if !ok {
		return
	}

	filters := repositories.AttemptFilters{
		AssessmentID: c.Query("assessment_id"),
		Passed:       parseBoolQueryPtr(c, "passed"),
		Limit:        parseIntQuery(c, "limit", 20),
		Offset:       parseIntQuery(c, "offset", 0),
		SortBy:       c.DefaultQuery("sort_by", "submitted_at"),
		SortOrder:    c.DefaultQuery("sort_order", "desc"),
	}

	records, total, err := h.sessionService.ListAttempts(c.Request.Context(), learnerID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, ListResponse{
		Data:   records,
		Total:  total,
		Limit:  filters.Limit,
		Offset: filters.Offset,
	})
}

// ===== HELPERS =====

func (h *SessionHandler) sessionParams(c *gin.Context) (learnerID, sessionID string, ok bool) {
	if learnerID, ok = GetLearnerID(c); !ok {
		return "", "", false
	}
	if sessionID = ParseStringIDParam(c, "id"); sessionID == "" {
		return "", "", false
	}
	return learnerID, sessionID, true
}

func (h *SessionHandler) answerParams(c *gin.Context) (learnerID, sessionID, questionID string, ok bool) {
	if learnerID, sessionID, ok = h.sessionParams(c); !ok {
		return "", "", "", false
	}
	if questionID = ParseStringIDParam(c, "question_id"); questionID == "" {
		return "", "", "", false
	}
	return learnerID, sessionID, questionID, true
}
