package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/SAP-F-2025/assessment-session-engine/internal/errors"
	"github.com/SAP-F-2025/assessment-session-engine/internal/metrics"
	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories"
	"github.com/SAP-F-2025/assessment-session-engine/internal/services"
	"github.com/SAP-F-2025/assessment-session-engine/internal/utils"
)

// ===== MOCK SESSION SERVICE =====

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) snapshot(args mock.Arguments) (*models.SessionSnapshot, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SessionSnapshot), args.Error(1)
}

func (m *MockSessionService) result(args mock.Arguments) (*models.ResultSummary, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ResultSummary), args.Error(1)
}

func (m *MockSessionService) Start(ctx context.Context, req *services.StartSessionRequest, learnerID string) (*models.SessionSnapshot, error) {
	return m.snapshot(m.Called(ctx, req, learnerID))
}

func (m *MockSessionService) Snapshot(ctx context.Context, sessionID, learnerID string) (*models.SessionSnapshot, error) {
	return m.snapshot(m.Called(ctx, sessionID, learnerID))
}

func (m *MockSessionService) ReplaceAnswer(ctx context.Context, sessionID, learnerID, questionID string, req *services.ReplaceAnswerRequest) (*models.SessionSnapshot, error) {
	return m.snapshot(m.Called(ctx, sessionID, learnerID, questionID, req))
}

func (m *MockSessionService) ToggleOption(ctx context.Context, sessionID, learnerID, questionID string, req *services.ToggleOptionRequest) (*models.SessionSnapshot, error) {
	return m.snapshot(m.Called(ctx, sessionID, learnerID, questionID, req))
}

func (m *MockSessionService) SetMatch(ctx context.Context, sessionID, learnerID, questionID string, req *services.SetMatchRequest) (*models.SessionSnapshot, error) {
	return m.snapshot(m.Called(ctx, sessionID, learnerID, questionID, req))
}

func (m *MockSessionService) UploadFile(ctx context.Context, sessionID, learnerID, questionID string, file *services.FileUploadRequest) (*models.SessionSnapshot, error) {
	return m.snapshot(m.Called(ctx, sessionID, learnerID, questionID, file))
}

func (m *MockSessionService) Navigate(ctx context.Context, sessionID, learnerID string, req *services.NavigateRequest) (*services.NavigationResponse, error) {
	args := m.Called(ctx, sessionID, learnerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.NavigationResponse), args.Error(1)
}

func (m *MockSessionService) Submit(ctx context.Context, sessionID, learnerID string) (*models.ResultSummary, error) {
	return m.result(m.Called(ctx, sessionID, learnerID))
}

func (m *MockSessionService) Retake(ctx context.Context, sessionID, learnerID string) (*models.SessionSnapshot, error) {
	return m.snapshot(m.Called(ctx, sessionID, learnerID))
}

func (m *MockSessionService) Result(ctx context.Context, sessionID, learnerID string) (*models.ResultSummary, error) {
	return m.result(m.Called(ctx, sessionID, learnerID))
}

func (m *MockSessionService) ExportResult(ctx context.Context, sessionID, learnerID string) ([]byte, error) {
	args := m.Called(ctx, sessionID, learnerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockSessionService) Close(ctx context.Context, sessionID, learnerID string) error {
	return m.Called(ctx, sessionID, learnerID).Error(0)
}

func (m *MockSessionService) ListAttempts(ctx context.Context, learnerID string, filters repositories.AttemptFilters) ([]*models.AttemptRecord, int64, error) {
	args := m.Called(ctx, learnerID, filters)
	return args.Get(0).([]*models.AttemptRecord), args.Get(1).(int64), args.Error(2)
}

func (m *MockSessionService) Shutdown() {}

type stubTokenParser map[string]string

func (p stubTokenParser) LearnerID(token string) (string, error) {
	id, ok := p[token]
	if !ok {
		return "", errors.New("bad token")
	}
	return id, nil
}

// ===== HELPERS =====

func setupRouter(t *testing.T, svc services.SessionService, cfg RouterConfig) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewHandlerManager(svc, cfg, logger).NewRouter(ctx)
}

func doRequest(router *gin.Engine, method, path string, body any, learnerID string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if learnerID != "" {
		req.Header.Set(UserIDHeader, learnerID)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

// ===== TESTS =====

func TestHealthCheck(t *testing.T) {
	router := setupRouter(t, new(MockSessionService), RouterConfig{})
	w := doRequest(router, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestStartSession(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{})

	svc.On("Start", mock.Anything, &services.StartSessionRequest{AssessmentID: "quiz-1"}, "learner-1").
		Return(&models.SessionSnapshot{ID: "s-1", State: models.SessionActive}, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/sessions", gin.H{"assessment_id": "quiz-1"}, "learner-1")
	require.Equal(t, http.StatusCreated, w.Code)

	var snap models.SessionSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snap))
	assert.Equal(t, "s-1", snap.ID)
	assert.Equal(t, models.SessionActive, snap.State)
	svc.AssertExpectations(t)
}

func TestStartSession_Unauthenticated(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{})

	w := doRequest(router, http.MethodPost, "/api/v1/sessions", gin.H{"assessment_id": "quiz-1"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	svc.AssertNotCalled(t, "Start", mock.Anything, mock.Anything, mock.Anything)
}

func TestStartSession_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unavailable", &apperrors.AssessmentUnavailableError{AssessmentID: "quiz-1", Reason: "not found"}, http.StatusNotFound},
		{"unsupported type", &apperrors.UnsupportedQuestionTypeError{Type: "essay", QuestionID: "q9"}, http.StatusUnprocessableEntity},
		{"invalid definition", &apperrors.AssessmentUnavailableError{
			AssessmentID: "quiz-1",
			Reason:       "invalid definition",
			Cause:        services.ValidationErrors{{Field: "title", Message: "is required"}},
		}, http.StatusNotFound},
		{"validation", services.ValidationErrors{{Field: "assessment_id", Message: "is required"}}, http.StatusBadRequest},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSessionService)
			router := setupRouter(t, svc, RouterConfig{})
			svc.On("Start", mock.Anything, mock.Anything, "learner-1").
				Return(&models.SessionSnapshot{ID: "s-err", State: models.SessionError}, tt.err)

			w := doRequest(router, http.MethodPost, "/api/v1/sessions", gin.H{"assessment_id": "quiz-1"}, "learner-1")
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "s-err", w.Header().Get("X-Session-ID"))
		})
	}
}

func TestSessionErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     int
		wantCode string
	}{
		{"not found", services.ErrSessionNotFound, http.StatusNotFound, "session_not_found"},
		{"other learner", services.NewPermissionError("learner-2", "s-1", "session", "submit", "not owner"), http.StatusForbidden, "access_denied"},
		{"not active", &apperrors.StateError{Operation: "submit", State: "completed"}, http.StatusConflict, "session_not_active"},
		{"submission failed", &apperrors.SubmissionError{SessionID: "s-1", Attempt: 1, Cause: errors.New("timeout")}, http.StatusBadGateway, "submission_failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockSessionService)
			router := setupRouter(t, svc, RouterConfig{})
			svc.On("Submit", mock.Anything, "s-1", "learner-1").Return(nil, tt.err)

			w := doRequest(router, http.MethodPost, "/api/v1/sessions/s-1/submit", nil, "learner-1")
			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, tt.wantCode, decodeError(t, w).Code)
		})
	}
}

func TestRetakeNotAllowed(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{})
	svc.On("Retake", mock.Anything, "s-1", "learner-1").
		Return(nil, fmt.Errorf("%w: assessment quiz-1 does not allow retakes", services.ErrRetakeNotAllowed))

	w := doRequest(router, http.MethodPost, "/api/v1/sessions/s-1/retake", nil, "learner-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "retake_not_allowed", decodeError(t, w).Code)
}

func TestAnswerRoutes(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{})
	snap := &models.SessionSnapshot{ID: "s-1", State: models.SessionActive}

	svc.On("ReplaceAnswer", mock.Anything, "s-1", "learner-1", "q2", mock.MatchedBy(func(req *services.ReplaceAnswerRequest) bool {
		return string(req.Content) == `"my answer"`
	})).Return(snap, nil)
	svc.On("ToggleOption", mock.Anything, "s-1", "learner-1", "q1", &services.ToggleOptionRequest{OptionID: "b"}).Return(snap, nil)
	svc.On("SetMatch", mock.Anything, "s-1", "learner-1", "q3", &services.SetMatchRequest{LeftID: "p1", RightID: "p2"}).Return(snap, nil)

	w := doRequest(router, http.MethodPut, "/api/v1/sessions/s-1/answers/q2", gin.H{"content": "my answer"}, "learner-1")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPost, "/api/v1/sessions/s-1/answers/q1/toggle", gin.H{"option_id": "b"}, "learner-1")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(router, http.MethodPut, "/api/v1/sessions/s-1/answers/q3/pairs", gin.H{"left_id": "p1", "right_id": "p2"}, "learner-1")
	assert.Equal(t, http.StatusOK, w.Code)

	svc.AssertExpectations(t)
}

func TestAnswerRejected(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{})
	svc.On("ToggleOption", mock.Anything, "s-1", "learner-1", "q1", mock.Anything).
		Return(nil, fmt.Errorf("%w: option %q is not part of question q1", services.ErrAnswerRejected, "z"))

	w := doRequest(router, http.MethodPost, "/api/v1/sessions/s-1/answers/q1/toggle", gin.H{"option_id": "z"}, "learner-1")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "answer_rejected", decodeError(t, w).Code)
}

func multipartRequest(t *testing.T, path, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set(UserIDHeader, "learner-1")
	return req
}

func TestUploadFile(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{MaxUploadMB: 1})
	svc.On("UploadFile", mock.Anything, "s-1", "learner-1", "q4", mock.MatchedBy(func(f *services.FileUploadRequest) bool {
		return f.Filename == "report.txt" && string(f.Data) == "hello world" && f.MimeType != ""
	})).Return(&models.SessionSnapshot{ID: "s-1"}, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/v1/sessions/s-1/answers/q4/file", "report.txt", []byte("hello world")))
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestUploadFile_TooLarge(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{MaxUploadMB: 1})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t, "/api/v1/sessions/s-1/answers/q4/file", "big.bin", bytes.Repeat([]byte("x"), 1024*1024+1)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	svc.AssertNotCalled(t, "UploadFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestNavigate(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{})
	svc.On("Navigate", mock.Anything, "s-1", "learner-1", mock.MatchedBy(func(req *services.NavigateRequest) bool {
		return req.Action == "goto" && req.Index != nil && *req.Index == 2
	})).Return(&services.NavigationResponse{Moved: true, CurrentIndex: 2, Total: 3}, nil)

	w := doRequest(router, http.MethodPost, "/api/v1/sessions/s-1/navigation", gin.H{"action": "goto", "index": 2}, "learner-1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp services.NavigationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.CurrentIndex)
}

func TestExportResult(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{})
	svc.On("ExportResult", mock.Anything, "s-1", "learner-1").Return([]byte("PK\x03\x04"), nil)

	w := doRequest(router, http.MethodGet, "/api/v1/sessions/s-1/result/export", nil, "learner-1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "result-s-1.xlsx")
}

func TestListAttempts(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{})
	svc.On("ListAttempts", mock.Anything, "learner-1", mock.MatchedBy(func(f repositories.AttemptFilters) bool {
		return f.AssessmentID == "quiz-1" && f.Passed != nil && *f.Passed && f.Limit == 5
	})).Return([]*models.AttemptRecord{{ID: "a-1"}}, int64(1), nil)

	w := doRequest(router, http.MethodGet, "/api/v1/attempts?assessment_id=quiz-1&passed=true&limit=5", nil, "learner-1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp ListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Total)
}

func TestAuthMiddleware_Token(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{TokenParser: stubTokenParser{"good": "learner-9"}})
	svc.On("Snapshot", mock.Anything, "s-1", "learner-9").Return(&models.SessionSnapshot{ID: "s-1"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s-1", nil)
	req.Header.Set("Authorization", "Bearer good")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s-1", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// The development header is ignored once tokens are required.
	w = doRequest(router, http.MethodGet, "/api/v1/sessions/s-1", nil, "learner-9")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRateLimiter(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{RateLimit: 2, RateLimitWindow: time.Hour})
	svc.On("Snapshot", mock.Anything, "s-1", "learner-1").Return(&models.SessionSnapshot{ID: "s-1"}, nil)

	for i := 0; i < 2; i++ {
		w := doRequest(router, http.MethodGet, "/api/v1/sessions/s-1", nil, "learner-1")
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := doRequest(router, http.MethodGet, "/api/v1/sessions/s-1", nil, "learner-1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// Limits are per learner.
	svc.On("Snapshot", mock.Anything, "s-1", "learner-2").Return(nil, services.ErrSessionNotFound)
	w = doRequest(router, http.MethodGet, "/api/v1/sessions/s-1", nil, "learner-2")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	router := setupRouter(t, new(MockSessionService), RouterConfig{CORSOrigins: []string{"https://app.example"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	svc := new(MockSessionService)
	router := setupRouter(t, svc, RouterConfig{Metrics: metrics.New(nil)})

	doRequest(router, http.MethodGet, "/health", nil, "")
	w := doRequest(router, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `endpoint="/health"`)
}
