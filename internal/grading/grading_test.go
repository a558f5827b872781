package grading

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	assessment *models.Assessment
	err        error
}

func (s staticSource) GetAssessment(context.Context, string) (*models.Assessment, error) {
	return s.assessment, s.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func quiz() *models.Assessment {
	return &models.Assessment{
		ID:           "quiz-1",
		Title:        "Quiz",
		Status:       models.StatusPublished,
		PassingScore: 50,
		Questions: []models.Question{
			{
				ID: "q1", Type: models.MultipleChoice, Prompt: "Pick b", Points: 5,
				Options: []models.Option{{ID: "a", Text: "A"}, {ID: "b", Text: "B", IsCorrect: true}},
			},
			{ID: "q2", Type: models.OpenEnded, Prompt: "Explain", Points: 4},
			{
				ID: "q3", Type: models.Matching, Prompt: "Match", Points: 2,
				Pairs: []models.PairItem{{ID: "p1", Left: "1", Right: "one"}, {ID: "p2", Left: "2", Right: "two"}},
			},
			{ID: "q4", Type: models.FileUpload, Prompt: "Upload", Points: 3},
		},
	}
}

func payload(answers ...models.SerializedAnswer) *models.SubmissionPayload {
	return &models.SubmissionPayload{SessionID: "s-1", AssessmentID: "quiz-1", LearnerID: "l-1", Attempt: 1, Answers: answers}
}

func TestLocalGrader_Grade(t *testing.T) {
	g := NewLocalGrader(staticSource{assessment: quiz()}, registry.New(), nil, testLogger())

	result, err := g.Grade(context.Background(), payload(
		models.SerializedAnswer{QuestionID: "q1", Type: models.MultipleChoice, Content: []string{"b"}},
		models.SerializedAnswer{QuestionID: "q2", Type: models.OpenEnded, Content: ""},
		models.SerializedAnswer{QuestionID: "q3", Type: models.Matching, Content: map[string]string{"p1": "p1", "p2": "p2"}},
	))
	require.NoError(t, err)

	assert.Equal(t, 7.0, result.Score)
	require.Len(t, result.PerQuestion, 4)
	assert.True(t, result.PerQuestion[0].IsCorrect)
	assert.Equal(t, []string{"b"}, result.PerQuestion[0].CorrectAnswer)
	assert.True(t, result.PerQuestion[1].Provisional)
	assert.True(t, result.PerQuestion[2].IsCorrect)
	assert.True(t, result.PerQuestion[3].Provisional)
	assert.Equal(t, "2 question(s) pending manual review", result.Feedback)
}

func TestLocalGrader_MissingAnswersScoreZero(t *testing.T) {
	g := NewLocalGrader(staticSource{assessment: quiz()}, registry.New(), nil, testLogger())

	result, err := g.Grade(context.Background(), payload())
	require.NoError(t, err)
	assert.Zero(t, result.Score)
	assert.False(t, result.PerQuestion[0].IsCorrect)
	assert.False(t, result.PerQuestion[2].IsCorrect)
}

func TestLocalGrader_TextMatcher(t *testing.T) {
	matcher := Matchers{
		ExactTextMatcher{Answers: map[string]string{"none": "x"}},
		KeywordMatcher{Keywords: map[string][]string{"q2": {"goroutine", "channel"}}},
	}
	g := NewLocalGrader(staticSource{assessment: quiz()}, registry.New(), matcher, testLogger())

	result, err := g.Grade(context.Background(), payload(
		models.SerializedAnswer{QuestionID: "q2", Type: models.OpenEnded, Content: "A goroutine sends on a buffered queue"},
	))
	require.NoError(t, err)

	q2 := result.PerQuestion[1]
	assert.Equal(t, 2.0, q2.PointsAwarded)
	assert.False(t, q2.IsCorrect)
	assert.Equal(t, "partially correct", q2.Feedback)
	assert.False(t, q2.Provisional)
	assert.Equal(t, "1 question(s) pending manual review", result.Feedback)
}

func TestLocalGrader_SourceError(t *testing.T) {
	boom := errors.New("db down")
	g := NewLocalGrader(staticSource{err: boom}, registry.New(), nil, testLogger())

	_, err := g.Grade(context.Background(), payload())
	assert.ErrorIs(t, err, boom)
}

func TestLocalGrader_GradeAgainstLoadedDefinition(t *testing.T) {
	// The source now serves a changed key and an extra question.
	changed := quiz()
	changed.Questions[0].Options = []models.Option{{ID: "a", Text: "A", IsCorrect: true}, {ID: "b", Text: "B"}}
	changed.Questions = append(changed.Questions, models.Question{ID: "q5", Type: models.MultipleChoice, Prompt: "New", Points: 20})
	g := NewLocalGrader(staticSource{assessment: changed}, registry.New(), nil, testLogger())

	result, err := g.GradeAgainst(context.Background(), quiz(), payload(
		models.SerializedAnswer{QuestionID: "q1", Type: models.MultipleChoice, Content: []string{"b"}},
	))
	require.NoError(t, err)

	assert.Equal(t, 5.0, result.Score)
	require.Len(t, result.PerQuestion, 4)
	assert.True(t, result.PerQuestion[0].IsCorrect)
	assert.Equal(t, []string{"b"}, result.PerQuestion[0].CorrectAnswer)
}

func TestLocalGrader_GradeAgainstOtherAssessment(t *testing.T) {
	g := NewLocalGrader(staticSource{}, registry.New(), nil, testLogger())
	other := quiz()
	other.ID = "quiz-2"

	_, err := g.GradeAgainst(context.Background(), other, payload())
	assert.Error(t, err)

	_, err = g.GradeAgainst(context.Background(), nil, payload())
	assert.Error(t, err)
}

func TestExactTextMatcher(t *testing.T) {
	q := &models.Question{ID: "q"}
	tests := []struct {
		name          string
		matcher       ExactTextMatcher
		text          string
		wantCredit    float64
		wantMatchable bool
	}{
		{"case insensitive", ExactTextMatcher{Answers: map[string]string{"q": "Paris"}}, "  paris ", 1, true},
		{"case sensitive", ExactTextMatcher{Answers: map[string]string{"q": "Paris"}, CaseSensitive: true}, "paris", 0, true},
		{"wrong", ExactTextMatcher{Answers: map[string]string{"q": "Paris"}}, "Rome", 0, true},
		{"no reference", ExactTextMatcher{}, "Paris", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			credit, ok := tt.matcher.Match(q, tt.text)
			assert.Equal(t, tt.wantCredit, credit)
			assert.Equal(t, tt.wantMatchable, ok)
		})
	}
}

func TestKeywordMatcher(t *testing.T) {
	q := &models.Question{ID: "q"}
	m := KeywordMatcher{Keywords: map[string][]string{"q": {"Mutex", "lock", "deadlock", "race"}}}

	credit, ok := m.Match(q, "Take the mutex before the lock-free path to avoid a race")
	assert.True(t, ok)
	assert.Equal(t, 0.75, credit)

	_, ok = m.Match(&models.Question{ID: "other"}, "anything")
	assert.False(t, ok)
}

func TestHTTPClient_Grade(t *testing.T) {
	var received models.SubmissionPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/grade", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.GradingResult{
			Score:       5,
			PerQuestion: []models.QuestionResult{{QuestionID: "q1", IsCorrect: true, PointsAwarded: 5}},
		})
	}))
	defer server.Close()

	client := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL + "/", APIKey: "secret", Timeout: time.Second}, testLogger())
	result, err := client.Grade(context.Background(), payload(
		models.SerializedAnswer{QuestionID: "q1", Type: models.MultipleChoice, Content: []string{"b"}},
	))
	require.NoError(t, err)

	assert.Equal(t, 5.0, result.Score)
	assert.Equal(t, "s-1", received.SessionID)
	require.Len(t, received.Answers, 1)
}

func TestHTTPClient_StatusErrors(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantRejected bool
	}{
		{"bad request", http.StatusBadRequest, true},
		{"server error", http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			client := NewHTTPClient(HTTPClientConfig{BaseURL: server.URL}, testLogger())
			_, err := client.Grade(context.Background(), payload())

			var statusErr *StatusError
			require.ErrorAs(t, err, &statusErr)
			assert.Equal(t, tt.status, statusErr.StatusCode)
			assert.Equal(t, "nope", statusErr.Body)
			assert.Equal(t, tt.wantRejected, errors.Is(err, ErrGradingRejected))
		})
	}
}
