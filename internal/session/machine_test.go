package session

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	apperrors "github.com/SAP-F-2025/assessment-session-engine/internal/errors"
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

type fakeSubmitter struct {
	mu      sync.Mutex
	inputs  []SubmissionInput
	release chan struct{}
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, in SubmissionInput) (*models.ResultSummary, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	release, err := f.release, f.err
	f.mu.Unlock()

	if release != nil {
		<-release
	}
	if err != nil {
		return nil, err
	}
	return &models.ResultSummary{Score: 1, TotalPoints: 2, Percentage: 50, Passed: true}, nil
}

func (f *fakeSubmitter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inputs)
}

func (f *fakeSubmitter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]EventKind, 0, len(r.events))
	for _, e := range r.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func quiz(timeLimit int) *models.Assessment {
	return &models.Assessment{
		ID:           "quiz-1",
		Title:        "Quiz",
		Status:       models.StatusPublished,
		TimeLimit:    timeLimit,
		PassingScore: 50,
		AllowRetakes: true,
		Questions: []models.Question{
			{ID: "q1", Type: models.MultipleChoice, Prompt: "Pick", Points: 5, Order: 1, Options: []models.Option{
				{ID: "a", Text: "A"}, {ID: "b", Text: "B", IsCorrect: true},
			}},
			{ID: "q2", Type: models.OpenEnded, Prompt: "Explain", Points: 5, Order: 2},
		},
	}
}

type harness struct {
	machine   *Machine
	scheduler *ManualScheduler
	submitter *fakeSubmitter
	events    *recorder
}

func newHarness(t *testing.T, a *models.Assessment) *harness {
	t.Helper()
	h := &harness{
		scheduler: NewManualScheduler(),
		submitter: &fakeSubmitter{},
		events:    &recorder{},
	}
	h.machine = NewMachine("s-1", "learner-1", Config{
		Registry:  registry.New(),
		Submitter: h.submitter,
		Scheduler: h.scheduler,
		Observer:  h.events.observe,
	})
	if a != nil {
		require.NoError(t, h.machine.Load(context.Background(), staticSource{assessment: a}, a.ID))
	}
	return h
}

func waitIdle(t *testing.T, m *Machine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

func TestLoadActivatesPublishedAssessment(t *testing.T) {
	h := newHarness(t, quiz(1))

	assert.Equal(t, models.SessionActive, h.machine.State())
	assert.Equal(t, 1, h.scheduler.Active())
	assert.Equal(t, 1, h.machine.Attempt())

	remaining, timed := h.machine.Remaining()
	assert.True(t, timed)
	assert.Equal(t, 60, remaining)
	assert.Equal(t, []EventKind{EventStarted}, h.events.kinds())

	snap := h.machine.Snapshot()
	assert.Equal(t, []string{"q1", "q2"}, snap.QuestionOrder)
	assert.Equal(t, []bool{false, false}, snap.Answered)
	assert.Equal(t, "quiz-1", snap.AssessmentID)
}

func TestLoadUntimedStartsNoTimer(t *testing.T) {
	h := newHarness(t, quiz(0))

	assert.Equal(t, 0, h.scheduler.Active())
	_, timed := h.machine.Remaining()
	assert.False(t, timed)
	assert.Nil(t, h.machine.Snapshot().RemainingSeconds)
}

func TestLoadFailures(t *testing.T) {
	draft := quiz(1)
	draft.Status = models.StatusDraft

	unsupported := quiz(1)
	unsupported.Questions = append(unsupported.Questions, models.Question{ID: "q3", Type: "ordering", Prompt: "Sort"})

	duplicate := quiz(1)
	duplicate.Questions[1].ID = "q1"

	tests := []struct {
		name   string
		source staticSource
		want   error
	}{
		{"not published", staticSource{assessment: draft}, apperrors.ErrAssessmentUnavailable},
		{"fetch error", staticSource{err: errors.New("db down")}, apperrors.ErrAssessmentUnavailable},
		{"missing", staticSource{}, apperrors.ErrAssessmentUnavailable},
		{"unsupported type", staticSource{assessment: unsupported}, apperrors.ErrUnsupportedQuestionType},
		{"duplicate question ids", staticSource{assessment: duplicate}, apperrors.ErrAssessmentUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			err := h.machine.Load(context.Background(), tt.source, "quiz-1")

			assert.ErrorIs(t, err, tt.want)
			assert.True(t, apperrors.IsFatal(err))
			assert.Equal(t, models.SessionError, h.machine.State())
			assert.Equal(t, 0, h.scheduler.Active())
			assert.Equal(t, []EventKind{EventLoadFailed}, h.events.kinds())

			err = h.machine.UpdateAnswer("q2", models.ReplaceContent{Content: models.OpenEndedAnswer{Text: "x"}})
			assert.ErrorIs(t, err, apperrors.ErrSessionNotActive)

			_, err = h.machine.Submit(context.Background())
			assert.ErrorIs(t, err, apperrors.ErrSessionNotActive)
		})
	}
}

func TestLoadTwiceIsRejected(t *testing.T) {
	h := newHarness(t, quiz(1))
	err := h.machine.Load(context.Background(), staticSource{assessment: quiz(1)}, "quiz-1")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotActive)
	assert.Equal(t, models.SessionActive, h.machine.State())
}

type rejectAll struct{}

func (rejectAll) ValidateAssessment(*models.Assessment) error {
	return errors.New("passing_score must be at most 100")
}

func TestLoadRunsDefinitionValidator(t *testing.T) {
	m := NewMachine("s-1", "learner-1", Config{Scheduler: NewManualScheduler(), Validator: rejectAll{}})
	err := m.Load(context.Background(), staticSource{assessment: quiz(1)}, "quiz-1")

	assert.ErrorIs(t, err, apperrors.ErrAssessmentUnavailable)
	assert.Equal(t, models.SessionError, m.State())
}

func TestAutoSubmitAfterSixtyTicks(t *testing.T) {
	h := newHarness(t, quiz(1))
	h.submitter.release = make(chan struct{})

	h.scheduler.Fire(59)
	assert.Equal(t, models.SessionActive, h.machine.State())
	assert.Equal(t, 0, h.submitter.calls())

	h.scheduler.Fire(1)
	assert.Equal(t, models.SessionSubmitting, h.machine.State())
	assert.Equal(t, 0, h.scheduler.Active())

	// mutations are closed from the moment of expiry
	err := h.machine.UpdateAnswer("q1", models.ToggleOption{OptionID: "b"})
	assert.ErrorIs(t, err, apperrors.ErrSessionNotActive)

	h.scheduler.Fire(100)
	close(h.submitter.release)
	waitIdle(t, h.machine)

	assert.Equal(t, models.SessionCompleted, h.machine.State())
	require.Equal(t, 1, h.submitter.calls())

	in := h.submitter.inputs[0]
	assert.True(t, in.AutoSubmit)
	require.Len(t, in.Answers, 2)
	assert.Equal(t, models.MultipleChoiceAnswer{SelectedOptions: []string{}}, in.Answers[0].Content)
	assert.Equal(t, models.OpenEndedAnswer{}, in.Answers[1].Content)

	result := h.machine.Result()
	require.NotNil(t, result)
	assert.True(t, result.AutoSubmit)
	assert.Equal(t, []EventKind{EventStarted, EventExpired, EventSubmitting, EventCompleted}, h.events.kinds())
}

func TestManualSubmitUsesSameTransition(t *testing.T) {
	h := newHarness(t, quiz(1))
	require.NoError(t, h.machine.UpdateAnswer("q1", models.ToggleOption{OptionID: "b"}))

	result, err := h.machine.Submit(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.AutoSubmit)

	assert.Equal(t, models.SessionCompleted, h.machine.State())
	assert.Equal(t, 0, h.scheduler.Active())
	assert.Equal(t, []EventKind{EventStarted, EventSubmitting, EventCompleted}, h.events.kinds())

	in := h.submitter.inputs[0]
	assert.False(t, in.AutoSubmit)
	assert.Equal(t, models.MultipleChoiceAnswer{SelectedOptions: []string{"b"}}, in.Answers[0].Content)

	err = h.machine.UpdateAnswer("q2", models.ReplaceContent{Content: models.OpenEndedAnswer{Text: "late"}})
	assert.ErrorIs(t, err, apperrors.ErrSessionNotActive)

	_, err = h.machine.Submit(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrSessionNotActive)
}

func TestConcurrentSubmitIsCoalesced(t *testing.T) {
	h := newHarness(t, quiz(1))
	h.submitter.release = make(chan struct{})

	first := make(chan error, 1)
	go func() {
		_, err := h.machine.Submit(context.Background())
		first <- err
	}()
	require.Eventually(t, func() bool { return h.submitter.calls() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, models.SessionSubmitting, h.machine.State())

	// A second submit joins the in-flight call instead of starting another.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.machine.Submit(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, h.submitter.calls())

	close(h.submitter.release)
	require.NoError(t, <-first)
	waitIdle(t, h.machine)

	assert.Equal(t, 1, h.submitter.calls())
	assert.Equal(t, models.SessionCompleted, h.machine.State())
}

func TestSubmitCallerCancelDoesNotAbortSubmission(t *testing.T) {
	h := newHarness(t, quiz(1))
	h.submitter.release = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := h.machine.Submit(ctx)
		done <- err
	}()
	require.Eventually(t, func() bool { return h.submitter.calls() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, models.SessionSubmitting, h.machine.State())

	close(h.submitter.release)
	waitIdle(t, h.machine)
	assert.Equal(t, models.SessionCompleted, h.machine.State())
}

func TestSubmissionFailureKeepsRemainingTime(t *testing.T) {
	h := newHarness(t, quiz(1))
	h.submitter.setErr(errors.New("grader unavailable"))
	require.NoError(t, h.machine.UpdateAnswer("q2", models.ReplaceContent{Content: models.OpenEndedAnswer{Text: "kept"}}))

	h.scheduler.Fire(10)
	before, _ := h.machine.Remaining()
	require.Equal(t, 50, before)

	_, err := h.machine.Submit(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrSubmissionFailed)
	assert.True(t, apperrors.IsRecoverable(err))

	assert.Equal(t, models.SessionActive, h.machine.State())
	after, _ := h.machine.Remaining()
	assert.Equal(t, before, after)
	assert.ErrorIs(t, h.machine.LastError(), apperrors.ErrSubmissionFailed)

	content, err := h.machine.Answer("q2")
	require.NoError(t, err)
	assert.Equal(t, models.OpenEndedAnswer{Text: "kept"}, content)

	// the clock resumes from where it stopped
	assert.Equal(t, 1, h.scheduler.Active())
	h.scheduler.Fire(1)
	resumed, _ := h.machine.Remaining()
	assert.Equal(t, 49, resumed)

	// explicit retry succeeds
	h.submitter.setErr(nil)
	_, err = h.machine.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.SessionCompleted, h.machine.State())
	assert.Equal(t, 2, h.submitter.calls())
	assert.Contains(t, h.events.kinds(), EventSubmissionFailed)
}

func TestAutoSubmitFailureFreezesAnswers(t *testing.T) {
	h := newHarness(t, quiz(1))
	h.submitter.setErr(errors.New("timeout"))

	h.scheduler.Fire(60)
	waitIdle(t, h.machine)

	assert.Equal(t, models.SessionActive, h.machine.State())
	assert.Equal(t, 0, h.scheduler.Active())
	assert.True(t, h.machine.Snapshot().Expired)

	err := h.machine.UpdateAnswer("q1", models.ToggleOption{OptionID: "a"})
	assert.ErrorIs(t, err, apperrors.ErrSessionNotActive)

	h.submitter.setErr(nil)
	_, err = h.machine.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, h.submitter.calls())
}

func TestRetakeResetsSession(t *testing.T) {
	a := quiz(1)
	h := newHarness(t, a)

	require.NoError(t, h.machine.UpdateAnswer("q1", models.ToggleOption{OptionID: "b"}))
	require.NoError(t, h.machine.UpdateAnswer("q2", models.ReplaceContent{Content: models.OpenEndedAnswer{Text: "first try"}}))
	h.machine.GoNext()
	h.scheduler.Fire(30)

	_, err := h.machine.Submit(context.Background())
	require.NoError(t, err)

	require.NoError(t, h.machine.Retake())
	assert.Equal(t, models.SessionActive, h.machine.State())
	assert.Equal(t, 2, h.machine.Attempt())
	assert.Equal(t, 0, h.machine.CurrentIndex())
	assert.Nil(t, h.machine.Result())
	assert.Same(t, a, h.machine.Assessment())
	assert.Len(t, a.Questions, 2)

	remaining, _ := h.machine.Remaining()
	assert.Equal(t, 60, remaining)
	assert.Equal(t, 1, h.scheduler.Active())

	for i := 0; i < 2; i++ {
		assert.False(t, h.machine.IsAnswered(i))
	}
	content, _ := h.machine.Answer("q1")
	assert.Equal(t, models.MultipleChoiceAnswer{SelectedOptions: []string{}}, content)
	assert.Equal(t, EventRetake, h.events.kinds()[len(h.events.kinds())-1])
}

func TestCompletedEventCarriesGradedSnapshot(t *testing.T) {
	h := newHarness(t, quiz(1))
	require.NoError(t, h.machine.UpdateAnswer("q1", models.ToggleOption{OptionID: "b"}))

	_, err := h.machine.Submit(context.Background())
	require.NoError(t, err)
	require.NoError(t, h.machine.Retake())

	var completed *Event
	h.events.mu.Lock()
	for i := range h.events.events {
		if h.events.events[i].Kind == EventCompleted {
			completed = &h.events.events[i]
		}
	}
	h.events.mu.Unlock()
	require.NotNil(t, completed)
	require.NotNil(t, completed.Snapshot)

	snap := completed.Snapshot
	assert.Equal(t, 1, snap.Attempt)
	assert.Equal(t, models.SessionCompleted, snap.State)
	assert.NotNil(t, snap.Result)
	require.NotEmpty(t, snap.Answers)
	assert.Equal(t, "q1", snap.Answers[0].QuestionID)
	assert.Equal(t, []string{"b"}, snap.Answers[0].Content)

	assert.Equal(t, 2, h.machine.Attempt())
}

func TestRetakeGuards(t *testing.T) {
	h := newHarness(t, quiz(1))
	assert.ErrorIs(t, h.machine.Retake(), apperrors.ErrSessionNotActive)

	noRetake := quiz(1)
	noRetake.AllowRetakes = false
	h = newHarness(t, noRetake)
	_, err := h.machine.Submit(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, h.machine.Retake(), apperrors.ErrRetakeNotAllowed)
	assert.Equal(t, models.SessionCompleted, h.machine.State())
}

func TestTimeWarningEvent(t *testing.T) {
	a := quiz(1)
	a.TimeWarning = 15
	h := newHarness(t, a)

	h.scheduler.Fire(45)
	assert.Equal(t, []EventKind{EventStarted, EventTimeWarning}, h.events.kinds())
}

func TestRandomizedOrderIsReshuffledOnRetake(t *testing.T) {
	a := quiz(0)
	a.RandomizeQuestions = true
	shuffles := 0

	m := NewMachine("s-1", "learner-1", Config{
		Submitter: &fakeSubmitter{},
		Scheduler: NewManualScheduler(),
		Shuffle: func(qs []*models.Question) {
			shuffles++
			slices.Reverse(qs)
		},
	})
	require.NoError(t, m.Load(context.Background(), staticSource{assessment: a}, a.ID))
	assert.Equal(t, []string{"q2", "q1"}, m.Snapshot().QuestionOrder)
	assert.Equal(t, "q1", a.Questions[0].ID)

	_, err := m.Submit(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Retake())
	assert.Equal(t, 2, shuffles)
}

func TestNavigationThroughMachine(t *testing.T) {
	h := newHarness(t, quiz(1))

	assert.False(t, h.machine.GoPrevious())
	assert.True(t, h.machine.GoNext())
	assert.False(t, h.machine.GoNext())
	assert.True(t, h.machine.GoTo(0))
	assert.False(t, h.machine.GoTo(7))
	assert.Equal(t, 0, h.machine.CurrentIndex())
}

func TestCloseStopsClock(t *testing.T) {
	h := newHarness(t, quiz(1))
	h.machine.Close()

	assert.Equal(t, 0, h.scheduler.Active())
	h.scheduler.Fire(120)
	assert.Equal(t, models.SessionActive, h.machine.State())
}
