package session

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"time"

	apperrors "github.com/SAP-F-2025/assessment-session-engine/internal/errors"
	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/registry"
)

// AssessmentSource fetches assessment definitions by id.
type AssessmentSource interface {
	GetAssessment(ctx context.Context, id string) (*models.Assessment, error)
}

// Submitter grades a submitted session.
type Submitter interface {
	Submit(ctx context.Context, in SubmissionInput) (*models.ResultSummary, error)
}

// DefinitionValidator checks a loaded definition before the session starts.
type DefinitionValidator interface {
	ValidateAssessment(a *models.Assessment) error
}

// SubmissionInput is the frozen state handed to the Submitter.
type SubmissionInput struct {
	SessionID  string
	LearnerID  string
	Attempt    int
	Assessment *models.Assessment
	Questions  []*models.Question
	Answers    []models.Answer
	AutoSubmit bool
	StartedAt  time.Time
}

type Config struct {
	Registry  *registry.Registry
	Submitter Submitter
	Scheduler Scheduler

	// Optional.
	Validator    DefinitionValidator
	Observer     Observer
	Shuffle      func([]*models.Question)
	Now          func() time.Time
	TickInterval time.Duration
	Logger       *slog.Logger
}

type submission struct {
	input  SubmissionInput
	done   chan struct{}
	result *models.ResultSummary
	err    error
}

// Machine drives one learner session through
// loading -> active -> submitting -> completed, with error as the terminal
// state for definitions that cannot be run. All methods are safe for
// concurrent use.
type Machine struct {
	id        string
	learnerID string
	cfg       Config

	mu         sync.Mutex
	state      models.SessionState
	assessment *models.Assessment
	store      *AnswerStore
	nav        *Navigator
	deadline   Deadline
	cancelTick CancelFunc
	timerGen   int
	startedAt  time.Time
	attempt    int
	result     *models.ResultSummary
	lastErr    error
	inflight   *submission
	latest     *submission
	closed     bool
}

func NewMachine(id, learnerID string, cfg Config) *Machine {
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewTickerScheduler()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.Shuffle == nil {
		cfg.Shuffle = func(qs []*models.Question) {
			rand.Shuffle(len(qs), func(i, j int) { qs[i], qs[j] = qs[j], qs[i] })
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	store := NewAnswerStore(cfg.Registry)
	return &Machine{
		id:        id,
		learnerID: learnerID,
		cfg:       cfg,
		state:     models.SessionLoading,
		store:     store,
		nav:       NewNavigator(store),
	}
}

// ===== TRANSITIONS =====

// Load fetches the definition and moves the session to active. Any failure
// leaves the session in the error state.
func (m *Machine) Load(ctx context.Context, source AssessmentSource, assessmentID string) error {
	m.mu.Lock()
	if m.state != models.SessionLoading {
		state := m.state
		m.mu.Unlock()
		return &apperrors.StateError{Operation: "load assessment", State: string(state)}
	}
	m.mu.Unlock()

	assessment, fetchErr := source.GetAssessment(ctx, assessmentID)

	m.mu.Lock()
	var events []Event
	err := m.activate(assessmentID, assessment, fetchErr)
	if err != nil {
		m.state = models.SessionError
		m.lastErr = err
		events = append(events, m.eventLocked(EventLoadFailed, func(e *Event) {
			e.AssessmentID = assessmentID
			e.Err = err
		}))
	} else {
		events = append(events, m.eventLocked(EventStarted, nil))
	}
	m.mu.Unlock()

	m.emit(events)
	return err
}

func (m *Machine) activate(assessmentID string, a *models.Assessment, fetchErr error) error {
	switch {
	case fetchErr != nil:
		return &apperrors.AssessmentUnavailableError{AssessmentID: assessmentID, Reason: "fetch failed", Cause: fetchErr}
	case a == nil:
		return &apperrors.AssessmentUnavailableError{AssessmentID: assessmentID, Reason: "not found"}
	case !a.IsPublished():
		return &apperrors.AssessmentUnavailableError{AssessmentID: assessmentID, Reason: fmt.Sprintf("status is %q", a.Status)}
	}

	if err := m.cfg.Registry.CheckAll(a.Questions); err != nil {
		return err
	}
	if m.cfg.Validator != nil {
		if err := m.cfg.Validator.ValidateAssessment(a); err != nil {
			return &apperrors.AssessmentUnavailableError{AssessmentID: assessmentID, Reason: "invalid definition", Cause: err}
		}
	}

	m.assessment = a
	if err := m.enterActive(); err != nil {
		m.assessment = nil
		if apperrors.IsFatal(err) {
			return err
		}
		return &apperrors.AssessmentUnavailableError{AssessmentID: assessmentID, Reason: "invalid definition", Cause: err}
	}
	return nil
}

// enterActive runs on session start and on every retake.
func (m *Machine) enterActive() error {
	if err := m.store.Initialize(m.orderQuestions()); err != nil {
		return err
	}
	m.nav.Reset()
	m.deadline = NewDeadline(m.assessment.TimeLimit, m.assessment.TimeWarning)
	m.result = nil
	m.lastErr = nil
	m.attempt++
	m.startedAt = m.cfg.Now()
	m.state = models.SessionActive
	m.startTimer()
	return nil
}

func (m *Machine) orderQuestions() []*models.Question {
	questions := make([]*models.Question, len(m.assessment.Questions))
	for i := range m.assessment.Questions {
		questions[i] = &m.assessment.Questions[i]
	}
	slices.SortStableFunc(questions, func(a, b *models.Question) int {
		return cmp.Compare(a.Order, b.Order)
	})
	if m.assessment.RandomizeQuestions {
		m.cfg.Shuffle(questions)
	}
	return questions
}

// Submit grades the session. A call made while a submission is already in
// flight joins it and receives the same outcome.
func (m *Machine) Submit(ctx context.Context) (*models.ResultSummary, error) {
	m.mu.Lock()
	var call *submission
	var events []Event

	switch m.state {
	case models.SessionActive:
		call = m.beginSubmissionLocked(false)
		events = append(events, m.eventLocked(EventSubmitting, nil))
		m.mu.Unlock()

		m.emit(events)
		go m.runSubmission(context.WithoutCancel(ctx), call)

	case models.SessionSubmitting:
		call = m.inflight
		m.mu.Unlock()

	default:
		state := m.state
		m.mu.Unlock()
		return nil, &apperrors.StateError{Operation: "submit", State: string(state)}
	}

	select {
	case <-call.done:
		return call.result, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Wait blocks until the most recent submission has finished and its
// events have been delivered.
func (m *Machine) Wait(ctx context.Context) error {
	m.mu.Lock()
	call := m.latest
	m.mu.Unlock()
	if call == nil {
		return nil
	}
	select {
	case <-call.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Machine) beginSubmissionLocked(auto bool) *submission {
	m.stopTimer()
	m.state = models.SessionSubmitting

	call := &submission{
		done: make(chan struct{}),
		input: SubmissionInput{
			SessionID:  m.id,
			LearnerID:  m.learnerID,
			Attempt:    m.attempt,
			Assessment: m.assessment,
			Questions:  slices.Clone(m.store.Questions()),
			Answers:    m.store.SnapshotAll(),
			AutoSubmit: auto,
			StartedAt:  m.startedAt,
		},
	}
	m.inflight = call
	m.latest = call
	return call
}

func (m *Machine) runSubmission(ctx context.Context, call *submission) {
	var (
		result *models.ResultSummary
		err    error
	)
	if m.cfg.Submitter == nil {
		err = errors.New("no submitter configured")
	} else {
		result, err = m.cfg.Submitter.Submit(ctx, call.input)
		if err == nil && result == nil {
			err = errors.New("grader returned no result")
		}
	}
	if err != nil && !errors.Is(err, apperrors.ErrSubmissionFailed) {
		err = &apperrors.SubmissionError{SessionID: m.id, Attempt: call.input.Attempt, Cause: err}
	}

	m.mu.Lock()
	var events []Event
	if err != nil {
		result = nil
		// Back to active with the clock where it stopped.
		m.state = models.SessionActive
		m.lastErr = err
		m.startTimer()
		events = append(events, m.eventLocked(EventSubmissionFailed, func(e *Event) {
			e.AutoSubmit = call.input.AutoSubmit
			e.Err = err
		}))
		m.cfg.Logger.Warn("Session submission failed",
			"session_id", m.id,
			"attempt", call.input.Attempt,
			"auto_submit", call.input.AutoSubmit,
			"error", err)
	} else {
		result.AutoSubmit = call.input.AutoSubmit
		m.state = models.SessionCompleted
		m.result = result
		m.lastErr = nil
		snap := m.snapshotLocked()
		events = append(events, m.eventLocked(EventCompleted, func(e *Event) {
			e.AutoSubmit = call.input.AutoSubmit
			e.Result = result
			e.Snapshot = &snap
		}))
	}
	call.result, call.err = result, err
	m.inflight = nil
	m.mu.Unlock()

	m.emit(events)
	close(call.done)
}

// Retake restarts a completed session with empty answers and a full clock.
func (m *Machine) Retake() error {
	m.mu.Lock()
	if m.state != models.SessionCompleted {
		state := m.state
		m.mu.Unlock()
		return &apperrors.StateError{Operation: "retake", State: string(state)}
	}
	if !m.assessment.AllowRetakes {
		m.mu.Unlock()
		return fmt.Errorf("%w: assessment %s does not allow retakes", apperrors.ErrRetakeNotAllowed, m.assessment.ID)
	}
	if err := m.enterActive(); err != nil {
		m.mu.Unlock()
		return err
	}
	events := []Event{m.eventLocked(EventRetake, nil)}
	m.mu.Unlock()

	m.emit(events)
	return nil
}

// Close stops the session clock. It does not cancel a submission in flight.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopTimer()
}

// ===== TIMER =====

func (m *Machine) startTimer() {
	if m.closed || m.cancelTick != nil || !m.deadline.Timed() || m.deadline.Expired() {
		return
	}
	m.timerGen++
	gen := m.timerGen
	m.cancelTick = m.cfg.Scheduler.Every(m.cfg.TickInterval, func() { m.onTick(gen) })
}

func (m *Machine) stopTimer() {
	if m.cancelTick != nil {
		m.cancelTick()
		m.cancelTick = nil
	}
}

func (m *Machine) onTick(gen int) {
	m.mu.Lock()
	if gen != m.timerGen || m.cancelTick == nil || m.state != models.SessionActive {
		m.mu.Unlock()
		return
	}

	var (
		events []Event
		call   *submission
	)
	switch m.deadline.Tick() {
	case TickWarning:
		events = append(events, m.eventLocked(EventTimeWarning, nil))
	case TickExpired:
		events = append(events, m.eventLocked(EventExpired, nil))
		call = m.beginSubmissionLocked(true)
		events = append(events, m.eventLocked(EventSubmitting, func(e *Event) { e.AutoSubmit = true }))
	}
	m.mu.Unlock()

	m.emit(events)
	if call != nil {
		go m.runSubmission(context.Background(), call)
	}
}

// ===== ANSWERS & NAVIGATION =====

// UpdateAnswer applies update to one slot. It is rejected unless the
// session is active and its clock has not run out.
func (m *Machine) UpdateAnswer(questionID string, update models.AnswerUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireMutableLocked("update answer"); err != nil {
		return err
	}
	return m.store.Update(questionID, update)
}

func (m *Machine) requireMutableLocked(op string) error {
	if m.state != models.SessionActive {
		return &apperrors.StateError{Operation: op, State: string(m.state)}
	}
	if m.deadline.Expired() {
		return &apperrors.StateError{Operation: op, State: "expired"}
	}
	return nil
}

func (m *Machine) Answer(questionID string) (models.AnswerContent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Get(questionID)
}

func (m *Machine) GoNext() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nav.GoNext()
}

func (m *Machine) GoPrevious() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nav.GoPrevious()
}

func (m *Machine) GoTo(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nav.GoTo(index)
}

func (m *Machine) CurrentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nav.CurrentIndex()
}

func (m *Machine) IsAnswered(index int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.nav.IsAnswered(index)
}

// ===== READ ACCESS =====

func (m *Machine) ID() string {
	return m.id
}

func (m *Machine) LearnerID() string {
	return m.learnerID
}

func (m *Machine) State() models.SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Assessment() *models.Assessment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.assessment
}

func (m *Machine) Attempt() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempt
}

// Remaining returns the seconds left and whether the session is timed.
func (m *Machine) Remaining() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deadline.Remaining()
}

func (m *Machine) Result() *models.ResultSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result
}

func (m *Machine) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Snapshot returns a consistent read model of the session.
func (m *Machine) Snapshot() models.SessionSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() models.SessionSnapshot {
	snap := models.SessionSnapshot{
		ID:               m.id,
		LearnerID:        m.learnerID,
		State:            m.state,
		Attempt:          m.attempt,
		CurrentIndex:     m.nav.CurrentIndex(),
		Answered:         m.nav.AnsweredFlags(),
		RemainingSeconds: m.deadline.RemainingPtr(),
		Expired:          m.deadline.Expired(),
		StartedAt:        m.startedAt,
		Result:           m.result,
	}
	if m.assessment != nil {
		snap.AssessmentID = m.assessment.ID
	}
	for _, q := range m.store.Questions() {
		snap.QuestionOrder = append(snap.QuestionOrder, q.ID)
	}
	if answers, err := m.store.Serialize(); err == nil {
		snap.Answers = answers
	}
	if m.lastErr != nil {
		snap.LastError = m.lastErr.Error()
	}
	return snap
}

// ===== EVENTS =====

func (m *Machine) eventLocked(kind EventKind, fill func(*Event)) Event {
	e := Event{
		Kind:             kind,
		SessionID:        m.id,
		LearnerID:        m.learnerID,
		Attempt:          m.attempt,
		State:            m.state,
		RemainingSeconds: m.deadline.RemainingPtr(),
		At:               m.cfg.Now(),
	}
	if m.assessment != nil {
		e.AssessmentID = m.assessment.ID
	}
	if fill != nil {
		fill(&e)
	}
	return e
}

func (m *Machine) emit(events []Event) {
	if m.cfg.Observer == nil {
		return
	}
	for _, e := range events {
		m.cfg.Observer(e)
	}
}
