package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/SAP-F-2025/assessment-session-engine/internal/errors"
	"github.com/SAP-F-2025/assessment-session-engine/internal/events"
	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/registry"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories/xlsx"
	"github.com/SAP-F-2025/assessment-session-engine/internal/session"
	"github.com/SAP-F-2025/assessment-session-engine/internal/validator"
)

const defaultSideEffectTimeout = 10 * time.Second

// SessionServiceConfig wires the collaborators of the session service.
// Publisher, Attempts, Autosave and Metrics are optional.
type SessionServiceConfig struct {
	Registry  *registry.Registry
	Source    session.AssessmentSource
	Submitter session.Submitter
	Validator *validator.Validator
	Scheduler session.Scheduler

	// TickInterval is the countdown step; zero means one second.
	TickInterval time.Duration

	Publisher events.EventPublisher
	Attempts  repositories.AttemptRepository
	Autosave  SnapshotSaver
	Metrics   SessionMetrics

	Logger            *slog.Logger
	SideEffectTimeout time.Duration

	// Eviction. A session untouched for IdleTTL is dropped while loading or
	// active, and after CompletedTTL once completed or errored. Sessions in
	// submission are kept. A zero TTL disables that rule; a zero
	// SweepInterval disables the background sweep.
	IdleTTL       time.Duration
	CompletedTTL  time.Duration
	SweepInterval time.Duration
	Now           func() time.Time
}

// trackedSession is a machine plus the time of its last use.
type trackedSession struct {
	machine  *session.Machine
	lastSeen atomic.Int64
}

func (t *trackedSession) touch(now time.Time) {
	t.lastSeen.Store(now.UnixNano())
}

func (t *trackedSession) idleFor(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, t.lastSeen.Load()))
}

type sessionService struct {
	cfg    SessionServiceConfig
	logger *ServiceLogger

	mu       sync.RWMutex
	sessions map[string]*trackedSession

	newID func() string

	stopSweep chan struct{}
	stopOnce  sync.Once
}

func NewSessionService(cfg SessionServiceConfig) SessionService {
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}
	if cfg.Validator == nil {
		cfg.Validator = validator.New(cfg.Registry)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.SideEffectTimeout <= 0 {
		cfg.SideEffectTimeout = defaultSideEffectTimeout
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	s := &sessionService{
		cfg:       cfg,
		logger:    NewServiceLogger(cfg.Logger, LogConfig{Service: "assessment-session-engine", Component: "session"}),
		sessions:  make(map[string]*trackedSession),
		newID:     uuid.NewString,
		stopSweep: make(chan struct{}),
	}
	if cfg.SweepInterval > 0 && (cfg.IdleTTL > 0 || cfg.CompletedTTL > 0) {
		go s.sweepLoop(cfg.SweepInterval)
	}
	return s
}

// ===== LIFECYCLE =====

func (s *sessionService) Start(ctx context.Context, req *StartSessionRequest, learnerID string) (snap *models.SessionSnapshot, err error) {
	op := s.logger.WithOperation(ctx, "start_session", learnerID)
	sessionID := ""
	defer func() { op.LogResult(sessionID, err) }()

	if err = s.cfg.Validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	if learnerID == "" {
		return nil, ErrUnauthorized
	}

	sessionID = s.newID()
	var m *session.Machine
	m = session.NewMachine(sessionID, learnerID, session.Config{
		Registry:     s.cfg.Registry,
		Submitter:    s.cfg.Submitter,
		Scheduler:    s.cfg.Scheduler,
		Validator:    s.cfg.Validator,
		Observer:     func(e session.Event) { s.observe(m, e) },
		TickInterval: s.cfg.TickInterval,
		Logger:       s.cfg.Logger.With("session_id", sessionID),
	})

	tracked := &trackedSession{machine: m}
	tracked.touch(s.cfg.Now())
	s.mu.Lock()
	s.sessions[sessionID] = tracked
	s.mu.Unlock()
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionOpened()
	}

	if err = m.Load(ctx, s.cfg.Source, req.AssessmentID); err != nil {
		return s.view(m), err
	}

	s.autosave(m)
	return s.view(m), nil
}

func (s *sessionService) Snapshot(ctx context.Context, sessionID, learnerID string) (*models.SessionSnapshot, error) {
	m, err := s.lookup(sessionID, learnerID, "view")
	if err != nil {
		return nil, err
	}
	return s.view(m), nil
}

func (s *sessionService) Submit(ctx context.Context, sessionID, learnerID string) (result *models.ResultSummary, err error) {
	op := s.logger.WithOperation(ctx, "submit_session", learnerID)
	defer func() { op.LogResult(sessionID, err) }()

	m, err := s.lookup(sessionID, learnerID, "submit")
	if err != nil {
		return nil, err
	}

	result, err = m.Submit(ctx)
	if err != nil {
		return nil, err
	}
	return result.LearnerView(m.Assessment().ShowResults), nil
}

func (s *sessionService) Retake(ctx context.Context, sessionID, learnerID string) (snap *models.SessionSnapshot, err error) {
	op := s.logger.WithOperation(ctx, "retake_session", learnerID)
	defer func() { op.LogResult(sessionID, err) }()

	m, err := s.lookup(sessionID, learnerID, "retake")
	if err != nil {
		return nil, err
	}
	if err = m.Retake(); err != nil {
		return nil, err
	}

	s.autosave(m)
	return s.view(m), nil
}

func (s *sessionService) Result(ctx context.Context, sessionID, learnerID string) (*models.ResultSummary, error) {
	m, err := s.lookup(sessionID, learnerID, "view result")
	if err != nil {
		return nil, err
	}
	result := m.Result()
	if result == nil {
		return nil, ErrResultNotAvailable
	}
	return result.LearnerView(m.Assessment().ShowResults), nil
}

func (s *sessionService) ExportResult(ctx context.Context, sessionID, learnerID string) ([]byte, error) {
	m, err := s.lookup(sessionID, learnerID, "export result")
	if err != nil {
		return nil, err
	}
	result := m.Result()
	if result == nil {
		return nil, ErrResultNotAvailable
	}

	a := m.Assessment()
	data, err := xlsx.ExportResult(m.Snapshot(), a, result.LearnerView(a.ShowResults))
	if err != nil {
		return nil, fmt.Errorf("failed to export result: %w", err)
	}
	return data, nil
}

// Close stops the session clock and forgets the session. A submission in
// flight still completes and is recorded.
func (s *sessionService) Close(ctx context.Context, sessionID, learnerID string) error {
	m, err := s.lookup(sessionID, learnerID, "close")
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	s.forget(ctx, m)
	return nil
}

// Shutdown stops the sweep and every session clock. Sessions stay readable.
func (s *sessionService) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopSweep) })

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.sessions {
		t.machine.Close()
	}
}

// forget releases a session already removed from the map.
func (s *sessionService) forget(ctx context.Context, m *session.Machine) {
	m.Close()
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionClosed()
	}
	if s.cfg.Autosave != nil {
		if err := s.cfg.Autosave.Delete(ctx, m.ID()); err != nil {
			s.cfg.Logger.Warn("Failed to delete autosaved answers", "session_id", m.ID(), "error", err)
		}
	}
}

// ===== EVICTION =====

func (s *sessionService) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopSweep:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep drops expired sessions and returns how many were evicted.
func (s *sessionService) sweep() int {
	now := s.cfg.Now()

	var expired []*session.Machine
	s.mu.Lock()
	for id, t := range s.sessions {
		if s.expired(t, now) {
			delete(s.sessions, id)
			expired = append(expired, t.machine)
		}
	}
	s.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SideEffectTimeout)
	defer cancel()
	for _, m := range expired {
		s.forget(ctx, m)
		s.cfg.Logger.Info("Session evicted",
			"session_id", m.ID(),
			"learner_id", m.LearnerID(),
			"state", m.State())
	}
	return len(expired)
}

// touch marks a session as used without an owner check.
func (s *sessionService) touch(sessionID string) {
	s.mu.RLock()
	t, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if ok {
		t.touch(s.cfg.Now())
	}
}

func (s *sessionService) expired(t *trackedSession, now time.Time) bool {
	idle := t.idleFor(now)
	switch t.machine.State() {
	case models.SessionCompleted, models.SessionError:
		return s.cfg.CompletedTTL > 0 && idle > s.cfg.CompletedTTL
	case models.SessionLoading, models.SessionActive:
		return s.cfg.IdleTTL > 0 && idle > s.cfg.IdleTTL
	default:
		return false
	}
}

// ===== ANSWERS =====

func (s *sessionService) ReplaceAnswer(ctx context.Context, sessionID, learnerID, questionID string, req *ReplaceAnswerRequest) (*models.SessionSnapshot, error) {
	m, err := s.lookup(sessionID, learnerID, "answer")
	if err != nil {
		return nil, err
	}

	q, h, err := s.question(m, questionID)
	if err != nil {
		return nil, err
	}
	content, err := h.Decode(q, req.Content)
	if err != nil {
		return nil, err
	}
	return s.update(m, questionID, models.ReplaceContent{Content: content})
}

func (s *sessionService) ToggleOption(ctx context.Context, sessionID, learnerID, questionID string, req *ToggleOptionRequest) (*models.SessionSnapshot, error) {
	if err := s.cfg.Validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	m, err := s.lookup(sessionID, learnerID, "answer")
	if err != nil {
		return nil, err
	}
	return s.update(m, questionID, models.ToggleOption{OptionID: req.OptionID})
}

func (s *sessionService) SetMatch(ctx context.Context, sessionID, learnerID, questionID string, req *SetMatchRequest) (*models.SessionSnapshot, error) {
	if err := s.cfg.Validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	m, err := s.lookup(sessionID, learnerID, "answer")
	if err != nil {
		return nil, err
	}
	return s.update(m, questionID, models.SetMatch{LeftID: req.LeftID, RightID: req.RightID})
}

func (s *sessionService) UploadFile(ctx context.Context, sessionID, learnerID, questionID string, file *FileUploadRequest) (*models.SessionSnapshot, error) {
	if err := s.cfg.Validator.ValidateStruct(file); err != nil {
		return nil, err
	}
	m, err := s.lookup(sessionID, learnerID, "answer")
	if err != nil {
		return nil, err
	}

	content := models.FileUploadAnswer{File: &models.UploadedFile{
		Filename:  file.Filename,
		MimeType:  file.MimeType,
		SizeBytes: int64(len(file.Data)),
		Data:      file.Data,
	}}
	return s.update(m, questionID, models.ReplaceContent{Content: content})
}

func (s *sessionService) update(m *session.Machine, questionID string, update models.AnswerUpdate) (*models.SessionSnapshot, error) {
	if err := m.UpdateAnswer(questionID, update); err != nil {
		return nil, err
	}
	s.autosave(m)
	return s.view(m), nil
}

// question resolves a question of the running assessment with its handler.
func (s *sessionService) question(m *session.Machine, questionID string) (*models.Question, registry.Handler, error) {
	a := m.Assessment()
	if a == nil {
		return nil, nil, &apperrors.StateError{Operation: "answer", State: string(m.State())}
	}
	q, ok := a.Question(questionID)
	if !ok {
		return nil, nil, fmt.Errorf("%w: question %s is not part of this assessment", ErrAnswerRejected, questionID)
	}
	h, err := s.cfg.Registry.For(q)
	if err != nil {
		return nil, nil, err
	}
	return q, h, nil
}

// ===== NAVIGATION =====

func (s *sessionService) Navigate(ctx context.Context, sessionID, learnerID string, req *NavigateRequest) (*NavigationResponse, error) {
	if err := s.cfg.Validator.ValidateStruct(req); err != nil {
		return nil, err
	}
	m, err := s.lookup(sessionID, learnerID, "navigate")
	if err != nil {
		return nil, err
	}

	var moved bool
	switch req.Action {
	case NavigateNext:
		moved = m.GoNext()
	case NavigatePrevious:
		moved = m.GoPrevious()
	case NavigateGoTo:
		if req.Index == nil {
			return nil, ValidationErrors{*NewValidationError("index", "is required for goto", nil)}
		}
		moved = m.GoTo(*req.Index)
	}

	snap := m.Snapshot()
	return &NavigationResponse{
		Moved:        moved,
		CurrentIndex: snap.CurrentIndex,
		Total:        len(snap.QuestionOrder),
	}, nil
}

// ===== HISTORY =====

func (s *sessionService) ListAttempts(ctx context.Context, learnerID string, filters repositories.AttemptFilters) ([]*models.AttemptRecord, int64, error) {
	if s.cfg.Attempts == nil {
		return []*models.AttemptRecord{}, 0, nil
	}
	if learnerID == "" {
		return nil, 0, ErrUnauthorized
	}
	filters.LearnerID = learnerID

	records, total, err := s.cfg.Attempts.List(ctx, filters)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list attempts: %w", err)
	}
	return records, total, nil
}

// ===== HELPERS =====

func (s *sessionService) lookup(sessionID, learnerID, action string) (*session.Machine, error) {
	s.mu.RLock()
	t, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if t.machine.LearnerID() != learnerID {
		return nil, NewPermissionError(learnerID, sessionID, "session", action, "session belongs to another learner")
	}
	t.touch(s.cfg.Now())
	return t.machine, nil
}

// view is the snapshot as the learner may see it.
func (s *sessionService) view(m *session.Machine) *models.SessionSnapshot {
	snap := m.Snapshot()
	if a := m.Assessment(); a != nil && snap.Result != nil {
		snap.Result = snap.Result.LearnerView(a.ShowResults)
	}
	return &snap
}

func (s *sessionService) autosave(m *session.Machine) {
	if s.cfg.Autosave == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SideEffectTimeout)
	defer cancel()

	if err := s.cfg.Autosave.Save(ctx, m.Snapshot()); err != nil {
		s.cfg.Logger.Warn("Failed to autosave answers", "session_id", m.ID(), "error", err)
	}
}
