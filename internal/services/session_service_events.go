package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/SAP-F-2025/assessment-session-engine/internal/events"
	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/session"
)

// observe receives every lifecycle event of every session. It runs on the
// goroutine that caused the transition, outside the machine lock.
func (s *sessionService) observe(m *session.Machine, e session.Event) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.Observe(e)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.SideEffectTimeout)
	defer cancel()

	switch e.Kind {
	case session.EventCompleted:
		s.touch(e.SessionID)
		s.recordAttempt(ctx, m, e)
	case session.EventSubmissionFailed, session.EventExpired:
		// Answers are frozen but still worth keeping for a manual retry.
		s.autosave(m)
	}

	s.publish(ctx, m, e)
}

func (s *sessionService) publish(ctx context.Context, m *session.Machine, e session.Event) {
	if s.cfg.Publisher == nil {
		return
	}
	event := toSessionEvent(m, e)
	if event == nil {
		return
	}
	if err := s.cfg.Publisher.PublishSessionEvent(ctx, event); err != nil {
		s.cfg.Logger.Error("Failed to publish session event",
			"session_id", e.SessionID,
			"event_type", event.Type,
			"error", err)
	}
}

func (s *sessionService) recordAttempt(ctx context.Context, m *session.Machine, e session.Event) {
	if s.cfg.Attempts == nil || e.Result == nil {
		return
	}

	// A retake may already have reset the machine; the event carries the
	// graded answers.
	snap := e.Snapshot
	if snap == nil {
		current := m.Snapshot()
		snap = &current
	}
	record, err := models.NewAttemptRecord(uuid.NewString(), *snap, e.Result)
	if err != nil {
		s.cfg.Logger.Error("Failed to build attempt record", "session_id", e.SessionID, "error", err)
		return
	}
	if err := s.cfg.Attempts.Create(ctx, record); err != nil {
		s.cfg.Logger.Error("Failed to store attempt",
			"session_id", e.SessionID,
			"attempt", e.Attempt,
			"error", err)
		return
	}

	s.cfg.Logger.Info("Attempt recorded",
		"session_id", e.SessionID,
		"attempt", e.Attempt,
		"score", e.Result.Score,
		"passed", e.Result.Passed)
}

// toSessionEvent maps a machine event onto its bus payload. Kinds without a
// bus counterpart return nil.
func toSessionEvent(m *session.Machine, e session.Event) *events.SessionEvent {
	ref := events.SessionRef{
		SessionID:    e.SessionID,
		AssessmentID: e.AssessmentID,
		LearnerID:    e.LearnerID,
		Attempt:      e.Attempt,
	}
	at := e.At.UTC()

	switch e.Kind {
	case session.EventStarted:
		payload := events.SessionStartedEvent{SessionRef: ref, RemainingSeconds: e.RemainingSeconds, StartedAt: at}
		if a := m.Assessment(); a != nil {
			payload.AssessmentTitle = a.Title
			payload.QuestionCount = len(a.Questions)
		}
		return events.NewSessionEvent(events.EventSessionStarted, payload)

	case session.EventLoadFailed:
		payload := events.SessionLoadFailedEvent{SessionRef: ref, Fatal: IsFatal(e.Err)}
		if e.Err != nil {
			payload.Reason = e.Err.Error()
		}
		return events.NewSessionEvent(events.EventSessionLoadFailed, payload)

	case session.EventTimeWarning:
		payload := events.SessionTimeWarningEvent{SessionRef: ref, WarningTime: at}
		if e.RemainingSeconds != nil {
			payload.RemainingSeconds = *e.RemainingSeconds
		}
		return events.NewSessionEvent(events.EventSessionTimeWarning, payload)

	case session.EventExpired:
		return events.NewSessionEvent(events.EventSessionExpired, events.SessionExpiredEvent{SessionRef: ref, ExpiredAt: at})

	case session.EventSubmitting:
		return events.NewSessionEvent(events.EventSessionSubmitted, events.SessionSubmittedEvent{
			SessionRef:  ref,
			AutoSubmit:  e.AutoSubmit,
			SubmittedAt: at,
		})

	case session.EventCompleted:
		if e.Result == nil {
			return nil
		}
		return events.NewSessionEvent(events.EventSessionGraded, events.SessionGradedEvent{
			SessionRef:  ref,
			Score:       e.Result.Score,
			TotalPoints: e.Result.TotalPoints,
			Percentage:  e.Result.Percentage,
			Passed:      e.Result.Passed,
			AutoSubmit:  e.AutoSubmit,
			GradedAt:    at,
		})

	case session.EventSubmissionFailed:
		payload := events.SubmissionFailedEvent{SessionRef: ref, FailedAt: at}
		if e.Err != nil {
			payload.Error = e.Err.Error()
		}
		return events.NewSessionEvent(events.EventSubmissionFailed, payload)

	case session.EventRetake:
		return events.NewSessionEvent(events.EventSessionRetake, events.SessionRetakeEvent{
			SessionRef:      ref,
			PreviousAttempt: e.Attempt - 1,
		})
	}
	return nil
}
