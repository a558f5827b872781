package cache

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/session"
)

// CachedAssessmentSource is a read-through cache in front of another
// source. Only published definitions are cached. Cache failures fall back to
// the wrapped source.
type CachedAssessmentSource struct {
	source session.AssessmentSource
	cache  CacheService
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedAssessmentSource(source session.AssessmentSource, cache CacheService, ttl time.Duration, logger *slog.Logger) *CachedAssessmentSource {
	return &CachedAssessmentSource{
		source: source,
		cache:  cache,
		ttl:    ttl,
		logger: logger,
	}
}

func (s *CachedAssessmentSource) GetAssessment(ctx context.Context, id string) (*models.Assessment, error) {
	key := CacheKey.AssessmentKey(id)

	var cached models.Assessment
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return &cached, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("Assessment cache unavailable, reading through", "assessment_id", id, "error", err)
	}

	a, err := s.source.GetAssessment(ctx, id)
	if err != nil || a == nil {
		return a, err
	}

	if a.IsPublished() {
		if err := s.cache.Set(ctx, key, a, s.ttl); err != nil {
			s.logger.Warn("Failed to cache assessment", "assessment_id", id, "error", err)
		}
	}
	return a, nil
}

// Invalidate drops the cached definition.
func (s *CachedAssessmentSource) Invalidate(ctx context.Context, id string) error {
	return s.cache.Delete(ctx, CacheKey.AssessmentKey(id))
}

// Prewarm stores published definitions ahead of the first session. It
// returns how many were cached.
func (s *CachedAssessmentSource) Prewarm(ctx context.Context, assessments []*models.Assessment) int {
	cached := 0
	for _, a := range assessments {
		if a == nil || !a.IsPublished() {
			continue
		}
		if err := s.cache.Set(ctx, CacheKey.AssessmentKey(a.ID), a, s.ttl); err != nil {
			s.logger.Warn("Failed to prewarm assessment", "assessment_id", a.ID, "error", err)
			continue
		}
		cached++
	}
	return cached
}
