package cache

import (
	"context"
	"errors"
	"time"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
)

// AnswerSnapshotStore autosaves session snapshots so answers survive a
// lost client. The engine never reads them back on its own.
type AnswerSnapshotStore struct {
	cache CacheService
	ttl   time.Duration
}

func NewAnswerSnapshotStore(cache CacheService, ttl time.Duration) *AnswerSnapshotStore {
	return &AnswerSnapshotStore{cache: cache, ttl: ttl}
}

func (s *AnswerSnapshotStore) Save(ctx context.Context, snapshot models.SessionSnapshot) error {
	return s.cache.Set(ctx, CacheKey.SessionAnswersKey(snapshot.ID), snapshot, s.ttl)
}

// Load returns the last saved snapshot, or nil when none exists.
func (s *AnswerSnapshotStore) Load(ctx context.Context, sessionID string) (*models.SessionSnapshot, error) {
	var snapshot models.SessionSnapshot
	err := s.cache.Get(ctx, CacheKey.SessionAnswersKey(sessionID), &snapshot)
	if errors.Is(err, ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (s *AnswerSnapshotStore) Delete(ctx context.Context, sessionID string) error {
	return s.cache.Delete(ctx, CacheKey.SessionAnswersKey(sessionID))
}

// Purge removes every autosaved snapshot.
func (s *AnswerSnapshotStore) Purge(ctx context.Context) error {
	return s.cache.DeletePattern(ctx, CacheKey.SessionAnswersPattern())
}
