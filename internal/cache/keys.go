package cache

import "fmt"

type CacheKeyStruct struct {
	prefix string
}

func NewCacheKeyStruct(prefix string) *CacheKeyStruct {
	return &CacheKeyStruct{prefix: prefix}
}

// AssessmentKey returns the cache key for an assessment definition
func (k *CacheKeyStruct) AssessmentKey(assessmentID string) string {
	return fmt.Sprintf("%sassessment:%s:definition", k.prefix, assessmentID)
}

// SessionAnswersKey returns the cache key for a session's autosaved answers
func (k *CacheKeyStruct) SessionAnswersKey(sessionID string) string {
	return fmt.Sprintf("%ssession:%s:answers", k.prefix, sessionID)
}

// SessionAnswersPattern matches every autosave key
func (k *CacheKeyStruct) SessionAnswersPattern() string {
	return k.prefix + "session:*:answers"
}

var CacheKey = NewCacheKeyStruct("ase:")
