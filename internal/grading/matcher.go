package grading

import (
	"strings"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
)

// TextMatcher scores an open-ended answer. ok is false when the matcher has
// no reference for the question, which leaves the answer for manual review.
type TextMatcher interface {
	Match(q *models.Question, text string) (credit float64, ok bool)
}

// ExactTextMatcher awards full credit when the answer equals the reference
// text, ignoring surrounding whitespace.
type ExactTextMatcher struct {
	Answers       map[string]string
	CaseSensitive bool
}

func (m ExactTextMatcher) Match(q *models.Question, text string) (float64, bool) {
	want, ok := m.Answers[q.ID]
	if !ok {
		return 0, false
	}

	got := strings.TrimSpace(text)
	want = strings.TrimSpace(want)
	if m.CaseSensitive && got == want {
		return 1, true
	}
	if !m.CaseSensitive && strings.EqualFold(got, want) {
		return 1, true
	}
	return 0, true
}

// KeywordMatcher awards partial credit for each expected keyword found in
// the answer.
type KeywordMatcher struct {
	Keywords map[string][]string
}

func (m KeywordMatcher) Match(q *models.Question, text string) (float64, bool) {
	keywords := m.Keywords[q.ID]
	if len(keywords) == 0 {
		return 0, false
	}

	lower := strings.ToLower(text)
	hits := 0
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords)), true
}

// Matchers tries each matcher in turn and returns the first verdict.
type Matchers []TextMatcher

func (ms Matchers) Match(q *models.Question, text string) (float64, bool) {
	for _, m := range ms {
		if credit, ok := m.Match(q, text); ok {
			return credit, true
		}
	}
	return 0, false
}
