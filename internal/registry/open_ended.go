package registry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
)

type openEndedHandler struct{}

func (openEndedHandler) Type() models.QuestionType {
	return models.OpenEnded
}

func (openEndedHandler) EmptyAnswer(*models.Question) models.AnswerContent {
	return models.OpenEndedAnswer{}
}

func (openEndedHandler) IsAnswered(content models.AnswerContent) bool {
	a, ok := content.(models.OpenEndedAnswer)
	return ok && strings.TrimSpace(a.Text) != ""
}

func (openEndedHandler) Apply(q *models.Question, _ models.AnswerContent, update models.AnswerUpdate) (models.AnswerContent, error) {
	u, ok := update.(models.ReplaceContent)
	if !ok {
		return nil, unsupportedUpdate(q, update)
	}
	next, ok := u.Content.(models.OpenEndedAnswer)
	if !ok {
		return nil, mismatch(q, u.Content)
	}
	return next, nil
}

func (openEndedHandler) Validate(q *models.Question, content models.AnswerContent) error {
	a, ok := content.(models.OpenEndedAnswer)
	if !ok {
		return mismatch(q, content)
	}
	if q.WordLimit != nil {
		if words := WordCount(a.Text); words > *q.WordLimit {
			return rejectf("question %s allows %d words, got %d", q.ID, *q.WordLimit, words)
		}
	}
	return nil
}

func (openEndedHandler) Serialize(content models.AnswerContent) (any, error) {
	a, ok := content.(models.OpenEndedAnswer)
	if !ok {
		return nil, fmt.Errorf("serialize open-ended: unexpected %T", content)
	}
	return a.Text, nil
}

func (openEndedHandler) Decode(q *models.Question, raw json.RawMessage) (models.AnswerContent, error) {
	var text string
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, rejectf("question %s expects text: %v", q.ID, err)
		}
	}
	return models.OpenEndedAnswer{Text: text}, nil
}

func (openEndedHandler) Compare(*models.Question, models.AnswerContent) (bool, bool) {
	return false, false
}

func (openEndedHandler) CorrectAnswer(*models.Question) any {
	return nil
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
