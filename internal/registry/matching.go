package registry

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
)

type matchingHandler struct{}

func (matchingHandler) Type() models.QuestionType {
	return models.Matching
}

func (matchingHandler) EmptyAnswer(*models.Question) models.AnswerContent {
	return models.MatchingAnswer{Pairs: map[string]string{}}
}

func (matchingHandler) IsAnswered(content models.AnswerContent) bool {
	a, ok := content.(models.MatchingAnswer)
	return ok && len(a.Pairs) > 0
}

func (matchingHandler) Apply(q *models.Question, current models.AnswerContent, update models.AnswerUpdate) (models.AnswerContent, error) {
	switch u := update.(type) {
	case models.ReplaceContent:
		next, ok := u.Content.(models.MatchingAnswer)
		if !ok {
			return nil, mismatch(q, u.Content)
		}
		pairs := make(map[string]string, len(next.Pairs))
		maps.Copy(pairs, next.Pairs)
		return models.MatchingAnswer{Pairs: pairs}, nil

	case models.SetMatch:
		if !q.HasPair(u.LeftID) {
			return nil, rejectf("left item %q is not part of question %s", u.LeftID, q.ID)
		}
		prev, ok := current.(models.MatchingAnswer)
		if !ok {
			return nil, mismatch(q, current)
		}

		pairs := make(map[string]string, len(prev.Pairs)+1)
		maps.Copy(pairs, prev.Pairs)
		if u.RightID == "" {
			delete(pairs, u.LeftID)
		} else {
			pairs[u.LeftID] = u.RightID
		}
		return models.MatchingAnswer{Pairs: pairs}, nil

	default:
		return nil, unsupportedUpdate(q, update)
	}
}

func (matchingHandler) Validate(q *models.Question, content models.AnswerContent) error {
	a, ok := content.(models.MatchingAnswer)
	if !ok {
		return mismatch(q, content)
	}
	for left, right := range a.Pairs {
		if !q.HasPair(left) {
			return rejectf("left item %q is not part of question %s", left, q.ID)
		}
		if !q.HasPair(right) {
			return rejectf("right item %q is not part of question %s", right, q.ID)
		}
	}
	return nil
}

func (matchingHandler) Serialize(content models.AnswerContent) (any, error) {
	a, ok := content.(models.MatchingAnswer)
	if !ok {
		return nil, fmt.Errorf("serialize matching: unexpected %T", content)
	}
	out := make(map[string]string, len(a.Pairs))
	maps.Copy(out, a.Pairs)
	return out, nil
}

func (matchingHandler) Decode(q *models.Question, raw json.RawMessage) (models.AnswerContent, error) {
	var pairs map[string]string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &pairs); err != nil {
			return nil, rejectf("question %s expects a left to right mapping: %v", q.ID, err)
		}
	}
	if pairs == nil {
		pairs = map[string]string{}
	}
	return models.MatchingAnswer{Pairs: pairs}, nil
}

func (matchingHandler) Compare(q *models.Question, content models.AnswerContent) (bool, bool) {
	a, ok := content.(models.MatchingAnswer)
	if !ok {
		return false, true
	}
	if len(a.Pairs) != len(q.Pairs) {
		return false, true
	}
	for _, p := range q.Pairs {
		if a.Pairs[p.ID] != p.ID {
			return false, true
		}
	}
	return true, true
}

func (matchingHandler) CorrectAnswer(q *models.Question) any {
	key := make(map[string]string, len(q.Pairs))
	for _, p := range q.Pairs {
		key[p.ID] = p.ID
	}
	return key
}

func (matchingHandler) CheckDefinition(q *models.Question) error {
	if len(q.Pairs) < 2 {
		return fmt.Errorf("question %s needs at least two pairs", q.ID)
	}
	return nil
}
