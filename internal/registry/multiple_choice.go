package registry

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
)

type multipleChoiceHandler struct {
	noKeyPolicy NoKeyPolicy
}

func (h *multipleChoiceHandler) Type() models.QuestionType {
	return models.MultipleChoice
}

func (h *multipleChoiceHandler) EmptyAnswer(*models.Question) models.AnswerContent {
	return models.MultipleChoiceAnswer{SelectedOptions: []string{}}
}

func (h *multipleChoiceHandler) IsAnswered(content models.AnswerContent) bool {
	a, ok := content.(models.MultipleChoiceAnswer)
	return ok && len(a.SelectedOptions) > 0
}

func (h *multipleChoiceHandler) Apply(q *models.Question, current models.AnswerContent, update models.AnswerUpdate) (models.AnswerContent, error) {
	switch u := update.(type) {
	case models.ReplaceContent:
		next, ok := u.Content.(models.MultipleChoiceAnswer)
		if !ok {
			return nil, mismatch(q, u.Content)
		}
		return models.MultipleChoiceAnswer{SelectedOptions: h.normalize(q, next.SelectedOptions)}, nil

	case models.ToggleOption:
		if !q.HasOption(u.OptionID) {
			return nil, rejectf("option %q is not part of question %s", u.OptionID, q.ID)
		}
		prev, ok := current.(models.MultipleChoiceAnswer)
		if !ok {
			return nil, mismatch(q, current)
		}

		selected := prev.SelectedOptions
		switch {
		case slices.Contains(selected, u.OptionID):
			selected = slices.DeleteFunc(slices.Clone(selected), func(id string) bool { return id == u.OptionID })
		case q.IsMultiSelect():
			selected = append(slices.Clone(selected), u.OptionID)
		default:
			// Single-select replaces the previous choice; toggling twice
			// leaves nothing selected rather than the earlier option.
			selected = []string{u.OptionID}
		}
		return models.MultipleChoiceAnswer{SelectedOptions: h.normalize(q, selected)}, nil

	default:
		return nil, unsupportedUpdate(q, update)
	}
}

func (h *multipleChoiceHandler) Validate(q *models.Question, content models.AnswerContent) error {
	a, ok := content.(models.MultipleChoiceAnswer)
	if !ok {
		return mismatch(q, content)
	}

	seen := make(map[string]struct{}, len(a.SelectedOptions))
	for _, id := range a.SelectedOptions {
		if !q.HasOption(id) {
			return rejectf("option %q is not part of question %s", id, q.ID)
		}
		if _, dup := seen[id]; dup {
			return rejectf("option %q selected twice on question %s", id, q.ID)
		}
		seen[id] = struct{}{}
	}

	if !q.IsMultiSelect() && len(a.SelectedOptions) > 1 {
		return rejectf("question %s accepts a single option, got %d", q.ID, len(a.SelectedOptions))
	}
	return nil
}

func (h *multipleChoiceHandler) Serialize(content models.AnswerContent) (any, error) {
	a, ok := content.(models.MultipleChoiceAnswer)
	if !ok {
		return nil, fmt.Errorf("serialize multiple-choice: unexpected %T", content)
	}
	out := make([]string, len(a.SelectedOptions))
	copy(out, a.SelectedOptions)
	return out, nil
}

func (h *multipleChoiceHandler) Decode(q *models.Question, raw json.RawMessage) (models.AnswerContent, error) {
	var ids []string
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &ids); err != nil {
			return nil, rejectf("question %s expects a list of option ids: %v", q.ID, err)
		}
	}
	if ids == nil {
		ids = []string{}
	}
	return models.MultipleChoiceAnswer{SelectedOptions: ids}, nil
}

func (h *multipleChoiceHandler) Compare(q *models.Question, content models.AnswerContent) (bool, bool) {
	a, ok := content.(models.MultipleChoiceAnswer)
	if !ok {
		return false, true
	}

	correct := q.CorrectOptionIDs()
	if len(correct) == 0 && h.noKeyPolicy == NoKeyAlwaysIncorrect {
		return false, true
	}
	return sameSet(a.SelectedOptions, correct), true
}

func (h *multipleChoiceHandler) CorrectAnswer(q *models.Question) any {
	return q.CorrectOptionIDs()
}

// normalize removes duplicates and orders ids the way the options are
// listed. Unknown ids are kept at the end so Validate can report them.
func (h *multipleChoiceHandler) normalize(q *models.Question, ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, opt := range q.Options {
		if slices.Contains(ids, opt.ID) {
			out = append(out, opt.ID)
		}
	}
	for _, id := range ids {
		if !q.HasOption(id) && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	return out
}

func sameSet(a, b []string) bool {
	left, right := uniq(a), uniq(b)
	if len(left) != len(right) {
		return false
	}
	for id := range right {
		if _, ok := left[id]; !ok {
			return false
		}
	}
	return true
}

func uniq(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (h *multipleChoiceHandler) CheckDefinition(q *models.Question) error {
	if len(q.Options) < 2 {
		return fmt.Errorf("question %s needs at least two options", q.ID)
	}
	return nil
}
