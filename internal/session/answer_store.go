package session

import (
	"fmt"

	apperrors "github.com/SAP-F-2025/assessment-session-engine/internal/errors"
	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/registry"
)

// AnswerStore keeps exactly one slot per question. It is not safe for
// concurrent use; the owning Machine serializes access.
type AnswerStore struct {
	registry  *registry.Registry
	order     []*models.Question
	questions map[string]*models.Question
	slots     map[string]models.AnswerContent
}

func NewAnswerStore(reg *registry.Registry) *AnswerStore {
	return &AnswerStore{registry: reg}
}

// Initialize discards every slot and creates an empty one per question.
// questions also fixes the order used by SnapshotAll.
func (s *AnswerStore) Initialize(questions []*models.Question) error {
	order := make([]*models.Question, 0, len(questions))
	byID := make(map[string]*models.Question, len(questions))
	slots := make(map[string]models.AnswerContent, len(questions))

	for _, q := range questions {
		h, err := s.registry.For(q)
		if err != nil {
			return err
		}
		if _, dup := byID[q.ID]; dup {
			return fmt.Errorf("duplicate question id %s", q.ID)
		}
		order = append(order, q)
		byID[q.ID] = q
		slots[q.ID] = h.EmptyAnswer(q)
	}

	s.order, s.questions, s.slots = order, byID, slots
	return nil
}

// Update applies update to one slot. On error the slot keeps its content.
func (s *AnswerStore) Update(questionID string, update models.AnswerUpdate) error {
	q, h, err := s.lookup(questionID)
	if err != nil {
		return err
	}

	next, err := h.Apply(q, s.slots[questionID], update)
	if err != nil {
		return err
	}
	if err := h.Validate(q, next); err != nil {
		return err
	}

	s.slots[questionID] = next
	return nil
}

func (s *AnswerStore) Get(questionID string) (models.AnswerContent, error) {
	content, ok := s.slots[questionID]
	if !ok {
		return nil, unknownQuestion(questionID)
	}
	return content, nil
}

func (s *AnswerStore) IsAnswered(questionID string) bool {
	_, h, err := s.lookup(questionID)
	if err != nil {
		return false
	}
	return h.IsAnswered(s.slots[questionID])
}

// SnapshotAll returns every slot in question order.
func (s *AnswerStore) SnapshotAll() []models.Answer {
	answers := make([]models.Answer, 0, len(s.order))
	for _, q := range s.order {
		answers = append(answers, models.Answer{QuestionID: q.ID, Content: s.slots[q.ID]})
	}
	return answers
}

// Serialize returns every slot in its transport form, in question order.
func (s *AnswerStore) Serialize() ([]models.SerializedAnswer, error) {
	out := make([]models.SerializedAnswer, 0, len(s.order))
	for _, q := range s.order {
		h, err := s.registry.For(q)
		if err != nil {
			return nil, err
		}
		content, err := h.Serialize(s.slots[q.ID])
		if err != nil {
			return nil, fmt.Errorf("failed to serialize answer for question %s: %w", q.ID, err)
		}
		out = append(out, models.SerializedAnswer{QuestionID: q.ID, Type: q.Type, Content: content})
	}
	return out, nil
}

// Questions returns the questions in slot order.
func (s *AnswerStore) Questions() []*models.Question {
	return s.order
}

func (s *AnswerStore) Len() int {
	return len(s.order)
}

func (s *AnswerStore) lookup(questionID string) (*models.Question, registry.Handler, error) {
	q, ok := s.questions[questionID]
	if !ok {
		return nil, nil, unknownQuestion(questionID)
	}
	h, err := s.registry.For(q)
	if err != nil {
		return nil, nil, err
	}
	return q, h, nil
}

func unknownQuestion(id string) error {
	return fmt.Errorf("%w: question %s is not part of this session", apperrors.ErrAnswerRejected, id)
}
