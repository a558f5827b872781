// Package registry holds the per-type behaviour of every question variant.
// Code outside this package never switches on models.QuestionType.
package registry

import (
	"encoding/json"
	"fmt"

	apperrors "github.com/SAP-F-2025/assessment-session-engine/internal/errors"
	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
)

// Handler is the contract a question type implements.
type Handler interface {
	Type() models.QuestionType

	// EmptyAnswer returns the value a fresh slot starts with.
	EmptyAnswer(q *models.Question) models.AnswerContent
	IsAnswered(content models.AnswerContent) bool

	// Apply returns the slot content after update. current is never modified.
	Apply(q *models.Question, current models.AnswerContent, update models.AnswerUpdate) (models.AnswerContent, error)
	Validate(q *models.Question, content models.AnswerContent) error

	// Serialize returns a JSON-safe value; Decode is its inverse.
	Serialize(content models.AnswerContent) (any, error)
	Decode(q *models.Question, raw json.RawMessage) (models.AnswerContent, error)

	// Compare reports correctness. gradable is false for types that
	// need an external grader.
	Compare(q *models.Question, content models.AnswerContent) (correct bool, gradable bool)
	CorrectAnswer(q *models.Question) any
}

// DefinitionChecker is implemented by handlers whose question type carries
// structural requirements beyond struct tags.
type DefinitionChecker interface {
	CheckDefinition(q *models.Question) error
}

// NoKeyPolicy decides how a multiple-choice question without any
// correct option is scored.
type NoKeyPolicy string

const (
	// NoKeyMatchEmpty scores the question correct only when nothing is selected.
	NoKeyMatchEmpty NoKeyPolicy = "match-empty"
	// NoKeyAlwaysIncorrect never scores the question correct.
	NoKeyAlwaysIncorrect NoKeyPolicy = "always-incorrect"
)

func ParseNoKeyPolicy(s string) (NoKeyPolicy, error) {
	switch NoKeyPolicy(s) {
	case "", NoKeyMatchEmpty:
		return NoKeyMatchEmpty, nil
	case NoKeyAlwaysIncorrect:
		return NoKeyAlwaysIncorrect, nil
	default:
		return "", fmt.Errorf("unknown multiple-choice no-key policy %q", s)
	}
}

type Option func(*Registry)

// WithNoKeyPolicy overrides the default NoKeyMatchEmpty policy.
func WithNoKeyPolicy(p NoKeyPolicy) Option {
	return func(r *Registry) {
		r.noKeyPolicy = p
	}
}

// WithHandler registers an additional or replacement handler.
func WithHandler(h Handler) Option {
	return func(r *Registry) {
		r.extra = append(r.extra, h)
	}
}

// Registry is a closed set of handlers keyed by question type.
type Registry struct {
	handlers    map[models.QuestionType]Handler
	noKeyPolicy NoKeyPolicy
	extra       []Handler
}

// New builds a registry with the four built-in question types.
func New(opts ...Option) *Registry {
	r := &Registry{
		handlers:    make(map[models.QuestionType]Handler),
		noKeyPolicy: NoKeyMatchEmpty,
	}
	for _, opt := range opts {
		opt(r)
	}

	r.register(&multipleChoiceHandler{noKeyPolicy: r.noKeyPolicy})
	r.register(openEndedHandler{})
	r.register(matchingHandler{})
	r.register(fileUploadHandler{})
	for _, h := range r.extra {
		r.register(h)
	}
	r.extra = nil

	return r
}

func (r *Registry) register(h Handler) {
	r.handlers[h.Type()] = h
}

// Lookup returns the handler for t or an UnsupportedQuestionTypeError.
func (r *Registry) Lookup(t models.QuestionType) (Handler, error) {
	h, ok := r.handlers[t]
	if !ok {
		return nil, &apperrors.UnsupportedQuestionTypeError{Type: string(t)}
	}
	return h, nil
}

// For is Lookup with the question id attached to the error.
func (r *Registry) For(q *models.Question) (Handler, error) {
	h, ok := r.handlers[q.Type]
	if !ok {
		return nil, &apperrors.UnsupportedQuestionTypeError{Type: string(q.Type), QuestionID: q.ID}
	}
	return h, nil
}

func (r *Registry) Supports(t models.QuestionType) bool {
	_, ok := r.handlers[t]
	return ok
}

// CheckAll fails on the first question whose type is not registered.
func (r *Registry) CheckAll(questions []models.Question) error {
	for i := range questions {
		if _, err := r.For(&questions[i]); err != nil {
			return err
		}
	}
	return nil
}

// CheckDefinition runs the handler's DefinitionChecker, if it has one.
func (r *Registry) CheckDefinition(q *models.Question) error {
	h, err := r.For(q)
	if err != nil {
		return err
	}
	if c, ok := h.(DefinitionChecker); ok {
		return c.CheckDefinition(q)
	}
	return nil
}

func rejectf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{apperrors.ErrAnswerRejected}, args...)...)
}

func mismatch(q *models.Question, content any) error {
	return rejectf("question %s expects %s content, got %T", q.ID, q.Type, content)
}

func unsupportedUpdate(q *models.Question, update models.AnswerUpdate) error {
	return rejectf("%T cannot be applied to %s question %s", update, q.Type, q.ID)
}
