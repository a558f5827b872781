package validator

import (
	"fmt"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/registry"
)

// QuestionValidator handles the checks struct tags cannot express
type QuestionValidator struct {
	registry *registry.Registry
}

// NewQuestionValidator creates a new question validator
func NewQuestionValidator(reg *registry.Registry) *QuestionValidator {
	return &QuestionValidator{registry: reg}
}

// ValidateAssessment checks every question and the ids across them
func (v *QuestionValidator) ValidateAssessment(a *models.Assessment) ValidationErrors {
	var errs ValidationErrors

	seen := make(map[string]bool, len(a.Questions))
	for i := range a.Questions {
		q := &a.Questions[i]
		field := fmt.Sprintf("questions[%d]", i)

		if seen[q.ID] {
			errs = append(errs, ValidationError{Field: field + ".id", Message: "must be unique", Value: q.ID, Rule: "unique"})
		}
		seen[q.ID] = true

		errs = append(errs, v.ValidateQuestion(field, q)...)
	}

	return errs
}

// ValidateQuestion checks one question; field prefixes the reported names
func (v *QuestionValidator) ValidateQuestion(field string, q *models.Question) ValidationErrors {
	var errs ValidationErrors

	optionIDs := make(map[string]bool, len(q.Options))
	for j, opt := range q.Options {
		if optionIDs[opt.ID] {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("%s.options[%d].id", field, j), Message: "must be unique", Value: opt.ID, Rule: "unique"})
		}
		optionIDs[opt.ID] = true
	}

	pairIDs := make(map[string]bool, len(q.Pairs))
	for j, p := range q.Pairs {
		if pairIDs[p.ID] {
			errs = append(errs, ValidationError{Field: fmt.Sprintf("%s.pairs[%d].id", field, j), Message: "must be unique", Value: p.ID, Rule: "unique"})
		}
		pairIDs[p.ID] = true
	}

	if err := v.registry.CheckDefinition(q); err != nil {
		errs = append(errs, ValidationError{Field: field, Message: err.Error(), Value: q.Type, Rule: string(q.Type)})
	}
	return errs
}
