package errors

import (
	stderrors "errors"
	"fmt"
	"slices"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taggedQuestion struct {
	ID   string `validate:"required"`
	Type string `validate:"question_type"`
}

type taggedAssessment struct {
	Title      string           `validate:"required,min=3"`
	Status     string           `validate:"assessment_status"`
	Extensions []string         `validate:"dive,file_extension"`
	Questions  []taggedQuestion `validate:"dive"`
}

func newTagValidator(t *testing.T) *validator.Validate {
	t.Helper()
	v := validator.New()
	oneOf := func(allowed ...string) validator.Func {
		return func(fl validator.FieldLevel) bool {
			return slices.Contains(allowed, fl.Field().String())
		}
	}
	require.NoError(t, v.RegisterValidation("question_type", oneOf("multiple-choice", "open-ended", "matching", "file-upload")))
	require.NoError(t, v.RegisterValidation("assessment_status", oneOf("draft", "published", "archived")))
	require.NoError(t, v.RegisterValidation("file_extension", oneOf("pdf", ".docx")))
	return v
}

func byField(errs ValidationErrors) map[string]ValidationError {
	out := make(map[string]ValidationError, len(errs))
	for _, e := range errs {
		out[e.Field] = e
	}
	return out
}

func TestToValidationErrors_CustomRules(t *testing.T) {
	v := newTagValidator(t)

	err := v.Struct(taggedAssessment{
		Title:      "Go",
		Status:     "deleted",
		Extensions: []string{"pdf", "exe file"},
		Questions:  []taggedQuestion{{ID: "q1", Type: "ordering"}},
	})
	require.Error(t, err)

	errs := ToValidationErrors(err)
	require.Len(t, errs, 4)
	fields := byField(errs)

	status, ok := fields["taggedAssessment.Status"]
	require.True(t, ok)
	assert.Equal(t, "assessment_status", status.Rule)
	assert.Equal(t, "deleted", status.Value)
	assert.Equal(t, "must be a valid assessment status (draft, published, archived)", status.Message)

	qtype, ok := fields["taggedAssessment.Questions[0].Type"]
	require.True(t, ok)
	assert.Equal(t, "question_type", qtype.Rule)
	assert.Equal(t, "must be a valid question type (multiple-choice, open-ended, matching, file-upload)", qtype.Message)

	ext, ok := fields["taggedAssessment.Extensions[1]"]
	require.True(t, ok)
	assert.Equal(t, "file_extension", ext.Rule)
	assert.Equal(t, "exe file", ext.Value)
	assert.Equal(t, "must be a file extension such as pdf or .docx", ext.Message)

	title, ok := fields["taggedAssessment.Title"]
	require.True(t, ok)
	assert.Equal(t, "min", title.Rule)
	assert.Equal(t, "must be at least 3", title.Message)

	assert.Equal(t, "validation failed: 4 field errors", errs.Error())
}

func TestToValidationErrors_Wrapped(t *testing.T) {
	v := newTagValidator(t)

	err := v.Struct(taggedQuestion{Type: "file-upload"})
	require.Error(t, err)

	errs := ToValidationErrors(fmt.Errorf("import sheet 2: %w", err))
	require.Len(t, errs, 1)
	assert.Equal(t, "taggedQuestion.ID", errs[0].Field)
	assert.Equal(t, "required", errs[0].Rule)
	assert.Equal(t, "validation failed: taggedQuestion.ID is required", errs.Error())
}

func TestToValidationErrors_OtherErrors(t *testing.T) {
	assert.Empty(t, ToValidationErrors(nil))
	assert.Empty(t, ToValidationErrors(stderrors.New("boom")))

	v := newTagValidator(t)
	assert.Empty(t, ToValidationErrors(v.Struct(taggedQuestion{ID: "q1", Type: "matching"})))
}

func TestValidationErrors_Error(t *testing.T) {
	var errs ValidationErrors
	assert.Equal(t, "validation failed", errs.Error())

	errs = append(errs, *NewValidationError("title", "is required", nil))
	assert.Equal(t, "validation failed: title is required", errs.Error())

	var target ValidationErrors
	require.True(t, stderrors.As(fmt.Errorf("start: %w", errs), &target))
	assert.Equal(t, "title", target[0].Field)
}

func TestValidationError_Error(t *testing.T) {
	err := NewValidationErrorWithRule("index", "is required for goto", "required", nil)

	assert.Equal(t, "required", err.Rule)
	assert.Equal(t, "validation error on field 'index': is required for goto", err.Error())
}
