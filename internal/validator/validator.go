package validator

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/registry"
	"github.com/go-playground/validator/v10"
)

var fileExtensionPattern = regexp.MustCompile(`^\.?[A-Za-z0-9]{1,10}$`)

// Validator is the main validator instance that combines struct tags and
// definition checks
type Validator struct {
	structValidator   *validator.Validate
	questionValidator *QuestionValidator
}

// New creates a validator whose question_type rule accepts the types reg
// knows about
func New(reg *registry.Registry) *Validator {
	structValidator := validator.New()

	// Register all custom validators once
	registerCustomValidators(structValidator, reg)

	return &Validator{
		structValidator:   structValidator,
		questionValidator: NewQuestionValidator(reg),
	}
}

// ValidateStruct validates struct tags only
func (v *Validator) ValidateStruct(s interface{}) error {
	if err := v.structValidator.Struct(s); err != nil {
		if errs := ToValidationErrors(err); len(errs) > 0 {
			return errs
		}
		return err
	}
	return nil
}

// Validate is ValidateStruct plus the definition checks for assessments
func (v *Validator) Validate(s interface{}) error {
	if a, ok := s.(*models.Assessment); ok {
		return v.ValidateAssessment(a)
	}
	return v.ValidateStruct(s)
}

// ValidateAssessment checks a definition before a session runs it
func (v *Validator) ValidateAssessment(a *models.Assessment) error {
	if err := v.ValidateStruct(a); err != nil {
		return err
	}
	if errs := v.questionValidator.ValidateAssessment(a); len(errs) > 0 {
		return errs
	}
	return nil
}

// Question returns the question validator
func (v *Validator) Question() *QuestionValidator {
	return v.questionValidator
}

// registerCustomValidators registers all custom validation functions
func registerCustomValidators(validate *validator.Validate, reg *registry.Registry) {
	// Question type validation
	validate.RegisterValidation("question_type", func(fl validator.FieldLevel) bool {
		return reg.Supports(models.QuestionType(fl.Field().String()))
	})

	// Assessment status validation
	validate.RegisterValidation("assessment_status", validateAssessmentStatus)

	// Upload extension validation
	validate.RegisterValidation("file_extension", validateFileExtension)

	// Custom tag name function for better error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func validateAssessmentStatus(fl validator.FieldLevel) bool {
	validStatuses := []models.AssessmentStatus{
		models.StatusDraft,
		models.StatusPublished,
		models.StatusArchived,
	}

	value := fl.Field().String()
	for _, validStatus := range validStatuses {
		if string(validStatus) == value {
			return true
		}
	}
	return false
}

func validateFileExtension(fl validator.FieldLevel) bool {
	return fileExtensionPattern.MatchString(fl.Field().String())
}
