package models

import "strings"

type QuestionType string

const (
	MultipleChoice QuestionType = "multiple-choice"
	OpenEnded      QuestionType = "open-ended"
	Matching       QuestionType = "matching"
	FileUpload     QuestionType = "file-upload"
)

// QuestionTypes lists every type the engine knows about, in display order.
var QuestionTypes = []QuestionType{MultipleChoice, OpenEnded, Matching, FileUpload}

type Question struct {
	ID     string       `json:"id" validate:"required"`
	Type   QuestionType `json:"type" validate:"required,question_type"`
	Prompt string       `json:"prompt" validate:"required"`
	Points int          `json:"points" validate:"min=0"`
	Order  int          `json:"order"`

	// multiple-choice
	Options []Option `json:"options,omitempty" validate:"omitempty,dive"`

	// open-ended
	WordLimit *int `json:"word_limit,omitempty" validate:"omitempty,min=1"`

	// matching
	Pairs []PairItem `json:"pairs,omitempty" validate:"omitempty,dive"`

	// file-upload
	AllowedExtensions []string `json:"allowed_extensions,omitempty" validate:"omitempty,dive,file_extension"`
	MaxSizeMB         int      `json:"max_size_mb,omitempty" validate:"min=0"`
}

type Option struct {
	ID        string `json:"id" validate:"required"`
	Text      string `json:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct"`
}

// PairItem is one row of a matching question. The learner maps Left of
// this item to the Right of some item, referring to that item by its ID.
type PairItem struct {
	ID    string `json:"id" validate:"required"`
	Left  string `json:"left" validate:"required"`
	Right string `json:"right" validate:"required"`
}

// IsMultiSelect reports whether more than one option is marked correct.
func (q *Question) IsMultiSelect() bool {
	return len(q.CorrectOptionIDs()) > 1
}

// CorrectOptionIDs returns the correct option ids in option order.
func (q *Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

func (q *Question) HasOption(id string) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

func (q *Question) HasPair(id string) bool {
	for _, p := range q.Pairs {
		if p.ID == id {
			return true
		}
	}
	return false
}

// MaxSizeBytes returns the upload size limit, or 0 when unlimited.
func (q *Question) MaxSizeBytes() int64 {
	return int64(q.MaxSizeMB) * 1024 * 1024
}

// AllowsExtension matches the extension of filename against the allowed
// list. Entries may be written with or without the leading dot.
func (q *Question) AllowsExtension(filename string) bool {
	if len(q.AllowedExtensions) == 0 {
		return true
	}
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return false
	}
	ext := strings.ToLower(filename[idx+1:])
	for _, allowed := range q.AllowedExtensions {
		if strings.ToLower(strings.TrimPrefix(allowed, ".")) == ext {
			return true
		}
	}
	return false
}
