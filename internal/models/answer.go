package models

// AnswerContent is the per-type value held in an answer slot.
type AnswerContent interface {
	QuestionType() QuestionType
}

type MultipleChoiceAnswer struct {
	SelectedOptions []string `json:"selected_options"`
}

type OpenEndedAnswer struct {
	Text string `json:"text"`
}

type MatchingAnswer struct {
	Pairs map[string]string `json:"pairs"` // left item id -> right item id
}

type FileUploadAnswer struct {
	File *UploadedFile `json:"file"`
}

// UploadedFile holds the raw bytes of an upload until serialization.
type UploadedFile struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Data      []byte `json:"-"`
}

func (MultipleChoiceAnswer) QuestionType() QuestionType { return MultipleChoice }
func (OpenEndedAnswer) QuestionType() QuestionType      { return OpenEnded }
func (MatchingAnswer) QuestionType() QuestionType       { return Matching }
func (FileUploadAnswer) QuestionType() QuestionType     { return FileUpload }

// Answer is one slot of a session.
type Answer struct {
	QuestionID string        `json:"question_id"`
	Content    AnswerContent `json:"content"`
}

// AnswerUpdate is a mutation applied to a single slot.
type AnswerUpdate interface {
	isAnswerUpdate()
}

// ReplaceContent replaces the whole slot.
type ReplaceContent struct {
	Content AnswerContent
}

// ToggleOption flips membership of one option in a multiple-choice selection.
// On a multi-select question toggling the same option twice restores the
// selection. On a single-select question toggling an unselected option
// replaces the current choice, so a second toggle clears it instead of
// bringing the earlier choice back.
type ToggleOption struct {
	OptionID string
}

// SetMatch sets the right item for one left item. An empty RightID clears it.
type SetMatch struct {
	LeftID  string
	RightID string
}

func (ReplaceContent) isAnswerUpdate() {}
func (ToggleOption) isAnswerUpdate()   {}
func (SetMatch) isAnswerUpdate()       {}

// FilePayload is the JSON-safe form of an uploaded file.
type FilePayload struct {
	Filename  string `json:"filename"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
	Data      string `json:"data"` // base64
}
