package models

type AssessmentStatus string

const (
	StatusDraft     AssessmentStatus = "draft"
	StatusPublished AssessmentStatus = "published"
	StatusArchived  AssessmentStatus = "archived"
)

// Assessment is the read-only definition a session runs against. It may be
// shared by several sessions and is never mutated after load.
type Assessment struct {
	ID           string           `json:"id" validate:"required"`
	Title        string           `json:"title" validate:"required,max=200"`
	Status       AssessmentStatus `json:"status" validate:"required,assessment_status"`
	TimeLimit    int              `json:"time_limit" validate:"min=0,max=1440"` // minutes, 0 = untimed
	PassingScore int              `json:"passing_score" validate:"min=0,max=100"`
	TimeWarning  int              `json:"time_warning" validate:"min=0"` // seconds before expiry

	ShowResults        bool `json:"show_results"`
	AllowRetakes       bool `json:"allow_retakes"`
	RandomizeQuestions bool `json:"randomize_questions"`

	Questions []Question `json:"questions" validate:"required,min=1,dive"`
}

func (a *Assessment) IsPublished() bool {
	return a.Status == StatusPublished
}

// TotalPoints sums the point value of every question.
func (a *Assessment) TotalPoints() int {
	total := 0
	for _, q := range a.Questions {
		total += q.Points
	}
	return total
}

// Question returns the question with the given id.
func (a *Assessment) Question(id string) (*Question, bool) {
	for i := range a.Questions {
		if a.Questions[i].ID == id {
			return &a.Questions[i], true
		}
	}
	return nil, false
}
