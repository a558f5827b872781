package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssessmentRecord is the stored form of an Assessment definition.
type AssessmentRecord struct {
	ID                 string           `gorm:"primaryKey;size:64"`
	Title              string           `gorm:"not null;size:200;index"`
	Status             AssessmentStatus `gorm:"default:draft;index"`
	TimeLimit          int              `gorm:"not null;default:0"`
	PassingScore       int              `gorm:"not null"`
	TimeWarning        int              `gorm:"default:300"`
	ShowResults        bool             `gorm:"default:true"`
	AllowRetakes       bool             `gorm:"default:false"`
	RandomizeQuestions bool             `gorm:"default:false"`

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`

	Questions []QuestionRecord `gorm:"foreignKey:AssessmentID"`
}

func (AssessmentRecord) TableName() string {
	return "assessments"
}

// QuestionRecord keeps the common columns relational and the
// type-specific payload in a JSON column.
type QuestionRecord struct {
	ID           string         `gorm:"primaryKey;size:64"`
	AssessmentID string         `gorm:"not null;size:64;index"`
	Type         QuestionType   `gorm:"not null;size:32"`
	Prompt       string         `gorm:"type:text;not null"`
	Points       int            `gorm:"not null;default:0"`
	Order        int            `gorm:"column:sort_order;not null;default:0"`
	Content      datatypes.JSON `gorm:"type:jsonb"`
}

func (QuestionRecord) TableName() string {
	return "assessment_questions"
}

// QuestionContent is the JSON payload stored in QuestionRecord.Content.
type QuestionContent struct {
	Options           []Option   `json:"options,omitempty"`
	WordLimit         *int       `json:"word_limit,omitempty"`
	Pairs             []PairItem `json:"pairs,omitempty"`
	AllowedExtensions []string   `json:"allowed_extensions,omitempty"`
	MaxSizeMB         int        `json:"max_size_mb,omitempty"`
}

// AttemptRecord stores the outcome of a completed session.
type AttemptRecord struct {
	ID           string         `gorm:"primaryKey;size:64"`
	SessionID    string         `gorm:"not null;size:64;index"`
	AssessmentID string         `gorm:"not null;size:64;index"`
	LearnerID    string         `gorm:"not null;size:128;index"`
	Attempt      int            `gorm:"not null;default:1"`
	Score        float64        `gorm:"not null"`
	TotalPoints  int            `gorm:"not null"`
	Percentage   int            `gorm:"not null"`
	Passed       bool           `gorm:"not null"`
	AutoSubmit   bool           `gorm:"default:false"`
	StartedAt    time.Time      `gorm:"not null"`
	SubmittedAt  time.Time      `gorm:"not null"`
	Answers      datatypes.JSON `gorm:"type:jsonb"`
	Result       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt    time.Time
}

func (AttemptRecord) TableName() string {
	return "session_attempts"
}

// NewAssessmentRecord converts a definition into its stored form.
func NewAssessmentRecord(a *Assessment) (*AssessmentRecord, error) {
	rec := &AssessmentRecord{
		ID:                 a.ID,
		Title:              a.Title,
		Status:             a.Status,
		TimeLimit:          a.TimeLimit,
		PassingScore:       a.PassingScore,
		TimeWarning:        a.TimeWarning,
		ShowResults:        a.ShowResults,
		AllowRetakes:       a.AllowRetakes,
		RandomizeQuestions: a.RandomizeQuestions,
		Questions:          make([]QuestionRecord, 0, len(a.Questions)),
	}
	for _, q := range a.Questions {
		content, err := json.Marshal(QuestionContent{
			Options:           q.Options,
			WordLimit:         q.WordLimit,
			Pairs:             q.Pairs,
			AllowedExtensions: q.AllowedExtensions,
			MaxSizeMB:         q.MaxSizeMB,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode question %s: %w", q.ID, err)
		}
		rec.Questions = append(rec.Questions, QuestionRecord{
			ID:           q.ID,
			AssessmentID: a.ID,
			Type:         q.Type,
			Prompt:       q.Prompt,
			Points:       q.Points,
			Order:        q.Order,
			Content:      datatypes.JSON(content),
		})
	}
	return rec, nil
}

// ToAssessment converts the stored form back into a definition.
func (r *AssessmentRecord) ToAssessment() (*Assessment, error) {
	a := &Assessment{
		ID:                 r.ID,
		Title:              r.Title,
		Status:             r.Status,
		TimeLimit:          r.TimeLimit,
		PassingScore:       r.PassingScore,
		TimeWarning:        r.TimeWarning,
		ShowResults:        r.ShowResults,
		AllowRetakes:       r.AllowRetakes,
		RandomizeQuestions: r.RandomizeQuestions,
		Questions:          make([]Question, 0, len(r.Questions)),
	}
	for _, qr := range r.Questions {
		var content QuestionContent
		if len(qr.Content) > 0 {
			if err := json.Unmarshal(qr.Content, &content); err != nil {
				return nil, fmt.Errorf("failed to decode question %s: %w", qr.ID, err)
			}
		}
		a.Questions = append(a.Questions, Question{
			ID:                qr.ID,
			Type:              qr.Type,
			Prompt:            qr.Prompt,
			Points:            qr.Points,
			Order:             qr.Order,
			Options:           content.Options,
			WordLimit:         content.WordLimit,
			Pairs:             content.Pairs,
			AllowedExtensions: content.AllowedExtensions,
			MaxSizeMB:         content.MaxSizeMB,
		})
	}
	return a, nil
}

// NewAttemptRecord captures a graded attempt for storage.
func NewAttemptRecord(id string, snapshot SessionSnapshot, result *ResultSummary) (*AttemptRecord, error) {
	answers, err := json.Marshal(snapshot.Answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answers: %w", err)
	}
	summary, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return &AttemptRecord{
		ID:           id,
		SessionID:    snapshot.ID,
		AssessmentID: snapshot.AssessmentID,
		LearnerID:    snapshot.LearnerID,
		Attempt:      snapshot.Attempt,
		Score:        result.Score,
		TotalPoints:  result.TotalPoints,
		Percentage:   result.Percentage,
		Passed:       result.Passed,
		AutoSubmit:   result.AutoSubmit,
		StartedAt:    snapshot.StartedAt,
		SubmittedAt:  result.SubmittedAt,
		Answers:      datatypes.JSON(answers),
		Result:       datatypes.JSON(summary),
	}, nil
}
