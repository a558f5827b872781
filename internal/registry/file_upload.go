package registry

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
)

type fileUploadHandler struct{}

func (fileUploadHandler) Type() models.QuestionType {
	return models.FileUpload
}

func (fileUploadHandler) EmptyAnswer(*models.Question) models.AnswerContent {
	return models.FileUploadAnswer{}
}

func (fileUploadHandler) IsAnswered(content models.AnswerContent) bool {
	a, ok := content.(models.FileUploadAnswer)
	return ok && a.File != nil
}

func (fileUploadHandler) Apply(q *models.Question, _ models.AnswerContent, update models.AnswerUpdate) (models.AnswerContent, error) {
	u, ok := update.(models.ReplaceContent)
	if !ok {
		return nil, unsupportedUpdate(q, update)
	}
	next, ok := u.Content.(models.FileUploadAnswer)
	if !ok {
		return nil, mismatch(q, u.Content)
	}
	if next.File == nil {
		return models.FileUploadAnswer{}, nil
	}

	file := *next.File
	if n := int64(len(file.Data)); n > 0 {
		file.SizeBytes = n
	}
	return models.FileUploadAnswer{File: &file}, nil
}

func (fileUploadHandler) Validate(q *models.Question, content models.AnswerContent) error {
	a, ok := content.(models.FileUploadAnswer)
	if !ok {
		return mismatch(q, content)
	}
	if a.File == nil {
		return nil
	}
	if a.File.Filename == "" {
		return rejectf("question %s: uploaded file has no name", q.ID)
	}
	if !q.AllowsExtension(a.File.Filename) {
		return rejectf("question %s does not accept %q (allowed: %v)", q.ID, a.File.Filename, q.AllowedExtensions)
	}
	if limit := q.MaxSizeBytes(); limit > 0 && a.File.SizeBytes > limit {
		return rejectf("question %s accepts files up to %d MB, got %d bytes", q.ID, q.MaxSizeMB, a.File.SizeBytes)
	}
	return nil
}

func (fileUploadHandler) Serialize(content models.AnswerContent) (any, error) {
	a, ok := content.(models.FileUploadAnswer)
	if !ok {
		return nil, fmt.Errorf("serialize file-upload: unexpected %T", content)
	}
	if a.File == nil {
		return nil, nil
	}
	return &models.FilePayload{
		Filename:  a.File.Filename,
		MimeType:  a.File.MimeType,
		SizeBytes: a.File.SizeBytes,
		Data:      base64.StdEncoding.EncodeToString(a.File.Data),
	}, nil
}

func (fileUploadHandler) Decode(q *models.Question, raw json.RawMessage) (models.AnswerContent, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return models.FileUploadAnswer{}, nil
	}

	var payload models.FilePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, rejectf("question %s expects a file payload: %v", q.ID, err)
	}
	data, err := base64.StdEncoding.DecodeString(payload.Data)
	if err != nil {
		return nil, rejectf("question %s: file data is not valid base64: %v", q.ID, err)
	}

	return models.FileUploadAnswer{File: &models.UploadedFile{
		Filename:  payload.Filename,
		MimeType:  payload.MimeType,
		SizeBytes: int64(len(data)),
		Data:      data,
	}}, nil
}

func (fileUploadHandler) Compare(*models.Question, models.AnswerContent) (bool, bool) {
	return false, false
}

func (fileUploadHandler) CorrectAnswer(*models.Question) any {
	return nil
}
