// Package xlsx reads assessment definitions from, and writes results to,
// Excel workbooks.
package xlsx

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/SAP-F-2025/assessment-session-engine/internal/repositories"
	"github.com/xuri/excelize/v2"
)

// Sheet names of the workbook layout.
const (
	SheetAssessments = "Assessments"
	SheetQuestions   = "Questions"
	SheetOptions     = "Options"
	SheetPairs       = "Pairs"
	SheetKeywords    = "Keywords"
)

var (
	assessmentHeaders = []string{"id", "title", "status", "time_limit", "passing_score", "time_warning", "show_results", "allow_retakes", "randomize_questions"}
	questionHeaders   = []string{"assessment_id", "question_id", "type", "prompt", "points", "order", "word_limit", "allowed_extensions", "max_size_mb"}
	optionHeaders     = []string{"question_id", "option_id", "text", "is_correct"}
	pairHeaders       = []string{"question_id", "pair_id", "left", "right"}
	keywordHeaders    = []string{"question_id", "keywords"}
)

// WorkbookSource serves assessment definitions parsed from a workbook. The
// workbook is read once; the source is read-only afterwards.
type WorkbookSource struct {
	assessments map[string]*models.Assessment
	keywords    map[string][]string
}

func OpenWorkbookSource(path string) (*WorkbookSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()
	return NewWorkbookSource(f)
}

func NewWorkbookSource(r io.Reader) (*WorkbookSource, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	p := &parser{file: f}
	src := &WorkbookSource{
		assessments: make(map[string]*models.Assessment),
		keywords:    make(map[string][]string),
	}

	if err := p.each(SheetAssessments, true, func(row rowReader) error {
		a, err := row.assessment()
		if err != nil {
			return err
		}
		if _, dup := src.assessments[a.ID]; dup {
			return row.errorf("duplicate assessment id %s", a.ID)
		}
		src.assessments[a.ID] = a
		return nil
	}); err != nil {
		return nil, err
	}

	owner := make(map[string]*models.Assessment)
	if err := p.each(SheetQuestions, true, func(row rowReader) error {
		assessmentID := row.str("assessment_id")
		a, ok := src.assessments[assessmentID]
		if !ok {
			return row.errorf("unknown assessment %s", assessmentID)
		}
		q, err := row.question()
		if err != nil {
			return err
		}
		a.Questions = append(a.Questions, q)
		owner[q.ID] = a
		return nil
	}); err != nil {
		return nil, err
	}

	question := func(row rowReader) (*models.Question, error) {
		id := row.str("question_id")
		a, ok := owner[id]
		if !ok {
			return nil, row.errorf("unknown question %s", id)
		}
		q, _ := a.Question(id)
		return q, nil
	}

	if err := p.each(SheetOptions, false, func(row rowReader) error {
		q, err := question(row)
		if err != nil {
			return err
		}
		correct, err := row.boolean("is_correct")
		if err != nil {
			return err
		}
		q.Options = append(q.Options, models.Option{ID: row.str("option_id"), Text: row.str("text"), IsCorrect: correct})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.each(SheetPairs, false, func(row rowReader) error {
		q, err := question(row)
		if err != nil {
			return err
		}
		q.Pairs = append(q.Pairs, models.PairItem{ID: row.str("pair_id"), Left: row.str("left"), Right: row.str("right")})
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.each(SheetKeywords, false, func(row rowReader) error {
		if _, err := question(row); err != nil {
			return err
		}
		src.keywords[row.str("question_id")] = splitList(row.str("keywords"))
		return nil
	}); err != nil {
		return nil, err
	}

	for _, a := range src.assessments {
		sort.SliceStable(a.Questions, func(i, j int) bool { return a.Questions[i].Order < a.Questions[j].Order })
	}
	return src, nil
}

// GetAssessment returns a copy of the definition with the given id.
func (s *WorkbookSource) GetAssessment(_ context.Context, id string) (*models.Assessment, error) {
	a, ok := s.assessments[id]
	if !ok {
		return nil, fmt.Errorf("assessment %s: %w", id, repositories.ErrNotFound)
	}
	out := *a
	out.Questions = append([]models.Question(nil), a.Questions...)
	return &out, nil
}

// Assessments returns every definition in the workbook ordered by id.
func (s *WorkbookSource) Assessments() []*models.Assessment {
	ids := make([]string, 0, len(s.assessments))
	for id := range s.assessments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]*models.Assessment, 0, len(ids))
	for _, id := range ids {
		a, _ := s.GetAssessment(context.Background(), id)
		out = append(out, a)
	}
	return out
}

// Keywords returns the open-ended keyword lists keyed by question id.
func (s *WorkbookSource) Keywords() map[string][]string {
	out := make(map[string][]string, len(s.keywords))
	for k, v := range s.keywords {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// ===== ROW PARSING =====

type parser struct {
	file *excelize.File
}

type rowReader struct {
	sheet   string
	line    int
	headers map[string]int
	cells   []string
}

// each calls fn for every data row of sheet. A missing optional sheet is
// skipped.
func (p *parser) each(sheet string, required bool, fn func(rowReader) error) error {
	idx, err := p.file.GetSheetIndex(sheet)
	if err != nil || idx < 0 {
		if required {
			return fmt.Errorf("workbook has no %s sheet", sheet)
		}
		return nil
	}

	rows, err := p.file.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read %s rows: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil
	}

	headers := make(map[string]int)
	for i, header := range rows[0] {
		headers[strings.ToLower(strings.TrimSpace(header))] = i
	}

	for i, cells := range rows[1:] {
		if isBlank(cells) {
			continue
		}
		if err := fn(rowReader{sheet: sheet, line: i + 2, headers: headers, cells: cells}); err != nil {
			return err
		}
	}
	return nil
}

func (r rowReader) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s row %d: %s", r.sheet, r.line, fmt.Sprintf(format, args...))
}

func (r rowReader) str(column string) string {
	i, ok := r.headers[column]
	if !ok || i >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[i])
}

func (r rowReader) integer(column string) (int, error) {
	v := r.str(column)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, r.errorf("%s must be a whole number, got %q", column, v)
	}
	return n, nil
}

func (r rowReader) boolean(column string) (bool, error) {
	switch strings.ToLower(r.str(column)) {
	case "", "false", "no", "0":
		return false, nil
	case "true", "yes", "1", "x":
		return true, nil
	default:
		return false, r.errorf("%s must be true or false, got %q", column, r.str(column))
	}
}

func (r rowReader) assessment() (*models.Assessment, error) {
	a := &models.Assessment{
		ID:     r.str("id"),
		Title:  r.str("title"),
		Status: models.AssessmentStatus(strings.ToLower(r.str("status"))),
	}
	if a.ID == "" {
		return nil, r.errorf("id is required")
	}

	var err error
	if a.TimeLimit, err = r.integer("time_limit"); err != nil {
		return nil, err
	}
	if a.PassingScore, err = r.integer("passing_score"); err != nil {
		return nil, err
	}
	if a.TimeWarning, err = r.integer("time_warning"); err != nil {
		return nil, err
	}
	if a.ShowResults, err = r.boolean("show_results"); err != nil {
		return nil, err
	}
	if a.AllowRetakes, err = r.boolean("allow_retakes"); err != nil {
		return nil, err
	}
	if a.RandomizeQuestions, err = r.boolean("randomize_questions"); err != nil {
		return nil, err
	}
	return a, nil
}

func (r rowReader) question() (models.Question, error) {
	q := models.Question{
		ID:                r.str("question_id"),
		Type:              models.QuestionType(strings.ToLower(r.str("type"))),
		Prompt:            r.str("prompt"),
		AllowedExtensions: splitList(r.str("allowed_extensions")),
	}
	if q.ID == "" {
		return q, r.errorf("question_id is required")
	}

	var err error
	if q.Points, err = r.integer("points"); err != nil {
		return q, err
	}
	if q.Order, err = r.integer("order"); err != nil {
		return q, err
	}
	if q.MaxSizeMB, err = r.integer("max_size_mb"); err != nil {
		return q, err
	}
	if r.str("word_limit") != "" {
		limit, err := r.integer("word_limit")
		if err != nil {
			return q, err
		}
		q.WordLimit = &limit
	}
	return q, nil
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
