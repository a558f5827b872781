package xlsx

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/SAP-F-2025/assessment-session-engine/internal/models"
	"github.com/xuri/excelize/v2"
)

// WriteWorkbook renders definitions in the layout NewWorkbookSource reads.
// Keywords may be nil.
func WriteWorkbook(assessments []*models.Assessment, keywords map[string][]string) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheets := map[string][][]interface{}{
		SheetAssessments: {toRow(assessmentHeaders)},
		SheetQuestions:   {toRow(questionHeaders)},
		SheetOptions:     {toRow(optionHeaders)},
		SheetPairs:       {toRow(pairHeaders)},
		SheetKeywords:    {toRow(keywordHeaders)},
	}

	for _, a := range assessments {
		sheets[SheetAssessments] = append(sheets[SheetAssessments], []interface{}{
			a.ID, a.Title, string(a.Status), a.TimeLimit, a.PassingScore, a.TimeWarning,
			a.ShowResults, a.AllowRetakes, a.RandomizeQuestions,
		})
		for _, q := range a.Questions {
			wordLimit := ""
			if q.WordLimit != nil {
				wordLimit = strconv.Itoa(*q.WordLimit)
			}
			sheets[SheetQuestions] = append(sheets[SheetQuestions], []interface{}{
				a.ID, q.ID, string(q.Type), q.Prompt, q.Points, q.Order, wordLimit,
				strings.Join(q.AllowedExtensions, ","), q.MaxSizeMB,
			})
			for _, opt := range q.Options {
				sheets[SheetOptions] = append(sheets[SheetOptions], []interface{}{q.ID, opt.ID, opt.Text, opt.IsCorrect})
			}
			for _, p := range q.Pairs {
				sheets[SheetPairs] = append(sheets[SheetPairs], []interface{}{q.ID, p.ID, p.Left, p.Right})
			}
			if kws := keywords[q.ID]; len(kws) > 0 {
				sheets[SheetKeywords] = append(sheets[SheetKeywords], []interface{}{q.ID, strings.Join(kws, ",")})
			}
		}
	}

	for i, name := range []string{SheetAssessments, SheetQuestions, SheetOptions, SheetPairs, SheetKeywords} {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return nil, fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return nil, fmt.Errorf("failed to create Excel sheet: %w", err)
		}
		if err := writeRows(f, name, sheets[name]); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf, nil
}

// ExportResult renders one graded attempt as a single-sheet workbook.
// Per-question rows are written only when the summary carries them.
func ExportResult(snapshot models.SessionSnapshot, a *models.Assessment, result *models.ResultSummary) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("session %s has no result", snapshot.ID)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Result"
	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Assessment", a.Title},
		{"Assessment ID", a.ID},
		{"Learner", snapshot.LearnerID},
		{"Session", snapshot.ID},
		{"Attempt", snapshot.Attempt},
		{"Score", result.Score},
		{"Total points", result.TotalPoints},
		{"Percentage", result.Percentage},
		{"Passed", result.Passed},
		{"Auto submitted", result.AutoSubmit},
		{"Submitted at", result.SubmittedAt.UTC().Format(time.RFC3339)},
	}
	if result.Feedback != "" {
		rows = append(rows, []interface{}{"Feedback", result.Feedback})
	}

	if len(result.PerQuestion) > 0 {
		rows = append(rows, nil, []interface{}{"Question", "Type", "Points", "Awarded", "Correct", "Feedback"})
		for _, r := range result.PerQuestion {
			qType, points := "", 0
			if q, ok := a.Question(r.QuestionID); ok {
				qType, points = string(q.Type), q.Points
			}
			rows = append(rows, []interface{}{r.QuestionID, qType, points, r.PointsAwarded, r.IsCorrect, r.Feedback})
		}
	}

	if err := writeRows(f, sheet, rows); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheet, "A", "A", 18); err != nil {
		return nil, fmt.Errorf("failed to size columns: %w", err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write Excel file: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func toRow(headers []string) []interface{} {
	row := make([]interface{}, len(headers))
	for i, h := range headers {
		row[i] = h
	}
	return row
}
