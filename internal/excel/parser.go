// Package excel imports grading records from spreadsheet exports.
package excel

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"grading-assistant-core/internal/model"
	"grading-assistant-core/pkg/errors"

	"github.com/xuri/excelize/v2"
)

// columnAliases maps accepted header spellings to canonical columns.
var columnAliases = map[string]string{
	"student":      "student_name",
	"student_name": "student_name",
	"name":         "student_name",
	"score":        "score",
	"grade":        "score",
	"max_score":    "max_score",
	"max":          "max_score",
	"question_key": "question_key",
	"question":     "question_key",
	"question_no":  "question_no",
	"no":           "question_no",
	"comment":      "comment",
	"feedback":     "comment",
	"timestamp":    "timestamp",
	"graded_at":    "timestamp",
}

var requiredColumns = []string{"student_name", "score"}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"}

type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse reads the first worksheet. Rows without a timestamp get a zero
// timestamp; the importer fills it in.
func (p *Parser) Parse(ctx context.Context, data []byte) ([]model.GradingRecord, error) {
	file, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidFileFormat, err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.ErrInvalidFileFormat
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	if len(rows) < 2 { // Header + at least one data row
		return nil, errors.ErrInvalidFileFormat
	}

	columnMap := make(map[string]int)
	for i, col := range rows[0] {
		name := strings.ToLower(strings.TrimSpace(col))
		name = strings.ReplaceAll(name, " ", "_")
		if canonical, ok := columnAliases[name]; ok {
			if _, seen := columnMap[canonical]; !seen {
				columnMap[canonical] = i
			}
		}
	}

	for _, col := range requiredColumns {
		if _, exists := columnMap[col]; !exists {
			return nil, fmt.Errorf("missing required column: %s", col)
		}
	}

	var records []model.GradingRecord
	for i, row := range rows[1:] {
		if isBlank(row) {
			continue
		}

		rec, err := p.parseRow(row, columnMap)
		if err != nil {
			return nil, fmt.Errorf("error parsing row %d: %w", i+2, err)
		}
		records = append(records, *rec)
	}

	return records, nil
}

func (p *Parser) parseRow(row []string, columnMap map[string]int) (*model.GradingRecord, error) {
	getValue := func(colName string) string {
		if idx, exists := columnMap[colName]; exists && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	rec := &model.GradingRecord{
		StudentName: getValue("student_name"),
		QuestionKey: getValue("question_key"),
		QuestionNo:  getValue("question_no"),
		Comment:     getValue("comment"),
	}

	scoreStr := getValue("score")
	if scoreStr == "" {
		return nil, fmt.Errorf("score is required")
	}
	score, err := strconv.ParseFloat(scoreStr, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid score value: %s", scoreStr)
	}
	rec.Score = score

	if maxStr := getValue("max_score"); maxStr != "" {
		max, err := strconv.ParseFloat(maxStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid max_score value: %s", maxStr)
		}
		rec.MaxScore = max
	}

	if tsStr := getValue("timestamp"); tsStr != "" {
		ts, err := parseTimestamp(tsStr)
		if err != nil {
			return nil, err
		}
		rec.Timestamp = ts
	}

	return rec, nil
}

// parseTimestamp accepts epoch milliseconds or a date-time in UTC.
func parseTimestamp(s string) (int64, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid timestamp value: %s", s)
}

func isBlank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
