package excel

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"grading-assistant-core/internal/model"
	"grading-assistant-core/pkg/errors"
)

// ParsingStrategy turns one kind of grading sheet into records.
type ParsingStrategy interface {
	Parse(ctx context.Context, data []byte) ([]model.GradingRecord, error)
	Validate(ctx context.Context, records []model.GradingRecord) error
}

// workbookStrategy reads Office Open XML workbooks through excelize.
type workbookStrategy struct {
	parser    *Parser
	validator *Validator
}

func newWorkbookStrategy() ParsingStrategy {
	return &workbookStrategy{
		parser:    NewParser(),
		validator: NewValidator(),
	}
}

func (s *workbookStrategy) Parse(ctx context.Context, data []byte) ([]model.GradingRecord, error) {
	return s.parser.Parse(ctx, data)
}

func (s *workbookStrategy) Validate(ctx context.Context, records []model.GradingRecord) error {
	return s.validator.Validate(ctx, records)
}

// strategies maps a lower-case file extension to its strategy.
var strategies = map[string]func() ParsingStrategy{
	".xlsx": newWorkbookStrategy,
	".xlsm": newWorkbookStrategy,
	".xltx": newWorkbookStrategy,
}

// StrategyFor picks the strategy for a sheet by its file extension. A
// source without an extension is read as a workbook.
func StrategyFor(source string) (ParsingStrategy, error) {
	ext := strings.ToLower(filepath.Ext(source))
	if ext == "" {
		return newWorkbookStrategy(), nil
	}
	build, ok := strategies[ext]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported extension %q (supported: %s)",
			errors.ErrInvalidFileFormat, ext, strings.Join(SupportedExtensions(), ", "))
	}
	return build(), nil
}

func SupportedExtensions() []string {
	exts := make([]string, 0, len(strategies))
	for ext := range strategies {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
