package excel

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/fluentbuddy/internal/catalog"
	"github.com/example/fluentbuddy/pkg/models"
	"github.com/xuri/excelize/v2"
)

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath            string // Path to the Excel or CSV file
	IDColumn            string
	LevelColumn         string
	CategoryColumn      string
	TypeColumn          string
	QuestionColumn      string
	OptionsColumn       string // list cell, items split on | or ;
	CorrectAnswerColumn string
	ExplanationColumn   string
	TagsColumn          string // list cell
	HintColumn          string // optional
	WordsColumn         string // optional list cell
	SheetName           string // Name of the sheet to import
	StartRow            int    // The row to start importing from (1-based index)
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		IDColumn:            "A",
		LevelColumn:         "B",
		CategoryColumn:      "C",
		TypeColumn:          "D",
		QuestionColumn:      "E",
		OptionsColumn:       "F",
		CorrectAnswerColumn: "G",
		ExplanationColumn:   "H",
		TagsColumn:          "I",
		HintColumn:          "J",
		WordsColumn:         "K",
		SheetName:           "Sheet1",
		StartRow:            2, // skip header
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Imported       int
	Skipped        int
	Errors         []string
}

// ImportExercises reads an exercise bank from an Excel or CSV file.
// Invalid rows are reported in the result and left out of the bank.
func ImportExercises(config ImportConfig) (*ImportResult, []models.Exercise, error) {
	var (
		rows [][]string
		err  error
	)
	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		rows, err = readCSV(config.FilePath)
	} else {
		rows, err = readExcel(config.FilePath, config.SheetName)
	}
	if err != nil {
		return nil, nil, err
	}

	result := &ImportResult{Errors: make([]string, 0)}
	seen := make(map[string]bool)
	var bank []models.Exercise

	for i, row := range rows {
		rowNum := i + 1
		if rowNum < config.StartRow || blankRow(row) {
			continue
		}
		result.TotalProcessed++

		ex, err := processRow(row, config)
		if err != nil {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
			continue
		}
		if seen[ex.ID] {
			result.Skipped++
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: duplicate exercise id %s", rowNum, ex.ID))
			continue
		}
		seen[ex.ID] = true
		bank = append(bank, ex)
		result.Imported++
	}

	return result, bank, nil
}

func readExcel(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}
	return rows, nil
}

func readCSV(path string) ([][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// processRow turns a single row into an exercise
func processRow(row []string, config ImportConfig) (models.Exercise, error) {
	cell := func(column string) string {
		if column == "" {
			return ""
		}
		if idx := columnToIndex(column); idx >= 0 && idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	ex := models.Exercise{
		ID:            cell(config.IDColumn),
		Category:      models.Category(strings.ToLower(cell(config.CategoryColumn))),
		Type:          models.ExerciseType(strings.ToLower(cell(config.TypeColumn))),
		Question:      cell(config.QuestionColumn),
		Options:       splitList(cell(config.OptionsColumn)),
		CorrectAnswer: cell(config.CorrectAnswerColumn),
		Explanation:   cell(config.ExplanationColumn),
		Tags:          splitList(cell(config.TagsColumn)),
		Hint:          cell(config.HintColumn),
		Words:         splitList(cell(config.WordsColumn)),
	}

	level, err := models.ParseLevel(cell(config.LevelColumn))
	if err != nil {
		return ex, err
	}
	ex.Level = level

	if ex.Question == "" {
		return ex, fmt.Errorf("exercise %s: question cannot be empty", ex.ID)
	}
	if ex.Type == models.ExerciseMultipleChoice && len(ex.Options) < 2 {
		return ex, fmt.Errorf("exercise %s: multiple choice needs at least two options", ex.ID)
	}
	if err := catalog.ValidateExercise(ex); err != nil {
		return ex, err
	}
	return ex, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ';' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Helper function to convert Excel column letter to index
func columnToIndex(column string) int {
	column = strings.ToUpper(column)
	index := 0
	for i := 0; i < len(column); i++ {
		index = index*26 + int(column[i]-'A'+1)
	}
	return index - 1
}

// Summary renders the result the way the CLI prints it
func (r *ImportResult) Summary() string {
	var b strings.Builder
	b.WriteString("Processed: " + strconv.Itoa(r.TotalProcessed) + "\n")
	b.WriteString("Imported: " + strconv.Itoa(r.Imported) + "\n")
	b.WriteString("Skipped: " + strconv.Itoa(r.Skipped) + "\n")
	for _, e := range r.Errors {
		b.WriteString("  " + e + "\n")
	}
	return b.String()
}
