package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/example/prepbot/pkg/models"
)

// ItemWriter stores imported catalog items
type ItemWriter interface {
	Upsert(ctx context.Context, item *models.Item) (bool, error)
}

// ImportConfig defines the import configuration
type ImportConfig struct {
	FilePath      string // Path to the Excel or CSV file
	IDColumn      string // Column with the item ID; derived from kind and prompt when empty
	KindColumn    string // Column with the kind (vocab, idiom, gk)
	PromptColumn  string // Column with the prompt
	AnswerColumn  string // Column with the answer
	DetailsColumn string // Column with details shown after answering
	TopicColumn   string // Column with the topic
	SheetName     string // Name of the sheet to import
	StartRow      int    // The row to start importing from (1-based index)
	DefaultKind   string // Kind used when the kind cell is empty
}

// DefaultImportConfig returns the default import configuration
func DefaultImportConfig() ImportConfig {
	return ImportConfig{
		IDColumn:      "A",
		KindColumn:    "B",
		PromptColumn:  "C",
		AnswerColumn:  "D",
		DetailsColumn: "E",
		TopicColumn:   "F",
		SheetName:     "Sheet1",
		StartRow:      2, // By default, start from the second row (skip header)
		DefaultKind:   "vocab",
	}
}

// ImportResult holds the result of an import operation
type ImportResult struct {
	TotalProcessed int
	Created        int
	Updated        int
	Skipped        int
	Errors         []string
}

var errSkipRow = errors.New("skipping row")

// columns holds zero-based indexes resolved from the configured letters; -1 means unused
type columns struct {
	id, kind, prompt, answer, details, topic int
}

func resolveColumns(config ImportConfig) (columns, error) {
	index := func(name string) (int, error) {
		if name == "" {
			return -1, nil
		}
		n, err := excelize.ColumnNameToNumber(name)
		if err != nil {
			return -1, fmt.Errorf("invalid column %q: %w", name, err)
		}
		return n - 1, nil
	}

	var (
		c   columns
		err error
	)
	for _, f := range []struct {
		dst  *int
		name string
	}{
		{&c.id, config.IDColumn},
		{&c.kind, config.KindColumn},
		{&c.prompt, config.PromptColumn},
		{&c.answer, config.AnswerColumn},
		{&c.details, config.DetailsColumn},
		{&c.topic, config.TopicColumn},
	} {
		if *f.dst, err = index(f.name); err != nil {
			return c, err
		}
	}
	if c.prompt < 0 || c.answer < 0 {
		return c, errors.New("prompt and answer columns are required")
	}
	return c, nil
}

// ImportItems imports catalog items from an Excel or CSV file
func ImportItems(ctx context.Context, config ImportConfig, writer ItemWriter) (*ImportResult, error) {
	cols, err := resolveColumns(config)
	if err != nil {
		return nil, err
	}

	if strings.ToLower(filepath.Ext(config.FilePath)) == ".csv" {
		return importFromCSV(ctx, config, cols, writer)
	}
	return importFromExcel(ctx, config, cols, writer)
}

// importFromExcel imports items from an Excel file
func importFromExcel(ctx context.Context, config ImportConfig, cols columns, writer ItemWriter) (*ImportResult, error) {
	f, err := excelize.OpenFile(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(config.SheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	result := &ImportResult{Errors: make([]string, 0)}
	for i, row := range rows {
		if i < config.StartRow-1 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}
		processRow(ctx, row, "", config, cols, writer, result, i+1)
	}
	return result, nil
}

// importFromCSV imports items from a CSV file.
// A row with only its first cell filled starts a new topic for the rows below it.
func importFromCSV(ctx context.Context, config ImportConfig, cols columns, writer ItemWriter) (*ImportResult, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // Allow variable number of fields
	reader.LazyQuotes = true

	result := &ImportResult{Errors: make([]string, 0)}
	rowNum := 0
	currentTopic := ""

	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return result, fmt.Errorf("error reading CSV: %w", err)
		}
		rowNum++

		if rowNum < config.StartRow {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if topic, ok := topicHeader(row); ok {
			currentTopic = topic
			continue
		}
		processRow(ctx, row, currentTopic, config, cols, writer, result, rowNum)
	}
	return result, nil
}

func topicHeader(row []string) (string, bool) {
	if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
		return "", false
	}
	for _, cell := range row[1:] {
		if strings.TrimSpace(cell) != "" {
			return "", false
		}
	}
	return strings.Trim(strings.TrimSpace(row[0]), "\""), true
}

func processRow(ctx context.Context, row []string, defaultTopic string, config ImportConfig, cols columns, writer ItemWriter, result *ImportResult, rowNum int) {
	result.TotalProcessed++

	item, err := itemFromRow(row, defaultTopic, config, cols)
	if errors.Is(err, errSkipRow) {
		result.Skipped++
		return
	}
	if err != nil {
		result.Skipped++
		result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
		return
	}

	created, err := writer.Upsert(ctx, item)
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", rowNum, err))
		return
	}
	if created {
		result.Created++
	} else {
		result.Updated++
	}
}

func itemFromRow(row []string, defaultTopic string, config ImportConfig, cols columns) (*models.Item, error) {
	cell := func(idx int) string {
		if idx < 0 || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	item := &models.Item{
		ID:      cell(cols.id),
		Kind:    strings.ToLower(cell(cols.kind)),
		Prompt:  cell(cols.prompt),
		Answer:  cell(cols.answer),
		Details: cell(cols.details),
		Topic:   cell(cols.topic),
	}

	if item.ID == "" && item.Prompt == "" && item.Answer == "" {
		return nil, errSkipRow
	}
	if item.Prompt == "" {
		return nil, errors.New("prompt cannot be empty")
	}
	if item.Answer == "" {
		return nil, errors.New("answer cannot be empty")
	}
	if item.Kind == "" {
		item.Kind = config.DefaultKind
	}
	if item.Topic == "" {
		item.Topic = defaultTopic
	}
	if item.ID == "" {
		derived := slug(item.Prompt)
		if derived == "" {
			return nil, fmt.Errorf("cannot derive an ID from prompt %q, fill in the ID column", item.Prompt)
		}
		item.ID = item.Kind + ":" + derived
	}
	return item, nil
}

// slug lowercases s and joins its letters and digits with dashes
func slug(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, "-")
}
