package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/harrison/gradewalker/internal/filelock"
	"github.com/harrison/gradewalker/internal/models"
)

const (
	resultsSheet = "Results"
	summarySheet = "Summary"

	// MaxCellLength is the xlsx per-cell character limit.
	MaxCellLength = 32767

	truncatedMarker = "\n... [truncated]"
)

var columnWidths = map[string]float64{
	"A": 11, "B": 60, "C": 80, "D": 11, "E": 40, "F": 20, "G": 20, "H": 60, "I": 50, "J": 8,
}

// XLSXSink writes reports as Excel workbooks with a Results and a Summary sheet.
type XLSXSink struct {
	opts Options
}

// NewXLSXSink creates an XLSXSink.
func NewXLSXSink(opts Options) *XLSXSink {
	return &XLSXSink{opts: opts}
}

func (s *XLSXSink) Ext() string { return ".xlsx" }

// Write implements Sink.
func (s *XLSXSink) Write(results []models.QuestionResult, hint string) (string, error) {
	path, err := resolvePath(s.opts, hint, s.Ext())
	if err != nil {
		return "", err
	}

	book, err := buildWorkbook(results)
	if err != nil {
		return "", err
	}
	defer book.Close()

	err = filelock.AtomicWriteFunc(path, func(w io.Writer) error {
		return book.Write(w)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func buildWorkbook(results []models.QuestionResult) (*excelize.File, error) {
	book := excelize.NewFile()
	if err := book.SetSheetName("Sheet1", resultsSheet); err != nil {
		book.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	if err := writeSheetRow(book, resultsSheet, 1, Columns); err != nil {
		book.Close()
		return nil, err
	}
	for i, r := range results {
		if err := writeSheetRow(book, resultsSheet, i+2, toRow(r)); err != nil {
			book.Close()
			return nil, err
		}
	}

	header, err := book.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		_ = book.SetRowStyle(resultsSheet, 1, 1, header)
	}
	for col, width := range columnWidths {
		_ = book.SetColWidth(resultsSheet, col, col, width)
	}
	_ = book.SetPanes(resultsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	if err := writeSummarySheet(book, models.Summarize(results)); err != nil {
		book.Close()
		return nil, err
	}
	return book, nil
}

func writeSheetRow(book *excelize.File, sheet string, row int, values []string) error {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = truncateCell(v)
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := book.SetSheetRow(sheet, cell, &cells); err != nil {
		return fmt.Errorf("failed to write row %d: %w", row, err)
	}
	return nil
}

func writeSummarySheet(book *excelize.File, s models.Summary) error {
	if _, err := book.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}
	rows := [][]string{
		{"Total", fmt.Sprint(s.Total)},
		{"Passed", fmt.Sprint(s.Passed)},
		{"Failed", fmt.Sprint(s.Failed)},
		{"Skipped", fmt.Sprint(s.Skipped)},
		{"Pass Rate (%)", s.PassRateString()},
	}
	for i, row := range rows {
		if err := writeSheetRow(book, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	return nil
}

// truncateCell keeps v within MaxCellLength characters.
func truncateCell(v string) string {
	runes := []rune(v)
	if len(runes) <= MaxCellLength {
		return v
	}
	keep := MaxCellLength - len([]rune(truncatedMarker))
	return string(runes[:keep]) + truncatedMarker
}

// Read implements Sink.
func (s *XLSXSink) Read(path string) ([]models.QuestionResult, error) {
	book, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer book.Close()

	sheet := resultsSheet
	if idx, err := book.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheets := book.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("report %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := book.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows from %s: %w", path, err)
	}
	return fromRows(rows)
}
