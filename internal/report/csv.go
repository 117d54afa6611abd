package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/harrison/gradewalker/internal/filelock"
	"github.com/harrison/gradewalker/internal/models"
)

// CSVSink writes reports as RFC 4180 CSV.
type CSVSink struct {
	opts Options
}

// NewCSVSink creates a CSVSink.
func NewCSVSink(opts Options) *CSVSink {
	return &CSVSink{opts: opts}
}

func (s *CSVSink) Ext() string { return ".csv" }

// Write implements Sink.
func (s *CSVSink) Write(results []models.QuestionResult, hint string) (string, error) {
	path, err := resolvePath(s.opts, hint, s.Ext())
	if err != nil {
		return "", err
	}

	err = filelock.AtomicWriteFunc(path, func(w io.Writer) error {
		return writeCSV(w, results)
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

func writeCSV(w io.Writer, results []models.QuestionResult) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(Columns); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, r := range results {
		if err := csvWriter.Write(toRow(r)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// Read implements Sink.
func (s *CSVSink) Read(path string) ([]models.QuestionResult, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV %s: %w", path, err)
	}
	return fromRows(rows)
}
