package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/harrison/gradewalker/internal/models"
)

// Sink serializes results to one tabular file per Write.
type Sink interface {
	// Write stores results under a name derived from hint and returns the path.
	Write(results []models.QuestionResult, hint string) (string, error)

	// Read loads a file produced by Write.
	Read(path string) ([]models.QuestionResult, error)

	// Ext is the file extension including the dot.
	Ext() string
}

// Column headers, in file order.
const (
	ColOrdinal   = "Question #"
	ColQuestion  = "Question"
	ColCode      = "Code"
	ColOutcome   = "Outcome"
	ColError     = "Error"
	ColTimestamp = "Timestamp"
	ColVerdict   = "Classifier Verdict"
	ColRemarks   = "Classifier Remarks"
	ColSuggested = "Suggested Requirements"
	ColRunner    = "Runner"
)

// Columns lists the headers of every report.
var Columns = []string{
	ColOrdinal, ColQuestion, ColCode, ColOutcome, ColError, ColTimestamp,
	ColVerdict, ColRemarks, ColSuggested, ColRunner,
}

// TimestampLayout formats CreatedAt in reports.
const TimestampLayout = "2006-01-02 15:04:05"

// RequirementSeparator joins suggested requirements into one cell.
const RequirementSeparator = "; "

// Options controls file placement and naming.
type Options struct {
	Dir string

	// Overwrite rewrites <hint><ext> on every Write. Otherwise an existing
	// file gets a numeric suffix: hint-1, hint-2, ...
	Overwrite bool
}

// NewSink returns the sink for format ("xlsx" or "csv").
func NewSink(format string, opts Options) (Sink, error) {
	switch strings.ToLower(format) {
	case "xlsx", "":
		return NewXLSXSink(opts), nil
	case "csv":
		return NewCSVSink(opts), nil
	default:
		return nil, fmt.Errorf("unsupported report format: %s", format)
	}
}

// SinkForPath picks a reader by file extension.
func SinkForPath(path string) (Sink, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		return NewXLSXSink(Options{}), nil
	case ".csv":
		return NewCSVSink(Options{}), nil
	default:
		return nil, fmt.Errorf("unsupported report file: %s", path)
	}
}

// ReadFile loads any report file by extension.
func ReadFile(path string) ([]models.QuestionResult, error) {
	sink, err := SinkForPath(path)
	if err != nil {
		return nil, err
	}
	return sink.Read(path)
}

// resolvePath chooses the output file for hint.
func resolvePath(opts Options, hint, ext string) (string, error) {
	if hint == "" {
		hint = "report"
	}
	hint = strings.TrimSuffix(hint, ext)
	base := filepath.Join(opts.Dir, hint)

	path := base + ext
	if opts.Overwrite {
		return path, nil
	}
	for n := 1; ; n++ {
		_, err := os.Stat(path)
		if os.IsNotExist(err) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check %s: %w", path, err)
		}
		path = fmt.Sprintf("%s-%d%s", base, n, ext)
	}
}

// toRow renders r in Columns order.
func toRow(r models.QuestionResult) []string {
	var timestamp string
	if !r.CreatedAt.IsZero() {
		timestamp = r.CreatedAt.Format(TimestampLayout)
	}
	var runner string
	if r.Runner > 0 {
		runner = strconv.Itoa(r.Runner)
	}
	return []string{
		strconv.Itoa(r.Index),
		r.QuestionText,
		r.Code(),
		string(r.Outcome),
		r.ErrorDetail,
		timestamp,
		string(r.ClassifierVerdict),
		r.ClassifierRemarks,
		strings.Join(r.SuggestedRequirements, RequirementSeparator),
		runner,
	}
}

// fromRows converts a header row plus data rows back into results. Columns
// are located by header name, so reordered files still load.
func fromRows(rows [][]string) ([]models.QuestionResult, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	pos := map[string]int{}
	for i, h := range rows[0] {
		pos[strings.TrimSpace(h)] = i
	}
	if _, ok := pos[ColOrdinal]; !ok {
		return nil, fmt.Errorf("missing %q column", ColOrdinal)
	}
	cell := func(row []string, col string) string {
		i, ok := pos[col]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var results []models.QuestionResult
	for n, row := range rows[1:] {
		if isBlank(row) {
			continue
		}
		index, err := ParseOrdinal(cell(row, ColOrdinal))
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", n+2, err)
		}

		r := models.QuestionResult{
			Index:             index,
			QuestionText:      cell(row, ColQuestion),
			Units:             models.ParseCode(cell(row, ColCode)),
			Outcome:           models.ParseOutcome(cell(row, ColOutcome)),
			ErrorDetail:       cell(row, ColError),
			ClassifierRemarks: cell(row, ColRemarks),
		}
		if v, ok := models.ParseVerdict(cell(row, ColVerdict)); ok {
			r.ClassifierVerdict = v
		}
		if ts := strings.TrimSpace(cell(row, ColTimestamp)); ts != "" {
			if t, err := time.ParseInLocation(TimestampLayout, ts, time.Local); err == nil {
				r.CreatedAt = t
			}
		}
		if s := strings.TrimSpace(cell(row, ColSuggested)); s != "" {
			for _, item := range strings.Split(s, RequirementSeparator) {
				if item = strings.TrimSpace(item); item != "" {
					r.SuggestedRequirements = append(r.SuggestedRequirements, item)
				}
			}
		}
		if s := strings.TrimSpace(cell(row, ColRunner)); s != "" {
			r.Runner, _ = strconv.Atoi(s)
		}
		results = append(results, r)
	}
	return results, nil
}

// ParseOrdinal reads the first run of digits in s ("12", "Q12", " 12 ").
func ParseOrdinal(s string) (int, error) {
	start := strings.IndexAny(s, "0123456789")
	if start < 0 {
		return 0, fmt.Errorf("invalid ordinal %q", s)
	}
	end := start
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(s[start:end])
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid ordinal %q", s)
	}
	return n, nil
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
