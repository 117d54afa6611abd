// Package fileutil expands command-line path arguments into report files.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ReportExtensions are the file types a report sink can read.
var ReportExtensions = []string{".xlsx", ".csv"}

// CollectOptions configures Collect.
type CollectOptions struct {
	// Pattern is a regex matched against file names without extension.
	// It applies to files found in directories, not to files named directly.
	Pattern string

	// Extensions limits directory matches (case-insensitive). Empty means
	// ReportExtensions.
	Extensions []string

	// Recursive descends into subdirectories. Hidden directories are skipped.
	Recursive bool
}

// Collect resolves args into a de-duplicated list of absolute file paths.
// Files are kept in argument order; the matches of each directory are sorted.
// Spreadsheet lock files ("~$name.xlsx") and unfinished atomic writes
// (".tmp-*") are never returned.
func Collect(args []string, opts CollectOptions) ([]string, error) {
	var patternRegex *regexp.Regexp
	if opts.Pattern != "" {
		var err error
		patternRegex, err = regexp.Compile(opts.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
	}

	exts := opts.Extensions
	if len(exts) == 0 {
		exts = ReportExtensions
	}
	extMap := make(map[string]bool, len(exts))
	for _, ext := range exts {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[strings.ToLower(ext)] = true
	}

	seen := make(map[string]bool)
	var files []string
	add := func(path string) error {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve path %s: %w", path, err)
		}
		if !seen[abs] {
			seen[abs] = true
			files = append(files, abs)
		}
		return nil
	}

	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to access %s: %w", arg, err)
		}
		if !info.IsDir() {
			if err := add(arg); err != nil {
				return nil, err
			}
			continue
		}

		matches, err := scanDir(arg, extMap, patternRegex, opts.Recursive)
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			if err := add(m); err != nil {
				return nil, err
			}
		}
	}

	if len(files) == 0 {
		return nil, fmt.Errorf("no report files found in %s", strings.Join(args, ", "))
	}
	return files, nil
}

func scanDir(dir string, extMap map[string]bool, pattern *regexp.Regexp, recursive bool) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if !recursive || strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".tmp-") {
			return nil
		}
		ext := filepath.Ext(name)
		if !extMap[strings.ToLower(ext)] {
			return nil
		}
		if pattern != nil && !pattern.MatchString(strings.TrimSuffix(name, ext)) {
			return nil
		}

		matches = append(matches, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}

	sort.Strings(matches)
	return matches, nil
}
