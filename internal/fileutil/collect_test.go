package fileutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// makeTree creates files under a temp dir and returns the dir.
//
//	reports/
//	  grading-report-r1.xlsx
//	  grading-report-r2.csv
//	  notes.txt
//	  ~$grading-report-r1.xlsx
//	  .tmp-1234.csv
//	  older/
//	    grading-report-r3.CSV
//	  .hidden/
//	    grading-report-r4.csv
func makeTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, f := range []string{
		"reports/grading-report-r1.xlsx",
		"reports/grading-report-r2.csv",
		"reports/notes.txt",
		"reports/~$grading-report-r1.xlsx",
		"reports/.tmp-1234.csv",
		"reports/older/grading-report-r3.CSV",
		"reports/.hidden/grading-report-r4.csv",
	} {
		path := filepath.Join(dir, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	}
	return dir
}

func names(paths []string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = filepath.Base(p)
	}
	return out
}

func TestCollect(t *testing.T) {
	root := makeTree(t)
	reports := filepath.Join(root, "reports")

	tests := []struct {
		name    string
		args    []string
		opts    CollectOptions
		want    []string
		wantErr string
	}{
		{
			name: "directory non-recursive",
			args: []string{reports},
			want: []string{"grading-report-r1.xlsx", "grading-report-r2.csv"},
		},
		{
			name: "directory recursive",
			args: []string{reports},
			opts: CollectOptions{Recursive: true},
			want: []string{"grading-report-r1.xlsx", "grading-report-r2.csv", "grading-report-r3.CSV"},
		},
		{
			name: "extension filter",
			args: []string{reports},
			opts: CollectOptions{Extensions: []string{"csv"}},
			want: []string{"grading-report-r2.csv"},
		},
		{
			name: "pattern filter",
			args: []string{reports},
			opts: CollectOptions{Pattern: `-r2$`},
			want: []string{"grading-report-r2.csv"},
		},
		{
			name: "explicit file keeps argument order and dedupes",
			args: []string{filepath.Join(reports, "grading-report-r2.csv"), reports},
			want: []string{"grading-report-r2.csv", "grading-report-r1.xlsx"},
		},
		{
			name: "explicit file bypasses filters",
			args: []string{filepath.Join(reports, "notes.txt")},
			want: []string{"notes.txt"},
		},
		{
			name:    "missing path",
			args:    []string{filepath.Join(root, "nope")},
			wantErr: "failed to access",
		},
		{
			name:    "nothing matched",
			args:    []string{reports},
			opts:    CollectOptions{Pattern: `^final`},
			wantErr: "no report files found",
		},
		{
			name:    "bad pattern",
			args:    []string{reports},
			opts:    CollectOptions{Pattern: `(`},
			wantErr: "invalid pattern",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Collect(tt.args, tt.opts)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
			for _, p := range got {
				assert.True(t, filepath.IsAbs(p), p)
			}
		})
	}
}
