// Package claude invokes the claude CLI in print mode.
package claude

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// cleanTmpDir is the TMPDIR handed to claude CLI invocations. A dedicated
// directory keeps editor socket files out of the CLI's temp scan, which
// crashes it when --settings is passed.
var cleanTmpDir = filepath.Join(os.TempDir(), "gradewalker-claude")

// SetCleanEnv copies the current environment into cmd with TMPDIR pointed at
// the clean directory, creating it on first use.
func SetCleanEnv(cmd *exec.Cmd) {
	os.MkdirAll(cleanTmpDir, 0755)

	cmd.Env = os.Environ()
	for i, env := range cmd.Env {
		if strings.HasPrefix(env, "TMPDIR=") {
			cmd.Env[i] = "TMPDIR=" + cleanTmpDir
			return
		}
	}
	cmd.Env = append(cmd.Env, "TMPDIR="+cleanTmpDir)
}

// GetCleanTmpDir returns the clean temp directory path for claude CLI.
func GetCleanTmpDir() string {
	return cleanTmpDir
}
