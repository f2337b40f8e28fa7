//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/treekeep/treekeep/internal/log"
	"github.com/treekeep/treekeep/internal/output"
)

// resolvePath resolves symlinks in a path.
// This is needed on macOS where /var is a symlink to /private/var.
func resolvePath(t *testing.T, path string) string {
	t.Helper()
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		t.Fatalf("failed to resolve path %s: %v", path, err)
	}
	return resolved
}

// gitInDir runs a git command in dir and fails the test on error.
func gitInDir(t *testing.T, dir string, args ...string) {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to run git %v: %v\n%s", args, err, out)
	}
}

// setupTestRepo creates a git repo with an initial commit in dir/name
// on the given initial branch. Returns the resolved repo path.
func setupTestRepo(t *testing.T, dir, name, branch string) string {
	t.Helper()

	dir = resolvePath(t, dir)
	repoPath := filepath.Join(dir, name)
	if err := os.MkdirAll(repoPath, 0755); err != nil {
		t.Fatalf("failed to create repo dir: %v", err)
	}

	gitInDir(t, dir, "init", "-b", branch, repoPath)
	gitInDir(t, repoPath, "config", "user.email", "test@test.com")
	gitInDir(t, repoPath, "config", "user.name", "Test User")
	gitInDir(t, repoPath, "config", "commit.gpgsign", "false")

	readmePath := filepath.Join(repoPath, "README.md")
	if err := os.WriteFile(readmePath, []byte("# "+name+"\n"), 0644); err != nil {
		t.Fatalf("failed to write README: %v", err)
	}
	gitInDir(t, repoPath, "add", "README.md")
	gitInDir(t, repoPath, "commit", "-m", "Initial commit")

	return repoPath
}

// runCommand executes a freshly built command in-process with a discard
// logger and a buffered printer, returning captured stdout.
func runCommand(t *testing.T, newCmd func() *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()

	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), log.New(io.Discard, false, false))
	ctx = output.WithPrinter(ctx, &buf)

	cmd := newCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.ExecuteContext(ctx)
	return buf.String(), err
}

// envelope is the decoded JSON result envelope.
type envelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   *struct {
		Code            string `json:"code"`
		Message         string `json:"message"`
		Recoverable     bool   `json:"recoverable"`
		SuggestedAction string `json:"suggested_action"`
	} `json:"error"`
}

// parseEnvelope decodes command stdout as a result envelope.
func parseEnvelope(t *testing.T, out string) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		t.Fatalf("stdout is not a result envelope: %v\n%s", err, out)
	}
	return env
}

// request marshals a request map to a JSON argument.
func request(t *testing.T, fields map[string]any) string {
	t.Helper()
	data, err := json.Marshal(fields)
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	return string(data)
}
