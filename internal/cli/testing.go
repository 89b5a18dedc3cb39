package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/calvinalkan/odb/internal/packtest"
)

// CLI runs odbx in-process against a temp working directory.
type CLI struct {
	t   *testing.T
	Dir string
	Env map[string]string
}

// NewCLI creates a CLI with an empty temp working directory and an empty
// environment, so no global config is picked up.
func NewCLI(t *testing.T) *CLI {
	t.Helper()

	return &CLI{
		t:   t,
		Dir: t.TempDir(),
		Env: map[string]string{},
	}
}

// NewRepoCLI creates a CLI whose default objects directory
// (<Dir>/.git/objects) holds one pack per name, with i+1 objects in the
// i-th pack.
func NewRepoCLI(t *testing.T, packs ...string) (*CLI, *packtest.Repo) {
	t.Helper()

	c := NewCLI(t)
	repo := packtest.NewRepoAt(t, filepath.Join(c.Dir, ".git", "objects"))

	for i, p := range packs {
		repo.AddPack(p, i+1)
	}

	return c, repo
}

// Run executes "odbx --cwd <Dir> args..." and returns stdout, stderr and
// the exit code.
func (r *CLI) Run(args ...string) (string, string, int) {
	return r.RunWithInput("", args...)
}

// RunWithInput is [CLI.Run] with stdin.
func (r *CLI) RunWithInput(stdin string, args ...string) (string, string, int) {
	var outBuf, errBuf bytes.Buffer

	fullArgs := append([]string{"odbx", "--cwd", r.Dir}, args...)
	code := Run(strings.NewReader(stdin), &outBuf, &errBuf, fullArgs, r.Env, nil)

	return outBuf.String(), errBuf.String(), code
}

// MustRun fails the test unless the command exits 0. Returns trimmed stdout.
func (r *CLI) MustRun(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 0 {
		r.t.Fatalf("odbx %v: exit=%d, want 0\nstderr: %s", args, code, stderr)
	}

	return strings.TrimSpace(stdout)
}

// MustFail fails the test if the command exits 0. Returns trimmed stderr.
func (r *CLI) MustFail(args ...string) string {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code == 0 {
		r.t.Fatalf("odbx %v: exit=0, want failure\nstdout: %s", args, stdout)
	}

	return strings.TrimSpace(stderr)
}

// MustWarn fails the test unless the command completes with warnings:
// exit 1, no "error:" on stderr and at least one "warning:". Returns
// stdout and the warning lines.
func (r *CLI) MustWarn(args ...string) (string, []string) {
	r.t.Helper()

	stdout, stderr, code := r.Run(args...)
	if code != 1 || strings.Contains(stderr, "error:") {
		r.t.Fatalf("odbx %v: exit=%d, want 1 with warnings only\nstderr: %s", args, code, stderr)
	}

	var warnings []string

	for line := range strings.Lines(stderr) {
		if w, ok := strings.CutPrefix(strings.TrimSpace(line), "warning: "); ok {
			warnings = append(warnings, w)
		}
	}

	if len(warnings) == 0 {
		r.t.Fatalf("odbx %v: no warnings on stderr\nstderr: %s", args, stderr)
	}

	return stdout, warnings
}

// AssertContains fails the test if content doesn't contain substr.
func AssertContains(t *testing.T, content, substr string) {
	t.Helper()

	if !strings.Contains(content, substr) {
		t.Errorf("content should contain %q\ncontent:\n%s", substr, content)
	}
}

// AssertNotContains fails the test if content contains substr.
func AssertNotContains(t *testing.T, content, substr string) {
	t.Helper()

	if strings.Contains(content, substr) {
		t.Errorf("content should NOT contain %q\ncontent:\n%s", substr, content)
	}
}
