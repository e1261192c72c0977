package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProject(t *testing.T, script string) string {
	t.Helper()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "target_programs", "hello"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "build", "stale"), 0o755))
	if script != "" {
		require.NoError(t, os.WriteFile(filepath.Join(root, "tasks.star"), []byte(script), 0o644))
	}
	return root
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	code := Run(context.Background(), args, stdout, stderr)
	return code, stdout.String(), stderr.String()
}

func assertInOrder(t *testing.T, haystack string, needles ...string) {
	t.Helper()

	pos := 0
	for _, needle := range needles {
		idx := strings.Index(haystack[pos:], needle)
		if !assert.GreaterOrEqual(t, idx, 0, "missing %q after position %d", needle, pos) {
			return
		}
		pos += idx + len(needle)
	}
}

func TestCLIUsageListsBuiltinTasks(t *testing.T) {
	root := newProject(t, "")

	code, stdout, _ := runCLI(t, "-C", root)
	assert.Equal(t, 0, code)
	assertInOrder(t, stdout, "clear:", "build_specimens:", "build_dashi:", "build_yaminabe:", "build_nimono:", "build:", "run:")

	code, stdout, _ = runCLI(t, "-C", root, "clear", "build")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Usage:")
	assert.DirExists(t, filepath.Join(root, "build", "stale"))
}

func TestCLIDryRunBuildOrder(t *testing.T) {
	root := newProject(t, "")

	code, _, stderr := runCLI(t, "-n", "-C", root, "build")
	assert.Equal(t, 0, code)
	assertInOrder(t, stderr,
		"rm -rf ./build",
		"(target_programs/hello) cargo build",
		"(dashi) go build -o ../build/dashi",
		"(yaminabe) cargo build",
		"(nimono) clang -O2 -g -target bpf -c hello.c -o hello.o",
		"(nimono) go build -o ../build/nimono",
	)
	assert.DirExists(t, filepath.Join(root, "build", "stale"))
}

func TestCLIDryRunRunAppendsOneCommand(t *testing.T) {
	root := newProject(t, "")

	_, _, build := runCLI(t, "-n", "-C", root, "build")
	_, _, run := runCLI(t, "-n", "-C", root, "run")

	assert.Equal(t, strings.Count(build, "\n")+1, strings.Count(run, "\n"))
	assert.True(t, strings.HasSuffix(strings.TrimSpace(stripColor(run)), "./build/yaminabe ./target/debug/hello 20"))
}

func TestCLIClearDeletesOutput(t *testing.T) {
	root := newProject(t, "")

	code, _, _ := runCLI(t, "-C", root, "clear")
	assert.Equal(t, 0, code)
	assert.NoDirExists(t, filepath.Join(root, "build"))

	// clearing again is fine
	code, _, stderr := runCLI(t, "-C", root, "clear")
	assert.Equal(t, 0, code)
	assert.NotContains(t, stderr, "returncode")
}

func TestCLIUnknownTask(t *testing.T) {
	root := newProject(t, "")

	code, _, stderr := runCLI(t, "-C", root, "--strict-exit", "deploy")
	assert.Equal(t, 0, code)
	assert.Contains(t, stderr, "Invalid task name.")
	assert.DirExists(t, filepath.Join(root, "build", "stale"))
}

func TestCLIExitCodePolicy(t *testing.T) {
	root := newProject(t, `
def fail():
    run_cmd("exit 3")
    run_cmd("echo unreachable > marker")

task(fail)
`)

	code, _, stderr := runCLI(t, "-C", root, "fail")
	assert.Equal(t, 0, code)
	assert.Contains(t, stderr, "returncode: 3")
	assert.NoFileExists(t, filepath.Join(root, "marker"))

	code, _, _ = runCLI(t, "-C", root, "--strict-exit", "fail")
	assert.Equal(t, 3, code)

	require.NoError(t, os.WriteFile(filepath.Join(root, "kombu.toml"), []byte("strict_exit = true\n"), 0o644))
	code, _, _ = runCLI(t, "-C", root, "fail")
	assert.Equal(t, 3, code)

	code, _, _ = runCLI(t, "-C", root, "--strict-exit=false", "fail")
	assert.Equal(t, 0, code)
}

func TestCLIBrokenScript(t *testing.T) {
	root := newProject(t, "def broken(:\n")

	code, _, stderr := runCLI(t, "-C", root, "clear")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Failed to set up tasks")
	assert.DirExists(t, filepath.Join(root, "build", "stale"))
}

func stripColor(s string) string {
	var b strings.Builder
	inEscape := false
	for _, r := range s {
		switch {
		case r == '\033':
			inEscape = true
		case inEscape && r == 'm':
			inEscape = false
		case !inEscape:
			b.WriteRune(r)
		}
	}
	return b.String()
}
