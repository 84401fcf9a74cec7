package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const kernels = `import math

def euclidean(p1, p2):
    total = 0.0
    for i in range(len(p1)):
        diff = p1[i] - p2[i]
        total += diff * diff
    return total ** 0.5

def dot_product(a, b):
    total = 0.0
    for i in range(len(a)):
        total += a[i] * b[i]
    return total

def with_else(xs):
    total = 0.0
    for i in range(len(xs)):
        total += xs[i]
    else:
        total = 0.0
    return total

if __name__ == "__main__":
    print(euclidean([1.0, 2.0], [3.0, 4.0]))
`

func writeTestFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// execute runs the CLI with stdin attached, which run itself leaves as
// os.Stdin.
func execute(t *testing.T, stdin io.Reader, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(&out, &errOut)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(args)
	err = root.Execute()
	return out.String(), errOut.String(), err
}

func TestRunVersion(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--version"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := stdout.String(); got != "rustify dev\n" {
		t.Errorf("version output = %q", got)
	}
}

func TestRunHelpListsCommands(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, name := range []string{"accelerate", "scan", "init", "--color", "--config"} {
		if !strings.Contains(stdout.String(), name) {
			t.Errorf("help missing %q:\n%s", name, stdout.String())
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	if err := run([]string{"translate"}, &stdout, &stderr); err == nil {
		t.Error("expected error for unknown command")
	}
}

func TestRunInvalidColor(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeTestFile(t, dir, "k.py", kernels)

	_, _, err := execute(t, nil, "--color", "sometimes", "scan", dir)
	if err == nil || !strings.Contains(err.Error(), "--color") {
		t.Errorf("err = %v, want invalid --color", err)
	}
}

func TestRunBadConfig(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := writeTestFile(t, dir, "rustify.toml", "[accelerate]\nthreshhold = 5\n")
	writeTestFile(t, dir, "k.py", kernels)

	_, _, err := execute(t, nil, "--config", cfg, "scan", dir)
	if err == nil || !strings.Contains(err.Error(), "threshhold") {
		t.Errorf("err = %v, want unknown key error", err)
	}
}

func TestRunVerboseLogsDebug(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cfg := writeTestFile(t, dir, "rustify.toml", "[accelerate]\nthreshold = 5.0\n")
	writeTestFile(t, dir, "k.py", kernels)

	_, stderr, err := execute(t, nil, "-v", "--config", cfg, "scan", dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if !strings.Contains(stderr, "loaded config") {
		t.Errorf("debug log missing with -v:\n%s", stderr)
	}
}
