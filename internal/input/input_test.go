package input

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/phobologic/rustify/internal/model"
)

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "kernels.py")
	if err := os.WriteFile(path, []byte("def f(x):\n    return x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src, err := Load(context.Background(), Request{File: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Kind != model.FileInput || src.Path != path || !strings.HasPrefix(src.Code, "def f") {
		t.Errorf("unexpected source %+v", src)
	}
	if src.Label() != "file:"+path {
		t.Errorf("Label = %q", src.Label())
	}
}

func TestLoadSnippet(t *testing.T) {
	t.Parallel()
	src, err := Load(context.Background(), Request{Snippet: true, Stdin: strings.NewReader("x = 1\n"), File: "ignored.py"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Kind != model.SnippetInput || src.Code != "x = 1\n" {
		t.Errorf("unexpected source %+v", src)
	}
	if src.Label() != "snippet:stdin" {
		t.Errorf("Label = %q", src.Label())
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	if _, err := Load(ctx, Request{}); !errors.Is(err, ErrNoInput) {
		t.Errorf("empty request: err = %v, want ErrNoInput", err)
	}
	if _, err := Load(ctx, Request{File: filepath.Join(t.TempDir(), "missing.py")}); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v, want ErrNotExist", err)
	}
	if _, err := Load(ctx, Request{Git: "https://example.com/r.git"}); err == nil || !strings.Contains(err.Error(), "--git-path") {
		t.Errorf("git without path: err = %v", err)
	}
	if _, err := Load(ctx, Request{Git: "r", GitPath: "../escape.py"}); err == nil {
		t.Error("git path escaping the repository was accepted")
	}
}

func TestLoadGitLocalRepo(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	repo := t.TempDir()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", args...)
		cmd.Dir = repo
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=t", "GIT_AUTHOR_EMAIL=t@example.com",
			"GIT_COMMITTER_NAME=t", "GIT_COMMITTER_EMAIL=t@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-q")
	if err := os.MkdirAll(filepath.Join(repo, "pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(repo, "pkg", "k.py"), []byte("def k():\n    return 1.0\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "init")

	src, err := Load(context.Background(), Request{Git: "file://" + repo, GitPath: "pkg/k.py"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if src.Kind != model.GitInput || !strings.Contains(src.Code, "def k") {
		t.Errorf("unexpected source %+v", src)
	}
	if !strings.HasPrefix(src.Label(), "git:file://") || !strings.HasSuffix(src.Label(), ":pkg/k.py") {
		t.Errorf("Label = %q", src.Label())
	}

	if _, err := Load(context.Background(), Request{Git: "file://" + repo, GitPath: "nope.py"}); err == nil ||
		!strings.Contains(err.Error(), "not found") {
		t.Errorf("missing git path: err = %v", err)
	}
}

func TestMaterialize(t *testing.T) {
	t.Parallel()
	path, cleanup, err := Materialize(model.InputSource{Kind: model.SnippetInput, Code: "x = 2\n"})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if filepath.Base(path) != ModuleName+".py" {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "x = 2\n" {
		t.Errorf("read back %q, %v", data, err)
	}
	cleanup()
	if _, err := os.Stat(filepath.Dir(path)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("cleanup left %s behind", filepath.Dir(path))
	}
}
