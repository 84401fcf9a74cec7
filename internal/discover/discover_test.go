package discover

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDiscoverPythonFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "main.py", "print('hello')")
	writeFile(t, dir, "lib/util.py", "def helper(): pass")
	// Non-Python and stub files are ignored
	writeFile(t, dir, "readme.txt", "hello")
	writeFile(t, dir, "lib/util.pyi", "def helper() -> None: ...")
	writeFile(t, dir, ".hidden.py", "secret")

	got, err := Files(context.Background(), dir)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	want := []string{filepath.Join("lib", "util.py"), "main.py"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverSkipDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	writeFile(t, dir, "main.py", "pass")
	writeFile(t, dir, "node_modules/pkg.py", "pass")
	writeFile(t, dir, "__pycache__/cached.py", "pass")
	writeFile(t, dir, ".hidden/secret.py", "pass")
	writeFile(t, dir, "dist/rustify_ml_ext/gen.py", "pass")
	writeFile(t, dir, "pkg.egg-info/setup.py", "pass")

	got, err := Files(context.Background(), dir)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if diff := cmp.Diff([]string{"main.py"}, got); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverGitignore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, ".gitignore", "generated/\nscratch.py\n")
	writeFile(t, dir, "kernels.py", "pass")
	writeFile(t, dir, "scratch.py", "pass")
	writeFile(t, dir, "generated/out.py", "pass")

	got, err := Files(context.Background(), dir)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if diff := cmp.Diff([]string{"kernels.py"}, got); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverSymlinksSkipped(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "real.py", "pass")

	err := os.Symlink(filepath.Join(dir, "real.py"), filepath.Join(dir, "link.py"))
	if err != nil {
		t.Skip("symlinks not supported")
	}

	got, err := Files(context.Background(), dir)
	if err != nil {
		t.Fatalf("Files: %v", err)
	}
	if diff := cmp.Diff([]string{"real.py"}, got); diff != "" {
		t.Errorf("files mismatch (-want +got):\n%s", diff)
	}
}

func TestDiscoverCanceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "a/b.py", "pass")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Files(ctx, dir); err == nil {
		t.Error("expected error from canceled context")
	}
}

func TestIsTestFile(t *testing.T) {
	t.Parallel()
	cases := []struct {
		path string
		want bool
	}{
		{"tests/test_kernels.py", true},
		{"tests/conftest.py", true},
		{"tests/__init__.py", true},
		{"src/__tests__/foo.py", true},
		{"pkg/testing/helpers.py", true},
		{"test_helpers.py", true},
		{"kernels_test.py", true},
		{"kernels/distance.py", false},
		{"conftest.py", false},
		{"testing_utils.py", false},
		{"contest.py", false},
	}
	for _, tc := range cases {
		t.Run(tc.path, func(t *testing.T) {
			t.Parallel()
			if got := IsTestFile(tc.path); got != tc.want {
				t.Errorf("IsTestFile(%q) = %v, want %v", tc.path, got, tc.want)
			}
		})
	}
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
