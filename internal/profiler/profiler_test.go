package profiler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/proc"
)

func TestParseOutput(t *testing.T) {
	t.Parallel()
	out := strings.Join([]string{
		"12.50% dot_product /tmp/x/input.py:4",
		"80.00% euclidean /tmp/x/input.py:10",
		"3.00% <module> /tmp/x/input.py:1",
		"40.00% <built-in method builtins.exec> ~:0",
		"5.00% <listcomp> /tmp/x/input.py:12",
		"20.00% run_path /usr/lib/python3.12/runpy.py:263",
		"1.00% _find_and_load <frozen importlib._bootstrap>:1165",
		"garbage",
		"abc% f /tmp/x/input.py:3",
		"2.00% g /tmp/x/input.py:notaline",
		"",
	}, "\n")

	got := ParseOutput(out, "/tmp/x/input.py")
	want := []model.Hotspot{
		{Func: "euclidean", File: "/tmp/x/input.py", Line: 10, Percent: 80},
		{Func: "dot_product", File: "/tmp/x/input.py", Line: 4, Percent: 12.5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("hotspots mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOutputAnyFile(t *testing.T) {
	t.Parallel()
	got := ParseOutput("1.00% a /a.py:1\n9.00% b /b.py:2\n", "")
	if len(got) != 2 || got[0].Func != "b" {
		t.Errorf("got %+v, want b first of two", got)
	}
}

func TestProfileFailureCarriesOutput(t *testing.T) {
	t.Parallel()
	// A bogus interpreter path makes the version check and the run fail;
	// the run failure must surface as a process error.
	bogus := filepath.Join(t.TempDir(), "python-missing")
	src := model.InputSource{Kind: model.SnippetInput, Code: "x = 1\n"}
	_, err := Profile(context.Background(), src, 0, Options{Python: bogus, Iterations: 1})
	var pe *proc.Error
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *proc.Error", err)
	}
	if !strings.Contains(pe.Cmd, bogus) {
		t.Errorf("Cmd = %q, want it to name %q", pe.Cmd, bogus)
	}
}
