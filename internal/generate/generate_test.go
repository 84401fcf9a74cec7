package generate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/render"
)

const source = `def euclidean(p1, p2):
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
`

func request(dir string, funcs ...string) Request {
	var targets []model.TargetSpec
	for _, f := range funcs {
		targets = append(targets, model.TargetSpec{Func: f, Percent: 50, Reason: "test"})
	}
	return Request{
		Source:    model.InputSource{Kind: model.FileInput, Path: "kernels.py", Code: source},
		Targets:   targets,
		OutputDir: dir,
	}
}

func readUnit(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, render.DefaultUnitName, "src", "lib.rs"))
	if err != nil {
		t.Fatalf("read lib.rs: %v", err)
	}
	return string(data)
}

func TestGenerateNoTargets(t *testing.T) {
	t.Parallel()
	_, err := Generate(context.Background(), request(t.TempDir()))
	if !errors.Is(err, ErrNoTargets) {
		t.Errorf("err = %v, want ErrNoTargets", err)
	}
}

func TestGenerateWritesUnit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	req := request(dir, "euclidean")
	req.DryRun = true
	res, err := Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	wantDir := filepath.Join(dir, render.DefaultUnitName)
	if res.UnitDir != wantDir {
		t.Errorf("UnitDir = %q, want %q", res.UnitDir, wantDir)
	}
	for _, f := range []string{"src/lib.rs", "Cargo.toml", SidecarName} {
		if _, err := os.Stat(filepath.Join(wantDir, f)); err != nil {
			t.Errorf("missing %s: %v", f, err)
		}
	}
	if res.FallbackFunctions != 0 {
		t.Errorf("FallbackFunctions = %d, want 0", res.FallbackFunctions)
	}
	unit := readUnit(t, dir)
	if !strings.Contains(unit, "wrap_pyfunction!(euclidean, m)") {
		t.Errorf("euclidean not registered:\n%s", unit)
	}
}

func TestGenerateCountsFallbacks(t *testing.T) {
	t.Parallel()
	res, err := Generate(context.Background(), request(t.TempDir(), "dot_product", "with_else", "missing"))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.FallbackFunctions != 2 {
		t.Errorf("FallbackFunctions = %d, want 2", res.FallbackFunctions)
	}
	got := map[string]model.FunctionStatus{}
	for _, g := range res.Targets {
		got[g.ExportName] = g.Status
	}
	want := map[string]model.FunctionStatus{
		"dot_product": model.Full,
		"with_else":   model.Partial,
		"missing":     model.Echo,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateMergePreservesOldFunctions(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	if _, err := Generate(ctx, request(dir, "euclidean", "dot_product")); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	first := readUnit(t, dir)

	res, err := Generate(ctx, request(dir, "dot_product"))
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	if len(res.GeneratedFunctions) != 2 {
		t.Errorf("got %d functions, want 2", len(res.GeneratedFunctions))
	}
	if diff := cmp.Diff(first, readUnit(t, dir)); diff != "" {
		t.Errorf("regenerating a subset changed lib.rs (-first +second):\n%s", diff)
	}
}

func TestGenerateRescansWithoutSidecar(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	if _, err := Generate(ctx, request(dir, "euclidean")); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if err := os.Remove(filepath.Join(dir, render.DefaultUnitName, SidecarName)); err != nil {
		t.Fatal(err)
	}

	res, err := Generate(ctx, request(dir, "dot_product"))
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	var names []string
	for _, block := range res.GeneratedFunctions {
		name, _ := render.ExtractName(block)
		names = append(names, name)
	}
	if diff := cmp.Diff([]string{"dot_product", "euclidean"}, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
}

func TestGenerateIgnoresStaleSidecar(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	if _, err := Generate(ctx, request(dir, "euclidean", "dot_product")); err != nil {
		t.Fatalf("first Generate: %v", err)
	}

	// Hand-edit lib.rs: drop dot_product. The sidecar no longer matches, so
	// the edited unit is what gets merged.
	unitPath := filepath.Join(dir, render.DefaultUnitName, "src", "lib.rs")
	blocks := ExistingBlocks(readUnit(t, dir))
	var kept []string
	for _, b := range blocks {
		if name, _ := render.ExtractName(b); name != "dot_product" {
			kept = append(kept, b)
		}
	}
	if err := os.WriteFile(unitPath, []byte(render.Unit(kept, render.Options{})), 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := Generate(ctx, request(dir, "with_else"))
	if err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	unit := readUnit(t, dir)
	if strings.Contains(unit, "pub fn dot_product") {
		t.Errorf("stale sidecar resurrected dot_product:\n%s", unit)
	}
	if len(res.GeneratedFunctions) != 2 {
		t.Errorf("got %d functions, want 2", len(res.GeneratedFunctions))
	}
}

func TestGenerateNewBlockWins(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	ctx := context.Background()
	if _, err := Generate(ctx, request(dir, "missing")); err != nil {
		t.Fatalf("first Generate: %v", err)
	}
	if !strings.Contains(readUnit(t, dir), "echoing data") {
		t.Fatal("expected echo stub after first run")
	}

	req := request(dir, "missing")
	req.Source.Code = "def missing(xs):\n    return 1.0\n"
	if _, err := Generate(ctx, req); err != nil {
		t.Fatalf("second Generate: %v", err)
	}
	unit := readUnit(t, dir)
	if strings.Contains(unit, "echoing data") || strings.Count(unit, "pub fn missing") != 1 {
		t.Errorf("new block did not replace the old one:\n%s", unit)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	a, b := t.TempDir(), t.TempDir()
	if _, err := Generate(ctx, request(a, "euclidean", "dot_product", "with_else")); err != nil {
		t.Fatal(err)
	}
	if _, err := Generate(ctx, request(b, "with_else", "dot_product", "euclidean")); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(readUnit(t, a), readUnit(t, b)); diff != "" {
		t.Errorf("target order changed output (-a +b):\n%s", diff)
	}
}

func TestGenerateMLMode(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	req := request(dir, "dot_product")
	req.MLMode = true
	if _, err := Generate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(readUnit(t, dir), "PyReadonlyArray1") {
		t.Error("ml mode applied without a numpy import")
	}

	dir = t.TempDir()
	req = request(dir, "dot_product")
	req.MLMode = true
	req.Source.Code = "import numpy as np\n\n" + source
	if _, err := Generate(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(readUnit(t, dir), "a: PyReadonlyArray1<f64>") {
		t.Error("ml mode not applied with a numpy import")
	}
	manifest, err := os.ReadFile(filepath.Join(dir, render.DefaultUnitName, "Cargo.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(manifest), "[dependencies.numpy]") {
		t.Errorf("manifest lacks numpy:\n%s", manifest)
	}
}

func TestGenerateWarnsOnExportCollision(t *testing.T) {
	t.Parallel()
	core, logs := observer.New(zap.WarnLevel)
	req := request(t.TempDir(), "fooBar", "foo_bar")
	req.Source.Code = "def fooBar(xs):\n    return xs\n\ndef foo_bar(xs):\n    return xs\n"
	req.Logger = zap.New(core)

	res, err := Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(res.GeneratedFunctions) != 1 {
		t.Errorf("generated %d blocks, want 1", len(res.GeneratedFunctions))
	}
	warned := logs.FilterMessageSnippet("export under the same name").All()
	if len(warned) != 1 {
		t.Fatalf("got %d collision warnings, want 1", len(warned))
	}
	fields := warned[0].ContextMap()
	if fields["export"] != "foo_bar" || fields["replaced"] != "fooBar" || fields["func"] != "foo_bar" {
		t.Errorf("warning fields = %v", fields)
	}
}
