package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/rustify/internal/builder"
	"github.com/phobologic/rustify/internal/input"
	"github.com/phobologic/rustify/internal/model"
)

func readLib(t *testing.T, output string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(output, "rustify_ml_ext", "src", "lib.rs"))
	if err != nil {
		t.Fatalf("read lib.rs: %v", err)
	}
	return string(data)
}

func TestAccelerateFunctionDryRun(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := writeTestFile(t, dir, "kernels.py", kernels)
	output := filepath.Join(dir, "dist")

	stdout, stderr, err := execute(t, nil, "--color", "off", "accelerate",
		"--file", file, "--function", "euclidean", "--function", "with_else",
		"--output", output, "--dry-run")
	if err != nil {
		t.Fatalf("accelerate: %v\nstderr: %s", err, stderr)
	}

	lib := readLib(t, output)
	for _, w := range []string{"pub fn euclidean(", "pub fn with_else(", "wrap_pyfunction!(euclidean, m)"} {
		if !strings.Contains(lib, w) {
			t.Errorf("lib.rs missing %q", w)
		}
	}
	if _, err := os.Stat(filepath.Join(output, "rustify_ml_ext", "Cargo.toml")); err != nil {
		t.Errorf("Cargo.toml not written: %v", err)
	}

	for _, w := range []string{"euclidean", "Success", "Fallback: partial translation", "1 function(s) used fallback"} {
		if !strings.Contains(stdout, w) {
			t.Errorf("summary missing %q:\n%s", w, stdout)
		}
	}
	if !strings.Contains(stderr, "dry run") {
		t.Errorf("expected dry-run log line:\n%s", stderr)
	}
}

func TestAccelerateTOON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := writeTestFile(t, dir, "kernels.py", kernels)
	output := filepath.Join(dir, "dist")

	stdout, stderr, err := execute(t, nil, "accelerate",
		"--file", file, "--function", "dot_product", "--function", "missing",
		"--output", output, "--dry-run", "--format", "toon")
	if err != nil {
		t.Fatalf("accelerate: %v\nstderr: %s", err, stderr)
	}
	for _, w := range []string{
		"fallback_functions: 1",
		"targets[2]{func,line,percent,translation,status}:",
		"  dot_product,10,100.00,Full,Success",
		`  missing,1,100.00,Partial,"Fallback: echo input"`,
	} {
		if !strings.Contains(stdout, w) {
			t.Errorf("TOON output missing %q:\n%s", w, stdout)
		}
	}
}

func TestAccelerateSnippet(t *testing.T) {
	t.Parallel()
	output := filepath.Join(t.TempDir(), "dist")

	_, stderr, err := execute(t, strings.NewReader(kernels), "accelerate",
		"--snippet", "--function", "dot_product", "--output", output, "--dry-run")
	if err != nil {
		t.Fatalf("accelerate: %v\nstderr: %s", err, stderr)
	}
	if !strings.Contains(readLib(t, output), "pub fn dot_product(") {
		t.Error("snippet function not generated")
	}
}

func TestAccelerateMergesAcrossRuns(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := writeTestFile(t, dir, "kernels.py", kernels)
	output := filepath.Join(dir, "dist")

	for _, fn := range []string{"euclidean", "dot_product"} {
		if _, stderr, err := execute(t, nil, "accelerate", "--file", file,
			"--function", fn, "--output", output, "--dry-run"); err != nil {
			t.Fatalf("accelerate %s: %v\nstderr: %s", fn, err, stderr)
		}
	}
	lib := readLib(t, output)
	if !strings.Contains(lib, "pub fn euclidean(") || !strings.Contains(lib, "pub fn dot_product(") {
		t.Errorf("second run dropped a function:\n%s", lib)
	}
}

func TestAccelerateConfigPrecedence(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := writeTestFile(t, dir, "kernels.py", kernels)
	fromConfig := filepath.Join(dir, "from-config")
	fromFlag := filepath.Join(dir, "from-flag")
	cfg := writeTestFile(t, dir, "rustify.toml",
		"[accelerate]\noutput = "+quoteTOML(fromConfig)+"\n\n[unit]\nname = \"fastk\"\n")

	if _, stderr, err := execute(t, nil, "--config", cfg, "accelerate", "--file", file,
		"--function", "euclidean", "--dry-run"); err != nil {
		t.Fatalf("accelerate: %v\nstderr: %s", err, stderr)
	}
	if _, err := os.Stat(filepath.Join(fromConfig, "fastk", "src", "lib.rs")); err != nil {
		t.Errorf("config output dir not used: %v", err)
	}

	if _, stderr, err := execute(t, nil, "--config", cfg, "accelerate", "--file", file,
		"--function", "euclidean", "--dry-run", "--output", fromFlag); err != nil {
		t.Fatalf("accelerate: %v\nstderr: %s", err, stderr)
	}
	if _, err := os.Stat(filepath.Join(fromFlag, "fastk", "src", "lib.rs")); err != nil {
		t.Errorf("--output did not override config: %v", err)
	}
}

func TestAccelerateBuildFailureKeepsArtifacts(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := writeTestFile(t, dir, "kernels.py", kernels)
	output := filepath.Join(dir, "dist")
	cfg := writeTestFile(t, dir, "rustify.toml",
		"[accelerate]\nmaturin = "+quoteTOML(filepath.Join(dir, "no-maturin"))+"\n")

	_, _, err := execute(t, nil, "--config", cfg, "accelerate", "--file", file,
		"--function", "euclidean", "--output", output)
	if !errors.Is(err, builder.ErrBuildFailed) {
		t.Fatalf("err = %v, want ErrBuildFailed", err)
	}
	if !strings.Contains(readLib(t, output), "pub fn euclidean(") {
		t.Error("generated unit missing after build failure")
	}
}

func TestAccelerateNoRegenMissingUnit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := writeTestFile(t, dir, "kernels.py", kernels)

	_, _, err := execute(t, nil, "accelerate", "--file", file, "--function", "euclidean",
		"--output", filepath.Join(dir, "dist"), "--no-regen", "--dry-run")
	if err == nil || !strings.Contains(err.Error(), "--no-regen") {
		t.Errorf("err = %v, want --no-regen error", err)
	}
}

func TestAccelerateNoRegenExistingUnit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := writeTestFile(t, dir, "kernels.py", kernels)
	output := filepath.Join(dir, "dist")

	if _, stderr, err := execute(t, nil, "accelerate", "--file", file,
		"--function", "euclidean", "--output", output, "--dry-run"); err != nil {
		t.Fatalf("accelerate: %v\nstderr: %s", err, stderr)
	}
	before := readLib(t, output)

	stdout, stderr, err := execute(t, nil, "accelerate", "--file", file,
		"--function", "dot_product", "--output", output, "--dry-run", "--no-regen")
	if err != nil {
		t.Fatalf("accelerate --no-regen: %v\nstderr: %s", err, stderr)
	}
	if readLib(t, output) != before {
		t.Error("--no-regen rewrote lib.rs")
	}
	if !strings.Contains(stdout, statusNotRegen) {
		t.Errorf("summary missing %q:\n%s", statusNotRegen, stdout)
	}
}

func TestAccelerateNoInput(t *testing.T) {
	t.Parallel()
	_, _, err := execute(t, nil, "accelerate", "--function", "euclidean",
		"--output", t.TempDir(), "--dry-run")
	if !errors.Is(err, input.ErrNoInput) {
		t.Errorf("err = %v, want ErrNoInput", err)
	}
}

func TestAccelerateExclusiveSources(t *testing.T) {
	t.Parallel()
	_, _, err := execute(t, nil, "accelerate", "--file", "a.py", "--snippet")
	if err == nil {
		t.Error("expected error for --file with --snippet")
	}
}

func TestAccelerateInvalidFormat(t *testing.T) {
	t.Parallel()
	_, _, err := execute(t, nil, "accelerate", "--file", "a.py", "--format", "json")
	if err == nil || !strings.Contains(err.Error(), "--format") {
		t.Errorf("err = %v, want invalid --format", err)
	}
}

func TestSummaryRows(t *testing.T) {
	t.Parallel()
	targets := []model.TargetSpec{
		{Func: "a", Line: 3, Percent: 60},
		{Func: "b", Line: 9, Percent: 20},
		{Func: "c", Line: 1, Percent: 100},
		{Func: "d", Line: 12, Percent: 15},
	}
	result := &model.GenerationResult{Targets: []model.GeneratedFunction{
		{Target: targets[0], Status: model.Full},
		{Target: targets[1], Status: model.Partial},
		{Target: targets[2], Status: model.Echo},
	}}
	want := []model.SummaryRow{
		{Func: "a", Line: 3, Percent: 60, Translation: "Full", Status: statusSuccess},
		{Func: "b", Line: 9, Percent: 20, Translation: "Partial", Status: statusPartial},
		{Func: "c", Line: 1, Percent: 100, Translation: "Partial", Status: statusEcho},
		{Func: "d", Line: 12, Percent: 15, Translation: "-", Status: statusNotRegen},
	}
	if diff := cmp.Diff(want, summaryRows(targets, result)); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func quoteTOML(s string) string {
	return `'` + s + `'`
}
