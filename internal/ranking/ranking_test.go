package ranking

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/parse"
	"github.com/phobologic/rustify/internal/pyast"
)

func makeSummary() *model.ProfileSummary {
	return &model.ProfileSummary{Hotspots: []model.Hotspot{
		{Func: "euclidean", Line: 4, Percent: 60},
		{Func: "dot_product", Line: 12, Percent: 25},
		{Func: "euclidean", Line: 4, Percent: 20},
		{Func: "helper", Line: 20, Percent: 5},
	}}
}

func makeModule(t *testing.T) *pyast.Module {
	t.Helper()
	mod, err := parse.String(`def euclidean(a, b):
    return 0.0

def helper(x):
    return x

def unused(xs):
    return xs
`)
	if err != nil {
		t.Fatal(err)
	}
	return mod
}

func TestSelectTargetsThreshold(t *testing.T) {
	t.Parallel()

	got := SelectTargets(makeSummary(), makeModule(t), Options{Threshold: 10})
	want := []model.TargetSpec{
		{Func: "euclidean", Line: 4, Percent: 60, Reason: "60.00% hotspot"},
		{Func: "dot_product", Line: 12, Percent: 25, Reason: "25.00% hotspot"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectTargetsMaxAndMLMode(t *testing.T) {
	t.Parallel()

	got := SelectTargets(makeSummary(), nil, Options{Threshold: 1, MaxTargets: 1, MLMode: true})
	if len(got) != 1 {
		t.Fatalf("expected 1 target, got %d", len(got))
	}
	if got[0].Reason != "60.00% hotspot (ml-mode)" {
		t.Errorf("reason = %q", got[0].Reason)
	}
}

func TestSelectTargetsAllDefinitions(t *testing.T) {
	t.Parallel()

	got := SelectTargets(makeSummary(), makeModule(t), Options{Threshold: 0})
	var names []string
	for _, tg := range got {
		names = append(names, tg.Func)
	}
	want := []string{"euclidean", "dot_product", "helper", "unused"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	last := got[len(got)-1]
	if last.Line != 7 || last.Percent != 0 || last.Reason != "threshold<=0: include all defs" {
		t.Errorf("unexpected definition target %+v", last)
	}
}

func TestSelectTargetsEmpty(t *testing.T) {
	t.Parallel()

	if got := SelectTargets(&model.ProfileSummary{}, nil, Options{Threshold: 10}); len(got) != 0 {
		t.Errorf("expected no targets, got %+v", got)
	}
	if got := SelectTargets(nil, nil, Options{Threshold: 0}); len(got) != 0 {
		t.Errorf("expected no targets without a module, got %+v", got)
	}
}

func TestFunctionTargets(t *testing.T) {
	t.Parallel()

	got := FunctionTargets([]string{"helper", "missing", "helper"}, makeModule(t))
	want := []model.TargetSpec{
		{Func: "helper", Line: 4, Percent: 100, Reason: "--function flag"},
		{Func: "missing", Line: 1, Percent: 100, Reason: "--function flag"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("targets mismatch (-want +got):\n%s", diff)
	}
}
