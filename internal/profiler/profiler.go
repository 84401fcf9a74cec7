// Package profiler runs a Python script under cProfile and reports which
// of its functions dominate the runtime.
package profiler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/phobologic/rustify/internal/input"
	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/proc"
)

// ErrPythonNotFound is returned when no Python interpreter is on PATH.
var ErrPythonNotFound = errors.New("python not found on PATH; install Python 3.10+")

// DefaultIterations is how many times the script runs under the profiler.
const DefaultIterations = 100

// The script runs under a run_name other than __main__ so that benchmark
// blocks guarded by `if __name__ == "__main__":` are skipped.
const script = `import cProfile, pstats, runpy, sys
path, iters = sys.argv[1], int(sys.argv[2])
prof = cProfile.Profile()
prof.enable()
for _ in range(iters):
    runpy.run_path(path, run_name="__rustify_profile__")
prof.disable()
stats = pstats.Stats(prof)
total = sum(v[3] for v in stats.stats.values()) or 1e-9
for (fname, line, func), stat in stats.stats.items():
    print(f"{stat[3] / total * 100.0:.2f}% {func} {fname}:{line}")
`

// Options configures a profiling run.
type Options struct {
	Python     string // interpreter; detected when empty
	Iterations uint32
	Logger     *zap.Logger
}

// DetectPython returns the first of python3 and python that runs.
func DetectPython(ctx context.Context) (string, error) {
	for _, candidate := range []string{"python3", "python"} {
		if _, ok := proc.LookPath(candidate); !ok {
			continue
		}
		if _, err := proc.Output(ctx, proc.Cmd{Name: candidate, Args: []string{"--version"}}); err == nil {
			return candidate, nil
		}
	}
	return "", ErrPythonNotFound
}

// checkVersion warns when the interpreter is older than 3.10.
func checkVersion(ctx context.Context, python string, log *zap.Logger) {
	out, err := proc.Output(ctx, proc.Cmd{
		Name: python,
		Args: []string{"-c", "import sys; print('ok' if sys.version_info >= (3, 10) else sys.version.split()[0])"},
	})
	if err != nil {
		log.Warn("python version check failed", zap.String("python", python), zap.Error(err))
		return
	}
	if v := strings.TrimSpace(string(out)); v != "ok" {
		log.Warn("python older than 3.10; profiling may behave differently",
			zap.String("python", python), zap.String("version", v))
	}
}

// Profile runs src under cProfile and returns the hotspots at or above
// threshold percent. Only functions defined in the script itself are kept.
func Profile(ctx context.Context, src model.InputSource, threshold float32, opts Options) (*model.ProfileSummary, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	python := opts.Python
	if python == "" {
		var err error
		if python, err = DetectPython(ctx); err != nil {
			return nil, err
		}
	}
	checkVersion(ctx, python, log)
	iters := opts.Iterations
	if iters == 0 {
		iters = DefaultIterations
	}

	path, cleanup, err := input.Materialize(src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	log.Info("profiling", zap.String("source", src.Label()), zap.Uint32("iterations", iters))
	out, err := proc.Output(ctx, proc.Cmd{
		Name: python,
		Args: []string{"-c", script, path, strconv.FormatUint(uint64(iters), 10)},
	})
	if err != nil {
		return nil, fmt.Errorf("python profiling failed: %w", err)
	}

	hotspots := ParseOutput(string(out), path)
	summary := &model.ProfileSummary{}
	for _, h := range hotspots {
		if h.Percent >= threshold {
			summary.Hotspots = append(summary.Hotspots, h)
		}
	}
	log.Info("profiled hotspots collected",
		zap.Int("count", len(summary.Hotspots)),
		zap.Float32("threshold", threshold))
	return summary, nil
}

// ParseOutput parses "pct% func file:line" records, keeping functions
// defined in script (any file when script is empty). Interpreter internals
// and synthetic frames such as <module> and <listcomp> are dropped. The
// result is sorted by percent, descending.
func ParseOutput(out, script string) []model.Hotspot {
	var hotspots []model.Hotspot
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		pct, rest, ok := strings.Cut(strings.TrimSpace(sc.Text()), " ")
		if !ok {
			continue
		}
		percent, err := strconv.ParseFloat(strings.TrimSuffix(pct, "%"), 32)
		if err != nil {
			continue
		}
		fn, loc, ok := strings.Cut(rest, " ")
		if !ok || strings.HasPrefix(fn, "<") {
			continue
		}
		i := strings.LastIndexByte(loc, ':')
		if i < 0 {
			continue
		}
		file := loc[:i]
		if file == "~" || strings.HasPrefix(file, "<") {
			continue
		}
		if script != "" && filepath.Clean(file) != filepath.Clean(script) {
			continue
		}
		line, err := strconv.ParseUint(loc[i+1:], 10, 32)
		if err != nil {
			continue
		}
		hotspots = append(hotspots, model.Hotspot{
			Func:    fn,
			File:    file,
			Line:    uint32(line),
			Percent: float32(percent),
		})
	}
	slices.SortStableFunc(hotspots, func(a, b model.Hotspot) int {
		switch {
		case a.Percent > b.Percent:
			return -1
		case a.Percent < b.Percent:
			return 1
		}
		return 0
	})
	return hotspots
}
