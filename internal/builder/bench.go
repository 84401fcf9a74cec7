package builder

import (
	"bufio"
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"go.uber.org/zap"

	"github.com/phobologic/rustify/internal/input"
	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/proc"
	"github.com/phobologic/rustify/internal/pyast"
	"github.com/phobologic/rustify/internal/translate"
)

// DefaultBenchIterations is the timeit repetition count per target.
const DefaultBenchIterations = 1000

// BenchTarget is one function to time.
type BenchTarget struct {
	Func   string   // Python name in the original module
	Export string   // name in the extension
	Args   []string // Python argument expressions
}

// BenchOptions configures Benchmark.
type BenchOptions struct {
	Python     string
	UnitName   string
	Iterations int
	Logger     *zap.Logger
}

// ArgExpr returns a sample Python argument for a parameter of type t.
func ArgExpr(t translate.SemanticType) string {
	switch t {
	case translate.Float:
		return "1.5"
	case translate.Index:
		return "16"
	case translate.Bytes:
		return `b"the quick brown fox " * 50`
	case translate.PairCounts:
		return "{}"
	default:
		return "[float(i % 97) for i in range(1024)]"
	}
}

// Targets derives benchmark targets from generated functions, building
// sample arguments from each translated signature. Echo stubs are skipped.
func Targets(mod *pyast.Module, funcs []model.GeneratedFunction) []BenchTarget {
	var out []BenchTarget
	for _, g := range funcs {
		if g.Status == model.Echo {
			continue
		}
		tr, ok := translate.Function(g.Target, mod)
		if !ok {
			continue
		}
		bt := BenchTarget{Func: g.Target.Func, Export: g.ExportName}
		for _, p := range tr.Params {
			bt.Args = append(bt.Args, ArgExpr(p.Type))
		}
		out = append(out, bt)
	}
	return out
}

var harness = template.Must(template.New("harness").Funcs(template.FuncMap{
	"py":    strconv.Quote,
	"tuple": pyTuple,
}).Parse(`import sys, timeit
sys.path.insert(0, {{py .Dir}})
import {{.Module}} as original
import {{.Unit}} as accelerated

N = {{.Iterations}}

def bench(name, export, args):
    try:
        py = timeit.timeit(lambda: getattr(original, name)(*args), number=N)
        rs = timeit.timeit(lambda: getattr(accelerated, export)(*args), number=N)
    except Exception as e:
        print("SKIP", name, type(e).__name__ + ":", str(e).replace("\n", " "))
        return
    print("BENCH", name, "%.9f" % py, "%.9f" % rs)
{{range .Targets}}
bench({{py .Func}}, {{py .Export}}, {{tuple .Args}})
{{- end}}
`))

func pyTuple(args []string) string {
	if len(args) == 0 {
		return "()"
	}
	return "(" + strings.Join(args, ", ") + ",)"
}

// Harness renders the timing script for targets. dir must contain the
// original module as <module>.py.
func Harness(dir, module, unit string, iterations int, targets []BenchTarget) (string, error) {
	var b strings.Builder
	err := harness.Execute(&b, struct {
		Dir, Module, Unit string
		Iterations        int
		Targets           []BenchTarget
	}{dir, module, unit, iterations, targets})
	if err != nil {
		return "", fmt.Errorf("rendering benchmark harness: %w", err)
	}
	return b.String(), nil
}

// Benchmark imports the original source and the built extension side by
// side and times each target.
func Benchmark(ctx context.Context, src model.InputSource, targets []BenchTarget, opts BenchOptions) ([]model.Timing, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if len(targets) == 0 {
		return nil, nil
	}
	iters := opts.Iterations
	if iters <= 0 {
		iters = DefaultBenchIterations
	}

	path, cleanup, err := input.Materialize(src)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	script, err := Harness(filepath.Dir(path), input.ModuleName, opts.UnitName, iters, targets)
	if err != nil {
		return nil, err
	}
	log.Info("running benchmark harness", zap.Int("targets", len(targets)), zap.Int("iterations", iters))
	out, err := proc.Output(ctx, proc.Cmd{Name: opts.Python, Args: []string{"-c", script}})
	if err != nil {
		return nil, fmt.Errorf("benchmark harness failed: %w", err)
	}
	return ParseTimings(string(out)), nil
}

// ParseTimings reads the harness output.
func ParseTimings(out string) []model.Timing {
	var timings []model.Timing
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "BENCH":
			if len(fields) != 4 {
				continue
			}
			py, err1 := strconv.ParseFloat(fields[2], 64)
			rs, err2 := strconv.ParseFloat(fields[3], 64)
			if err1 != nil || err2 != nil {
				continue
			}
			timings = append(timings, model.Timing{
				Func:   fields[1],
				Python: seconds(py),
				Rust:   seconds(rs),
			})
		case "SKIP":
			timings = append(timings, model.Timing{
				Func:    fields[1],
				Skipped: strings.Join(fields[2:], " "),
			})
		}
	}
	return timings
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
