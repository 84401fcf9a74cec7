package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/phobologic/rustify/internal/builder"
	"github.com/phobologic/rustify/internal/config"
	"github.com/phobologic/rustify/internal/generate"
	"github.com/phobologic/rustify/internal/input"
	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/parse"
	"github.com/phobologic/rustify/internal/profiler"
	"github.com/phobologic/rustify/internal/pyast"
	"github.com/phobologic/rustify/internal/ranking"
	"github.com/phobologic/rustify/internal/render"
	"github.com/phobologic/rustify/internal/toon"
)

const (
	statusSuccess  = "Success"
	statusPartial  = "Fallback: partial translation"
	statusEcho     = "Fallback: echo input"
	statusNotRegen = "Rebuilt (--no-regen)"
)

type accelerateFlags struct {
	file        string
	snippet     bool
	git         string
	gitPath     string
	threshold   float32
	output      string
	mlMode      bool
	dryRun      bool
	benchmark   bool
	listTargets bool
	profileOnly bool
	functions   []string
	iterations  uint32
	noRegen     bool
	format      string
	maxTargets  int
}

func newAccelerateCmd(a *app) *cobra.Command {
	f := &accelerateFlags{}
	def := config.Default().Accelerate

	cmd := &cobra.Command{
		Use:   "accelerate",
		Short: "Profile Python code and generate a Rust extension for its hotspots",
		Long: `Profile a Python file, stdin snippet or file in a git repository, select the
functions above --threshold percent of runtime, translate them to Rust/PyO3,
merge them into <output>/<unit>/src/lib.rs and build the unit with maturin.

Flags override [accelerate] values from rustify.toml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f.resolve(cmd, a.cfg)
			return runAccelerate(cmd, a, f)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.file, "file", "", "Python file to analyze")
	fl.BoolVar(&f.snippet, "snippet", false, "read Python code from stdin")
	fl.StringVar(&f.git, "git", "", "git repository URL to clone and analyze")
	fl.StringVar(&f.gitPath, "git-path", "", "file within the git repository (required with --git)")
	fl.Float32Var(&f.threshold, "threshold", def.Threshold, "minimum hotspot share in percent; <=0 includes every function")
	fl.StringVar(&f.output, "output", def.Output, "output directory for the generated extension")
	fl.BoolVar(&f.mlMode, "ml-mode", false, "take numpy arrays for vector parameters when the source imports numpy")
	fl.BoolVar(&f.dryRun, "dry-run", false, "write generated files but skip the maturin build")
	fl.BoolVar(&f.benchmark, "benchmark", false, "time the extension against the original Python after building")
	fl.BoolVar(&f.listTargets, "list-targets", false, "print the hotspot table and exit")
	fl.BoolVar(&f.profileOnly, "profile-only", false, "profile with --iterations, print the hotspot table and exit")
	fl.StringArrayVar(&f.functions, "function", nil, "translate the named function without profiling (repeatable)")
	fl.Uint32Var(&f.iterations, "iterations", def.Iterations, "profiler loop iterations")
	fl.BoolVar(&f.noRegen, "no-regen", false, "rebuild the existing unit without regenerating it")
	fl.StringVar(&f.format, "format", formatTable, "output format (table|toon)")
	fl.IntVar(&f.maxTargets, "max-targets", def.MaxTargets, "translate at most this many hotspots; 0 means no limit")
	cmd.MarkFlagsMutuallyExclusive("file", "snippet", "git")
	return cmd
}

// resolve fills every flag the user did not pass from the config file.
func (f *accelerateFlags) resolve(cmd *cobra.Command, cfg config.Config) {
	fl := cmd.Flags()
	acc := cfg.Accelerate
	if !fl.Changed("threshold") {
		f.threshold = acc.Threshold
	}
	if !fl.Changed("output") {
		f.output = acc.Output
	}
	if !fl.Changed("ml-mode") {
		f.mlMode = acc.MLMode
	}
	if !fl.Changed("iterations") {
		f.iterations = acc.Iterations
	}
	if !fl.Changed("max-targets") {
		f.maxTargets = acc.MaxTargets
	}
}

func runAccelerate(cmd *cobra.Command, a *app, f *accelerateFlags) error {
	if err := checkFormat(f.format); err != nil {
		return err
	}
	a.quietFor(f.format)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	log := a.log
	log.Info("starting accelerate",
		zap.String("file", f.file),
		zap.Bool("snippet", f.snippet),
		zap.String("git", f.git),
		zap.Float32("threshold", f.threshold),
		zap.String("output", f.output),
		zap.Bool("ml_mode", f.mlMode),
		zap.Bool("dry_run", f.dryRun),
		zap.Strings("functions", f.functions),
		zap.Uint32("iterations", f.iterations))

	src, err := input.Load(ctx, input.Request{
		File:    f.file,
		Snippet: f.snippet,
		Stdin:   cmd.InOrStdin(),
		Git:     f.git,
		GitPath: f.gitPath,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	profOpts := profiler.Options{Python: a.cfg.Accelerate.Python, Iterations: f.iterations, Logger: log}
	if f.listTargets || f.profileOnly {
		summary, err := profiler.Profile(ctx, src, f.threshold, profOpts)
		if err != nil {
			return err
		}
		a.printHotspots(src, summary.Hotspots, f.format)
		log.Info("profile completed", zap.String("source", src.Label()))
		return nil
	}

	mod, err := parse.Module(ctx, []byte(src.Code))
	if err != nil {
		log.Warn("could not parse input for target lookup", zap.Error(err))
		mod = nil
	}

	var targets []model.TargetSpec
	if len(f.functions) > 0 {
		log.Info("using --function: skipping profiler", zap.Strings("functions", f.functions))
		targets = ranking.FunctionTargets(f.functions, mod)
	} else {
		summary, err := profiler.Profile(ctx, src, f.threshold, profOpts)
		if err != nil {
			return err
		}
		targets = ranking.SelectTargets(summary, mod, ranking.Options{
			Threshold:  f.threshold,
			MaxTargets: f.maxTargets,
			MLMode:     f.mlMode,
		})
	}

	renderOpts := render.Options{
		UnitName:     a.cfg.Unit.Name,
		PyO3Version:  a.cfg.Unit.PyO3Version,
		NumpyVersion: a.cfg.Unit.NumpyVersion,
		Edition:      a.cfg.Unit.Edition,
	}

	var result *model.GenerationResult
	if f.noRegen {
		dir := generate.UnitDir(f.output, renderOpts)
		if _, err := os.Stat(dir); err != nil {
			return fmt.Errorf("--no-regen: generated unit not found at %s: %w", dir, err)
		}
		log.Info("--no-regen: skipping generation, using existing unit", zap.String("path", dir))
		result = &model.GenerationResult{UnitDir: dir}
	} else {
		result, err = generate.Generate(ctx, generate.Request{
			Source:    src,
			Targets:   targets,
			OutputDir: f.output,
			DryRun:    f.dryRun,
			MLMode:    f.mlMode,
			Render:    renderOpts,
			Logger:    log,
		})
		if errors.Is(err, generate.ErrNoTargets) {
			return fmt.Errorf("%w at threshold %.2f%%; lower --threshold or pass --function", err, f.threshold)
		}
		if err != nil {
			return err
		}
	}

	if err := builder.Build(ctx, builder.Options{
		Maturin: a.cfg.Accelerate.Maturin,
		UnitDir: result.UnitDir,
		DryRun:  f.dryRun,
		Logger:  log,
	}); err != nil {
		return err
	}

	var timings []model.Timing
	if f.benchmark && !f.dryRun {
		timings, err = benchmark(ctx, a, src, mod, result, renderOpts.UnitName)
		if err != nil {
			log.Warn("benchmark failed; skipping speedup output", zap.Error(err))
		}
	}

	rows := summaryRows(targets, result)
	if f.format == formatTOON {
		fmt.Fprintln(a.stdout, toon.Summary(result.UnitDir, rows, result.FallbackFunctions, timings))
	} else {
		a.printer().Summary(result.UnitDir, rows, result.FallbackFunctions, timings)
	}

	log.Info("accelerate flow completed",
		zap.String("source", src.Label()),
		zap.Int("targets", len(targets)),
		zap.Int("generated", len(result.GeneratedFunctions)),
		zap.Int("fallback_functions", result.FallbackFunctions))
	if f.dryRun {
		log.Info("dry-run completed; no install performed")
	}
	return nil
}

func benchmark(ctx context.Context, a *app, src model.InputSource, mod *pyast.Module, result *model.GenerationResult, unit string) ([]model.Timing, error) {
	python := a.cfg.Accelerate.Python
	if python == "" {
		var err error
		if python, err = profiler.DetectPython(ctx); err != nil {
			return nil, err
		}
	}
	if unit == "" {
		unit = render.DefaultUnitName
	}
	return builder.Benchmark(ctx, src, builder.Targets(mod, result.Targets), builder.BenchOptions{
		Python:     python,
		UnitName:   unit,
		Iterations: a.cfg.Accelerate.BenchIterations,
		Logger:     a.log,
	})
}

// summaryRows reports every target in selection order. Targets not
// regenerated in this run keep a neutral status.
func summaryRows(targets []model.TargetSpec, result *model.GenerationResult) []model.SummaryRow {
	generated := lo.SliceToMap(result.Targets, func(g model.GeneratedFunction) (string, model.FunctionStatus) {
		return g.Target.Func, g.Status
	})
	rows := make([]model.SummaryRow, 0, len(targets))
	for _, t := range targets {
		row := model.SummaryRow{Func: t.Func, Line: t.Line, Percent: t.Percent}
		status, ok := generated[t.Func]
		switch {
		case !ok:
			row.Translation, row.Status = "-", statusNotRegen
		case status == model.Full:
			row.Translation, row.Status = "Full", statusSuccess
		case status == model.Partial:
			row.Translation, row.Status = "Partial", statusPartial
		default:
			row.Translation, row.Status = "Partial", statusEcho
		}
		rows = append(rows, row)
	}
	return rows
}

func (a *app) printHotspots(src model.InputSource, hotspots []model.Hotspot, format string) {
	if format == formatTOON {
		fmt.Fprintln(a.stdout, toon.Hotspots(src.Label(), hotspots))
		return
	}
	a.printer().Hotspots(hotspots)
}
