// Package generate turns translation targets into a compilation unit on
// disk, merging with whatever a previous run left in the same directory.
package generate

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/parse"
	"github.com/phobologic/rustify/internal/pyast"
	"github.com/phobologic/rustify/internal/render"
)

// ErrNoTargets is returned when Generate is called with an empty target list.
var ErrNoTargets = errors.New("no targets selected for generation")

const (
	unitFile     = "lib.rs"
	manifestFile = "Cargo.toml"
)

// Request describes one generation run.
type Request struct {
	Source    model.InputSource
	Targets   []model.TargetSpec
	OutputDir string
	// DryRun only changes logging; files are always written so the output
	// can be inspected.
	DryRun bool
	// MLMode takes effect only when the source imports numpy.
	MLMode bool
	Render render.Options
	Logger *zap.Logger
}

// UnitDir is where the compilation unit for opts lives under outputDir.
func UnitDir(outputDir string, opts render.Options) string {
	name := opts.UnitName
	if name == "" {
		name = render.DefaultUnitName
	}
	return filepath.Join(outputDir, name)
}

// Generate renders every target, overlays the results on the callables
// already present in the unit directory (new blocks win by name), and writes
// lib.rs, Cargo.toml and the merge sidecar.
//
// Callers must serialize runs against the same output directory.
func Generate(ctx context.Context, req Request) (*model.GenerationResult, error) {
	if len(req.Targets) == 0 {
		return nil, ErrNoTargets
	}
	log := req.Logger
	if log == nil {
		log = zap.NewNop()
	}

	dir := UnitDir(req.OutputDir, req.Render)
	if _, err := os.Stat(dir); err == nil {
		log.Info("reusing existing unit directory", zap.String("path", dir))
	}
	if err := os.MkdirAll(filepath.Join(dir, "src"), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	mod, err := parse.Module(ctx, []byte(req.Source.Code))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("could not parse input; targets will echo their input",
			zap.String("source", req.Source.Label()), zap.Error(err))
		mod = nil
	} else if len(mod.SyntaxErrorLines) > 0 {
		log.Warn("input has syntax errors; affected statements are left untranslated",
			zap.String("source", req.Source.Label()),
			zap.Any("lines", mod.SyntaxErrorLines))
	}

	opts := req.Render
	opts.MLMode = req.MLMode && importsNumPy(mod, req.Source.Code)
	if opts.MLMode {
		log.Info("numpy detected with ml mode; vector parameters take numpy arrays")
	}

	unitPath := filepath.Join(dir, "src", unitFile)
	functions, err := loadExisting(unitPath, log)
	if err != nil {
		return nil, err
	}

	result := &model.GenerationResult{UnitDir: dir}
	exporters := make(map[string]string, len(req.Targets))
	for _, t := range req.Targets {
		r := render.Function(t, mod, opts)
		if prev, ok := exporters[r.Name]; ok && prev != t.Func {
			log.Warn("functions export under the same name; the later one replaces the earlier",
				zap.String("export", r.Name),
				zap.String("replaced", prev),
				zap.String("func", t.Func))
		}
		exporters[r.Name] = t.Func
		if r.Status != model.Full {
			result.FallbackFunctions++
			log.Debug("partial translation",
				zap.String("func", t.Func),
				zap.String("status", string(r.Status)),
				zap.Strings("unsupported", r.Unsupported))
		}
		functions[r.Name] = r.Source
		result.Targets = append(result.Targets, model.GeneratedFunction{
			Target:     t,
			ExportName: r.Name,
			Status:     r.Status,
		})
	}

	result.GeneratedFunctions = Ordered(functions)
	opts.NumPy = render.NeedsNumPy(result.GeneratedFunctions)
	unit := render.Unit(result.GeneratedFunctions, opts)
	manifest, err := render.Manifest(opts)
	if err != nil {
		return nil, err
	}

	if err := writeFileAtomic(unitPath, []byte(unit)); err != nil {
		return nil, fmt.Errorf("writing %s: %w", unitFile, err)
	}
	if err := writeFileAtomic(filepath.Join(dir, manifestFile), []byte(manifest)); err != nil {
		return nil, fmt.Errorf("writing %s: %w", manifestFile, err)
	}
	if err := writeSidecar(filepath.Join(dir, SidecarName), []byte(unit), functions); err != nil {
		// lib.rs is authoritative; the next run re-scans it.
		log.Warn("could not write merge sidecar", zap.Error(err))
	}

	if req.DryRun {
		log.Info("dry run: wrote generated files without building", zap.String("path", dir))
	}
	if result.FallbackFunctions > 0 {
		log.Warn("some functions fell back to partial or echo translation",
			zap.Int("fallback_functions", result.FallbackFunctions))
	}
	log.Info("generated rust unit",
		zap.String("path", dir),
		zap.Int("funcs", len(result.GeneratedFunctions)))
	return result, nil
}

// Ordered returns the blocks of a merge map sorted by exported name.
func Ordered(functions map[string]string) []string {
	names := lo.Keys(functions)
	slices.Sort(names)
	return lo.Map(names, func(name string, _ int) string {
		return functions[name]
	})
}

// loadExisting rebuilds the merge map left by a previous run. The sidecar is
// used when it matches lib.rs; otherwise lib.rs is re-scanned.
func loadExisting(unitPath string, log *zap.Logger) (map[string]string, error) {
	unit, err := os.ReadFile(unitPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading existing %s: %w", unitFile, err)
	}

	sidecarPath := filepath.Join(filepath.Dir(filepath.Dir(unitPath)), SidecarName)
	functions, ok, err := readSidecar(sidecarPath, unit)
	if err != nil {
		log.Warn("ignoring unreadable merge sidecar", zap.String("path", sidecarPath), zap.Error(err))
	}
	if ok {
		log.Debug("loaded merge map from sidecar", zap.Int("funcs", len(functions)))
		return functions, nil
	}

	functions = map[string]string{}
	for _, block := range ExistingBlocks(string(unit)) {
		if name, ok := render.ExtractName(block); ok {
			functions[name] = block
		}
	}
	log.Debug("rescanned existing unit", zap.Int("funcs", len(functions)))
	return functions, nil
}

// importsNumPy checks the parsed imports, falling back to a text search when
// the source did not parse.
func importsNumPy(mod *pyast.Module, code string) bool {
	if mod != nil {
		return mod.Imports("numpy")
	}
	return strings.Contains(code, "import numpy") || strings.Contains(code, "from numpy")
}
