// Package ranking turns profiler hotspots into translation targets.
package ranking

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/pyast"
)

// Options controls target selection.
type Options struct {
	// Threshold is the minimum runtime share, in percent. At or below zero
	// every top-level function in the module is added after the hotspots.
	Threshold float32
	// MaxTargets caps the number of profiled targets; 0 means no limit.
	MaxTargets int
	MLMode     bool
}

// SelectTargets returns one target per hotspot at or above the threshold,
// in hotspot order. Duplicate function names keep their first (hottest)
// record.
func SelectTargets(summary *model.ProfileSummary, mod *pyast.Module, opts Options) []model.TargetSpec {
	var hotspots []model.Hotspot
	if summary != nil {
		hotspots = lo.Filter(summary.Hotspots, func(h model.Hotspot, _ int) bool {
			return h.Percent >= opts.Threshold
		})
		hotspots = lo.UniqBy(hotspots, func(h model.Hotspot) string { return h.Func })
	}
	if opts.MaxTargets > 0 && len(hotspots) > opts.MaxTargets {
		hotspots = hotspots[:opts.MaxTargets]
	}

	targets := make([]model.TargetSpec, 0, len(hotspots))
	for _, h := range hotspots {
		reason := fmt.Sprintf("%.2f%% hotspot", h.Percent)
		if opts.MLMode {
			reason += " (ml-mode)"
		}
		targets = append(targets, model.TargetSpec{
			Func:    h.Func,
			Line:    h.Line,
			Percent: h.Percent,
			Reason:  reason,
		})
	}

	if opts.Threshold <= 0 {
		seen := lo.SliceToMap(targets, func(t model.TargetSpec) (string, struct{}) {
			return t.Func, struct{}{}
		})
		for _, fn := range mod.Functions() {
			if _, ok := seen[fn.Name]; ok {
				continue
			}
			seen[fn.Name] = struct{}{}
			targets = append(targets, model.TargetSpec{
				Func:   fn.Name,
				Line:   fn.Line,
				Reason: "threshold<=0: include all defs",
			})
		}
	}
	return targets
}

// FunctionTargets builds targets for functions named explicitly, bypassing
// the profiler. The line comes from the module when the function is found.
func FunctionTargets(names []string, mod *pyast.Module) []model.TargetSpec {
	var targets []model.TargetSpec
	for _, name := range lo.Uniq(names) {
		line := uint32(1)
		if fn, ok := mod.Function(name); ok {
			line = fn.Line
		}
		targets = append(targets, model.TargetSpec{
			Func:    name,
			Line:    line,
			Percent: 100,
			Reason:  "--function flag",
		})
	}
	return targets
}
