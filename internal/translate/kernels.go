package translate

import (
	"strings"

	"github.com/phobologic/rustify/internal/pyast"
)

// kernels are hand-written bodies for well-known functions whose idiomatic
// Python relies on constructs outside the translated subset. A kernel
// declines (false) when the definition does not have the expected shape.
var kernels = map[string]func(*pyast.FunctionDef) (*Translation, bool){
	"count_pairs": countPairs,
}

// countPairs counts adjacent token pairs into a map keyed by (a, b).
func countPairs(fn *pyast.FunctionDef) (*Translation, bool) {
	if len(fn.Params) != 1 || fn.Params[0].Kind != pyast.PositionalParam {
		return nil, false
	}
	tokens := RustIdent(fn.Params[0].Name)
	lines := []string{
		"let mut counts: std::collections::HashMap<(i64, i64), i64> = std::collections::HashMap::new();",
		"for i in 0.." + tokens + ".len().saturating_sub(1) {",
		"    let pair = (" + tokens + "[i] as i64, " + tokens + "[i + 1] as i64);",
		"    *counts.entry(pair).or_insert(0) += 1;",
		"}",
		"Ok(counts)",
	}
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(indentUnit + l + "\n")
	}
	return &Translation{
		Name:       fn.Name,
		Line:       fn.Line,
		Params:     []Param{{Name: fn.Params[0].Name, Type: FloatVec}},
		ReturnType: PairCounts,
		Body:       b.String(),
	}, true
}
