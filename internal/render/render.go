// Package render turns translations into Rust source: one #[pyfunction] per
// target, the lib.rs compilation unit that registers them, and the
// Cargo.toml manifest.
package render

import (
	"bytes"
	"fmt"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"

	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/pyast"
	"github.com/phobologic/rustify/internal/translate"
)

// Marker opens every rendered callable block.
const Marker = "#[pyfunction]"

const (
	DefaultUnitName     = "rustify_ml_ext"
	DefaultPyO3Version  = "0.21"
	DefaultNumpyVersion = "0.21"
	DefaultEdition      = "2021"

	numpyArray = "PyReadonlyArray1"
)

// Options controls rendering.
type Options struct {
	UnitName     string
	PyO3Version  string
	NumpyVersion string
	Edition      string
	// MLMode renders float-vector parameters as numpy arrays.
	MLMode bool
	// NumPy adds the numpy dependency to the manifest.
	NumPy bool
}

func (o Options) withDefaults() Options {
	if o.UnitName == "" {
		o.UnitName = DefaultUnitName
	}
	if o.PyO3Version == "" {
		o.PyO3Version = DefaultPyO3Version
	}
	if o.NumpyVersion == "" {
		o.NumpyVersion = DefaultNumpyVersion
	}
	if o.Edition == "" {
		o.Edition = DefaultEdition
	}
	return o
}

// Rendered is one rendered callable.
type Rendered struct {
	Name        string // exported name
	Source      string
	Status      model.FunctionStatus
	Unsupported []string
}

// Function renders target as a complete callable. A target missing from mod
// renders as an echo stub with status Echo.
func Function(target model.TargetSpec, mod *pyast.Module, opts Options) Rendered {
	tr, ok := translate.Function(target, mod)
	status := model.Full
	if !ok {
		tr = translate.Echo(target.Func)
		status = model.Echo
	} else if tr.Fallback {
		status = model.Partial
	}
	name := ExportName(target.Func)
	return Rendered{
		Name:        name,
		Source:      callable(name, target, tr, opts),
		Status:      status,
		Unsupported: tr.Unsupported,
	}
}

func callable(name string, target model.TargetSpec, tr *translate.Translation, opts Options) string {
	var b strings.Builder
	b.WriteString(Marker + "\n")
	fmt.Fprintf(&b, "/// Generated from Python `%s` (line %d, %.2f%% of runtime): %s\n",
		target.Func, target.Line, target.Percent, oneLine(target.Reason))
	if len(tr.Unsupported) > 0 {
		fmt.Fprintf(&b, "/// Partial translation; unsupported: %s\n", oneLine(strings.Join(tr.Unsupported, ", ")))
	}

	params := []string{"_py: Python"}
	var prologue []string
	for _, p := range tr.Params {
		id := translate.RustIdent(p.Name)
		typ := p.Type.Rust()
		switch {
		case opts.MLMode && p.Type.Sequence():
			typ = numpyArray + "<f64>"
			switch {
			case p.Mutable:
				prologue = append(prologue, fmt.Sprintf("let mut %s = %s.as_slice()?.to_vec();", id, id))
			case p.Returned:
				prologue = append(prologue, fmt.Sprintf("let %s = %s.as_slice()?.to_vec();", id, id))
			default:
				prologue = append(prologue, fmt.Sprintf("let %s = %s.as_slice()?;", id, id))
			}
			params = append(params, id+": "+typ)
		case p.Mutable:
			params = append(params, "mut "+id+": "+typ)
		default:
			params = append(params, id+": "+typ)
		}
	}

	fmt.Fprintf(&b, "pub fn %s(%s) -> PyResult<%s> {\n", name, strings.Join(params, ", "), tr.ReturnType.Rust())
	for _, l := range prologue {
		b.WriteString("    " + l + "\n")
	}
	b.WriteString(translate.LenGuards(tr.Params, "    "))
	b.WriteString(tr.Body)
	b.WriteString("}\n")
	return b.String()
}

// Unit assembles lib.rs from rendered callable blocks, in the given order.
func Unit(blocks []string, opts Options) string {
	opts = opts.withDefaults()
	var b strings.Builder
	b.WriteString("// Generated by rustify. Blocks are replaced by name on regeneration.\n")
	b.WriteString("use pyo3::prelude::*;\n")
	for _, block := range blocks {
		if strings.Contains(block, numpyArray+"<") {
			b.WriteString("use numpy::" + numpyArray + ";\n")
			break
		}
	}
	for _, block := range blocks {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(block, "\n"))
		b.WriteString("\n")
	}

	b.WriteString("\n#[pymodule]\n")
	fmt.Fprintf(&b, "fn %s(m: &Bound<'_, PyModule>) -> PyResult<()> {\n", opts.UnitName)
	for _, block := range blocks {
		if name, ok := ExtractName(block); ok {
			fmt.Fprintf(&b, "    m.add_function(wrap_pyfunction!(%s, m)?)?;\n", name)
		}
	}
	b.WriteString("    Ok(())\n}\n")
	return b.String()
}

// NeedsNumPy reports whether any block takes numpy arrays.
func NeedsNumPy(blocks []string) bool {
	for _, block := range blocks {
		if strings.Contains(block, numpyArray+"<") {
			return true
		}
	}
	return false
}

// ExtractName returns the callable name declared in a rendered block.
func ExtractName(block string) (string, bool) {
	for _, line := range strings.Split(block, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "pub fn ")
		if !ok {
			continue
		}
		name, _, ok := strings.Cut(rest, "(")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return "", false
		}
		return name, true
	}
	return "", false
}

// ExportName converts a Python function name into a snake_case Rust
// identifier.
func ExportName(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" || unicode.IsDigit([]rune(out)[0]) {
		out = "_" + out
	}
	return translate.RustIdent(out)
}

type cargoManifest struct {
	Package      cargoPackage               `toml:"package"`
	Lib          cargoLib                   `toml:"lib"`
	Dependencies map[string]cargoDependency `toml:"dependencies"`
}

type cargoPackage struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
	Edition string `toml:"edition"`
}

type cargoLib struct {
	Name      string   `toml:"name"`
	CrateType []string `toml:"crate-type"`
}

type cargoDependency struct {
	Version  string   `toml:"version"`
	Features []string `toml:"features,omitempty"`
}

// Manifest renders Cargo.toml for the compilation unit.
func Manifest(opts Options) (string, error) {
	opts = opts.withDefaults()
	m := cargoManifest{
		Package: cargoPackage{Name: opts.UnitName, Version: "0.1.0", Edition: opts.Edition},
		Lib:     cargoLib{Name: opts.UnitName, CrateType: []string{"cdylib"}},
		Dependencies: map[string]cargoDependency{
			"pyo3": {Version: opts.PyO3Version, Features: []string{"extension-module"}},
		},
	}
	if opts.NumPy {
		m.Dependencies["numpy"] = cargoDependency{Version: opts.NumpyVersion}
	}

	var buf bytes.Buffer
	buf.WriteString("# Generated by rustify.\n")
	enc := toml.NewEncoder(&buf)
	enc.Indent = ""
	if err := enc.Encode(m); err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.String(), nil
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "-"
	}
	return s
}
