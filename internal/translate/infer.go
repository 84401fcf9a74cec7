package translate

import (
	"fmt"
	"strings"

	"github.com/phobologic/rustify/internal/pyast"
)

// indexNames are parameter names that conventionally carry a count or size.
var indexNames = map[string]struct{}{
	"window": {}, "k": {}, "n": {}, "m": {}, "length": {}, "size": {}, "count": {}, "steps": {},
}

var annotationTypes = map[string]SemanticType{
	"float":           Float,
	"int":             Index,
	"str":             Bytes,
	"bytes":           Bytes,
	"bytearray":       Bytes,
	"list":            FloatVec,
	"list[float]":     FloatVec,
	"list[int]":       FloatVec,
	"sequence[float]": FloatVec,
	"np.ndarray":      FloatVec,
	"numpy.ndarray":   FloatVec,
	"torch.tensor":    FloatVec,

	"dict[tuple[int,int],int]": PairCounts,
}

// TypeFromAnnotation maps an annotation's source text onto a semantic type.
// The second result is false when the annotation is not recognized and the
// float-vector default was used.
func TypeFromAnnotation(ann string) (SemanticType, bool) {
	key := strings.ToLower(strings.Join(strings.Fields(ann), ""))
	key = strings.ReplaceAll(key, "typing.", "")
	if t, ok := annotationTypes[key]; ok {
		return t, true
	}
	switch {
	case strings.HasPrefix(key, "npt.ndarray["), strings.HasPrefix(key, "np.ndarray["),
		strings.HasPrefix(key, "numpy.ndarray["), strings.HasPrefix(key, "npt.arraylike"):
		return FloatVec, true
	}
	return FloatVec, false
}

// TypeFromName applies the naming heuristic: conventional size names are
// indices, everything else a float vector.
func TypeFromName(name string) SemanticType {
	if _, ok := indexNames[name]; ok {
		return Index
	}
	return FloatVec
}

// InferParams determines each parameter's type: annotation first, then the
// naming heuristic, then how the body uses the name, then the float-vector
// default.
func InferParams(fn *pyast.FunctionDef) []Param {
	usage := scanUsage(fn.Body)
	params := make([]Param, 0, len(fn.Params))
	for _, p := range fn.Params {
		params = append(params, Param{Name: p.Name, Type: inferParam(p, usage)})
	}
	return params
}

func inferParam(p pyast.Param, usage map[string]use) SemanticType {
	if p.Annotation != "" {
		if t, ok := TypeFromAnnotation(p.Annotation); ok {
			return t
		}
	}
	if p.Kind != pyast.PositionalParam {
		return FloatVec
	}
	if _, ok := indexNames[p.Name]; ok {
		return Index
	}
	u := usage[p.Name]
	switch {
	case u.sequence:
	case u.index:
		return Index
	case u.scalar:
		return Float
	}
	return FloatVec
}

// InferAssignType returns the explicit type annotation for a local bound to
// a bare numeric literal: ": f64", ": i64", or "" when value is not one.
func InferAssignType(value pyast.Expr) string {
	if u, ok := value.(*pyast.UnaryOp); ok && u.Op == "-" {
		value = u.Operand
	}
	n, ok := value.(*pyast.Num)
	if !ok {
		return ""
	}
	if n.Float {
		return ": f64"
	}
	return ": i64"
}

// LenGuards renders equal-length checks between the first float-vector
// parameter and every later one. Fewer than two vectors need no guard.
func LenGuards(params []Param, indent string) string {
	var vecs []Param
	for _, p := range params {
		if p.Type.Sequence() {
			vecs = append(vecs, p)
		}
	}
	if len(vecs) < 2 {
		return ""
	}
	var b strings.Builder
	first := RustIdent(vecs[0].Name)
	for _, p := range vecs[1:] {
		other := RustIdent(p.Name)
		fmt.Fprintf(&b, "%sif %s.len() != %s.len() {\n", indent, first, other)
		fmt.Fprintf(&b, "%s    return Err(pyo3::exceptions::PyValueError::new_err(format!(\n", indent)
		fmt.Fprintf(&b, "%s        \"length mismatch: %s has {} elements, %s has {}\",\n", indent, vecs[0].Name, p.Name)
		fmt.Fprintf(&b, "%s        %s.len(),\n", indent, first)
		fmt.Fprintf(&b, "%s        %s.len()\n", indent, other)
		fmt.Fprintf(&b, "%s    )));\n", indent)
		fmt.Fprintf(&b, "%s}\n", indent)
	}
	return b.String()
}

// use records how a name appears in a function body.
type use struct {
	sequence bool // indexed, measured, iterated or appended to
	index    bool // used as a subscript or range bound
	scalar   bool // operand of arithmetic or comparison
}

func scanUsage(body []pyast.Stmt) map[string]use {
	u := make(map[string]use)
	const (
		seq = iota
		idx
		scalar
	)
	mark := func(e pyast.Expr, how int) {
		n, ok := e.(*pyast.Name)
		if !ok {
			return
		}
		cur := u[n.ID]
		switch how {
		case seq:
			cur.sequence = true
		case idx:
			cur.index = true
		default:
			cur.scalar = true
		}
		u[n.ID] = cur
	}
	visit := func(e pyast.Expr) {
		walkExpr(e, func(e pyast.Expr) {
			switch e := e.(type) {
			case *pyast.Subscript:
				mark(e.Value, seq)
				mark(e.Index, idx)
			case *pyast.Attribute:
				mark(e.Value, seq)
			case *pyast.Call:
				if _, name, ok := pyast.CallName(e); ok {
					how := -1
					switch name {
					case "len", "sum", "zip", "enumerate", "list", "sorted":
						how = seq
					case "range":
						how = idx
					}
					for _, a := range e.Args {
						if how >= 0 {
							mark(a, how)
						}
					}
				}
			case *pyast.ListComp:
				for _, g := range e.Generators {
					mark(g.Iter, seq)
				}
			case *pyast.BinOp:
				mark(e.Left, scalar)
				mark(e.Right, scalar)
			case *pyast.Compare:
				mark(e.Left, scalar)
				for i, c := range e.Comparators {
					if i < len(e.Ops) && (e.Ops[i] == "in" || e.Ops[i] == "not in") {
						mark(c, seq)
					} else {
						mark(c, scalar)
					}
				}
			case *pyast.UnaryOp:
				mark(e.Operand, scalar)
			}
		})
	}
	walkStmts(body, func(s pyast.Stmt) {
		switch s := s.(type) {
		case *pyast.For:
			mark(s.Iter, seq)
		case *pyast.AugAssign:
			mark(s.Value, scalar)
		}
	}, visit)
	return u
}
