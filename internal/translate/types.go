// Package translate lowers Python function bodies into Rust source text.
//
// Translation never fails: constructs outside the supported subset are
// rendered as grep-able markers or comments and the result is flagged as a
// fallback so callers can report partial translations.
package translate

// SemanticType is the closed set of value kinds a parameter, local or
// return value may take in generated code.
type SemanticType int

const (
	Float      SemanticType = iota // f64
	Index                          // usize
	FloatVec                       // Vec<f64>
	Bytes                          // Vec<u8>
	PairCounts                     // HashMap<(i64, i64), i64>
)

// Rust returns the owned Rust type used in signatures.
func (t SemanticType) Rust() string {
	switch t {
	case Index:
		return "usize"
	case FloatVec:
		return "Vec<f64>"
	case Bytes:
		return "Vec<u8>"
	case PairCounts:
		return "std::collections::HashMap<(i64, i64), i64>"
	default:
		return "f64"
	}
}

// Zero returns a Rust expression producing the empty value of t.
func (t SemanticType) Zero() string {
	switch t {
	case Index:
		return "0"
	case FloatVec, Bytes:
		return "Vec::new()"
	case PairCounts:
		return "std::collections::HashMap::new()"
	default:
		return "0.0"
	}
}

// Sequence reports whether t is a vector of floats, the only kind that
// takes part in equal-length guards and array conversion.
func (t SemanticType) Sequence() bool { return t == FloatVec }

func (t SemanticType) String() string {
	switch t {
	case Index:
		return "index"
	case FloatVec:
		return "float-vector"
	case Bytes:
		return "bytes"
	case PairCounts:
		return "pair-counts"
	default:
		return "float"
	}
}

// Param is one translated parameter.
type Param struct {
	Name string
	Type SemanticType
	// Mutable is set when the body rebinds or writes through the parameter.
	Mutable bool
	// Returned is set when the body returns the parameter itself.
	Returned bool
}

// Translation is the output of translating one function.
type Translation struct {
	Name       string
	Line       uint32
	Params     []Param
	ReturnType SemanticType
	Body       string // indented one level, newline-terminated
	Fallback   bool
	// Unsupported lists the constructs that triggered the fallback, in
	// source order, without duplicates.
	Unsupported []string
}

// VectorParams returns the parameters that carry float vectors.
func (t *Translation) VectorParams() []Param {
	var out []Param
	for _, p := range t.Params {
		if p.Type.Sequence() {
			out = append(out, p)
		}
	}
	return out
}
