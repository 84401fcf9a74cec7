// Package pyast is a typed syntax tree for the numeric-kernel subset of
// Python that rustify translates.
//
// Every construct outside the subset is kept as an Unsupported node carrying
// its tree-sitter node kind and source text, so that later stages can report
// exactly what was skipped instead of silently dropping it.
package pyast

// Expr is a Python expression.
type Expr interface {
	exprNode()
}

// Stmt is a Python statement.
type Stmt interface {
	stmtNode()
	// StmtLine returns the 1-based source line of the statement.
	StmtLine() uint32
}

// Module is a parsed Python source file.
type Module struct {
	Body []Stmt
	// SyntaxErrorLines lists lines where the parser had to recover.
	SyntaxErrorLines []uint32
}

// Function returns the top-level function definition with the given name.
func (m *Module) Function(name string) (*FunctionDef, bool) {
	if m == nil {
		return nil, false
	}
	for _, s := range m.Body {
		if fn, ok := s.(*FunctionDef); ok && fn.Name == name {
			return fn, true
		}
	}
	return nil, false
}

// Functions returns every top-level function definition in source order.
func (m *Module) Functions() []*FunctionDef {
	if m == nil {
		return nil
	}
	var out []*FunctionDef
	for _, s := range m.Body {
		if fn, ok := s.(*FunctionDef); ok {
			out = append(out, fn)
		}
	}
	return out
}

// Imports reports whether the module imports the named top-level package.
func (m *Module) Imports(pkg string) bool {
	if m == nil {
		return false
	}
	for _, s := range m.Body {
		if imp, ok := s.(*Import); ok {
			for _, name := range imp.Modules {
				if name == pkg {
					return true
				}
			}
		}
	}
	return false
}

// ParamKind distinguishes plain parameters from *args/**kwargs.
type ParamKind int

const (
	PositionalParam ParamKind = iota
	VarArgsParam
	KwArgsParam
)

// Param is one declared function parameter.
type Param struct {
	Name       string
	Annotation string // source text, "" when absent
	Default    Expr   // nil when absent
	Kind       ParamKind
}

// Pos is embedded in statements to carry the source line.
type Pos struct {
	Line uint32
}

// StmtLine implements Stmt.
func (p Pos) StmtLine() uint32 { return p.Line }

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// FunctionDef is `def name(params) -> returns: body`.
type FunctionDef struct {
	Pos
	Name      string
	Signature string // e.g. "dot(a, b: list[float]) -> float"
	Params    []Param
	Returns   string // return annotation source text
	Body      []Stmt
}

// Assign is `t1 = t2 = ... = value`. Targets has more than one entry for
// chained assignment.
type Assign struct {
	Pos
	Targets []Expr
	Value   Expr
}

// AnnAssign is `target: annotation = value`. Value is nil for a bare
// declaration.
type AnnAssign struct {
	Pos
	Target     Expr
	Annotation string
	Value      Expr
}

// AugAssign is `target op= value`; Op excludes the trailing '='.
type AugAssign struct {
	Pos
	Target Expr
	Op     string
	Value  Expr
}

// For is `for target in iter: body else: orelse`.
type For struct {
	Pos
	Target Expr
	Iter   Expr
	Body   []Stmt
	OrElse []Stmt
}

// While is `while test: body else: orelse`.
type While struct {
	Pos
	Test   Expr
	Body   []Stmt
	OrElse []Stmt
}

// If is `if test: body else: orelse`; an elif chain is a nested If as the
// only statement of OrElse.
type If struct {
	Pos
	Test   Expr
	Body   []Stmt
	OrElse []Stmt
}

// Return is `return value`; Value is nil for a bare return.
type Return struct {
	Pos
	Value Expr
}

// ExprStmt is an expression evaluated for its side effects.
type ExprStmt struct {
	Pos
	Value Expr
}

// Import records top-level module names of `import x` / `from x import y`.
type Import struct {
	Pos
	Modules []string
}

// Pass is `pass`.
type Pass struct{ Pos }

// Break is `break`.
type Break struct{ Pos }

// Continue is `continue`.
type Continue struct{ Pos }

// UnsupportedStmt is any statement outside the subset (class definitions,
// try/with blocks, nested defs, raise, ...).
type UnsupportedStmt struct {
	Pos
	Kind string
	Text string
}

func (*FunctionDef) stmtNode()     {}
func (*Assign) stmtNode()          {}
func (*AnnAssign) stmtNode()       {}
func (*AugAssign) stmtNode()       {}
func (*For) stmtNode()             {}
func (*While) stmtNode()           {}
func (*If) stmtNode()              {}
func (*Return) stmtNode()          {}
func (*ExprStmt) stmtNode()        {}
func (*Import) stmtNode()          {}
func (*Pass) stmtNode()            {}
func (*Break) stmtNode()           {}
func (*Continue) stmtNode()        {}
func (*UnsupportedStmt) stmtNode() {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// Name is an identifier reference.
type Name struct {
	ID string
}

// Num is a numeric literal. Text is the literal as written; Float is true
// when Python would produce a float (decimal point or exponent).
type Num struct {
	Text  string
	Float bool
}

// Str is a string or bytes literal, kept as written (including quotes and
// prefixes).
type Str struct {
	Text string
}

// Bool is True or False.
type Bool struct {
	Value bool
}

// NoneLit is None.
type NoneLit struct{}

// BinOp is `left op right` for arithmetic and bitwise operators.
type BinOp struct {
	Left  Expr
	Op    string
	Right Expr
}

// BoolOp is `v1 op v2 op ...` with Op "and" or "or"; nested operators of the
// same kind are flattened.
type BoolOp struct {
	Op     string
	Values []Expr
}

// UnaryOp is `op operand` with Op one of "-", "+", "~", "not".
type UnaryOp struct {
	Op      string
	Operand Expr
}

// Compare is `left op1 c1 op2 c2 ...`.
type Compare struct {
	Left        Expr
	Ops         []string
	Comparators []Expr
}

// Keyword is a `name=value` call argument.
type Keyword struct {
	Name  string
	Value Expr
}

// Call is `func(args, keywords)`.
type Call struct {
	Func     Expr
	Args     []Expr
	Keywords []Keyword
}

// Subscript is `value[index]`. Slices are represented as UnsupportedExpr
// indexes.
type Subscript struct {
	Value Expr
	Index Expr
}

// Attribute is `value.attr`.
type Attribute struct {
	Value Expr
	Attr  string
}

// List is `[e1, e2, ...]`.
type List struct {
	Elts []Expr
}

// Tuple is `(e1, e2, ...)`.
type Tuple struct {
	Elts []Expr
}

// Comprehension is one `for target in iter if cond...` clause.
type Comprehension struct {
	Target Expr
	Iter   Expr
	Ifs    []Expr
}

// ListComp is `[elt for ...]`.
type ListComp struct {
	Elt        Expr
	Generators []Comprehension
}

// IfExp is `body if test else orelse`.
type IfExp struct {
	Test   Expr
	Body   Expr
	OrElse Expr
}

// UnsupportedExpr is any expression outside the subset (lambda, dict,
// generator expression, slices, f-strings, ...).
type UnsupportedExpr struct {
	Kind string
	Text string
}

func (*Name) exprNode()            {}
func (*Num) exprNode()             {}
func (*Str) exprNode()             {}
func (*Bool) exprNode()            {}
func (*NoneLit) exprNode()         {}
func (*BinOp) exprNode()           {}
func (*BoolOp) exprNode()          {}
func (*UnaryOp) exprNode()         {}
func (*Compare) exprNode()         {}
func (*Call) exprNode()            {}
func (*Subscript) exprNode()       {}
func (*Attribute) exprNode()       {}
func (*List) exprNode()            {}
func (*Tuple) exprNode()           {}
func (*ListComp) exprNode()        {}
func (*IfExp) exprNode()           {}
func (*UnsupportedExpr) exprNode() {}

// CallName returns the callee identifier when e is a call to a bare name.
func CallName(e Expr) (*Call, string, bool) {
	call, ok := e.(*Call)
	if !ok {
		return nil, "", false
	}
	fn, ok := call.Func.(*Name)
	if !ok {
		return call, "", false
	}
	return call, fn.ID, true
}
