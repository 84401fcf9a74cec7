package translate

import (
	"fmt"
	"strings"

	"github.com/phobologic/rustify/internal/pyast"
)

const indentUnit = "    "

// bodyWriter renders one function body. Output is appended to buf with the
// indentation of the current depth; depth 1 is the function body itself.
type bodyWriter struct {
	sc       *scope
	ret      SemanticType
	bare     string // payload of a bare return
	buf      strings.Builder
	declared []map[string]struct{}
	fallback bool
	reasons  []string
	seen     map[string]struct{}
}

func newBodyWriter(sc *scope, ret SemanticType) *bodyWriter {
	w := &bodyWriter{sc: sc, ret: ret, seen: make(map[string]struct{})}
	top := make(map[string]struct{})
	for name := range sc.params {
		top[name] = struct{}{}
	}
	w.declared = append(w.declared, top)
	return w
}

func (w *bodyWriter) line(depth int, format string, args ...any) {
	w.buf.WriteString(strings.Repeat(indentUnit, depth))
	fmt.Fprintf(&w.buf, format, args...)
	w.buf.WriteByte('\n')
}

func (w *bodyWriter) unsupported(reason string) {
	w.fallback = true
	if _, ok := w.seen[reason]; ok {
		return
	}
	w.seen[reason] = struct{}{}
	w.reasons = append(w.reasons, reason)
}

// expr renders e against the known local kinds, recording any markers.
func (w *bodyWriter) expr(e pyast.Expr, float bool) string {
	ew := newExprWriter(w.sc.env)
	s := ew.render(e, float)
	for _, m := range ew.missing {
		w.unsupported(m)
	}
	return s
}

func (w *bodyWriter) isDeclared(name string) bool {
	for i := len(w.declared) - 1; i >= 0; i-- {
		if _, ok := w.declared[i][name]; ok {
			return true
		}
	}
	return false
}

func (w *bodyWriter) declare(name string) {
	w.declared[len(w.declared)-1][name] = struct{}{}
}

// hoist declares, at the top of the body, locals that Python scoping lets
// escape the block where they are first bound.
func (w *bodyWriter) hoist() {
	for _, name := range w.sc.order {
		l := w.sc.locals[name]
		if !l.hoist {
			continue
		}
		typ, zero, ok := kindDecl(l.kind)
		if !ok {
			continue
		}
		w.line(1, "let mut %s: %s = %s;", RustIdent(name), typ, zero)
		w.declare(name)
	}
}

func kindDecl(k kind) (typ, zero string, ok bool) {
	switch k {
	case kFloat:
		return "f64", "0.0", true
	case kInt:
		return "i64", "0", true
	case kIndex:
		return "usize", "0", true
	case kVec:
		return "Vec<f64>", "Vec::new()", true
	case kBytes:
		return "Vec<u8>", "Vec::new()", true
	}
	return "", "", false
}

func (w *bodyWriter) block(stmts []pyast.Stmt, depth int) {
	w.declared = append(w.declared, make(map[string]struct{}))
	defer func() { w.declared = w.declared[:len(w.declared)-1] }()

	if len(stmts) == 0 {
		w.line(depth, "// empty block")
		return
	}
	for _, s := range stmts {
		if reason := w.stmt(s, depth); reason != "" {
			w.line(depth, "// unsupported %s (line %d)", sanitizeComment(reason), s.StmtLine())
			w.unsupported(reason)
		}
	}
}

// stmt renders s at depth and returns "" on success, or the reason it could
// not be translated. Nothing is written when a reason is returned.
func (w *bodyWriter) stmt(s pyast.Stmt, depth int) string {
	switch s := s.(type) {
	case *pyast.Assign:
		return w.assign(s, depth)
	case *pyast.AnnAssign:
		return w.annAssign(s, depth)
	case *pyast.AugAssign:
		return w.augAssign(s, depth)
	case *pyast.For:
		return w.forLoop(s, depth)
	case *pyast.While:
		return w.whileLoop(s, depth)
	case *pyast.If:
		w.ifChain(s, depth, false)
		return ""
	case *pyast.Return:
		w.line(depth, "return Ok(%s);", w.returnValue(s.Value))
		return ""
	case *pyast.ExprStmt:
		w.exprStmt(s, depth)
		return ""
	case *pyast.Pass:
		w.line(depth, "// pass")
		return ""
	case *pyast.Break:
		w.line(depth, "break;")
		return ""
	case *pyast.Continue:
		w.line(depth, "continue;")
		return ""
	case *pyast.Import:
		return "import"
	case *pyast.FunctionDef:
		return "nested function " + s.Name
	case *pyast.UnsupportedStmt:
		return kindLabel(s.Kind)
	default:
		return "statement"
	}
}

func kindLabel(k string) string {
	k = strings.TrimSuffix(k, "_statement")
	k = strings.TrimSuffix(k, "_definition")
	return strings.ReplaceAll(k, "_", " ")
}

func (w *bodyWriter) assign(s *pyast.Assign, depth int) string {
	if len(s.Targets) != 1 {
		return "chained assignment"
	}
	switch t := s.Targets[0].(type) {
	case *pyast.Name:
		w.bindName(t.ID, "", s.Value, depth)
		return ""
	case *pyast.Subscript:
		w.line(depth, "%s = %s;", w.expr(t, false), w.expr(s.Value, w.floatSlot(t)))
		return ""
	case *pyast.Tuple, *pyast.List:
		return "tuple unpacking"
	default:
		return "assignment target"
	}
}

func (w *bodyWriter) annAssign(s *pyast.AnnAssign, depth int) string {
	name, ok := s.Target.(*pyast.Name)
	if !ok {
		if s.Value == nil {
			return "annotated declaration"
		}
		return w.assign(&pyast.Assign{Pos: s.Pos, Targets: []pyast.Expr{s.Target}, Value: s.Value}, depth)
	}
	annot := ""
	if t, ok := TypeFromAnnotation(s.Annotation); ok {
		annot = ": " + t.Rust()
		if t == Index {
			annot = ": i64"
		}
	}
	if s.Value == nil {
		if w.isDeclared(name.ID) {
			return ""
		}
		w.line(depth, "let mut %s%s;", RustIdent(name.ID), annot)
		w.declare(name.ID)
		return ""
	}
	w.bindName(name.ID, annot, s.Value, depth)
	return ""
}

// bindName renders `name = value`, introducing a binding the first time
// name is seen in scope.
func (w *bodyWriter) bindName(name, annot string, value pyast.Expr, depth int) {
	k := w.sc.env[name]
	id := RustIdent(name)

	var rhs string
	switch v := value.(type) {
	case *pyast.ListComp:
		if annot == "" {
			annot = ": Vec<f64>"
		}
		rhs = w.expr(v, false)
	case *pyast.List:
		if annot == "" {
			annot = ": Vec<f64>"
		}
		rhs = w.expr(v, true)
	default:
		if b, ok := v.(*pyast.BinOp); ok {
			if _, _, isBcast := broadcast(b); isBcast && annot == "" {
				annot = ": Vec<f64>"
			}
		}
		rhs = w.expr(value, k == kFloat)
		if annot == "" {
			switch {
			case k == kFloat && isNum(value):
				annot = ": f64"
			case isNum(value):
				annot = InferAssignType(value)
			}
		}
	}

	if w.isDeclared(name) {
		w.line(depth, "%s = %s;", id, rhs)
		return
	}
	w.line(depth, "let mut %s%s = %s;", id, annot, rhs)
	w.declare(name)
}

// floatSlot reports whether target holds an f64.
func (w *bodyWriter) floatSlot(target pyast.Expr) bool {
	switch t := target.(type) {
	case *pyast.Name:
		return w.sc.env[t.ID] == kFloat
	case *pyast.Subscript:
		if n, ok := t.Value.(*pyast.Name); ok {
			return w.sc.env[n.ID] == kVec
		}
	}
	return false
}

var augOps = map[string]string{
	"+": "+=", "-": "-=", "*": "*=", "/": "/=", "%": "%=",
	"&": "&=", "|": "|=", "^": "^=", "<<": "<<=", ">>": ">>=",
}

func (w *bodyWriter) augAssign(s *pyast.AugAssign, depth int) string {
	switch s.Target.(type) {
	case *pyast.Name, *pyast.Subscript:
	default:
		return "augmented assignment target"
	}
	target := w.expr(s.Target, false)
	float := w.floatSlot(s.Target) || s.Op == "/"
	value := w.expr(s.Value, float)

	if s.Op == "**" {
		w.line(depth, "%s = %s.powf(%s);", target, wrap(target), w.expr(s.Value, true))
		return ""
	}
	op, ok := augOps[s.Op]
	if !ok {
		// Unknown operators degrade to addition and flag the function.
		w.unsupported("operator " + s.Op + "=")
		w.line(depth, "%s += %s; %s operator %s= */", target, value, MarkerPrefix, s.Op)
		return ""
	}
	w.line(depth, "%s %s %s;", target, op, value)
	return ""
}

func (w *bodyWriter) forLoop(s *pyast.For, depth int) string {
	if len(s.OrElse) > 0 {
		return "for-else"
	}
	header, reason := w.forHeader(s)
	if reason != "" {
		return reason
	}
	w.line(depth, "for %s {", header)
	w.block(s.Body, depth+1)
	w.line(depth, "}")
	return ""
}

// forHeader renders `pattern in iterator` for supported loop shapes.
func (w *bodyWriter) forHeader(s *pyast.For) (string, string) {
	switch t := s.Target.(type) {
	case *pyast.Name:
		iter, ok := w.iterable(s.Iter)
		if !ok {
			return "", "for loop over " + describe(s.Iter)
		}
		return RustIdent(t.ID) + " in " + iter, ""
	case *pyast.Tuple:
		call, name, ok := pyast.CallName(s.Iter)
		if !ok || len(t.Elts) != 2 {
			return "", "tuple loop target"
		}
		a, aok := t.Elts[0].(*pyast.Name)
		b, bok := t.Elts[1].(*pyast.Name)
		if !aok || !bok {
			return "", "tuple loop target"
		}
		pattern := "(" + RustIdent(a.ID) + ", " + RustIdent(b.ID) + ")"
		switch {
		case name == "enumerate" && len(call.Args) == 1:
			if src, ok := w.iterable(call.Args[0]); ok {
				return pattern + " in " + src + ".enumerate()", ""
			}
		case name == "zip" && len(call.Args) == 2:
			l, lok := w.iterable(call.Args[0])
			r, rok := w.iterable(call.Args[1])
			if lok && rok {
				return pattern + " in " + l + ".zip(" + r + ")", ""
			}
		}
		return "", "for loop over " + describe(s.Iter)
	}
	return "", "loop target"
}

// iterable renders e as a Rust iterator when its shape is unambiguous.
func (w *bodyWriter) iterable(e pyast.Expr) (string, bool) {
	switch e := e.(type) {
	case *pyast.Call:
		if _, name, ok := pyast.CallName(e); ok && name == "range" {
			r := w.expr(e, false)
			if strings.HasPrefix(r, MarkerPrefix) {
				return "", false
			}
			return r, true
		}
	case *pyast.Name, *pyast.Attribute:
		return wrap(w.expr(e, false)) + ".iter().copied()", true
	}
	return "", false
}

func (w *bodyWriter) whileLoop(s *pyast.While, depth int) string {
	if len(s.OrElse) > 0 {
		return "while-else"
	}
	if b, ok := s.Test.(*pyast.Bool); ok && b.Value {
		w.line(depth, "loop {")
		w.block(s.Body, depth+1)
		w.line(depth, "}")
		return ""
	}
	ew := newExprWriter(w.sc.env)
	cond := w.condition(ew, s.Test)
	if len(ew.missing) > 0 {
		// The loop keeps its shape; only the condition is dropped.
		w.unsupported("while condition")
		w.line(depth, "while false {")
		w.line(depth+1, "// unsupported while condition (line %d)", s.Line)
	} else {
		w.line(depth, "while %s {", cond)
	}
	w.block(s.Body, depth+1)
	w.line(depth, "}")
	return ""
}

// condition renders e as a Rust bool, applying Python truthiness to bare
// names of known kind.
func (w *bodyWriter) condition(ew *exprWriter, e pyast.Expr) string {
	negate := false
	if u, ok := e.(*pyast.UnaryOp); ok && u.Op == "not" {
		if _, isName := u.Operand.(*pyast.Name); isName {
			negate = true
			e = u.Operand
		}
	}
	n, ok := e.(*pyast.Name)
	if !ok {
		return ew.render(e, false)
	}
	id := RustIdent(n.ID)
	var truthy, falsy string
	switch w.sc.env[n.ID] {
	case kFloat:
		truthy, falsy = id+" != 0.0", id+" == 0.0"
	case kInt, kIndex:
		truthy, falsy = id+" != 0", id+" == 0"
	case kVec, kBytes, kPairs:
		truthy, falsy = "!"+id+".is_empty()", id+".is_empty()"
	default:
		truthy, falsy = id, "!"+id
	}
	if negate {
		return falsy
	}
	return truthy
}

func (w *bodyWriter) ifChain(s *pyast.If, depth int, elif bool) {
	if !elif && w.lengthGuard(s, depth) {
		return
	}
	ew := newExprWriter(w.sc.env)
	cond := w.condition(ew, s.Test)
	for _, m := range ew.missing {
		w.unsupported(m)
	}
	if elif {
		w.buf.WriteString(" else if " + cond + " {\n")
	} else {
		w.buf.WriteString(strings.Repeat(indentUnit, depth) + "if " + cond + " {\n")
	}
	w.block(s.Body, depth+1)
	w.buf.WriteString(strings.Repeat(indentUnit, depth) + "}")

	switch {
	case len(s.OrElse) == 1 && isIf(s.OrElse[0]):
		w.ifChain(s.OrElse[0].(*pyast.If), depth, true)
		return
	case len(s.OrElse) > 0:
		w.buf.WriteString(" else {\n")
		w.block(s.OrElse, depth+1)
		w.buf.WriteString(strings.Repeat(indentUnit, depth) + "}")
	}
	w.buf.WriteByte('\n')
}

func isIf(s pyast.Stmt) bool {
	_, ok := s.(*pyast.If)
	return ok
}

// lengthGuard renders `if len(a) != len(b): raise ...` as an early error
// return.
func (w *bodyWriter) lengthGuard(s *pyast.If, depth int) bool {
	cmp, ok := s.Test.(*pyast.Compare)
	if !ok || len(cmp.Ops) != 1 || cmp.Ops[0] != "!=" || len(s.OrElse) > 0 || len(s.Body) != 1 {
		return false
	}
	raise, ok := s.Body[0].(*pyast.UnsupportedStmt)
	if !ok || raise.Kind != "raise_statement" {
		return false
	}
	a, aok := lenArg(cmp.Left)
	b, bok := lenArg(cmp.Comparators[0])
	if !aok || !bok {
		return false
	}
	w.line(depth, "if %s.len() != %s.len() {", RustIdent(a), RustIdent(b))
	w.line(depth+1, "return Err(pyo3::exceptions::PyValueError::new_err(%q));",
		"length mismatch: "+a+" and "+b+" differ")
	w.line(depth, "}")
	return true
}

func lenArg(e pyast.Expr) (string, bool) {
	call, name, ok := pyast.CallName(e)
	if !ok || name != "len" || len(call.Args) != 1 {
		return "", false
	}
	n, ok := call.Args[0].(*pyast.Name)
	if !ok {
		return "", false
	}
	return n.ID, true
}

// returnValue renders the payload of Ok(...) for a return statement.
func (w *bodyWriter) returnValue(e pyast.Expr) string {
	if e == nil {
		return w.bare
	}
	switch w.ret {
	case Float:
		return w.expr(e, true)
	case Index:
		if n, ok := e.(*pyast.Name); ok && w.sc.env[n.ID] == kInt {
			return RustIdent(n.ID) + " as usize"
		}
	}
	return w.expr(e, false)
}

func (w *bodyWriter) exprStmt(s *pyast.ExprStmt, depth int) {
	switch v := s.Value.(type) {
	case *pyast.Str:
		w.line(depth, "// docstring omitted")
		return
	case *pyast.Call:
		if attr, ok := v.Func.(*pyast.Attribute); ok && attr.Attr == "append" && len(v.Args) == 1 && len(v.Keywords) == 0 {
			recv := w.expr(attr.Value, false)
			float := false
			if n, ok := attr.Value.(*pyast.Name); ok {
				float = w.sc.env[n.ID] == kVec
			}
			w.line(depth, "%s.push(%s);", wrap(recv), w.expr(v.Args[0], float))
			return
		}
		w.line(depth, "// dropped call: %s(...) (line %d)", sanitizeComment(calleeName(v.Func)), s.Line)
		return
	}
	text, _ := Expr(s.Value)
	w.line(depth, "// expr: %s", sanitizeComment(text))
}

func describe(e pyast.Expr) string {
	switch e := e.(type) {
	case *pyast.Call:
		return calleeName(e.Func) + "(...)"
	case *pyast.Name:
		return e.ID
	default:
		return "expression"
	}
}
