package translate

import (
	"regexp"
	"strings"

	"github.com/phobologic/rustify/internal/pyast"
)

// MarkerPrefix starts every inline marker left in generated code for a
// construct that could not be translated.
const MarkerPrefix = "/* unsupported"

// kind is the type a local name is known to carry while rendering.
type kind int

const (
	kUnknown kind = iota
	kFloat
	kIndex // usize
	kInt   // i64
	kVec
	kBytes
	kPairs
)

func kindOf(t SemanticType) kind {
	switch t {
	case Index:
		return kIndex
	case FloatVec:
		return kVec
	case Bytes:
		return kBytes
	case PairCounts:
		return kPairs
	default:
		return kFloat
	}
}

var (
	simpleIdent   = regexp.MustCompile(`^(?:r#)?[A-Za-z_][A-Za-z0-9_]*$`)
	simpleLiteral = regexp.MustCompile(`^[0-9][0-9_]*(?:\.[0-9_]+)?(?:e[+-]?[0-9]+)?(?:_f64|_i64)?$`)
	rustKeywords  = map[string]struct{}{
		"as": {}, "async": {}, "await": {}, "box": {}, "break": {}, "const": {},
		"continue": {}, "dyn": {}, "else": {}, "enum": {}, "extern": {}, "false": {},
		"fn": {}, "for": {}, "gen": {}, "if": {}, "impl": {}, "in": {}, "let": {},
		"loop": {}, "match": {}, "mod": {}, "move": {}, "mut": {}, "pub": {},
		"ref": {}, "return": {}, "static": {}, "struct": {}, "trait": {}, "true": {},
		"try": {}, "type": {}, "unsafe": {}, "use": {}, "where": {}, "while": {},
		"yield": {}, "abstract": {}, "become": {}, "do": {}, "final": {}, "macro": {},
		"override": {}, "priv": {}, "typeof": {}, "unsized": {}, "virtual": {},
	}
	// Keywords that cannot be raw identifiers.
	reservedIdents = map[string]struct{}{"self": {}, "Self": {}, "super": {}, "crate": {}}
)

// RustIdent maps a Python identifier onto a legal Rust identifier.
func RustIdent(name string) string {
	if _, ok := reservedIdents[name]; ok {
		return name + "_"
	}
	if _, ok := rustKeywords[name]; ok {
		return "r#" + name
	}
	return name
}

// Expr renders e as a Rust expression. The second result is false when any
// part of e was replaced by a marker.
func Expr(e pyast.Expr) (string, bool) {
	w := newExprWriter(nil)
	s := w.render(e, false)
	return s, len(w.missing) == 0
}

// FloatExpr renders e where an f64 is expected, promoting integer literals
// and index values in arithmetic positions.
func FloatExpr(e pyast.Expr) (string, bool) {
	w := newExprWriter(nil)
	s := w.render(e, true)
	return s, len(w.missing) == 0
}

type exprWriter struct {
	env     map[string]kind
	missing []string
}

func newExprWriter(env map[string]kind) *exprWriter {
	if env == nil {
		env = make(map[string]kind)
	}
	return &exprWriter{env: env}
}

func (w *exprWriter) fail(what string) string {
	w.missing = append(w.missing, what)
	return MarkerPrefix + " " + sanitizeComment(what) + " */"
}

// floaty reports whether e evaluates to f64 given what is known about the
// names it references.
func (w *exprWriter) floaty(e pyast.Expr) bool {
	switch e := e.(type) {
	case *pyast.Num:
		return e.Float
	case *pyast.Name:
		return w.env[e.ID] == kFloat
	case *pyast.Subscript:
		if n, ok := e.Value.(*pyast.Name); ok {
			return w.env[n.ID] == kVec
		}
	case *pyast.BinOp:
		switch e.Op {
		case "/", "**":
			return true
		case "+", "-", "*", "%", "//":
			return w.floaty(e.Left) || w.floaty(e.Right)
		}
	case *pyast.UnaryOp:
		return (e.Op == "-" || e.Op == "+") && w.floaty(e.Operand)
	case *pyast.IfExp:
		return w.floaty(e.Body) || w.floaty(e.OrElse)
	case *pyast.Call:
		if _, name, ok := pyast.CallName(e); ok && (name == "max" || name == "min") {
			for _, a := range e.Args {
				if w.floaty(a) {
					return true
				}
			}
		}
	}
	return false
}

func (w *exprWriter) render(e pyast.Expr, float bool) string {
	switch e := e.(type) {
	case *pyast.Name:
		id := RustIdent(e.ID)
		if float {
			if k := w.env[e.ID]; k == kIndex || k == kInt {
				return "(" + id + " as f64)"
			}
		}
		return id
	case *pyast.Num:
		return numLiteral(e, float)
	case *pyast.Str:
		s, ok := strLiteral(e.Text)
		if !ok {
			return w.fail("f-string")
		}
		return s
	case *pyast.Bool:
		if e.Value {
			return "true"
		}
		return "false"
	case *pyast.NoneLit:
		return "()"
	case *pyast.BinOp:
		return w.binOp(e, float)
	case *pyast.BoolOp:
		return w.boolOp(e)
	case *pyast.UnaryOp:
		return w.unaryOp(e, float)
	case *pyast.Compare:
		return w.compare(e)
	case *pyast.Call:
		return w.call(e, float)
	case *pyast.Subscript:
		return w.subscript(e)
	case *pyast.Attribute:
		return wrap(w.render(e.Value, false)) + "." + e.Attr
	case *pyast.List:
		if len(e.Elts) == 0 {
			return "Vec::new()"
		}
		f := float
		for _, elt := range e.Elts {
			f = f || w.floaty(elt)
		}
		return "vec![" + w.join(e.Elts, f) + "]"
	case *pyast.Tuple:
		if len(e.Elts) == 1 {
			return "(" + w.render(e.Elts[0], float) + ",)"
		}
		return "(" + w.join(e.Elts, float) + ")"
	case *pyast.ListComp:
		return w.listComp(e)
	case *pyast.IfExp:
		f := float || w.floaty(e.Body) || w.floaty(e.OrElse)
		return "(if " + w.render(e.Test, false) + " { " + w.render(e.Body, f) +
			" } else { " + w.render(e.OrElse, f) + " })"
	case *pyast.UnsupportedExpr:
		return w.fail(strings.ReplaceAll(e.Kind, "_", " "))
	case nil:
		return w.fail("missing expression")
	default:
		return w.fail("expression")
	}
}

func (w *exprWriter) join(elts []pyast.Expr, float bool) string {
	parts := make([]string, len(elts))
	for i, elt := range elts {
		parts[i] = w.render(elt, float)
	}
	return strings.Join(parts, ", ")
}

func (w *exprWriter) binOp(e *pyast.BinOp, float bool) string {
	switch e.Op {
	case "**":
		base := w.render(e.Left, true)
		exp := w.render(e.Right, true)
		return floatRecv(base, e.Left) + ".powf(" + exp + ")"
	case "/":
		// Python's true division always yields a float.
		return "(" + w.render(e.Left, true) + " / " + w.render(e.Right, true) + ")"
	case "//":
		f := float || w.floaty(e.Left) || w.floaty(e.Right)
		s := "(" + w.render(e.Left, f) + " / " + w.render(e.Right, f) + ")"
		if f {
			s += ".floor()"
		}
		return s
	case "+", "-", "*", "%":
		if fill, size, ok := broadcast(e); ok {
			return "vec![" + w.render(fill, true) + "; " + w.render(size, false) + "]"
		}
		f := float || w.floaty(e.Left) || w.floaty(e.Right)
		return "(" + w.render(e.Left, f) + " " + e.Op + " " + w.render(e.Right, f) + ")"
	case "&", "|", "^", "<<", ">>":
		return "(" + w.render(e.Left, false) + " " + e.Op + " " + w.render(e.Right, false) + ")"
	default:
		return w.fail("operator " + e.Op)
	}
}

func (w *exprWriter) boolOp(e *pyast.BoolOp) string {
	op := " && "
	if e.Op == "or" {
		op = " || "
	}
	parts := make([]string, len(e.Values))
	for i, v := range e.Values {
		s := w.render(v, false)
		if _, nested := v.(*pyast.BoolOp); nested {
			s = "(" + s + ")"
		}
		parts[i] = s
	}
	return strings.Join(parts, op)
}

func (w *exprWriter) unaryOp(e *pyast.UnaryOp, float bool) string {
	switch e.Op {
	case "-":
		return "-" + wrap(w.render(e.Operand, float))
	case "+":
		return w.render(e.Operand, float)
	case "not", "~":
		return "!" + wrap(w.render(e.Operand, false))
	default:
		return w.fail("operator " + e.Op)
	}
}

var compareOps = map[string]struct{}{
	"<": {}, "<=": {}, ">": {}, ">=": {}, "==": {}, "!=": {},
}

func (w *exprWriter) compare(e *pyast.Compare) string {
	if len(e.Ops) != 1 {
		return w.fail("chained comparison")
	}
	op := e.Ops[0]
	if _, ok := compareOps[op]; !ok {
		return w.fail("comparison " + op)
	}
	right := e.Comparators[0]
	f := w.floaty(e.Left) || w.floaty(right)
	return w.render(e.Left, f) + " " + op + " " + w.render(right, f)
}

func (w *exprWriter) call(e *pyast.Call, float bool) string {
	name := calleeName(e.Func)
	if len(e.Keywords) > 0 {
		return w.fail("call: " + name)
	}
	switch name {
	case "range":
		return w.rangeExpr(e)
	case "len":
		if len(e.Args) != 1 {
			break
		}
		s := wrap(w.render(e.Args[0], false)) + ".len()"
		if float {
			return "(" + s + " as f64)"
		}
		return s
	case "max", "min":
		if len(e.Args) != 2 {
			break
		}
		a, b := e.Args[0], e.Args[1]
		f := float || w.floaty(a) || w.floaty(b)
		if isNum(a) && !isNum(b) {
			a, b = b, a
		}
		recv := w.render(a, f)
		if isNum(a) {
			recv = literalRecv(recv, f)
		} else {
			recv = wrap(recv)
		}
		return recv + "." + name + "(" + w.render(b, f) + ")"
	}
	return w.fail("call: " + name)
}

// rangeExpr renders range(...) as a Rust range. Arguments are indices.
func (w *exprWriter) rangeExpr(e *pyast.Call) string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = w.render(a, false)
	}
	switch len(args) {
	case 1:
		return "0.." + args[0]
	case 2:
		return args[0] + ".." + args[1]
	case 3:
		if u, ok := e.Args[2].(*pyast.UnaryOp); ok && u.Op == "-" {
			return w.fail("range with negative step")
		}
		return "(" + args[0] + ".." + args[1] + ").step_by(" + args[2] + ")"
	}
	return w.fail("call: range")
}

func (w *exprWriter) subscript(e *pyast.Subscript) string {
	if _, ok := e.Index.(*pyast.Tuple); ok {
		return w.fail("multi-dimensional index")
	}
	value := wrap(w.render(e.Value, false))
	// a[-k] counts from the end.
	if u, ok := e.Index.(*pyast.UnaryOp); ok && u.Op == "-" {
		if n, ok := u.Operand.(*pyast.Num); ok && !n.Float {
			return value + "[" + value + ".len() - " + n.Text + "]"
		}
	}
	index := w.render(e.Index, false)
	if n, ok := e.Index.(*pyast.Name); ok && w.env[n.ID] == kInt {
		index += " as usize"
	}
	return value + "[" + index + "]"
}

func (w *exprWriter) listComp(e *pyast.ListComp) string {
	if len(e.Generators) != 1 {
		return w.fail("nested comprehension")
	}
	g := e.Generators[0]
	target, ok := g.Target.(*pyast.Name)
	if !ok {
		return w.fail("comprehension target")
	}

	var src string
	elem := kFloat
	switch it := g.Iter.(type) {
	case *pyast.Call:
		if _, name, ok := pyast.CallName(it); ok && name == "range" {
			src = "(" + w.rangeExpr(it) + ")"
			elem = kIndex
		} else {
			return w.fail("comprehension over call: " + calleeName(it.Func))
		}
	case *pyast.Name, *pyast.Attribute, *pyast.Subscript:
		src = wrap(w.render(it, false)) + ".iter().copied()"
		if n, ok := it.(*pyast.Name); ok && w.env[n.ID] == kBytes {
			elem = kInt
		}
	default:
		return w.fail("comprehension iterable")
	}

	v := RustIdent(target.ID)
	prev, had := w.env[target.ID]
	w.env[target.ID] = elem
	defer func() {
		if had {
			w.env[target.ID] = prev
		} else {
			delete(w.env, target.ID)
		}
	}()

	var b strings.Builder
	b.WriteString(src)
	if len(g.Ifs) > 0 {
		conds := make([]string, len(g.Ifs))
		for i, c := range g.Ifs {
			conds[i] = w.render(c, false)
		}
		b.WriteString(".filter(|&" + v + "| " + strings.Join(conds, " && ") + ")")
	}
	b.WriteString(".map(|" + v + "| " + w.render(e.Elt, true) + ")")
	b.WriteString(".collect::<Vec<f64>>()")
	return b.String()
}

func calleeName(e pyast.Expr) string {
	switch e := e.(type) {
	case *pyast.Name:
		return e.ID
	case *pyast.Attribute:
		return calleeName(e.Value) + "." + e.Attr
	default:
		return "<expr>"
	}
}

func isNum(e pyast.Expr) bool {
	if u, ok := e.(*pyast.UnaryOp); ok && u.Op == "-" {
		e = u.Operand
	}
	_, ok := e.(*pyast.Num)
	return ok
}

func numLiteral(n *pyast.Num, float bool) string {
	text := strings.ToLower(n.Text)
	if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0o") || strings.HasPrefix(text, "0b") {
		if float {
			return "(" + text + " as f64)"
		}
		return text
	}
	if n.Float {
		return floatLiteral(text)
	}
	if float {
		return text + ".0"
	}
	return text
}

// floatLiteral rewrites a Python float literal so Rust reads it as f64.
func floatLiteral(text string) string {
	if strings.HasPrefix(text, ".") {
		text = "0" + text
	}
	if i := strings.IndexByte(text, 'e'); i >= 0 {
		mant, exp := text[:i], text[i:]
		if strings.HasSuffix(mant, ".") {
			mant += "0"
		}
		return mant + exp
	}
	if strings.HasSuffix(text, ".") {
		text += "0"
	}
	return text
}

// floatRecv makes s usable as the receiver of an f64 method.
func floatRecv(s string, e pyast.Expr) string {
	if isNum(e) {
		return literalRecv(s, true)
	}
	return wrap(s)
}

// literalRecv suffixes a numeric literal so method calls on it resolve.
func literalRecv(s string, float bool) string {
	suffix := "_i64"
	if float {
		suffix = "_f64"
	}
	if strings.HasPrefix(s, "-") {
		return "(" + s + suffix + ")"
	}
	return s + suffix
}

// strLiteral converts a Python string or bytes literal. It reports false
// for f-strings.
func strLiteral(text string) (string, bool) {
	i := 0
	for i < len(text) && text[i] != '\'' && text[i] != '"' {
		i++
	}
	prefix := strings.ToLower(text[:i])
	if strings.Contains(prefix, "f") {
		return "", false
	}
	body := text[i:]
	q := 1
	if strings.HasPrefix(body, `"""`) || strings.HasPrefix(body, "'''") {
		q = 3
	}
	if len(body) < 2*q {
		return `""`, true
	}
	quote := body[0]
	content := body[q : len(body)-q]

	out := ""
	if strings.Contains(prefix, "b") {
		out = "b"
	}
	if strings.Contains(prefix, "r") {
		return out + `r#"` + content + `"#`, true
	}
	if quote == '\'' {
		content = strings.ReplaceAll(content, `\'`, `'`)
		content = escapeBareQuotes(content)
	}
	return out + `"` + content + `"`, true
}

func escapeBareQuotes(s string) string {
	var b strings.Builder
	escaped := false
	for _, r := range s {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '"':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// wrap parenthesizes s unless it is already a single operand.
func wrap(s string) string {
	if simpleIdent.MatchString(s) || simpleLiteral.MatchString(s) || enclosed(s) {
		return s
	}
	return "(" + s + ")"
}

// enclosed reports whether s is one parenthesized group.
func enclosed(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

func sanitizeComment(s string) string {
	s = strings.ReplaceAll(s, "*/", "* /")
	s = strings.ReplaceAll(s, "/*", "/ *")
	return collapse(s)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
