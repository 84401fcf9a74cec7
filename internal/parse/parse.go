// Package parse lowers tree-sitter Python syntax trees into pyast.
package parse

import (
	"context"
	"regexp"
	"strings"

	"fortio.org/safecast"
	sitter "github.com/smacker/go-tree-sitter"
	"golang.org/x/text/unicode/norm"

	"github.com/phobologic/rustify/internal/lang"
	"github.com/phobologic/rustify/internal/pyast"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// Module parses Python source into a pyast.Module. Regions the parser could
// not make sense of become UnsupportedStmt nodes and their lines are listed
// in SyntaxErrorLines; an error is returned only if tree-sitter itself fails.
func Module(ctx context.Context, source []byte) (*pyast.Module, error) {
	tree, err := lang.Python.Parse(ctx, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	l := &lowerer{source: source}
	mod := &pyast.Module{Body: l.block(root)}
	if root.HasError() {
		mod.SyntaxErrorLines = l.errorLines(root, nil)
	}
	return mod, nil
}

// String is a convenience wrapper for tests and snippets.
func String(source string) (*pyast.Module, error) {
	return Module(context.Background(), []byte(source))
}

type lowerer struct {
	source []byte
}

func (l *lowerer) text(n *sitter.Node) string {
	return lang.NodeText(n, l.source)
}

func (l *lowerer) line(n *sitter.Node) uint32 {
	line, err := safecast.Conv[uint32](int64(n.StartPoint().Row) + 1)
	if err != nil {
		return 0
	}
	return line
}

func (l *lowerer) pos(n *sitter.Node) pyast.Pos {
	return pyast.Pos{Line: l.line(n)}
}

// namedChildren returns the named children of n, skipping comments.
func namedChildren(n *sitter.Node) []*sitter.Node {
	if n == nil {
		return nil
	}
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() == "comment" {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (l *lowerer) errorLines(n *sitter.Node, acc []uint32) []uint32 {
	if n.Type() == "ERROR" || n.IsMissing() {
		return append(acc, l.line(n))
	}
	if !n.HasError() {
		return acc
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		acc = l.errorLines(n.Child(i), acc)
	}
	return acc
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (l *lowerer) block(n *sitter.Node) []pyast.Stmt {
	var out []pyast.Stmt
	for _, c := range namedChildren(n) {
		out = append(out, l.stmt(c))
	}
	return out
}

func (l *lowerer) unsupportedStmt(n *sitter.Node) pyast.Stmt {
	return &pyast.UnsupportedStmt{Pos: l.pos(n), Kind: n.Type(), Text: collapseWhitespace(l.text(n))}
}

func (l *lowerer) stmt(n *sitter.Node) pyast.Stmt {
	switch n.Type() {
	case "function_definition":
		return l.functionDef(n)
	case "decorated_definition":
		// Decorators such as @njit do not change the kernel body.
		if def := n.ChildByFieldName("definition"); def != nil && def.Type() == "function_definition" {
			return l.functionDef(def)
		}
		return l.unsupportedStmt(n)
	case "expression_statement":
		return l.expressionStatement(n)
	case "return_statement":
		ret := &pyast.Return{Pos: l.pos(n)}
		if kids := namedChildren(n); len(kids) > 0 {
			ret.Value = l.expr(kids[0])
		}
		return ret
	case "for_statement":
		if isAsync(n) {
			return l.unsupportedStmt(n)
		}
		return &pyast.For{
			Pos:    l.pos(n),
			Target: l.expr(n.ChildByFieldName("left")),
			Iter:   l.expr(n.ChildByFieldName("right")),
			Body:   l.block(n.ChildByFieldName("body")),
			OrElse: l.elseBody(n.ChildByFieldName("alternative")),
		}
	case "while_statement":
		return &pyast.While{
			Pos:    l.pos(n),
			Test:   l.expr(n.ChildByFieldName("condition")),
			Body:   l.block(n.ChildByFieldName("body")),
			OrElse: l.elseBody(n.ChildByFieldName("alternative")),
		}
	case "if_statement":
		return l.ifStatement(n)
	case "pass_statement":
		return &pyast.Pass{Pos: l.pos(n)}
	case "break_statement":
		return &pyast.Break{Pos: l.pos(n)}
	case "continue_statement":
		return &pyast.Continue{Pos: l.pos(n)}
	case "import_statement", "import_from_statement", "future_import_statement":
		return l.importStatement(n)
	default:
		return l.unsupportedStmt(n)
	}
}

func isAsync(n *sitter.Node) bool {
	return n.ChildCount() > 0 && n.Child(0).Type() == "async"
}

func (l *lowerer) elseBody(n *sitter.Node) []pyast.Stmt {
	if n == nil {
		return nil
	}
	return l.block(n.ChildByFieldName("body"))
}

func (l *lowerer) ifStatement(n *sitter.Node) pyast.Stmt {
	root := &pyast.If{
		Pos:  l.pos(n),
		Test: l.expr(n.ChildByFieldName("condition")),
		Body: l.block(n.ChildByFieldName("consequence")),
	}

	var elifs []*sitter.Node
	var elseClause *sitter.Node
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "elif_clause":
			elifs = append(elifs, c)
		case "else_clause":
			elseClause = c
		}
	}

	orelse := l.elseBody(elseClause)
	for i := len(elifs) - 1; i >= 0; i-- {
		e := elifs[i]
		orelse = []pyast.Stmt{&pyast.If{
			Pos:    l.pos(e),
			Test:   l.expr(e.ChildByFieldName("condition")),
			Body:   l.block(e.ChildByFieldName("consequence")),
			OrElse: orelse,
		}}
	}
	root.OrElse = orelse
	return root
}

func (l *lowerer) importStatement(n *sitter.Node) pyast.Stmt {
	imp := &pyast.Import{Pos: l.pos(n)}
	if n.Type() == "future_import_statement" {
		imp.Modules = []string{"__future__"}
		return imp
	}
	if n.Type() == "import_from_statement" {
		if mod := n.ChildByFieldName("module_name"); mod != nil && mod.Type() == "dotted_name" {
			imp.Modules = append(imp.Modules, topLevelModule(l.text(mod)))
		}
		return imp
	}
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "dotted_name":
			imp.Modules = append(imp.Modules, topLevelModule(l.text(c)))
		case "aliased_import":
			if name := c.ChildByFieldName("name"); name != nil {
				imp.Modules = append(imp.Modules, topLevelModule(l.text(name)))
			}
		}
	}
	return imp
}

func topLevelModule(dotted string) string {
	head, _, _ := strings.Cut(dotted, ".")
	return strings.TrimSpace(head)
}

func (l *lowerer) expressionStatement(n *sitter.Node) pyast.Stmt {
	kids := namedChildren(n)
	if len(kids) == 0 {
		return l.unsupportedStmt(n)
	}
	if len(kids) > 1 {
		elts := make([]pyast.Expr, len(kids))
		for i, k := range kids {
			elts[i] = l.expr(k)
		}
		return &pyast.ExprStmt{Pos: l.pos(n), Value: &pyast.Tuple{Elts: elts}}
	}

	c := kids[0]
	switch c.Type() {
	case "assignment":
		return l.assignment(c)
	case "augmented_assignment":
		op := c.ChildByFieldName("operator")
		return &pyast.AugAssign{
			Pos:    l.pos(c),
			Target: l.expr(c.ChildByFieldName("left")),
			Op:     strings.TrimSuffix(l.text(op), "="),
			Value:  l.expr(c.ChildByFieldName("right")),
		}
	default:
		return &pyast.ExprStmt{Pos: l.pos(c), Value: l.expr(c)}
	}
}

func (l *lowerer) assignment(n *sitter.Node) pyast.Stmt {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")

	if typ := n.ChildByFieldName("type"); typ != nil {
		ann := &pyast.AnnAssign{
			Pos:        l.pos(n),
			Target:     l.expr(left),
			Annotation: collapseWhitespace(l.text(typ)),
		}
		if right != nil {
			ann.Value = l.expr(right)
		}
		return ann
	}

	targets := []pyast.Expr{l.expr(left)}
	for right != nil && right.Type() == "assignment" && right.ChildByFieldName("type") == nil {
		targets = append(targets, l.expr(right.ChildByFieldName("left")))
		right = right.ChildByFieldName("right")
	}
	if right == nil {
		return l.unsupportedStmt(n)
	}
	return &pyast.Assign{Pos: l.pos(n), Targets: targets, Value: l.expr(right)}
}

func (l *lowerer) functionDef(n *sitter.Node) *pyast.FunctionDef {
	fn := &pyast.FunctionDef{
		Pos:  l.pos(n),
		Name: normalizeIdent(l.text(n.ChildByFieldName("name"))),
		Body: l.block(n.ChildByFieldName("body")),
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		fn.Params = l.params(params)
	}
	if ret := n.ChildByFieldName("return_type"); ret != nil {
		fn.Returns = collapseWhitespace(l.text(ret))
	}
	fn.Signature = l.signature(n)
	return fn
}

func (l *lowerer) params(n *sitter.Node) []pyast.Param {
	var out []pyast.Param
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "identifier":
			out = append(out, pyast.Param{Name: normalizeIdent(l.text(c))})
		case "typed_parameter":
			p := pyast.Param{}
			if typ := c.ChildByFieldName("type"); typ != nil {
				p.Annotation = collapseWhitespace(l.text(typ))
			}
			for _, k := range namedChildren(c) {
				switch k.Type() {
				case "identifier":
					p.Name = normalizeIdent(l.text(k))
				case "list_splat_pattern":
					p.Name, p.Kind = l.splatName(k), pyast.VarArgsParam
				case "dictionary_splat_pattern":
					p.Name, p.Kind = l.splatName(k), pyast.KwArgsParam
				}
				if p.Name != "" {
					break
				}
			}
			out = append(out, p)
		case "default_parameter", "typed_default_parameter":
			p := pyast.Param{Name: normalizeIdent(l.text(c.ChildByFieldName("name")))}
			if typ := c.ChildByFieldName("type"); typ != nil {
				p.Annotation = collapseWhitespace(l.text(typ))
			}
			if v := c.ChildByFieldName("value"); v != nil {
				p.Default = l.expr(v)
			}
			out = append(out, p)
		case "list_splat_pattern":
			out = append(out, pyast.Param{Name: l.splatName(c), Kind: pyast.VarArgsParam})
		case "dictionary_splat_pattern":
			out = append(out, pyast.Param{Name: l.splatName(c), Kind: pyast.KwArgsParam})
		}
	}
	return out
}

func (l *lowerer) splatName(n *sitter.Node) string {
	for _, k := range namedChildren(n) {
		if k.Type() == "identifier" {
			return normalizeIdent(l.text(k))
		}
	}
	return strings.TrimLeft(l.text(n), "*")
}

// signature renders "name(params) -> ret" the way repo maps display it.
func (l *lowerer) signature(n *sitter.Node) string {
	var name, params, returnType string
	if c := n.ChildByFieldName("name"); c != nil {
		name = l.text(c)
	}
	if c := n.ChildByFieldName("parameters"); c != nil {
		params = collapseWhitespace(l.text(c))
	}
	if c := n.ChildByFieldName("return_type"); c != nil {
		returnType = l.text(c)
	}
	sig := name + params
	if returnType != "" {
		sig += " -> " + returnType
	}
	return sig
}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

func (l *lowerer) unsupportedExpr(n *sitter.Node) pyast.Expr {
	return &pyast.UnsupportedExpr{Kind: n.Type(), Text: collapseWhitespace(l.text(n))}
}

func (l *lowerer) exprs(nodes []*sitter.Node) []pyast.Expr {
	out := make([]pyast.Expr, len(nodes))
	for i, n := range nodes {
		out[i] = l.expr(n)
	}
	return out
}

func (l *lowerer) expr(n *sitter.Node) pyast.Expr {
	if n == nil {
		return &pyast.UnsupportedExpr{Kind: "missing"}
	}
	switch n.Type() {
	case "identifier":
		return &pyast.Name{ID: normalizeIdent(l.text(n))}
	case "integer":
		return l.number(n, false)
	case "float":
		return l.number(n, true)
	case "string", "concatenated_string":
		for _, k := range namedChildren(n) {
			if k.Type() == "interpolation" {
				return l.unsupportedExpr(n)
			}
		}
		return &pyast.Str{Text: l.text(n)}
	case "true":
		return &pyast.Bool{Value: true}
	case "false":
		return &pyast.Bool{Value: false}
	case "none":
		return &pyast.NoneLit{}
	case "parenthesized_expression":
		kids := namedChildren(n)
		if len(kids) != 1 {
			return l.unsupportedExpr(n)
		}
		return l.expr(kids[0])
	case "binary_operator":
		return &pyast.BinOp{
			Left:  l.expr(n.ChildByFieldName("left")),
			Op:    l.text(n.ChildByFieldName("operator")),
			Right: l.expr(n.ChildByFieldName("right")),
		}
	case "boolean_operator":
		return l.booleanOperator(n)
	case "unary_operator":
		return &pyast.UnaryOp{
			Op:      l.text(n.ChildByFieldName("operator")),
			Operand: l.expr(n.ChildByFieldName("argument")),
		}
	case "not_operator":
		return &pyast.UnaryOp{Op: "not", Operand: l.expr(n.ChildByFieldName("argument"))}
	case "comparison_operator":
		return l.comparison(n)
	case "call":
		return l.call(n)
	case "subscript":
		return l.subscript(n)
	case "attribute":
		return &pyast.Attribute{
			Value: l.expr(n.ChildByFieldName("object")),
			Attr:  normalizeIdent(l.text(n.ChildByFieldName("attribute"))),
		}
	case "list", "list_pattern":
		return &pyast.List{Elts: l.exprs(namedChildren(n))}
	case "tuple", "expression_list", "pattern_list", "tuple_pattern":
		return &pyast.Tuple{Elts: l.exprs(namedChildren(n))}
	case "list_comprehension":
		return l.listComprehension(n)
	case "conditional_expression":
		kids := namedChildren(n)
		if len(kids) != 3 {
			return l.unsupportedExpr(n)
		}
		return &pyast.IfExp{Body: l.expr(kids[0]), Test: l.expr(kids[1]), OrElse: l.expr(kids[2])}
	default:
		return l.unsupportedExpr(n)
	}
}

func (l *lowerer) number(n *sitter.Node, isFloat bool) pyast.Expr {
	text := l.text(n)
	if strings.HasSuffix(text, "j") || strings.HasSuffix(text, "J") {
		return l.unsupportedExpr(n)
	}
	return &pyast.Num{Text: text, Float: isFloat}
}

func (l *lowerer) booleanOperator(n *sitter.Node) pyast.Expr {
	op := l.text(n.ChildByFieldName("operator"))
	out := &pyast.BoolOp{Op: op}
	for _, side := range []*sitter.Node{n.ChildByFieldName("left"), n.ChildByFieldName("right")} {
		e := l.expr(side)
		if inner, ok := e.(*pyast.BoolOp); ok && inner.Op == op && side.Type() == "boolean_operator" {
			out.Values = append(out.Values, inner.Values...)
			continue
		}
		out.Values = append(out.Values, e)
	}
	return out
}

// comparison collects operands and operators; multi-token operators such as
// "not in" and "is not" are joined with a space whatever the grammar version.
func (l *lowerer) comparison(n *sitter.Node) pyast.Expr {
	cmp := &pyast.Compare{}
	var pending []string
	first := true
	for i := 0; i < int(n.ChildCount()); i++ {
		c := n.Child(i)
		if c.Type() == "comment" {
			continue
		}
		if !c.IsNamed() {
			pending = append(pending, c.Type())
			continue
		}
		if first {
			cmp.Left = l.expr(c)
			first = false
			continue
		}
		cmp.Ops = append(cmp.Ops, strings.Join(pending, " "))
		cmp.Comparators = append(cmp.Comparators, l.expr(c))
		pending = pending[:0]
	}
	if cmp.Left == nil {
		return l.unsupportedExpr(n)
	}
	return cmp
}

func (l *lowerer) call(n *sitter.Node) pyast.Expr {
	call := &pyast.Call{Func: l.expr(n.ChildByFieldName("function"))}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return call
	}
	if args.Type() == "generator_expression" {
		call.Args = []pyast.Expr{l.unsupportedExpr(args)}
		return call
	}
	for _, a := range namedChildren(args) {
		if a.Type() == "keyword_argument" {
			call.Keywords = append(call.Keywords, pyast.Keyword{
				Name:  l.text(a.ChildByFieldName("name")),
				Value: l.expr(a.ChildByFieldName("value")),
			})
			continue
		}
		call.Args = append(call.Args, l.expr(a))
	}
	return call
}

func (l *lowerer) subscript(n *sitter.Node) pyast.Expr {
	kids := namedChildren(n)
	if len(kids) < 2 {
		return l.unsupportedExpr(n)
	}
	sub := &pyast.Subscript{Value: l.expr(kids[0])}
	if len(kids) == 2 {
		sub.Index = l.expr(kids[1])
	} else {
		sub.Index = &pyast.Tuple{Elts: l.exprs(kids[1:])}
	}
	return sub
}

func (l *lowerer) listComprehension(n *sitter.Node) pyast.Expr {
	lc := &pyast.ListComp{Elt: l.expr(n.ChildByFieldName("body"))}
	for _, c := range namedChildren(n) {
		switch c.Type() {
		case "for_in_clause":
			lc.Generators = append(lc.Generators, pyast.Comprehension{
				Target: l.expr(c.ChildByFieldName("left")),
				Iter:   l.expr(c.ChildByFieldName("right")),
			})
		case "if_clause":
			if len(lc.Generators) == 0 {
				continue
			}
			kids := namedChildren(c)
			if len(kids) == 1 {
				last := &lc.Generators[len(lc.Generators)-1]
				last.Ifs = append(last.Ifs, l.expr(kids[0]))
			}
		}
	}
	return lc
}

// normalizeIdent applies Python's NFKC identifier normalisation.
func normalizeIdent(s string) string {
	return norm.NFKC.String(s)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}
