package translate

import (
	"strconv"
	"strings"

	"github.com/phobologic/rustify/internal/pyast"
)

// local is what the pre-scan learns about one name bound in a body.
type local struct {
	kind  kind
	first string // block path of the first binding
	hoist bool   // referenced outside the block that first binds it
	loop  bool   // bound by a for statement
}

// scope is the result of scanning a function body before rendering.
type scope struct {
	params  map[string]SemanticType
	locals  map[string]*local
	order   []string        // locals in order of first binding
	written map[string]bool // parameters the body rebinds or writes through
	env     map[string]kind
}

func scanScope(fn *pyast.FunctionDef, params []Param) *scope {
	sc := &scope{
		params:  make(map[string]SemanticType, len(params)),
		locals:  make(map[string]*local),
		written: make(map[string]bool),
		env:     make(map[string]kind),
	}
	for _, p := range params {
		sc.params[p.Name] = p.Type
		sc.env[p.Name] = kindOf(p.Type)
	}

	// Kinds feed each other (x = y * 2.0 makes x float only once y is
	// known), so settle them over two passes.
	for range 2 {
		sc.kinds(fn.Body)
	}

	var paths []occurrence
	next := 0
	sc.places(fn.Body, "0", &next, &paths)
	for _, o := range paths {
		l := sc.locals[o.name]
		if l == nil || l.loop || l.first == "" {
			continue
		}
		if !within(o.path, l.first) {
			l.hoist = true
		}
	}
	return sc
}

func (sc *scope) bind(name string, k kind, loop bool) {
	if _, isParam := sc.params[name]; isParam {
		sc.written[name] = true
		return
	}
	l, ok := sc.locals[name]
	if !ok {
		l = &local{}
		sc.locals[name] = l
		sc.order = append(sc.order, name)
	}
	l.loop = l.loop || loop
	switch {
	case l.kind == kUnknown:
		l.kind = k
	case l.kind == kInt && k == kFloat:
		l.kind = kFloat
	}
	sc.env[name] = l.kind
}

func (sc *scope) markWritten(e pyast.Expr) {
	switch e := e.(type) {
	case *pyast.Subscript:
		sc.markWritten(e.Value)
	case *pyast.Name:
		if _, isParam := sc.params[e.ID]; isParam {
			sc.written[e.ID] = true
		}
	}
}

func (sc *scope) kinds(body []pyast.Stmt) {
	w := newExprWriter(sc.env)
	walkStmts(body, func(s pyast.Stmt) {
		switch s := s.(type) {
		case *pyast.Assign:
			for _, t := range s.Targets {
				sc.markWritten(t)
				if n, ok := t.(*pyast.Name); ok {
					sc.bind(n.ID, valueKind(w, s.Value), false)
				}
			}
		case *pyast.AnnAssign:
			sc.markWritten(s.Target)
			if n, ok := s.Target.(*pyast.Name); ok {
				k := kUnknown
				if t, ok := TypeFromAnnotation(s.Annotation); ok {
					k = kindOf(t)
					if t == Index {
						k = kInt
					}
				} else if s.Value != nil {
					k = valueKind(w, s.Value)
				}
				sc.bind(n.ID, k, false)
			}
		case *pyast.AugAssign:
			sc.markWritten(s.Target)
			if n, ok := s.Target.(*pyast.Name); ok {
				k := kUnknown
				if s.Op == "/" || w.floaty(s.Value) {
					k = kFloat
				} else if isNum(s.Value) {
					k = kInt
				}
				sc.bind(n.ID, k, false)
			}
		case *pyast.For:
			sc.bindLoop(w, s)
		case *pyast.ExprStmt:
			if call, ok := s.Value.(*pyast.Call); ok {
				if attr, ok := call.Func.(*pyast.Attribute); ok {
					sc.markWritten(attr.Value)
				}
			}
		}
	}, nil)
}

func (sc *scope) bindLoop(w *exprWriter, s *pyast.For) {
	switch t := s.Target.(type) {
	case *pyast.Name:
		sc.bind(t.ID, elemKind(w, s.Iter), true)
	case *pyast.Tuple:
		call, name, ok := pyast.CallName(s.Iter)
		if !ok || len(t.Elts) != 2 {
			return
		}
		first, _ := t.Elts[0].(*pyast.Name)
		second, _ := t.Elts[1].(*pyast.Name)
		if first == nil || second == nil {
			return
		}
		switch {
		case name == "enumerate" && len(call.Args) == 1:
			sc.bind(first.ID, kIndex, true)
			sc.bind(second.ID, elemKind(w, call.Args[0]), true)
		case name == "zip" && len(call.Args) == 2:
			sc.bind(first.ID, elemKind(w, call.Args[0]), true)
			sc.bind(second.ID, elemKind(w, call.Args[1]), true)
		}
	}
}

// elemKind is the kind of one element produced by iterating e.
func elemKind(w *exprWriter, e pyast.Expr) kind {
	if _, name, ok := pyast.CallName(e); ok && name == "range" {
		return kIndex
	}
	if n, ok := e.(*pyast.Name); ok && w.env[n.ID] == kBytes {
		return kInt
	}
	return kFloat
}

// valueKind is the kind a name takes when bound to e.
func valueKind(w *exprWriter, e pyast.Expr) kind {
	switch e := e.(type) {
	case *pyast.Num:
		if e.Float {
			return kFloat
		}
		return kInt
	case *pyast.List, *pyast.ListComp:
		return kVec
	case *pyast.BinOp:
		if _, _, ok := broadcast(e); ok {
			return kVec
		}
	case *pyast.Call:
		if _, name, ok := pyast.CallName(e); ok && name == "len" {
			return kIndex
		}
	case *pyast.Name:
		if k := w.env[e.ID]; k != kUnknown {
			return k
		}
	case *pyast.Subscript:
		if n, ok := e.Value.(*pyast.Name); ok && w.env[n.ID] == kBytes {
			return kInt
		}
	}
	if w.floaty(e) {
		return kFloat
	}
	return kUnknown
}

// broadcast matches [fill] * size (either operand order).
func broadcast(e *pyast.BinOp) (fill, size pyast.Expr, ok bool) {
	if e.Op != "*" {
		return nil, nil, false
	}
	if l, isList := e.Left.(*pyast.List); isList && len(l.Elts) == 1 {
		return l.Elts[0], e.Right, true
	}
	if r, isList := e.Right.(*pyast.List); isList && len(r.Elts) == 1 {
		return r.Elts[0], e.Left, true
	}
	return nil, nil, false
}

type occurrence struct {
	name string
	path string
}

// places records the block path of every name occurrence and each local's
// first binding. Paths are slash-separated block ids from the function body.
func (sc *scope) places(body []pyast.Stmt, path string, next *int, out *[]occurrence) {
	child := func(stmts []pyast.Stmt) {
		*next++
		sc.places(stmts, path+"/"+strconv.Itoa(*next), next, out)
	}
	names := func(e pyast.Expr) {
		walkExpr(e, func(e pyast.Expr) {
			if n, ok := e.(*pyast.Name); ok {
				*out = append(*out, occurrence{name: n.ID, path: path})
			}
		})
	}
	firstBinding := func(e pyast.Expr) {
		if n, ok := e.(*pyast.Name); ok {
			if l := sc.locals[n.ID]; l != nil && l.first == "" {
				l.first = path
			}
		}
	}

	for _, s := range body {
		switch s := s.(type) {
		case *pyast.Assign:
			names(s.Value)
			for _, t := range s.Targets {
				firstBinding(t)
				names(t)
			}
		case *pyast.AnnAssign:
			if s.Value != nil {
				names(s.Value)
			}
			firstBinding(s.Target)
			names(s.Target)
		case *pyast.AugAssign:
			names(s.Value)
			firstBinding(s.Target)
			names(s.Target)
		case *pyast.For:
			names(s.Iter)
			child(s.Body)
			child(s.OrElse)
		case *pyast.While:
			names(s.Test)
			child(s.Body)
			child(s.OrElse)
		case *pyast.If:
			names(s.Test)
			child(s.Body)
			child(s.OrElse)
		case *pyast.Return:
			if s.Value != nil {
				names(s.Value)
			}
		case *pyast.ExprStmt:
			names(s.Value)
		}
	}
}

// within reports whether block path p is b or nested inside it.
func within(p, b string) bool {
	return p == b || strings.HasPrefix(p, b+"/")
}
