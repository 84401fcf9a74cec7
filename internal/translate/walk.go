package translate

import "github.com/phobologic/rustify/internal/pyast"

// walkStmts visits every statement in body and its nested blocks, calling
// onExpr for each expression a statement holds directly. Nested function
// definitions are not entered.
func walkStmts(body []pyast.Stmt, onStmt func(pyast.Stmt), onExpr func(pyast.Expr)) {
	for _, s := range body {
		if onStmt != nil {
			onStmt(s)
		}
		var exprs []pyast.Expr
		var blocks [][]pyast.Stmt
		switch s := s.(type) {
		case *pyast.Assign:
			exprs = append(exprs, s.Targets...)
			exprs = append(exprs, s.Value)
		case *pyast.AnnAssign:
			exprs = append(exprs, s.Target, s.Value)
		case *pyast.AugAssign:
			exprs = append(exprs, s.Target, s.Value)
		case *pyast.For:
			exprs = append(exprs, s.Target, s.Iter)
			blocks = append(blocks, s.Body, s.OrElse)
		case *pyast.While:
			exprs = append(exprs, s.Test)
			blocks = append(blocks, s.Body, s.OrElse)
		case *pyast.If:
			exprs = append(exprs, s.Test)
			blocks = append(blocks, s.Body, s.OrElse)
		case *pyast.Return:
			exprs = append(exprs, s.Value)
		case *pyast.ExprStmt:
			exprs = append(exprs, s.Value)
		}
		if onExpr != nil {
			for _, e := range exprs {
				if e != nil {
					onExpr(e)
				}
			}
		}
		for _, b := range blocks {
			walkStmts(b, onStmt, onExpr)
		}
	}
}

// walkExpr calls fn for e and every sub-expression, parents first.
func walkExpr(e pyast.Expr, fn func(pyast.Expr)) {
	if e == nil {
		return
	}
	fn(e)
	switch e := e.(type) {
	case *pyast.BinOp:
		walkExpr(e.Left, fn)
		walkExpr(e.Right, fn)
	case *pyast.BoolOp:
		for _, v := range e.Values {
			walkExpr(v, fn)
		}
	case *pyast.UnaryOp:
		walkExpr(e.Operand, fn)
	case *pyast.Compare:
		walkExpr(e.Left, fn)
		for _, c := range e.Comparators {
			walkExpr(c, fn)
		}
	case *pyast.Call:
		walkExpr(e.Func, fn)
		for _, a := range e.Args {
			walkExpr(a, fn)
		}
		for _, k := range e.Keywords {
			walkExpr(k.Value, fn)
		}
	case *pyast.Subscript:
		walkExpr(e.Value, fn)
		walkExpr(e.Index, fn)
	case *pyast.Attribute:
		walkExpr(e.Value, fn)
	case *pyast.List:
		for _, v := range e.Elts {
			walkExpr(v, fn)
		}
	case *pyast.Tuple:
		for _, v := range e.Elts {
			walkExpr(v, fn)
		}
	case *pyast.ListComp:
		walkExpr(e.Elt, fn)
		for _, g := range e.Generators {
			walkExpr(g.Target, fn)
			walkExpr(g.Iter, fn)
			for _, c := range g.Ifs {
				walkExpr(c, fn)
			}
		}
	case *pyast.IfExp:
		walkExpr(e.Test, fn)
		walkExpr(e.Body, fn)
		walkExpr(e.OrElse, fn)
	}
}
