package translate

import (
	"github.com/phobologic/rustify/internal/model"
	"github.com/phobologic/rustify/internal/pyast"
)

// Function translates the target's definition in mod. It reports false when
// mod has no function of that name.
func Function(target model.TargetSpec, mod *pyast.Module) (*Translation, bool) {
	if mod == nil {
		return nil, false
	}
	fn, ok := mod.Function(target.Func)
	if !ok {
		return nil, false
	}
	if k, ok := kernels[fn.Name]; ok {
		if t, ok := k(fn); ok {
			return t, true
		}
	}

	params := InferParams(fn)
	if len(params) == 0 {
		params = []Param{{Name: "data", Type: FloatVec}}
	}
	body := Body(fn, params)
	return &Translation{
		Name:        fn.Name,
		Line:        fn.Line,
		Params:      params,
		ReturnType:  body.ReturnType,
		Body:        body.Body,
		Fallback:    body.Fallback,
		Unsupported: body.Unsupported,
	}, true
}

// BodyTranslation is a rendered statement block.
type BodyTranslation struct {
	ReturnType  SemanticType
	Body        string
	Fallback    bool
	Unsupported []string
}

// Body translates fn's statements against params, marking the parameters
// the body writes to as Mutable.
func Body(fn *pyast.FunctionDef, params []Param) BodyTranslation {
	sc := scanScope(fn, params)
	ret, tail := inferReturn(fn, sc)

	w := newBodyWriter(sc, ret)
	w.bare = tail
	w.hoist()
	w.block(fn.Body, 1)
	if !endsInReturn(fn.Body) {
		w.line(1, "Ok(%s)", tail)
	}
	returned := map[string]bool{}
	walkStmts(fn.Body, func(s pyast.Stmt) {
		if r, ok := s.(*pyast.Return); ok {
			if n, ok := r.Value.(*pyast.Name); ok {
				returned[n.ID] = true
			}
		}
	}, nil)
	for i := range params {
		params[i].Mutable = sc.written[params[i].Name]
		params[i].Returned = returned[params[i].Name]
	}
	return BodyTranslation{
		ReturnType:  ret,
		Body:        w.buf.String(),
		Fallback:    w.fallback,
		Unsupported: w.reasons,
	}
}

// Echo is the stand-in for a target whose source could not be found: it
// returns its input unchanged.
func Echo(name string) *Translation {
	return &Translation{
		Name:       name,
		Params:     []Param{{Name: "data", Type: FloatVec}},
		ReturnType: FloatVec,
		Body: indentUnit + "// source not found in input; echoing data\n" +
			indentUnit + "Ok(data.to_vec())\n",
		Fallback:    true,
		Unsupported: []string{"missing source"},
	}
}

// inferReturn picks the return type and the value returned when control
// reaches the end of the body.
func inferReturn(fn *pyast.FunctionDef, sc *scope) (SemanticType, string) {
	var values []pyast.Expr
	walkStmts(fn.Body, func(s pyast.Stmt) {
		if r, ok := s.(*pyast.Return); ok && r.Value != nil {
			values = append(values, r.Value)
		}
	}, nil)

	if fn.Returns != "" {
		if t, ok := TypeFromAnnotation(fn.Returns); ok {
			return t, t.Zero()
		}
	}
	if len(values) > 0 {
		t := exprType(newExprWriter(sc.env), values[0])
		return t, t.Zero()
	}

	var candidates []string
	for _, name := range sc.order {
		if (name == "result" || name == "output") && sc.locals[name].kind == kVec {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 1 {
		return FloatVec, RustIdent(candidates[0])
	}
	return Float, Float.Zero()
}

// exprType is the semantic type of a returned expression.
func exprType(w *exprWriter, e pyast.Expr) SemanticType {
	switch e := e.(type) {
	case *pyast.Name:
		switch w.env[e.ID] {
		case kIndex, kInt:
			return Index
		case kVec:
			return FloatVec
		case kBytes:
			return Bytes
		case kPairs:
			return PairCounts
		}
		return Float
	case *pyast.Num:
		if e.Float {
			return Float
		}
		return Index
	case *pyast.List, *pyast.ListComp:
		return FloatVec
	case *pyast.BinOp:
		if _, _, ok := broadcast(e); ok {
			return FloatVec
		}
	case *pyast.Call:
		if _, name, ok := pyast.CallName(e); ok && name == "len" {
			return Index
		}
	case *pyast.IfExp:
		return exprType(w, e.Body)
	}
	return Float
}

func endsInReturn(body []pyast.Stmt) bool {
	if len(body) == 0 {
		return false
	}
	_, ok := body[len(body)-1].(*pyast.Return)
	return ok
}
