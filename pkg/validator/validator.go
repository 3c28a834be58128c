// Package validator implements structural checks on micro expression trees.
//
// Trees produced by the decoder are already well formed; Validate also
// accepts trees built in Go, so it re-checks the shape before looking for
// programs that decode fine but cannot behave as written.
package validator

import (
	"fmt"

	"github.com/charliemeyer/pickcode-micro/pkg/ast"
	"github.com/charliemeyer/pickcode-micro/pkg/diagnostics"
)

type scope struct {
	bindings map[string]bool
	parent   *scope
}

func newScope(parent *scope) *scope {
	return &scope{bindings: make(map[string]bool), parent: parent}
}

func (s *scope) has(name string) bool {
	if s.bindings[name] {
		return true
	}
	if s.parent != nil {
		return s.parent.has(name)
	}
	return false
}

func (s *scope) add(name string) {
	s.bindings[name] = true
}

type validator struct {
	diags []diagnostics.Diagnostic
	// letNames holds every name bound by NewVariable anywhere in the
	// program. It over-approximates what any closure snapshot can hold, so
	// the never-bound warning only fires for names nothing could bind.
	letNames map[string]bool
}

// Validate checks a program and returns diagnostics. Error-severity
// diagnostics describe trees the evaluator cannot run; warnings describe
// trees that run but likely do not do what they say.
func Validate(program *ast.Program) []diagnostics.Diagnostic {
	v := &validator{letNames: make(map[string]bool)}
	if program == nil {
		v.addDiag(diagnostics.EAst, "missing program", nil)
		return v.diags
	}

	for _, stmt := range program.Statements {
		if stmt == nil {
			continue
		}
		ast.Walk(stmt, func(e ast.Expr) bool {
			if nv, ok := e.(*ast.NewVariable); ok {
				v.letNames[nv.Name] = true
			}
			return true
		})
	}

	top := newScope(nil)
	for i, stmt := range program.Statements {
		if stmt == nil {
			v.addDiag(diagnostics.EAst, fmt.Sprintf("statement %d is missing", i+1), nil)
			continue
		}
		v.validateExpr(stmt, top)
	}
	return v.diags
}

func (v *validator) addDiag(code, msg string, span *ast.Span) {
	v.diags = append(v.diags, diagnostics.MakeDiag(code, msg, span, ""))
}

func (v *validator) addWarning(code, msg string, span *ast.Span, hint string) {
	v.diags = append(v.diags, diagnostics.MakeWarning(code, msg, span, hint))
}

// child reports a missing operand of parent and returns false.
func (v *validator) child(parent ast.Expr, e ast.Expr, role string) bool {
	if e != nil {
		return true
	}
	span := parent.NodeSpan()
	v.addDiag(diagnostics.EAst, fmt.Sprintf("%s node is missing its %s", parent.Kind(), role), &span)
	return false
}

func (v *validator) validateExpr(expr ast.Expr, sc *scope) {
	switch e := expr.(type) {
	case *ast.Literal:
		// literals are always valid

	case *ast.GetVariable:
		if e.Name == "" {
			span := e.Span
			v.addDiag(diagnostics.EAst, "variable name is empty", &span)
			return
		}
		if !sc.has(e.Name) && !v.letNames[e.Name] {
			span := e.Span
			v.addWarning(diagnostics.EUndefined, fmt.Sprintf("variable '%s' is never bound", e.Name), &span, "")
		}

	case *ast.NewVariable:
		if e.Name == "" {
			span := e.Span
			v.addDiag(diagnostics.EAst, "variable name is empty", &span)
		}
		if _, isFn := e.Value.(*ast.Func); isFn {
			// A function bound by name sees itself.
			sc.add(e.Name)
		}
		if v.child(e, e.Value, "value") {
			v.validateExpr(e.Value, sc)
		}
		sc.add(e.Name)

	case *ast.BinOp:
		if !e.Op.Valid() {
			span := e.Span
			v.addDiag(diagnostics.EAst, fmt.Sprintf("unknown operator '%s'", e.Op), &span)
		}
		if v.child(e, e.Left, "left operand") {
			v.validateExpr(e.Left, sc)
		}
		if v.child(e, e.Right, "right operand") {
			v.validateExpr(e.Right, sc)
		}

	case *ast.If:
		if v.child(e, e.Cond, "condition") {
			v.validateExpr(e.Cond, sc)
		}
		if v.child(e, e.Then, "then branch") {
			v.validateExpr(e.Then, sc)
		}

	case *ast.Func:
		v.validateFunc(e, sc)

	case *ast.Call:
		if v.child(e, e.Callee, "callee") {
			v.validateExpr(e.Callee, sc)
		}
		for i, arg := range e.Args {
			if v.child(e, arg, fmt.Sprintf("argument %d", i+1)) {
				v.validateExpr(arg, sc)
			}
		}

	default:
		v.addDiag(diagnostics.EAst, fmt.Sprintf("unsupported node %T", expr), nil)
	}
}

func (v *validator) validateFunc(fn *ast.Func, sc *scope) {
	params := make(map[string]bool, len(fn.Params))
	childScope := newScope(sc)
	for _, p := range fn.Params {
		if p == "" {
			span := fn.Span
			v.addDiag(diagnostics.EAst, "parameter name is empty", &span)
			continue
		}
		if params[p] {
			span := fn.Span
			v.addDiag(diagnostics.EDupParam, fmt.Sprintf("duplicate parameter '%s'", p), &span)
		}
		params[p] = true
		childScope.add(p)
	}

	if len(fn.Body) == 0 {
		span := fn.Span
		v.addWarning(diagnostics.EEmptyBody, "function has an empty body", &span,
			"calling it fails with E_EMPTY_BODY")
		return
	}

	// Each body expression runs in a fresh scope built from the closure's
	// captured bindings and the arguments, so a binding made by one body
	// expression is gone by the next.
	bodyLets := make(map[string]bool)
	for i, expr := range fn.Body {
		if !v.child(fn, expr, fmt.Sprintf("body expression %d", i+1)) {
			continue
		}
		if len(bodyLets) > 0 {
			v.checkBodyReads(expr, bodyLets, sc)
		}
		v.validateExpr(expr, newScope(childScope))
		if nv, ok := expr.(*ast.NewVariable); ok && !params[nv.Name] {
			bodyLets[nv.Name] = true
		}
	}
}

// checkBodyReads warns about reads of stale names, those bound by an earlier
// body expression of the same function. captured is the scope the function
// was defined in.
func (v *validator) checkBodyReads(expr ast.Expr, stale map[string]bool, captured *scope) {
	ast.Walk(expr, func(e ast.Expr) bool {
		switch n := e.(type) {
		case *ast.Func:
			inner := make(map[string]bool, len(stale))
			for name := range stale {
				inner[name] = true
			}
			for _, p := range n.Params {
				delete(inner, p)
			}
			if len(inner) > 0 {
				for _, b := range n.Body {
					v.checkBodyReads(b, inner, captured)
				}
			}
			return false
		case *ast.GetVariable:
			if stale[n.Name] {
				span := n.Span
				msg := fmt.Sprintf("'%s' is bound by an earlier body expression and is not visible here", n.Name)
				if captured.has(n.Name) {
					msg = fmt.Sprintf("'%s' reads the captured value, not the earlier body binding", n.Name)
				}
				v.addWarning(diagnostics.EBodyScope, msg, &span,
					"function bodies do not carry bindings from one expression to the next")
			}
		}
		return true
	})
}
