// Package formatter renders micro expression trees as readable pseudo-source.
//
// The output is for people; there is no parser for it. Tree documents stay
// the source of truth.
package formatter

import (
	"strconv"
	"strings"

	"github.com/charliemeyer/pickcode-micro/pkg/ast"
)

const (
	indent      = "  "
	inlineWidth = 72
)

// Precedence table for binary operators (higher = tighter binding)
var precedence = map[ast.BinaryOp]int{
	ast.OpGt:  1,
	ast.OpAdd: 2, ast.OpSub: 2,
}

func needsParens(child ast.Expr, parentOp ast.BinaryOp, isRight bool) bool {
	switch c := child.(type) {
	case *ast.BinOp:
		childPrec := precedence[c.Op]
		parentPrec := precedence[parentOp]
		if childPrec < parentPrec {
			return true
		}
		// Operators are left-associative: a - (b - c) keeps its parens.
		return childPrec == parentPrec && isRight
	case *ast.If, *ast.Func, *ast.NewVariable:
		return true
	}
	return false
}

// Format pretty-prints a program, one top-level expression per line.
func Format(program *ast.Program) string {
	if program == nil || len(program.Statements) == 0 {
		return ""
	}
	lines := make([]string, len(program.Statements))
	for i, s := range program.Statements {
		lines[i] = formatExpr(s, 0)
	}
	return strings.Join(lines, "\n") + "\n"
}

// FormatExpr renders a single expression at the outermost indentation.
func FormatExpr(e ast.Expr) string {
	return formatExpr(e, 0)
}

func formatExpr(e ast.Expr, depth int) string {
	switch expr := e.(type) {
	case *ast.Literal:
		return strconv.FormatFloat(expr.Value, 'f', -1, 64)
	case *ast.GetVariable:
		return expr.Name
	case *ast.NewVariable:
		return "let " + expr.Name + " = " + formatExpr(expr.Value, depth)
	case *ast.BinOp:
		leftStr := formatExpr(expr.Left, depth)
		rightStr := formatExpr(expr.Right, depth)
		if needsParens(expr.Left, expr.Op, false) {
			leftStr = "(" + leftStr + ")"
		}
		if needsParens(expr.Right, expr.Op, true) {
			rightStr = "(" + rightStr + ")"
		}
		return leftStr + " " + string(expr.Op) + " " + rightStr
	case *ast.If:
		return formatIf(expr, depth)
	case *ast.Func:
		return formatFunc(expr, depth)
	case *ast.Call:
		return formatCall(expr, depth)
	}
	return "<missing>"
}

func formatIf(expr *ast.If, depth int) string {
	cond := formatExpr(expr.Cond, depth)
	inline := "if " + cond + " { " + formatExpr(expr.Then, depth) + " }"
	if fitsInline(inline) {
		return inline
	}
	prefix := strings.Repeat(indent, depth)
	return "if " + cond + " {\n" + formatBlock([]ast.Expr{expr.Then}, depth) + "\n" + prefix + "}"
}

func formatFunc(expr *ast.Func, depth int) string {
	head := "fn(" + strings.Join(expr.Params, ", ") + ")"
	if len(expr.Body) == 0 {
		return head + " {}"
	}
	prefix := strings.Repeat(indent, depth)
	return head + " {\n" + formatBlock(expr.Body, depth) + "\n" + prefix + "}"
}

func formatCall(expr *ast.Call, depth int) string {
	callee := formatExpr(expr.Callee, depth)
	switch expr.Callee.(type) {
	case *ast.GetVariable, *ast.Call:
	default:
		callee = "(" + callee + ")"
	}

	// Try inline first
	inlineParts := make([]string, len(expr.Args))
	for i, a := range expr.Args {
		inlineParts[i] = formatExpr(a, depth+1)
	}
	args := "(" + strings.Join(inlineParts, ", ") + ")"
	if len(expr.Args) == 0 || fitsInline(args) {
		return callee + args
	}

	// Multi-line
	inner := strings.Repeat(indent, depth+1)
	outer := strings.Repeat(indent, depth)
	parts := make([]string, len(expr.Args))
	for i, a := range inlineParts {
		parts[i] = inner + a
	}
	return callee + "(\n" + strings.Join(parts, ",\n") + "\n" + outer + ")"
}

func formatBlock(exprs []ast.Expr, depth int) string {
	inner := strings.Repeat(indent, depth+1)
	lines := make([]string, len(exprs))
	for i, e := range exprs {
		lines[i] = inner + formatExpr(e, depth+1)
	}
	return strings.Join(lines, "\n")
}

func fitsInline(s string) bool {
	return len(s) <= inlineWidth && !strings.Contains(s, "\n")
}
