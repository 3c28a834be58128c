// Package evaluator implements the micro tree-walking evaluator.
package evaluator

import (
	"github.com/raviqqe/hamt"

	"github.com/charliemeyer/pickcode-micro/pkg/ast"
)

// Value is the interface for all micro runtime values. The set is closed:
// Number, Boolean and Function. An absent value ("no value", the result of
// reading an unbound name) is a nil Value.
type Value interface {
	value() // sealed marker
}

// Number represents a numeric value.
type Number struct {
	Value float64
}

func (Number) value() {}

// Boolean represents a boolean value.
type Boolean struct {
	Value bool
}

func (Boolean) value() {}

// Function represents a callable closure.
type Function struct {
	Closure *Closure
}

func (Function) value() {}

// Closure is the owned state of a Function: the scope snapshot taken when
// the Func node was evaluated, plus the parameter names and body.
// It never changes after construction.
type Closure struct {
	captured hamt.Map
	params   []string
	body     []ast.Expr
	name     string
}

// Params returns a copy of the closure's parameter names.
func (c *Closure) Params() []string {
	out := make([]string, len(c.params))
	copy(out, c.params)
	return out
}

// Name returns the name the closure was bound to when it was created by a
// NewVariable, or "" for anonymous functions.
func (c *Closure) Name() string {
	return c.name
}

// Captured returns a new scope initialized from the closure's snapshot.
// Binding into it does not affect the closure.
func (c *Closure) Captured() *Scope {
	return &Scope{vars: c.captured}
}

// callScope builds the scope one body expression runs in: the captured
// snapshot overlaid with the parameter bindings. The caller builds a fresh
// one for every body expression, so a NewVariable in expression i is never
// seen by expression i+1.
func (c *Closure) callScope(args []Value) *Scope {
	vars := c.captured
	for j, p := range c.params {
		var arg Value
		if j < len(args) {
			arg = args[j]
		}
		vars = vars.Insert(name(p), binding{v: arg})
	}
	return &Scope{vars: vars}
}

func newClosure(fn *ast.Func, scope *Scope, self string) *Closure {
	c := &Closure{params: fn.Params, body: fn.Body, name: self}
	c.captured = scope.snapshot()
	if self != "" {
		c.captured = c.captured.Insert(name(self), binding{v: Function{Closure: c}})
	}
	return c
}

// NewNumber creates a numeric value.
func NewNumber(n float64) Value {
	return Number{Value: n}
}

// NewBool creates a boolean value.
func NewBool(b bool) Value {
	return Boolean{Value: b}
}

// IsUndefined reports whether v is the absent value.
func IsUndefined(v Value) bool {
	return v == nil
}

// Truthy reports whether v satisfies an If condition. Only Boolean true does.
func Truthy(v Value) bool {
	b, ok := v.(Boolean)
	return ok && b.Value
}

// TypeName returns the micro type name of v for error messages.
func TypeName(v Value) string {
	switch v.(type) {
	case nil:
		return "undefined"
	case Number:
		return "number"
	case Boolean:
		return "boolean"
	case Function:
		return "function"
	default:
		return "unknown"
	}
}

// Equal compares two values. Functions are equal only to the same closure.
func Equal(a, b Value) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case Number:
		bv, ok := b.(Number)
		return ok && av.Value == bv.Value
	case Boolean:
		bv, ok := b.(Boolean)
		return ok && av.Value == bv.Value
	case Function:
		bv, ok := b.(Function)
		return ok && av.Closure == bv.Closure
	}
	return false
}
