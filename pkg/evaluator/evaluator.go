package evaluator

import (
	"fmt"
	"time"

	"github.com/charliemeyer/pickcode-micro/pkg/ast"
	"github.com/charliemeyer/pickcode-micro/pkg/diagnostics"
)

// TraceEventType identifies the type of a trace event.
type TraceEventType string

const (
	TraceRunStart    TraceEventType = "run_start"
	TraceRunEnd      TraceEventType = "run_end"
	TraceStmtStart   TraceEventType = "stmt_start"
	TraceStmtEnd     TraceEventType = "stmt_end"
	TraceFnCallStart TraceEventType = "fn_call_start"
	TraceFnCallEnd   TraceEventType = "fn_call_end"
)

// TraceEvent represents a single trace event emitted during execution.
type TraceEvent struct {
	Timestamp string         `json:"ts"`
	RunID     string         `json:"runId"`
	Event     TraceEventType `json:"event"`
	Span      *ast.Span      `json:"span,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ExecOptions configures program execution.
type ExecOptions struct {
	// Scope is the top-level scope shared by every statement. A fresh empty
	// scope is used when nil.
	Scope  *Scope
	Limits Limits
	Trace  func(event TraceEvent)
	RunID  string
}

// ExecResult holds the result of a program execution.
type ExecResult struct {
	// Value is the result of the last completed statement.
	Value Value
	// Values holds the result of each completed statement, in order.
	Values []Value
	Scope  *Scope
	Stats  Tracker
}

// RuntimeError represents a failure during evaluation. Code is one of the
// diagnostics E_* constants.
type RuntimeError struct {
	Code    string
	Message string
	Span    *ast.Span
}

func (e *RuntimeError) Error() string {
	return e.Message
}

// Evaluator walks expression trees. It tracks call depth, so a single
// Evaluator must not be shared between goroutines.
type Evaluator struct {
	opts    ExecOptions
	tracker Tracker
}

// New creates an Evaluator.
func New(opts ExecOptions) *Evaluator {
	return &Evaluator{opts: opts}
}

// Stats returns the resource consumption recorded so far.
func (ev *Evaluator) Stats() Tracker {
	return ev.tracker
}

func (ev *Evaluator) emit(event TraceEventType, span *ast.Span) {
	ev.emitWithData(event, span, nil)
}

func (ev *Evaluator) emitWithData(event TraceEventType, span *ast.Span, data map[string]any) {
	if ev.opts.Trace != nil {
		ev.opts.Trace(TraceEvent{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			RunID:     ev.opts.RunID,
			Event:     event,
			Span:      span,
			Data:      data,
		})
	}
}

// Execute evaluates each top-level statement of program, in order, against
// one shared scope. Evaluation stops at the first failing statement; the
// returned result then holds the values of the statements that completed,
// and any bindings they made remain in the scope.
func Execute(program *ast.Program, opts ExecOptions) (*ExecResult, error) {
	scope := opts.Scope
	if scope == nil {
		scope = NewScope()
	}
	ev := New(opts)
	res := &ExecResult{Scope: scope}

	span := spanPtr(program.Span)
	ev.emit(TraceRunStart, span)

	for i, stmt := range program.Statements {
		var stmtSpan *ast.Span
		kind := "<missing>"
		if stmt != nil {
			stmtSpan = spanPtr(stmt.NodeSpan())
			kind = stmt.Kind()
		}
		ev.emitWithData(TraceStmtStart, stmtSpan, map[string]any{"index": i, "kind": kind})
		ev.tracker.Statements++

		val, err := ev.Eval(stmt, scope)
		if err != nil {
			ev.emitWithData(TraceRunEnd, span, map[string]any{"error": err.Error()})
			res.Stats = ev.tracker
			return res, err
		}

		ev.emitWithData(TraceStmtEnd, stmtSpan, map[string]any{"index": i})
		res.Values = append(res.Values, val)
		res.Value = val
	}

	ev.emit(TraceRunEnd, span)
	res.Stats = ev.tracker
	return res, nil
}

// Eval evaluates a single expression against scope.
func (ev *Evaluator) Eval(expr ast.Expr, scope *Scope) (Value, error) {
	return ev.evalExpr(expr, scope)
}

// Call invokes a Function value with the given arguments.
func (ev *Evaluator) Call(fn Value, args []Value) (Value, error) {
	switch f := fn.(type) {
	case Function:
		return ev.invoke(f, args, nil)
	case nil:
		return nil, &RuntimeError{Code: diagnostics.EUndefined, Message: "cannot call an undefined value"}
	default:
		return nil, &RuntimeError{
			Code:    diagnostics.EType,
			Message: fmt.Sprintf("cannot call a non-function value (%s)", TypeName(fn)),
		}
	}
}

func (ev *Evaluator) evalExpr(expr ast.Expr, scope *Scope) (Value, error) {
	switch e := expr.(type) {
	case *ast.Literal:
		return NewNumber(e.Value), nil

	case *ast.GetVariable:
		return scope.Get(e.Name), nil

	case *ast.NewVariable:
		return ev.evalNewVariable(e, scope)

	case *ast.BinOp:
		return ev.evalBinOp(e, scope)

	case *ast.If:
		return ev.evalIf(e, scope)

	case *ast.Func:
		return Function{Closure: newClosure(e, scope, "")}, nil

	case *ast.Call:
		return ev.evalCall(e, scope)

	case nil:
		return nil, &RuntimeError{Code: diagnostics.EAst, Message: "missing expression"}

	default:
		return nil, &RuntimeError{
			Code:    diagnostics.EAst,
			Message: fmt.Sprintf("unsupported expression type: %T", expr),
		}
	}
}

func (ev *Evaluator) evalNewVariable(e *ast.NewVariable, scope *Scope) (Value, error) {
	var val Value
	if fn, ok := e.Value.(*ast.Func); ok {
		// The closure sees its own name so it can recurse.
		val = Function{Closure: newClosure(fn, scope, e.Name)}
	} else {
		v, err := ev.evalExpr(e.Value, scope)
		if err != nil {
			return nil, err
		}
		val = v
	}
	scope.BindInPlace(e.Name, val)
	return val, nil
}

func (ev *Evaluator) evalBinOp(e *ast.BinOp, scope *Scope) (Value, error) {
	left, err := ev.evalExpr(e.Left, scope)
	if err != nil {
		return nil, err
	}
	right, err := ev.evalExpr(e.Right, scope)
	if err != nil {
		return nil, err
	}

	span := spanPtr(e.Span)
	lNum, err := numericOperand(e.Op, left, span)
	if err != nil {
		return nil, err
	}
	rNum, err := numericOperand(e.Op, right, span)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case ast.OpAdd:
		return NewNumber(lNum + rNum), nil
	case ast.OpSub:
		return NewNumber(lNum - rNum), nil
	case ast.OpGt:
		return NewBool(lNum > rNum), nil
	}
	return nil, &RuntimeError{
		Code:    diagnostics.EAst,
		Message: fmt.Sprintf("unknown operator '%s'", string(e.Op)),
		Span:    span,
	}
}

func numericOperand(op ast.BinaryOp, v Value, span *ast.Span) (float64, error) {
	switch n := v.(type) {
	case Number:
		return n.Value, nil
	case nil:
		return 0, &RuntimeError{
			Code:    diagnostics.EUndefined,
			Message: fmt.Sprintf("undefined operand to '%s'", string(op)),
			Span:    span,
		}
	case Boolean, Function:
		return 0, &RuntimeError{
			Code:    diagnostics.EType,
			Message: fmt.Sprintf("non-numeric operand: '%s' requires two numbers, got %s", string(op), TypeName(v)),
			Span:    span,
		}
	}
	return 0, &RuntimeError{
		Code:    diagnostics.EType,
		Message: fmt.Sprintf("non-numeric operand: %T", v),
		Span:    span,
	}
}

func (ev *Evaluator) evalIf(e *ast.If, scope *Scope) (Value, error) {
	cond, err := ev.evalExpr(e.Cond, scope)
	if err != nil {
		return nil, err
	}
	if Truthy(cond) {
		return ev.evalExpr(e.Then, scope)
	}
	// No else branch: a false condition yields 1.
	return NewNumber(1), nil
}

func (ev *Evaluator) evalCall(e *ast.Call, scope *Scope) (Value, error) {
	callee, err := ev.evalExpr(e.Callee, scope)
	if err != nil {
		return nil, err
	}

	span := spanPtr(e.Span)
	fn, isFn := callee.(Function)
	if !isFn && callee != nil {
		return nil, &RuntimeError{
			Code:    diagnostics.EType,
			Message: fmt.Sprintf("cannot call a non-function value (%s)", TypeName(callee)),
			Span:    span,
		}
	}

	args := make([]Value, 0, len(e.Args))
	for _, a := range e.Args {
		val, err := ev.evalExpr(a, scope)
		if err != nil {
			return nil, err
		}
		args = append(args, val)
	}

	if !isFn {
		msg := "cannot call an undefined value"
		if g, ok := e.Callee.(*ast.GetVariable); ok {
			msg = fmt.Sprintf("cannot call '%s': it is not bound to a value", g.Name)
		}
		return nil, &RuntimeError{Code: diagnostics.EUndefined, Message: msg, Span: span}
	}

	return ev.invoke(fn, args, span)
}

func (ev *Evaluator) invoke(fn Function, args []Value, span *ast.Span) (Value, error) {
	c := fn.Closure
	if len(c.body) == 0 {
		return nil, &RuntimeError{
			Code:    diagnostics.EEmptyBody,
			Message: "cannot call a function with an empty body",
			Span:    span,
		}
	}

	limit := ev.opts.Limits.maxDepth()
	if ev.tracker.Depth >= limit {
		return nil, &RuntimeError{
			Code:    diagnostics.EStackOverflow,
			Message: fmt.Sprintf("call stack exhausted (max depth %d)", limit),
			Span:    span,
		}
	}
	ev.tracker.Depth++
	defer func() { ev.tracker.Depth-- }()
	if ev.tracker.Depth > ev.tracker.MaxSeen {
		ev.tracker.MaxSeen = ev.tracker.Depth
	}
	ev.tracker.Calls++

	ev.emitWithData(TraceFnCallStart, span, map[string]any{
		"fn":    c.name,
		"args":  len(args),
		"depth": ev.tracker.Depth,
	})

	var result Value
	for _, body := range c.body {
		val, err := ev.evalExpr(body, c.callScope(args))
		if err != nil {
			ev.emitWithData(TraceFnCallEnd, span, map[string]any{"fn": c.name, "error": err.Error()})
			return nil, err
		}
		result = val
	}

	ev.emitWithData(TraceFnCallEnd, span, map[string]any{"fn": c.name})
	return result, nil
}

func spanPtr(s ast.Span) *ast.Span {
	if s.IsZero() {
		return nil
	}
	return &s
}
