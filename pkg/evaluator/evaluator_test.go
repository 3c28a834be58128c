package evaluator_test

import (
	"errors"
	"testing"

	"github.com/charliemeyer/pickcode-micro/pkg/ast"
	"github.com/charliemeyer/pickcode-micro/pkg/diagnostics"
	"github.com/charliemeyer/pickcode-micro/pkg/evaluator"
)

// --- tree helpers ---

func lit(n float64) ast.Expr { return &ast.Literal{Value: n} }

func get(name string) ast.Expr { return &ast.GetVariable{Name: name} }

func let(name string, e ast.Expr) ast.Expr { return &ast.NewVariable{Name: name, Value: e} }

func bin(op ast.BinaryOp, l, r ast.Expr) ast.Expr { return &ast.BinOp{Op: op, Left: l, Right: r} }

func iff(cond, then ast.Expr) ast.Expr { return &ast.If{Cond: cond, Then: then} }

func fn(params []string, body ...ast.Expr) ast.Expr { return &ast.Func{Params: params, Body: body} }

func call(callee ast.Expr, args ...ast.Expr) ast.Expr { return &ast.Call{Callee: callee, Args: args} }

func program(stmts ...ast.Expr) *ast.Program { return &ast.Program{Statements: stmts} }

// fibProgram defines fib(n) = if n > 1 then fib(n-1) + fib(n-2), relying on
// the If fallback of 1 for the base cases, then calls fib(10).
func fibProgram() *ast.Program {
	return program(
		let("fib", fn([]string{"n"},
			iff(bin(ast.OpGt, get("n"), lit(1)),
				bin(ast.OpAdd,
					call(get("fib"), bin(ast.OpSub, get("n"), lit(1))),
					call(get("fib"), bin(ast.OpSub, get("n"), lit(2))),
				),
			),
		)),
		call(get("fib"), lit(10)),
	)
}

// --- assertion helpers ---

func mustExecute(t *testing.T, prog *ast.Program) *evaluator.ExecResult {
	t.Helper()
	res, err := evaluator.Execute(prog, evaluator.ExecOptions{})
	if err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
	return res
}

func mustEval(t *testing.T, e ast.Expr, scope *evaluator.Scope) evaluator.Value {
	t.Helper()
	v, err := evaluator.New(evaluator.ExecOptions{}).Eval(e, scope)
	if err != nil {
		t.Fatalf("unexpected runtime error: %v", err)
	}
	return v
}

// expectNumber asserts val is a Number with the expected value.
func expectNumber(t *testing.T, val evaluator.Value, expected float64) {
	t.Helper()
	num, ok := val.(evaluator.Number)
	if !ok {
		t.Fatalf("expected Number, got %T (%v)", val, val)
	}
	if num.Value != expected {
		t.Errorf("got %v, want %v", num.Value, expected)
	}
}

// expectBool asserts val is a Boolean with the expected value.
func expectBool(t *testing.T, val evaluator.Value, expected bool) {
	t.Helper()
	b, ok := val.(evaluator.Boolean)
	if !ok {
		t.Fatalf("expected Boolean, got %T (%v)", val, val)
	}
	if b.Value != expected {
		t.Errorf("got %v, want %v", b.Value, expected)
	}
}

// expectUndefined asserts val is the absent value.
func expectUndefined(t *testing.T, val evaluator.Value) {
	t.Helper()
	if !evaluator.IsUndefined(val) {
		t.Fatalf("expected undefined, got %T (%v)", val, val)
	}
}

// expectRuntimeError asserts err is a RuntimeError with the expected code.
func expectRuntimeError(t *testing.T, err error, expectedCode string) *evaluator.RuntimeError {
	t.Helper()
	if err == nil {
		t.Fatalf("expected runtime error with code %s, got nil", expectedCode)
	}
	var rtErr *evaluator.RuntimeError
	if !errors.As(err, &rtErr) {
		t.Fatalf("expected *RuntimeError, got %T: %v", err, err)
	}
	if rtErr.Code != expectedCode {
		t.Errorf("error code = %q, want %q (message: %s)", rtErr.Code, expectedCode, rtErr.Message)
	}
	return rtErr
}

// --- Literal ---

func TestLiteralIgnoresScope(t *testing.T) {
	populated := evaluator.NewScope()
	populated.BindInPlace("x", evaluator.NewNumber(99))
	populated.BindInPlace("42", evaluator.NewBool(true))

	for _, n := range []float64{0, 42, -3.5, 1e300} {
		for _, scope := range []*evaluator.Scope{evaluator.NewScope(), populated} {
			expectNumber(t, mustEval(t, lit(n), scope), n)
		}
	}
}

// --- GetVariable / NewVariable ---

func TestGetVariableUnboundIsUndefined(t *testing.T) {
	expectUndefined(t, mustEval(t, get("missing"), evaluator.NewScope()))
}

func TestNewVariableThenGetVariable(t *testing.T) {
	scope := evaluator.NewScope()
	bound := mustEval(t, let("x", bin(ast.OpAdd, lit(2), lit(3))), scope)
	expectNumber(t, bound, 5)
	expectNumber(t, mustEval(t, get("x"), scope), 5)
}

func TestNewVariableRebinds(t *testing.T) {
	res := mustExecute(t, program(let("x", lit(1)), let("x", lit(2)), get("x")))
	expectNumber(t, res.Value, 2)
}

func TestTopLevelBindingVisibleToLaterStatements(t *testing.T) {
	res := mustExecute(t, program(let("x", lit(5)), get("x")))
	if len(res.Values) != 2 {
		t.Fatalf("got %d values, want 2", len(res.Values))
	}
	expectNumber(t, res.Values[0], 5)
	expectNumber(t, res.Values[1], 5)
}

// --- BinOp ---

func TestBinOpArithmetic(t *testing.T) {
	tests := []struct {
		name string
		op   ast.BinaryOp
		l, r float64
		want float64
	}{
		{"add", ast.OpAdd, 2, 3, 5},
		{"subtract", ast.OpSub, 2, 3, -1},
		{"fractional", ast.OpAdd, 0.1, 0.2, 0.30000000000000004},
		{"negative", ast.OpSub, -4, -6, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectNumber(t, mustEval(t, bin(tt.op, lit(tt.l), lit(tt.r)), evaluator.NewScope()), tt.want)
		})
	}
}

func TestBinOpGreaterThan(t *testing.T) {
	tests := []struct {
		l, r float64
		want bool
	}{
		{3, 2, true},
		{2, 3, false},
		{2, 2, false},
		{-1, -2, true},
	}
	for _, tt := range tests {
		expectBool(t, mustEval(t, bin(ast.OpGt, lit(tt.l), lit(tt.r)), evaluator.NewScope()), tt.want)
	}
}

func TestBinOpNonNumericOperand(t *testing.T) {
	boolean := bin(ast.OpGt, lit(1), lit(0))
	function := fn(nil, lit(1))

	tests := []struct {
		name string
		expr ast.Expr
	}{
		{"boolean left", bin(ast.OpAdd, boolean, lit(1))},
		{"boolean right", bin(ast.OpSub, lit(1), boolean)},
		{"function left", bin(ast.OpGt, function, lit(1))},
		{"function right", bin(ast.OpAdd, lit(1), function)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := evaluator.New(evaluator.ExecOptions{}).Eval(tt.expr, evaluator.NewScope())
			rtErr := expectRuntimeError(t, err, diagnostics.EType)
			if rtErr.Message == "" {
				t.Error("empty error message")
			}
		})
	}
}

func TestBinOpUndefinedOperand(t *testing.T) {
	_, err := evaluator.New(evaluator.ExecOptions{}).Eval(bin(ast.OpAdd, get("nope"), lit(1)), evaluator.NewScope())
	expectRuntimeError(t, err, diagnostics.EUndefined)
}

func TestBinOpEvaluatesBothOperandsLeftFirst(t *testing.T) {
	scope := evaluator.NewScope()
	// (a = 1) + (a = a + 10): right sees the left binding.
	v := mustEval(t, bin(ast.OpAdd, let("a", lit(1)), let("a", bin(ast.OpAdd, get("a"), lit(10)))), scope)
	expectNumber(t, v, 12)
	expectNumber(t, scope.Get("a"), 11)
}

// --- If ---

func TestIfTrueEvaluatesThen(t *testing.T) {
	expectNumber(t, mustEval(t, iff(bin(ast.OpGt, lit(2), lit(1)), lit(7)), evaluator.NewScope()), 7)
}

func TestIfFalseReturnsOneWithoutEvaluatingThen(t *testing.T) {
	scope := evaluator.NewScope()
	cond := bin(ast.OpGt, lit(1), lit(2))

	// A then-branch that would fail if evaluated.
	expectNumber(t, mustEval(t, iff(cond, call(lit(3))), scope), 1)

	// A then-branch with a side effect.
	expectNumber(t, mustEval(t, iff(cond, let("touched", lit(1))), scope), 1)
	if scope.Has("touched") {
		t.Error("then-branch was evaluated for a false condition")
	}
}

func TestIfOnlyBooleanTrueIsTruthy(t *testing.T) {
	scope := evaluator.NewScope()
	expectNumber(t, mustEval(t, iff(lit(5), lit(7)), scope), 1)
	expectNumber(t, mustEval(t, iff(get("undefined"), lit(7)), scope), 1)
	expectNumber(t, mustEval(t, iff(fn(nil, lit(1)), lit(7)), scope), 1)
}

// --- Func / Call ---

func TestFuncHasNoSideEffectOnScope(t *testing.T) {
	scope := evaluator.NewScope()
	v := mustEval(t, fn([]string{"a"}, get("a")), scope)
	if _, ok := v.(evaluator.Function); !ok {
		t.Fatalf("expected Function, got %T", v)
	}
	if scope.Len() != 0 {
		t.Errorf("scope has %d bindings after Func, want 0", scope.Len())
	}
}

func TestCallBindsParameters(t *testing.T) {
	res := mustExecute(t, program(
		let("sub", fn([]string{"a", "b"}, bin(ast.OpSub, get("a"), get("b")))),
		call(get("sub"), lit(10), lit(4)),
	))
	expectNumber(t, res.Value, 6)
}

func TestCallResultIsLastBodyExpression(t *testing.T) {
	res := mustExecute(t, program(
		let("f", fn(nil, lit(1), lit(2), lit(3))),
		call(get("f")),
	))
	expectNumber(t, res.Value, 3)
}

func TestCallMissingArgumentsAreUndefined(t *testing.T) {
	res := mustExecute(t, program(
		let("b", lit(100)),
		let("second", fn([]string{"a", "b"}, get("b"))),
		call(get("second"), lit(1)),
	))
	// The missing parameter shadows the captured top-level b.
	expectUndefined(t, res.Value)
}

func TestCallExtraArgumentsIgnored(t *testing.T) {
	res := mustExecute(t, program(
		let("id", fn([]string{"a"}, get("a"))),
		call(get("id"), lit(1), lit(2), lit(3)),
	))
	expectNumber(t, res.Value, 1)
}

func TestParametersShadowCaptured(t *testing.T) {
	res := mustExecute(t, program(
		let("n", lit(1)),
		let("f", fn([]string{"n"}, get("n"))),
		call(get("f"), lit(2)),
	))
	expectNumber(t, res.Value, 2)
}

func TestCallNonFunction(t *testing.T) {
	tests := []struct {
		name   string
		callee ast.Expr
	}{
		{"number", lit(3)},
		{"boolean", bin(ast.OpGt, lit(3), lit(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope := evaluator.NewScope()
			_, err := evaluator.New(evaluator.ExecOptions{}).Eval(call(tt.callee, let("side", lit(1))), scope)
			expectRuntimeError(t, err, diagnostics.EType)
			if scope.Has("side") {
				t.Error("arguments were evaluated for a non-function callee")
			}
		})
	}
}

func TestCallUndefinedEvaluatesArgumentsFirst(t *testing.T) {
	scope := evaluator.NewScope()
	_, err := evaluator.New(evaluator.ExecOptions{}).Eval(call(get("nope"), let("side", lit(1))), scope)
	rtErr := expectRuntimeError(t, err, diagnostics.EUndefined)
	if rtErr.Message != "cannot call 'nope': it is not bound to a value" {
		t.Errorf("unexpected message: %s", rtErr.Message)
	}
	if !scope.Has("side") {
		t.Error("arguments should be evaluated before an undefined callee fails")
	}
}

func TestCallArgumentsLeftToRight(t *testing.T) {
	res := mustExecute(t, program(
		let("pair", fn([]string{"a", "b"}, bin(ast.OpSub, get("a"), get("b")))),
		let("x", lit(0)),
		call(get("pair"), let("x", bin(ast.OpAdd, get("x"), lit(10))), let("x", bin(ast.OpAdd, get("x"), lit(1)))),
	))
	// a = 10, b = 11
	expectNumber(t, res.Value, -1)
}

func TestCallEmptyBody(t *testing.T) {
	_, err := evaluator.Execute(program(let("f", fn(nil)), call(get("f"))), evaluator.ExecOptions{})
	expectRuntimeError(t, err, diagnostics.EEmptyBody)
}

// --- closure capture ---

func TestClosureDoesNotSeeLaterMutation(t *testing.T) {
	res := mustExecute(t, program(
		let("f", fn(nil, get("y"))),
		let("y", lit(5)),
		call(get("f")),
	))
	expectUndefined(t, res.Value)
}

func TestClosureSnapshotKeepsOldValue(t *testing.T) {
	res := mustExecute(t, program(
		let("y", lit(1)),
		let("f", fn(nil, get("y"))),
		let("y", lit(2)),
		call(get("f")),
	))
	expectNumber(t, res.Value, 1)
}

func TestAnonymousClosureSnapshot(t *testing.T) {
	scope := evaluator.NewScope()
	ev := evaluator.New(evaluator.ExecOptions{})
	f := mustEval(t, fn(nil, get("z")), scope)
	scope.BindInPlace("z", evaluator.NewNumber(9))

	v, err := ev.Call(f, nil)
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	expectUndefined(t, v)
}

func TestClosureCapturesParameters(t *testing.T) {
	// adder(a) returns fn(b) a + b
	res := mustExecute(t, program(
		let("adder", fn([]string{"a"}, fn([]string{"b"}, bin(ast.OpAdd, get("a"), get("b"))))),
		let("add5", call(get("adder"), lit(5))),
		call(get("add5"), lit(3)),
	))
	expectNumber(t, res.Value, 8)
}

// --- per-statement call scope ---

// Each body expression runs in its own fresh merge of the captured snapshot
// and the parameters, so a binding made by one body expression is not seen
// by the next.
func TestBodyBindingsDoNotPropagate(t *testing.T) {
	res := mustExecute(t, program(
		let("f", fn(nil, let("x", lit(1)), get("x"))),
		call(get("f")),
	))
	expectUndefined(t, res.Value)
}

func TestBodyBindingFallsBackToCaptured(t *testing.T) {
	res := mustExecute(t, program(
		let("x", lit(7)),
		let("f", fn(nil, let("x", lit(1)), get("x"))),
		call(get("f")),
		get("x"),
	))
	expectNumber(t, res.Values[2], 7)
	// The call did not touch the top-level scope.
	expectNumber(t, res.Values[3], 7)
}

func TestBodyParameterBindingsAreFreshPerStatement(t *testing.T) {
	res := mustExecute(t, program(
		let("f", fn([]string{"n"}, let("n", lit(100)), get("n"))),
		call(get("f"), lit(3)),
	))
	expectNumber(t, res.Value, 3)
}

// --- recursion ---

func TestFibonacci(t *testing.T) {
	res := mustExecute(t, fibProgram())
	expectNumber(t, res.Value, 89)
}

func TestRecursionSurvivesRebinding(t *testing.T) {
	prog := fibProgram()
	prog.Statements = []ast.Expr{
		prog.Statements[0],
		let("g", get("fib")),
		let("fib", lit(0)),
		call(get("g"), lit(10)),
	}
	res := mustExecute(t, prog)
	expectNumber(t, res.Value, 89)
}

func TestStackOverflow(t *testing.T) {
	prog := program(
		let("loop", fn([]string{"n"}, call(get("loop"), get("n")))),
		call(get("loop"), lit(1)),
	)
	res, err := evaluator.Execute(prog, evaluator.ExecOptions{Limits: evaluator.Limits{MaxDepth: 50}})
	expectRuntimeError(t, err, diagnostics.EStackOverflow)
	if res.Stats.MaxSeen != 50 {
		t.Errorf("max depth seen = %d, want 50", res.Stats.MaxSeen)
	}
	if res.Stats.Depth != 0 {
		t.Errorf("depth after unwinding = %d, want 0", res.Stats.Depth)
	}
}

func TestStackOverflowLimitIsCapped(t *testing.T) {
	// loop(n) = loop(n + 1) never terminates; an oversized limit still ends
	// in E_STACK_OVERFLOW at the ceiling.
	prog := program(
		let("loop", fn([]string{"n"}, call(get("loop"), bin(ast.OpAdd, get("n"), lit(1))))),
		call(get("loop"), lit(0)),
	)
	res, err := evaluator.Execute(prog, evaluator.ExecOptions{Limits: evaluator.Limits{MaxDepth: 50_000_000}})
	expectRuntimeError(t, err, diagnostics.EStackOverflow)
	if res.Stats.MaxSeen != evaluator.MaxDepthCeiling {
		t.Errorf("max depth seen = %d, want %d", res.Stats.MaxSeen, evaluator.MaxDepthCeiling)
	}
}

func TestDefaultDepthAllowsModerateRecursion(t *testing.T) {
	// count(n) = if n > 0 then count(n - 1)
	prog := program(
		let("count", fn([]string{"n"}, iff(bin(ast.OpGt, get("n"), lit(0)), call(get("count"), bin(ast.OpSub, get("n"), lit(1)))))),
		call(get("count"), lit(2000)),
	)
	res := mustExecute(t, prog)
	expectNumber(t, res.Value, 1)
	if res.Stats.MaxSeen != 2001 {
		t.Errorf("max depth seen = %d, want 2001", res.Stats.MaxSeen)
	}
}

// --- driver ---

func TestFailureHaltsProgramAndKeepsPriorBindings(t *testing.T) {
	scope := evaluator.NewScope()
	res, err := evaluator.Execute(program(
		let("x", lit(1)),
		call(lit(1)),
		let("y", lit(2)),
	), evaluator.ExecOptions{Scope: scope})
	expectRuntimeError(t, err, diagnostics.EType)

	if len(res.Values) != 1 {
		t.Errorf("completed values = %d, want 1", len(res.Values))
	}
	if !scope.Has("x") {
		t.Error("binding from completed statement was lost")
	}
	if scope.Has("y") {
		t.Error("statement after the failure was executed")
	}
}

func TestExecuteSharedScopeAcrossRuns(t *testing.T) {
	scope := evaluator.NewScope()
	if _, err := evaluator.Execute(program(let("x", lit(5))), evaluator.ExecOptions{Scope: scope}); err != nil {
		t.Fatal(err)
	}
	res, err := evaluator.Execute(program(bin(ast.OpAdd, get("x"), lit(1))), evaluator.ExecOptions{Scope: scope})
	if err != nil {
		t.Fatal(err)
	}
	expectNumber(t, res.Value, 6)
}

func TestEmptyProgram(t *testing.T) {
	res := mustExecute(t, program())
	expectUndefined(t, res.Value)
	if len(res.Values) != 0 {
		t.Errorf("got %d values, want 0", len(res.Values))
	}
}

func TestRuntimeErrorSpan(t *testing.T) {
	span := ast.Span{File: "prog.yaml", StartLine: 4, StartCol: 3}
	_, err := evaluator.New(evaluator.ExecOptions{}).Eval(&ast.Call{Span: span, Callee: lit(1)}, evaluator.NewScope())
	rtErr := expectRuntimeError(t, err, diagnostics.EType)
	if rtErr.Span == nil || *rtErr.Span != span {
		t.Errorf("span = %v, want %v", rtErr.Span, span)
	}

	_, err = evaluator.New(evaluator.ExecOptions{}).Eval(call(lit(1)), evaluator.NewScope())
	rtErr = expectRuntimeError(t, err, diagnostics.EType)
	if rtErr.Span != nil {
		t.Errorf("hand-built tree should carry no span, got %v", rtErr.Span)
	}
}

// --- host calls ---

func TestHostCall(t *testing.T) {
	res := mustExecute(t, fibProgram())
	fib := res.Scope.Get("fib")

	ev := evaluator.New(evaluator.ExecOptions{})
	v, err := ev.Call(fib, []evaluator.Value{evaluator.NewNumber(5)})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	expectNumber(t, v, 8)

	_, err = ev.Call(evaluator.NewBool(true), nil)
	expectRuntimeError(t, err, diagnostics.EType)
	_, err = ev.Call(nil, nil)
	expectRuntimeError(t, err, diagnostics.EUndefined)
}

// --- trace ---

func TestTraceEvents(t *testing.T) {
	var events []evaluator.TraceEvent
	res, err := evaluator.Execute(fibProgram(), evaluator.ExecOptions{
		RunID: "test",
		Trace: func(e evaluator.TraceEvent) { events = append(events, e) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) == 0 {
		t.Fatal("no trace events")
	}
	if events[0].Event != evaluator.TraceRunStart {
		t.Errorf("first event = %s, want run_start", events[0].Event)
	}
	if last := events[len(events)-1]; last.Event != evaluator.TraceRunEnd {
		t.Errorf("last event = %s, want run_end", last.Event)
	}

	counts := map[evaluator.TraceEventType]int64{}
	for _, e := range events {
		counts[e.Event]++
		if e.RunID != "test" {
			t.Fatalf("event %s has run id %q", e.Event, e.RunID)
		}
	}
	if counts[evaluator.TraceStmtStart] != 2 || counts[evaluator.TraceStmtEnd] != 2 {
		t.Errorf("statement events = %d/%d, want 2/2", counts[evaluator.TraceStmtStart], counts[evaluator.TraceStmtEnd])
	}
	if counts[evaluator.TraceFnCallStart] != res.Stats.Calls {
		t.Errorf("fn_call_start events = %d, calls = %d", counts[evaluator.TraceFnCallStart], res.Stats.Calls)
	}
	if counts[evaluator.TraceFnCallEnd] != res.Stats.Calls {
		t.Errorf("fn_call_end events = %d, calls = %d", counts[evaluator.TraceFnCallEnd], res.Stats.Calls)
	}
	// fib(10) makes 177 calls.
	if res.Stats.Calls != 177 {
		t.Errorf("calls = %d, want 177", res.Stats.Calls)
	}
}
