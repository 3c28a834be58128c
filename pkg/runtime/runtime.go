// Package runtime provides the top-level micro runtime orchestrator.
package runtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charliemeyer/pickcode-micro/pkg/config"
	"github.com/charliemeyer/pickcode-micro/pkg/decoder"
	"github.com/charliemeyer/pickcode-micro/pkg/diagnostics"
	"github.com/charliemeyer/pickcode-micro/pkg/evaluator"
	"github.com/charliemeyer/pickcode-micro/pkg/formatter"
	"github.com/charliemeyer/pickcode-micro/pkg/validator"
)

// Result holds the outcome of a program execution.
type Result struct {
	// Value is the result of the last statement, nil when it produced no
	// value or the program was empty.
	Value  evaluator.Value
	Values []evaluator.Value
	Scope  *evaluator.Scope
	Stats  evaluator.Tracker
}

// Runtime wires together the decoder, validator, formatter and evaluator.
type Runtime struct {
	limits evaluator.Limits
	scope  *evaluator.Scope
	runID  string
	trace  func(event evaluator.TraceEvent)
}

// Option is a functional option for configuring the Runtime.
type Option func(*Runtime)

// WithConfig applies settings loaded by the config package.
func WithConfig(cfg *config.Config) Option {
	return func(rt *Runtime) {
		rt.limits = cfg.Limits()
	}
}

// WithMaxDepth bounds nested function calls.
func WithMaxDepth(n int) Option {
	return func(rt *Runtime) {
		rt.limits.MaxDepth = n
	}
}

// WithScope makes every Run share scope as its top-level scope, so bindings
// survive from one run to the next.
func WithScope(scope *evaluator.Scope) Option {
	return func(rt *Runtime) {
		rt.scope = scope
	}
}

// WithRunID sets the run ID for trace events.
func WithRunID(id string) Option {
	return func(rt *Runtime) {
		rt.runID = id
	}
}

// WithTrace sets the trace callback.
func WithTrace(fn func(event evaluator.TraceEvent)) Option {
	return func(rt *Runtime) {
		rt.trace = fn
	}
}

// New creates a new Runtime with the given options.
func New(opts ...Option) *Runtime {
	rt := &Runtime{runID: "cli"}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Run decodes and executes a program. Decode failures are returned as a
// *DiagnosticError; evaluation failures as *evaluator.RuntimeError together
// with the partial result of the statements that completed.
func (rt *Runtime) Run(source, filename string) (*Result, error) {
	program, diags := decoder.Decode(source, filename)
	if len(diags) > 0 {
		return nil, &DiagnosticError{Diagnostics: diags}
	}

	result, err := evaluator.Execute(program, evaluator.ExecOptions{
		Scope:  rt.scope,
		Limits: rt.limits,
		Trace:  rt.trace,
		RunID:  rt.runID,
	})
	if result == nil {
		return nil, err
	}
	return &Result{
		Value:  result.Value,
		Values: result.Values,
		Scope:  result.Scope,
		Stats:  result.Stats,
	}, err
}

// Check decodes and validates a program without executing it. Warnings are
// returned alongside errors; use diagnostics.HasErrors to decide failure.
func (rt *Runtime) Check(source, filename string) []diagnostics.Diagnostic {
	program, diags := decoder.Decode(source, filename)
	if len(diags) > 0 {
		return diags
	}
	return validator.Validate(program)
}

// Format decodes and formats a program.
func (rt *Runtime) Format(source, filename string) (string, error) {
	program, diags := decoder.Decode(source, filename)
	if len(diags) > 0 {
		return "", &DiagnosticError{Diagnostics: diags}
	}
	return formatter.Format(program), nil
}

// DiagnosticError wraps diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []diagnostics.Diagnostic
}

func (e *DiagnosticError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = fmt.Sprintf("%s: %s", d.Code, d.Message)
	}
	return strings.Join(msgs, "; ")
}

// ErrorDiagnostics converts an error returned by Run into diagnostics for
// display. Errors of unknown type become a single E_IO diagnostic.
func ErrorDiagnostics(err error) []diagnostics.Diagnostic {
	var diagErr *DiagnosticError
	if errors.As(err, &diagErr) {
		return diagErr.Diagnostics
	}
	var rtErr *evaluator.RuntimeError
	if errors.As(err, &rtErr) {
		return []diagnostics.Diagnostic{diagnostics.MakeDiag(rtErr.Code, rtErr.Message, rtErr.Span, "")}
	}
	return []diagnostics.Diagnostic{diagnostics.MakeDiag(diagnostics.EIO, err.Error(), nil, "")}
}
