// Package diagnostics defines micro diagnostic types for decode, check and runtime errors.
package diagnostics

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charliemeyer/pickcode-micro/pkg/ast"
)

// Diagnostic code constants.
const (
	EAst           = "E_AST"
	EType          = "E_TYPE"
	EUndefined     = "E_UNDEFINED"
	EEmptyBody     = "E_EMPTY_BODY"
	EStackOverflow = "E_STACK_OVERFLOW"
	EDupParam      = "E_DUP_PARAM"
	EBodyScope     = "E_BODY_SCOPE"
	EConfig        = "E_CONFIG"
	EIO            = "E_IO"
)

// Severity levels. An empty severity means error.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Diagnostic represents a decode, check, or runtime diagnostic.
type Diagnostic struct {
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Span     *ast.Span `json:"span,omitempty"`
	Hint     string    `json:"hint,omitempty"`
	Severity string    `json:"severity,omitempty"`
}

// MakeDiag creates a new error Diagnostic.
func MakeDiag(code, message string, span *ast.Span, hint string) Diagnostic {
	return Diagnostic{
		Code:    code,
		Message: message,
		Span:    span,
		Hint:    hint,
	}
}

// MakeWarning creates a new warning Diagnostic.
func MakeWarning(code, message string, span *ast.Span, hint string) Diagnostic {
	d := MakeDiag(code, message, span, hint)
	d.Severity = SeverityWarning
	return d
}

// IsError reports whether the diagnostic should fail a check.
func (d Diagnostic) IsError() bool {
	return d.Severity == "" || d.Severity == SeverityError
}

// HasErrors reports whether any diagnostic in diags is an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.IsError() {
			return true
		}
	}
	return false
}

// FormatDiagnostic formats a single diagnostic for display.
func FormatDiagnostic(d Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(d)
		return string(b)
	}
	loc := "<unknown>"
	if d.Span != nil && !d.Span.IsZero() {
		loc = fmt.Sprintf("%s:%d:%d", d.Span.File, d.Span.StartLine, d.Span.StartCol)
	}
	label := "error"
	if !d.IsError() {
		label = d.Severity
	}
	out := fmt.Sprintf("%s[%s]: %s\n  --> %s", label, d.Code, d.Message, loc)
	if d.Hint != "" {
		out += fmt.Sprintf("\n  hint: %s", d.Hint)
	}
	return out
}

// FormatDiagnostics formats a slice of diagnostics for display.
func FormatDiagnostics(diags []Diagnostic, pretty bool) string {
	if !pretty {
		b, _ := json.Marshal(diags)
		return string(b)
	}
	parts := make([]string, len(diags))
	for i, d := range diags {
		parts[i] = FormatDiagnostic(d, true)
	}
	return strings.Join(parts, "\n\n")
}
