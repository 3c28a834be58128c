// Package decoder reads micro expression trees from YAML or JSON documents.
//
// A document is either a sequence of expression nodes (the program's
// top-level statements) or a single expression node. Each node is a mapping
// with exactly one discriminating key:
//
//	{lit: 10}                                  Literal
//	{get: n}                                   GetVariable
//	{let: fib, value: <expr>}                  NewVariable
//	{op: "+", left: <expr>, right: <expr>}     BinOp ("+", "-", ">")
//	{if: <expr>, then: <expr>}                 If
//	{fn: [n], body: [<expr>, ...]}             Func
//	{call: <expr>, args: [<expr>, ...]}        Call
//
// JSON documents are accepted as the YAML subset they are.
package decoder

import (
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/charliemeyer/pickcode-micro/pkg/ast"
	"github.com/charliemeyer/pickcode-micro/pkg/diagnostics"
)

type nodeShape struct {
	kind     string
	required []string
	optional []string
}

// shapes is keyed by discriminating key.
var shapes = map[string]nodeShape{
	"lit":  {kind: "Literal"},
	"get":  {kind: "GetVariable"},
	"let":  {kind: "NewVariable", required: []string{"value"}},
	"op":   {kind: "BinOp", required: []string{"left", "right"}},
	"if":   {kind: "If", required: []string{"then"}},
	"fn":   {kind: "Func", optional: []string{"body"}},
	"call": {kind: "Call", optional: []string{"args"}},
}

type decoder struct {
	file  string
	diags []diagnostics.Diagnostic
}

// Decode decodes source into a program. filename is recorded in node spans.
// When diagnostics are returned the program is nil.
func Decode(source, filename string) (*ast.Program, []diagnostics.Diagnostic) {
	d := &decoder{file: filename}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(source), &doc); err != nil {
		d.errorf(nil, "cannot decode %s: %s", filename, strings.TrimPrefix(err.Error(), "yaml: "))
		return nil, d.diags
	}

	prog := &ast.Program{Span: ast.Span{File: filename, StartLine: 1, StartCol: 1}}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		// Empty document: empty program.
		return prog, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		for _, item := range root.Content {
			if e := d.expr(item); e != nil {
				prog.Statements = append(prog.Statements, e)
			}
		}
	case yaml.MappingNode:
		if e := d.expr(root); e != nil {
			prog.Statements = append(prog.Statements, e)
		}
	default:
		d.errorf(root, "document must be a sequence of expressions or a single expression")
	}

	if len(d.diags) > 0 {
		return nil, d.diags
	}
	return prog, nil
}

func (d *decoder) span(n *yaml.Node) ast.Span {
	return ast.Span{File: d.file, StartLine: n.Line, StartCol: n.Column}
}

func (d *decoder) errorf(n *yaml.Node, format string, args ...any) {
	var span *ast.Span
	if n != nil {
		s := d.span(n)
		span = &s
	}
	d.diags = append(d.diags, diagnostics.MakeDiag(diagnostics.EAst, fmt.Sprintf(format, args...), span, ""))
}

func (d *decoder) hintf(n *yaml.Node, hint, format string, args ...any) {
	d.errorf(n, format, args...)
	d.diags[len(d.diags)-1].Hint = hint
}

// aliasError reports an alias. Aliases are never expanded, so anchors cannot
// build cyclic or shared trees.
func (d *decoder) aliasError(n *yaml.Node) {
	d.hintf(n, "write the node out in full", "aliases are not supported (*%s)", n.Value)
}

// fields indexes a mapping node by key, reporting duplicate and non-scalar
// keys.
func (d *decoder) fields(n *yaml.Node) (map[string]*yaml.Node, []string, bool) {
	out := make(map[string]*yaml.Node, len(n.Content)/2)
	var order []string
	ok := true
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			d.errorf(k, "node keys must be strings")
			ok = false
			continue
		}
		if _, dup := out[k.Value]; dup {
			d.errorf(k, "duplicate key '%s'", k.Value)
			ok = false
			continue
		}
		out[k.Value] = v
		order = append(order, k.Value)
	}
	return out, order, ok
}

func (d *decoder) expr(n *yaml.Node) ast.Expr {
	if n.Kind == yaml.AliasNode {
		d.aliasError(n)
		return nil
	}
	if n.Kind != yaml.MappingNode {
		d.hintf(n, "e.g. {lit: 1} or {get: x}", "expected an expression node, got %s", describe(n))
		return nil
	}

	fields, order, ok := d.fields(n)
	if !ok {
		return nil
	}

	var disc []string
	for _, k := range order {
		if _, isDisc := shapes[k]; isDisc {
			disc = append(disc, k)
		}
	}
	switch len(disc) {
	case 0:
		d.hintf(n, "node kinds: "+knownKinds(), "expression node has no kind key")
		return nil
	case 1:
	default:
		d.errorf(n, "expression node has several kind keys: %s", strings.Join(disc, ", "))
		return nil
	}

	key := disc[0]
	shape := shapes[key]
	allowed := map[string]bool{key: true}
	for _, f := range shape.required {
		allowed[f] = true
		if _, present := fields[f]; !present {
			d.errorf(n, "%s node is missing '%s'", shape.kind, f)
			ok = false
		}
	}
	for _, f := range shape.optional {
		allowed[f] = true
	}
	for _, k := range order {
		if !allowed[k] {
			d.errorf(n, "unknown key '%s' in %s node", k, shape.kind)
			ok = false
		}
	}
	if !ok {
		return nil
	}

	span := d.span(n)
	switch key {
	case "lit":
		return d.literal(fields["lit"], span)

	case "get":
		name, ok := d.name(fields["get"])
		if !ok {
			return nil
		}
		return &ast.GetVariable{Span: span, Name: name}

	case "let":
		name, ok := d.name(fields["let"])
		value := d.expr(fields["value"])
		if !ok || value == nil {
			return nil
		}
		return &ast.NewVariable{Span: span, Name: name, Value: value}

	case "op":
		op := fields["op"]
		if op.Kind != yaml.ScalarNode || !ast.BinaryOp(op.Value).Valid() {
			d.hintf(op, `quote operators in YAML: op: ">"`, "unknown operator %s", describe(op))
		}
		left := d.expr(fields["left"])
		right := d.expr(fields["right"])
		if left == nil || right == nil || !ast.BinaryOp(op.Value).Valid() {
			return nil
		}
		return &ast.BinOp{Span: span, Op: ast.BinaryOp(op.Value), Left: left, Right: right}

	case "if":
		cond := d.expr(fields["if"])
		then := d.expr(fields["then"])
		if cond == nil || then == nil {
			return nil
		}
		return &ast.If{Span: span, Cond: cond, Then: then}

	case "fn":
		params, ok := d.params(fields["fn"])
		body, bodyOK := d.exprList(fields["body"], "body")
		if !ok || !bodyOK {
			return nil
		}
		return &ast.Func{Span: span, Params: params, Body: body}

	case "call":
		callee := d.expr(fields["call"])
		args, argsOK := d.exprList(fields["args"], "args")
		if callee == nil || !argsOK {
			return nil
		}
		return &ast.Call{Span: span, Callee: callee, Args: args}
	}
	return nil
}

func (d *decoder) literal(n *yaml.Node, span ast.Span) ast.Expr {
	if n.Kind != yaml.ScalarNode || (n.Tag != "!!int" && n.Tag != "!!float") {
		d.hintf(n, "booleans come from comparisons, e.g. {op: \">\", ...}", "literal must be a number, got %s", describe(n))
		return nil
	}
	var f float64
	if err := n.Decode(&f); err != nil {
		d.errorf(n, "invalid number %q: %s", n.Value, err)
		return nil
	}
	return &ast.Literal{Span: span, Value: f}
}

func (d *decoder) name(n *yaml.Node) (string, bool) {
	if n.Kind != yaml.ScalarNode || n.Value == "" {
		d.errorf(n, "expected a variable name, got %s", describe(n))
		return "", false
	}
	return n.Value, true
}

func (d *decoder) params(n *yaml.Node) ([]string, bool) {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!null" {
		return nil, true
	}
	if n.Kind == yaml.AliasNode {
		d.aliasError(n)
		return nil, false
	}
	if n.Kind != yaml.SequenceNode {
		d.errorf(n, "fn parameters must be a list of names, got %s", describe(n))
		return nil, false
	}
	params := make([]string, 0, len(n.Content))
	ok := true
	for _, p := range n.Content {
		name, valid := d.name(p)
		if !valid {
			ok = false
			continue
		}
		params = append(params, name)
	}
	return params, ok
}

// exprList decodes an optional sequence of expressions. A missing or null
// field is an empty list.
func (d *decoder) exprList(n *yaml.Node, field string) ([]ast.Expr, bool) {
	if n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null") {
		return nil, true
	}
	if n.Kind == yaml.AliasNode {
		d.aliasError(n)
		return nil, false
	}
	if n.Kind != yaml.SequenceNode {
		d.errorf(n, "'%s' must be a list of expressions, got %s", field, describe(n))
		return nil, false
	}
	out := make([]ast.Expr, 0, len(n.Content))
	ok := true
	for _, item := range n.Content {
		e := d.expr(item)
		if e == nil {
			ok = false
			continue
		}
		out = append(out, e)
	}
	return out, ok
}

func describe(n *yaml.Node) string {
	switch n.Kind {
	case yaml.MappingNode:
		return "a mapping"
	case yaml.SequenceNode:
		return "a list"
	case yaml.AliasNode:
		return "an alias"
	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return "null"
		}
		return fmt.Sprintf("%q", n.Value)
	}
	return "an unsupported node"
}

func knownKinds() string {
	keys := make([]string, 0, len(shapes))
	for k := range shapes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
