package ast_test

import (
	"testing"

	"github.com/charliemeyer/pickcode-micro/pkg/ast"
)

func TestNodeKinds(t *testing.T) {
	nodes := []ast.Node{
		&ast.Literal{Value: 42},
		&ast.GetVariable{Name: "x"},
		&ast.NewVariable{Name: "x", Value: &ast.Literal{Value: 1}},
		&ast.BinOp{Op: ast.OpAdd},
		&ast.If{},
		&ast.Func{},
		&ast.Call{},
		&ast.Program{},
	}

	expected := []string{
		"Literal", "GetVariable", "NewVariable", "BinOp",
		"If", "Func", "Call", "Program",
	}

	for i, node := range nodes {
		if got := node.Kind(); got != expected[i] {
			t.Errorf("node %d: got Kind() = %q, want %q", i, got, expected[i])
		}
	}
}

func TestBinaryOpValid(t *testing.T) {
	for _, op := range []ast.BinaryOp{ast.OpAdd, ast.OpSub, ast.OpGt} {
		if !op.Valid() {
			t.Errorf("%q should be valid", op)
		}
	}
	for _, op := range []ast.BinaryOp{"*", "<", ""} {
		if op.Valid() {
			t.Errorf("%q should not be valid", op)
		}
	}
}

func TestWalkOrder(t *testing.T) {
	// f(a + 1)
	tree := &ast.Call{
		Callee: &ast.GetVariable{Name: "f"},
		Args: []ast.Expr{
			&ast.BinOp{Op: ast.OpAdd, Left: &ast.GetVariable{Name: "a"}, Right: &ast.Literal{Value: 1}},
		},
	}

	var kinds []string
	ast.Walk(tree, func(e ast.Expr) bool {
		kinds = append(kinds, e.Kind())
		return true
	})

	want := []string{"Call", "GetVariable", "BinOp", "GetVariable", "Literal"}
	if len(kinds) != len(want) {
		t.Fatalf("got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("step %d: got %s, want %s", i, kinds[i], want[i])
		}
	}
}

func TestWalkSkipsChildren(t *testing.T) {
	tree := &ast.Func{Body: []ast.Expr{&ast.GetVariable{Name: "x"}}}
	count := 0
	ast.Walk(tree, func(e ast.Expr) bool {
		count++
		return false
	})
	if count != 1 {
		t.Errorf("visited %d nodes, want 1", count)
	}
}
