// Package ast defines the micro expression-tree node types.
package ast

// Span represents a source location. Trees built in Go carry a zero Span;
// the decoder fills it from the document the tree was read from.
type Span struct {
	File      string `json:"file"`
	StartLine int    `json:"startLine"`
	StartCol  int    `json:"startCol"`
}

// IsZero reports whether the span carries no location.
func (s Span) IsZero() bool {
	return s.File == "" && s.StartLine == 0 && s.StartCol == 0
}

// Node is the interface implemented by all AST nodes.
type Node interface {
	Kind() string
	NodeSpan() Span
}

// BinaryOp represents a binary operator.
type BinaryOp string

const (
	OpAdd BinaryOp = "+"
	OpSub BinaryOp = "-"
	OpGt  BinaryOp = ">"
)

// Valid reports whether op is one of the supported operators.
func (op BinaryOp) Valid() bool {
	switch op {
	case OpAdd, OpSub, OpGt:
		return true
	}
	return false
}

// Expr is the interface for all expression nodes. The set of
// implementations is closed: Literal, GetVariable, NewVariable, BinOp, If,
// Func and Call.
type Expr interface {
	Node
	exprNode() // sealed marker
}

// Literal is a fixed numeric constant.
type Literal struct {
	Span  Span
	Value float64
}

func (n *Literal) Kind() string   { return "Literal" }
func (n *Literal) NodeSpan() Span { return n.Span }
func (n *Literal) exprNode()      {}

// GetVariable reads a name from the scope.
type GetVariable struct {
	Span Span
	Name string
}

func (n *GetVariable) Kind() string   { return "GetVariable" }
func (n *GetVariable) NodeSpan() Span { return n.Span }
func (n *GetVariable) exprNode()      {}

// NewVariable evaluates Value and binds it under Name in the scope it is
// evaluated against.
type NewVariable struct {
	Span  Span
	Name  string
	Value Expr
}

func (n *NewVariable) Kind() string   { return "NewVariable" }
func (n *NewVariable) NodeSpan() Span { return n.Span }
func (n *NewVariable) exprNode()      {}

type BinOp struct {
	Span  Span
	Op    BinaryOp
	Left  Expr
	Right Expr
}

func (n *BinOp) Kind() string   { return "BinOp" }
func (n *BinOp) NodeSpan() Span { return n.Span }
func (n *BinOp) exprNode()      {}

// If has no else branch. A condition that is not Boolean true yields
// Number(1).
type If struct {
	Span Span
	Cond Expr
	Then Expr
}

func (n *If) Kind() string   { return "If" }
func (n *If) NodeSpan() Span { return n.Span }
func (n *If) exprNode()      {}

// Func produces a closure over a snapshot of the scope it is evaluated in.
type Func struct {
	Span   Span
	Params []string
	Body   []Expr
}

func (n *Func) Kind() string   { return "Func" }
func (n *Func) NodeSpan() Span { return n.Span }
func (n *Func) exprNode()      {}

type Call struct {
	Span   Span
	Callee Expr
	Args   []Expr
}

func (n *Call) Kind() string   { return "Call" }
func (n *Call) NodeSpan() Span { return n.Span }
func (n *Call) exprNode()      {}

// --- Program ---

// Program is an ordered sequence of top-level expressions evaluated against
// one shared scope.
type Program struct {
	Span       Span
	Statements []Expr
}

func (n *Program) Kind() string   { return "Program" }
func (n *Program) NodeSpan() Span { return n.Span }

// Walk calls fn for node and each of its descendants in evaluation order.
// If fn returns false the children of that node are skipped.
func Walk(node Expr, fn func(Expr) bool) {
	if node == nil || !fn(node) {
		return
	}
	switch n := node.(type) {
	case *NewVariable:
		Walk(n.Value, fn)
	case *BinOp:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case *If:
		Walk(n.Cond, fn)
		Walk(n.Then, fn)
	case *Func:
		for _, e := range n.Body {
			Walk(e, fn)
		}
	case *Call:
		Walk(n.Callee, fn)
		for _, a := range n.Args {
			Walk(a, fn)
		}
	}
}
