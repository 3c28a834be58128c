package evaluator

// DefaultMaxDepth bounds nested function calls when Limits.MaxDepth is not
// set.
const DefaultMaxDepth = 10000

// MaxDepthCeiling caps Limits.MaxDepth. It stays well below the depth at
// which the Go stack itself overflows.
const MaxDepthCeiling = 100000

// Limits holds the resource limits for a program execution.
type Limits struct {
	MaxDepth int
}

func (l Limits) maxDepth() int {
	if l.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	if l.MaxDepth > MaxDepthCeiling {
		return MaxDepthCeiling
	}
	return l.MaxDepth
}

// Tracker records resource consumption during execution.
type Tracker struct {
	Depth      int
	MaxSeen    int
	Calls      int64
	Statements int64
}
