package evaluator

import (
	"hash/fnv"
	"sort"

	"github.com/raviqqe/hamt"
)

// Scope maps variable names to values.
//
// Bindings live in a persistent map, so taking a snapshot is O(1) and a
// snapshot never observes bindings made after it was taken. The Scope
// itself is the mutable handle: the top-level scope is one *Scope shared by
// every top-level statement, and BindInPlace on it is visible to all of them.
//
// A Scope must not be used from more than one goroutine at a time.
type Scope struct {
	vars hamt.Map
}

// name is a hamt key.
type name string

func (n name) Hash() uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(n))
	return h.Sum32()
}

func (n name) Equal(e hamt.Entry) bool {
	o, ok := e.(name)
	return ok && o == n
}

// binding boxes a Value so that a name explicitly bound to "no value" is
// distinguishable from an unbound name.
type binding struct {
	v Value
}

// NewScope creates an empty scope.
func NewScope() *Scope {
	return &Scope{vars: hamt.NewMap()}
}

// Lookup returns the value bound to n and whether n is bound at all.
// A name can be bound to the absent value, in which case Lookup returns
// (nil, true).
func (s *Scope) Lookup(n string) (Value, bool) {
	found := s.vars.Find(name(n))
	if found == nil {
		return nil, false
	}
	return found.(binding).v, true
}

// Get returns the value bound to n, or nil if n is unbound.
func (s *Scope) Get(n string) Value {
	v, _ := s.Lookup(n)
	return v
}

// Has reports whether n is bound in this scope.
func (s *Scope) Has(n string) bool {
	_, ok := s.Lookup(n)
	return ok
}

// BindInPlace binds n to v, mutating this scope object. Everyone holding
// this *Scope sees the binding; snapshots taken earlier do not.
func (s *Scope) BindInPlace(n string, v Value) {
	s.vars = s.vars.Insert(name(n), binding{v: v})
}

// Len returns the number of bound names.
func (s *Scope) Len() int {
	return s.vars.Size()
}

// Names returns the bound names in sorted order.
func (s *Scope) Names() []string {
	names := make([]string, 0, s.vars.Size())
	rest := s.vars
	for rest.Size() > 0 {
		var k hamt.Entry
		k, _, rest = rest.FirstRest()
		names = append(names, string(k.(name)))
	}
	sort.Strings(names)
	return names
}

// Clone returns an independent scope with the same bindings.
func (s *Scope) Clone() *Scope {
	return &Scope{vars: s.vars}
}

func (s *Scope) snapshot() hamt.Map {
	return s.vars
}
