package transitions

import (
	"fmt"
	"sort"
	"strings"
)

// State is one node of a machine's state tree. Instances are created during
// machine construction and never mutated afterwards; callbacks receive them
// through EventData.
type State struct {
	name     string
	path     string
	parent   *State
	children []*State
	onEnter  []Callback
	onExit   []Callback
}

// Name returns the local segment of the state name.
func (s *State) Name() string { return s.name }

// Path returns the canonical path, parent segments joined by the tree separator.
func (s *State) Path() string { return s.path }

// Parent returns the enclosing state, nil for roots.
func (s *State) Parent() *State { return s.parent }

// Children returns the direct child states in declaration order.
func (s *State) Children() []*State {
	out := make([]*State, len(s.children))
	copy(out, s.children)
	return out
}

// IsLeaf reports whether the state has no children.
func (s *State) IsLeaf() bool { return len(s.children) == 0 }

// Depth returns the number of ancestors above the state.
func (s *State) Depth() int {
	d := 0
	for p := s.parent; p != nil; p = p.parent {
		d++
	}
	return d
}

// Ancestors returns the chain from the outermost ancestor down to the state
// itself.
func (s *State) Ancestors() []*State {
	var chain []*State
	for st := s; st != nil; st = st.parent {
		chain = append(chain, st)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// IsDescendantOf reports whether other is a proper ancestor of the state.
func (s *State) IsDescendantOf(other *State) bool {
	if s == nil || other == nil {
		return false
	}
	for p := s.parent; p != nil; p = p.parent {
		if p == other {
			return true
		}
	}
	return false
}

func (s *State) String() string { return s.path }

// StateTree indexes every state of a machine by canonical path. The tree is
// immutable once the machine is constructed.
type StateTree struct {
	separator string
	roots     []*State
	index     map[string]*State
}

func newStateTree(separator string) *StateTree {
	return &StateTree{
		separator: separator,
		index:     make(map[string]*State),
	}
}

// Separator returns the path separator token.
func (t *StateTree) Separator() string { return t.separator }

// Len returns the number of states in the tree.
func (t *StateTree) Len() int { return len(t.index) }

// Roots returns the top-level states in declaration order.
func (t *StateTree) Roots() []*State {
	out := make([]*State, len(t.roots))
	copy(out, t.roots)
	return out
}

// Resolve returns the state at the canonical path.
func (t *StateTree) Resolve(path string) (*State, error) {
	path = normalizeName(path)
	if path == "" {
		return nil, cloneMachineError(ErrUnknownState, "state path is required", nil, nil)
	}
	st, ok := t.index[path]
	if !ok {
		return nil, cloneMachineError(
			ErrUnknownState,
			fmt.Sprintf("state %q is not part of the machine", path),
			nil,
			map[string]any{"state": path},
		)
	}
	return st, nil
}

// Contains reports whether path names a state in the tree.
func (t *StateTree) Contains(path string) bool {
	_, ok := t.index[normalizeName(path)]
	return ok
}

// Paths returns every canonical path in the tree, sorted.
func (t *StateTree) Paths() []string {
	out := make([]string, 0, len(t.index))
	for p := range t.index {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Leaves returns every childless state in declaration order.
func (t *StateTree) Leaves() []*State {
	var out []*State
	t.Walk(func(st *State) {
		if st.IsLeaf() {
			out = append(out, st)
		}
	})
	return out
}

// CommonAncestor returns the deepest state containing both a and b, nil when
// they share none.
func (t *StateTree) CommonAncestor(a, b *State) *State {
	return commonAncestor(a, b)
}

// Walk visits every state depth-first in declaration order.
func (t *StateTree) Walk(fn func(*State)) {
	var visit func(*State)
	visit = func(st *State) {
		fn(st)
		for _, c := range st.children {
			visit(c)
		}
	}
	for _, r := range t.roots {
		visit(r)
	}
}

// add creates a state under parent (nil for a root) and indexes its path.
func (t *StateTree) add(parent *State, name string) (*State, error) {
	name = normalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("state name is required")
	}
	if strings.Contains(name, t.separator) {
		return nil, fmt.Errorf("state name %q contains the separator %q", name, t.separator)
	}
	path := name
	if parent != nil {
		path = parent.path + t.separator + name
	}
	if _, exists := t.index[path]; exists {
		return nil, fmt.Errorf("duplicate state path %q", path)
	}
	st := &State{name: name, path: path, parent: parent}
	if parent != nil {
		parent.children = append(parent.children, st)
	} else {
		t.roots = append(t.roots, st)
	}
	t.index[path] = st
	return st, nil
}

// commonAncestor returns the deepest state containing both a and b, nil when
// the two share no ancestor. a and b are depth-aligned first, then walked
// upwards in lockstep.
func commonAncestor(a, b *State) *State {
	if a == nil || b == nil {
		return nil
	}
	for a.Depth() > b.Depth() {
		a = a.parent
	}
	for b.Depth() > a.Depth() {
		b = b.parent
	}
	for a != b {
		a = a.parent
		b = b.parent
	}
	return a
}
