// Package hierarchy projects flat, relation-linked Source records into a
// parent-rooted tree and walks it top-down, so that parents are created
// before their children.
//
// A child whose parent has no real id yet is deferred: it is skipped in the
// current pass and created in a later one, once the parent's id is known.
// Deep hierarchies therefore converge over several passes.
package hierarchy

// NoArea is the root key for items without an area.
const NoArea = ""

// Key describes where an item sits in the hierarchy.
type Key struct {
	ID      string
	Parents []string
	Areas   []string
}

// Node is one projected item with its children.
type Node[T any] struct {
	Item     T
	Key      Key
	Children []*Node[T]
}

// Tree is the projection of a flat item list.
type Tree[T any] struct {
	// Roots maps each area to its top-level items.
	Roots map[string][]*Node[T]
	// Areas lists the keys of Roots in first-seen order.
	Areas []string

	all []*Node[T]
}

// Len is the number of projected items.
func (t *Tree[T]) Len() int { return len(t.all) }

// Build projects items into a tree.
//
// Items whose parents are all absent from items become roots under each of
// their areas, or under NoArea when they have none. Items with at least one
// known parent are appended to every known parent's children.
func Build[T any](items []T, key func(T) Key) *Tree[T] {
	t := &Tree[T]{Roots: make(map[string][]*Node[T])}
	byID := make(map[string]*Node[T], len(items))

	for _, it := range items {
		n := &Node[T]{Item: it, Key: key(it)}
		t.all = append(t.all, n)
		if n.Key.ID != "" {
			byID[n.Key.ID] = n
		}
	}

	for _, n := range t.all {
		linked := false
		for _, pid := range n.Key.Parents {
			if p, ok := byID[pid]; ok && p != n {
				p.Children = append(p.Children, n)
				linked = true
			}
		}
		if linked {
			continue
		}
		areas := n.Key.Areas
		if len(areas) == 0 {
			areas = []string{NoArea}
		}
		for _, a := range areas {
			if _, seen := t.Roots[a]; !seen {
				t.Areas = append(t.Areas, a)
			}
			t.Roots[a] = append(t.Roots[a], n)
		}
	}
	return t
}

// Ref is what a visitor learned about a node: the id it has in the store
// being written, and whether that id is only temporary.
type Ref struct {
	ID        string
	Temporary bool
	// Root marks the virtual parent of top-level items.
	Root bool
}

// RootRef is the parent reference handed to top-level items.
var RootRef = Ref{Root: true}

// Deferred reports whether a child of this reference must wait for a later
// pass: the parent exists but has no id yet, or only a temporary one.
func (r Ref) Deferred() bool {
	return !r.Root && (r.ID == "" || r.Temporary)
}

// Visitor handles one node given its parent's reference and returns the
// node's own reference for its children.
type Visitor[T any] func(parent Ref, item T) Ref

// Walk visits the tree pre-order: areas in first-seen order, then each root
// followed by its descendants. Every node is visited once even when it has
// several parents. Nodes unreachable from any root, which only happens with
// cyclic relations, are visited last as roots.
func Walk[T any](t *Tree[T], visit Visitor[T]) {
	visited := make(map[*Node[T]]bool, len(t.all))

	var walk func(parent Ref, n *Node[T])
	walk = func(parent Ref, n *Node[T]) {
		if visited[n] {
			return
		}
		visited[n] = true
		self := visit(parent, n.Item)
		for _, c := range n.Children {
			walk(self, c)
		}
	}

	for _, a := range t.Areas {
		for _, n := range t.Roots[a] {
			walk(RootRef, n)
		}
	}
	for _, n := range t.all {
		walk(RootRef, n)
	}
}
