package weave

import (
	"github.com/nstogner/tapestry/pkg/ulid"
)

// Restore rebuilds a weave from snapshots, as produced by Nodes, Roots,
// Bookmarks and ActiveRoot. nodes must be in creation order. The result is
// validated; any inconsistency yields an InvariantViolation and no weave.
func Restore(nodes []Node, roots, bookmarks []ulid.ID, activeRoot *ulid.ID, opts ...Option) (*Weave, error) {
	w := New(opts...)
	for _, s := range nodes {
		if _, dup := w.nodes[s.ID]; dup {
			return nil, Errorf(KindInvariantViolation, "node %s appears more than once", s.ID)
		}
		if err := checkContent(s.Content, KindInvariantViolation); err != nil {
			return nil, err
		}
		w.nodes[s.ID] = &node{
			id:         s.ID,
			parent:     idOrNil(s.Parent),
			children:   append([]ulid.ID(nil), s.Children...),
			active:     idOrNil(s.ActiveChild),
			content:    s.Content.Clone(),
			bookmarked: s.Bookmarked,
			metadata:   s.Metadata.Clone(),
		}
		w.order = append(w.order, s.ID)
	}
	w.roots = append(w.roots, roots...)
	w.bookmarks = append(w.bookmarks, bookmarks...)
	w.activeRoot = idOrNil(activeRoot)

	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate checks the document invariants: parent and child links agree,
// roots and bookmarks match the node flags, active links point at children
// or roots, the forest is acyclic and every id is unique.
func (w *Weave) Validate() error {
	if len(w.order) != len(w.nodes) {
		return Errorf(KindInvariantViolation, "creation order lists %d ids for %d nodes", len(w.order), len(w.nodes))
	}
	seen := make(map[ulid.ID]struct{}, len(w.order))
	for _, id := range w.order {
		if _, ok := w.nodes[id]; !ok {
			return Errorf(KindInvariantViolation, "creation order references unknown node %s", id)
		}
		if _, dup := seen[id]; dup {
			return Errorf(KindInvariantViolation, "node %s listed twice in creation order", id)
		}
		seen[id] = struct{}{}
	}

	rootCount := 0
	bookmarkedCount := 0
	for id, n := range w.nodes {
		if id.IsNil() || n.id != id {
			return Errorf(KindInvariantViolation, "node stored under %s has id %s", id, n.id)
		}
		if n.bookmarked {
			bookmarkedCount++
		}
		if n.parent.IsNil() {
			rootCount++
		} else {
			p, ok := w.nodes[n.parent]
			if !ok {
				return Errorf(KindInvariantViolation, "node %s has unknown parent %s", id, n.parent)
			}
			if count(p.children, id) != 1 {
				return Errorf(KindInvariantViolation, "node %s listed %d times under parent %s", id, count(p.children, id), p.id)
			}
		}
		for _, c := range n.children {
			cn, ok := w.nodes[c]
			if !ok {
				return Errorf(KindInvariantViolation, "node %s has unknown child %s", id, c)
			}
			if cn.parent != id {
				return Errorf(KindInvariantViolation, "child %s of node %s names parent %s", c, id, cn.parent)
			}
		}
		if !n.active.IsNil() && count(n.children, n.active) == 0 {
			return Errorf(KindInvariantViolation, "active child %s of node %s is not a child", n.active, id)
		}
	}

	if len(w.roots) != rootCount {
		return Errorf(KindInvariantViolation, "roots lists %d ids for %d parentless nodes", len(w.roots), rootCount)
	}
	roots := make(map[ulid.ID]struct{}, len(w.roots))
	for _, r := range w.roots {
		n, ok := w.nodes[r]
		if !ok || !n.parent.IsNil() {
			return Errorf(KindInvariantViolation, "root %s is unknown or has a parent", r)
		}
		if _, dup := roots[r]; dup {
			return Errorf(KindInvariantViolation, "root %s listed more than once", r)
		}
		roots[r] = struct{}{}
	}

	if len(w.bookmarks) != bookmarkedCount {
		return Errorf(KindInvariantViolation, "bookmarks lists %d ids for %d bookmarked nodes", len(w.bookmarks), bookmarkedCount)
	}
	marks := make(map[ulid.ID]struct{}, len(w.bookmarks))
	for _, b := range w.bookmarks {
		n, ok := w.nodes[b]
		if !ok || !n.bookmarked {
			return Errorf(KindInvariantViolation, "bookmark %s is unknown or not bookmarked", b)
		}
		if _, dup := marks[b]; dup {
			return Errorf(KindInvariantViolation, "bookmark %s listed more than once", b)
		}
		marks[b] = struct{}{}
	}

	if _, ok := roots[w.activeRoot]; !w.activeRoot.IsNil() && !ok {
		return Errorf(KindInvariantViolation, "active root %s is not a root", w.activeRoot)
	}

	// Every node must be reachable from a root; a parent cycle is not.
	visited := 0
	stack := append([]ulid.ID(nil), w.roots...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++
		if visited > len(w.nodes) {
			break
		}
		stack = append(stack, w.nodes[id].children...)
	}
	if visited != len(w.nodes) {
		return Errorf(KindInvariantViolation, "%d of %d nodes reachable from roots", visited, len(w.nodes))
	}
	return nil
}

func count(ids []ulid.ID, id ulid.ID) int {
	n := 0
	for _, x := range ids {
		if x == id {
			n++
		}
	}
	return n
}
