// Package weave implements the Tapestry Weave document: a forest of nodes
// carrying ordered content fragments, with bookmarks and a single active
// thread selected by per-node active children.
//
// A Weave is not safe for concurrent use. Hosts serialize access per
// document (see pkg/document).
package weave

import (
	"slices"

	"github.com/nstogner/tapestry/pkg/ulid"
)

// Weave is the in-memory document. Nodes live in an arena keyed by ID;
// parent, child and activation links are IDs into that arena.
type Weave struct {
	gen *ulid.Generator

	nodes      map[ulid.ID]*node
	order      []ulid.ID // creation order
	roots      []ulid.ID
	bookmarks  []ulid.ID
	activeRoot ulid.ID
}

// Option configures a Weave.
type Option func(*Weave)

// WithGenerator sets the ID source for new nodes. The default is the process
// generator, ulid.Default().
func WithGenerator(g *ulid.Generator) Option {
	return func(w *Weave) {
		w.gen = g
	}
}

// New returns an empty weave.
func New(opts ...Option) *Weave {
	w := &Weave{nodes: make(map[ulid.ID]*node)}
	for _, opt := range opts {
		opt(w)
	}
	if w.gen == nil {
		w.gen = ulid.Default()
	}
	return w
}

// Len returns the number of nodes.
func (w *Weave) Len() int { return len(w.nodes) }

// Node returns a snapshot of the node with the given id.
func (w *Weave) Node(id ulid.ID) (Node, bool) {
	n, ok := w.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.snapshot(), true
}

// Contains reports whether id is a node of the weave.
func (w *Weave) Contains(id ulid.ID) bool {
	_, ok := w.nodes[id]
	return ok
}

// Nodes returns snapshots of every node in creation order.
func (w *Weave) Nodes() []Node {
	out := make([]Node, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.nodes[id].snapshot())
	}
	return out
}

// Roots returns the parentless nodes in insertion order.
func (w *Weave) Roots() []ulid.ID { return slices.Clone(w.roots) }

// Bookmarks returns the bookmarked nodes, least recently bookmarked first.
func (w *Weave) Bookmarks() []ulid.ID { return slices.Clone(w.bookmarks) }

// ActiveRoot returns the root the active thread starts from.
func (w *Weave) ActiveRoot() (ulid.ID, bool) {
	return w.activeRoot, !w.activeRoot.IsNil()
}

// ActiveThread returns the ids from the active root down through each
// node's active child. It is empty when no root is active.
func (w *Weave) ActiveThread() []ulid.ID {
	thread := []ulid.ID{}
	for id := w.activeRoot; !id.IsNil(); {
		n, ok := w.nodes[id]
		if !ok || len(thread) > len(w.nodes) {
			break
		}
		thread = append(thread, id)
		id = n.active
	}
	return thread
}

func (w *Weave) get(id ulid.ID) (*node, error) {
	n, ok := w.nodes[id]
	if !ok {
		return nil, Errorf(KindUnknownNode, "node %s not found", id)
	}
	return n, nil
}

func (w *Weave) newID() ulid.ID {
	for {
		id := w.gen.New()
		if _, taken := w.nodes[id]; !taken {
			return id
		}
	}
}

// AddNode creates a node under d.Parent, or a new root when d.Parent is nil,
// and returns its id. The node is appended after any existing siblings.
// Activation is left untouched.
func (w *Weave) AddNode(d DependentNode) (ulid.ID, error) {
	var parent *node
	if d.Parent != nil {
		p, err := w.get(*d.Parent)
		if err != nil {
			return ulid.Nil, err
		}
		parent = p
	}
	if err := checkContent(d.Content, KindMalformedFrame); err != nil {
		return ulid.Nil, err
	}

	n := &node{
		id:         w.newID(),
		content:    d.Content.Clone(),
		metadata:   d.Metadata.Clone(),
		bookmarked: d.Bookmarked,
	}
	if parent != nil {
		n.parent = parent.id
		parent.children = append(parent.children, n.id)
	} else {
		w.roots = append(w.roots, n.id)
	}
	if n.bookmarked {
		w.bookmarks = append(w.bookmarks, n.id)
	}
	w.nodes[n.id] = n
	w.order = append(w.order, n.id)
	return n.id, nil
}

// RemoveNode deletes id together with all of its descendants.
func (w *Weave) RemoveNode(id ulid.ID) error {
	n, err := w.get(id)
	if err != nil {
		return err
	}

	removed := map[ulid.ID]struct{}{}
	stack := []ulid.ID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		removed[cur] = struct{}{}
		stack = append(stack, w.nodes[cur].children...)
	}

	if n.parent.IsNil() {
		w.roots = deleteID(w.roots, id)
		if w.activeRoot == id {
			w.activeRoot = ulid.Nil
		}
	} else {
		p := w.nodes[n.parent]
		p.children = deleteID(p.children, id)
		if p.active == id {
			p.active = ulid.Nil
		}
	}

	for rid := range removed {
		delete(w.nodes, rid)
	}
	gone := func(id ulid.ID) bool {
		_, ok := removed[id]
		return ok
	}
	w.order = slices.DeleteFunc(w.order, gone)
	w.bookmarks = slices.DeleteFunc(w.bookmarks, gone)
	return nil
}

// SetNodeActiveStatus makes id its parent's active child, or the active
// root when id is a root. Deactivating clears the selection only if it
// currently points at id.
func (w *Weave) SetNodeActiveStatus(id ulid.ID, active bool) error {
	n, err := w.get(id)
	if err != nil {
		return err
	}
	slot := &w.activeRoot
	if !n.parent.IsNil() {
		slot = &w.nodes[n.parent].active
	}
	switch {
	case active:
		*slot = id
	case *slot == id:
		*slot = ulid.Nil
	}
	return nil
}

// SetNodeBookmarkedStatus sets or clears the bookmark on id. Setting moves
// id to the end of the bookmark list even if it was already bookmarked.
func (w *Weave) SetNodeBookmarkedStatus(id ulid.ID, bookmarked bool) error {
	n, err := w.get(id)
	if err != nil {
		return err
	}
	w.bookmarks = deleteID(w.bookmarks, id)
	if bookmarked {
		w.bookmarks = append(w.bookmarks, id)
	}
	n.bookmarked = bookmarked
	return nil
}

// SetActiveContent merges params into the active inner fragment of id, the
// last inner fragment of its content. Existing keys keep their position.
// A node without an inner fragment gains one holding params. Empty params
// change nothing.
func (w *Weave) SetActiveContent(id ulid.ID, params Params) error {
	n, err := w.get(id)
	if err != nil {
		return err
	}
	if len(params) == 0 {
		return nil
	}
	for i := len(n.content) - 1; i >= 0; i-- {
		if n.content[i].Type != FragmentInner {
			continue
		}
		merged := n.content[i].Inner.Params.Clone()
		merged.Merge(params)
		n.content[i] = Fragment{Type: FragmentInner, Inner: &InnerFragment{Params: merged}}
		return nil
	}
	var fresh Params
	fresh.Merge(params)
	n.content = append(n.content, Fragment{Type: FragmentInner, Inner: &InnerFragment{Params: fresh}})
	return nil
}

// SplitNode moves fragments [k:] of id into a new child. The child inherits
// id's children and active child; id is left with the child as its only,
// active, child. It returns the new child's id. k must satisfy
// 1 <= k < len(content).
func (w *Weave) SplitNode(id ulid.ID, k int) (ulid.ID, error) {
	n, err := w.get(id)
	if err != nil {
		return ulid.Nil, err
	}
	if k < 1 || k >= len(n.content) {
		return ulid.Nil, Errorf(KindIndexOutOfRange, "split index %d outside [1, %d) for node %s", k, len(n.content), id)
	}

	child := &node{
		id:       w.newID(),
		parent:   id,
		children: n.children,
		active:   n.active,
		content:  slices.Clone(n.content[k:]),
	}
	for _, c := range child.children {
		w.nodes[c].parent = child.id
	}
	n.content = slices.Clone(n.content[:k])
	n.children = []ulid.ID{child.id}
	n.active = child.id

	w.nodes[child.id] = child
	w.order = append(w.order, child.id)
	return child.id, nil
}

// IsNodeMergeableWithParent reports whether id has a parent whose only
// child is id.
func (w *Weave) IsNodeMergeableWithParent(id ulid.ID) (bool, error) {
	n, err := w.get(id)
	if err != nil {
		return false, err
	}
	if n.parent.IsNil() {
		return false, nil
	}
	return len(w.nodes[n.parent].children) == 1, nil
}

// MergeNodeWithParent appends id's content to its parent, hands id's
// children and active child to the parent and deletes id. It is the inverse
// of SplitNode.
func (w *Weave) MergeNodeWithParent(id ulid.ID) error {
	n, err := w.get(id)
	if err != nil {
		return err
	}
	if n.parent.IsNil() {
		return Errorf(KindIllegalMerge, "node %s is a root", id)
	}
	p := w.nodes[n.parent]
	if len(p.children) != 1 {
		return Errorf(KindIllegalMerge, "parent %s of node %s has %d children", p.id, id, len(p.children))
	}

	p.content = append(slices.Clone(p.content), n.content...)
	p.children = n.children
	for _, c := range p.children {
		w.nodes[c].parent = p.id
	}
	if p.active == id {
		p.active = n.active
	} else {
		p.active = ulid.Nil
	}

	delete(w.nodes, id)
	w.order = deleteID(w.order, id)
	if n.bookmarked {
		w.bookmarks = deleteID(w.bookmarks, id)
	}
	return nil
}

// Equal reports whether both weaves hold the same nodes, links, content
// and orderings. The ID generator is not compared.
func (w *Weave) Equal(other *Weave) bool {
	if w.Len() != other.Len() ||
		w.activeRoot != other.activeRoot ||
		!idsEqual(w.order, other.order) ||
		!idsEqual(w.roots, other.roots) ||
		!idsEqual(w.bookmarks, other.bookmarks) {
		return false
	}
	for id, n := range w.nodes {
		o, ok := other.nodes[id]
		if !ok || !n.equal(o) {
			return false
		}
	}
	return true
}

func checkContent(c Content, kind ErrorKind) error {
	for i, f := range c {
		if !f.Valid() {
			return Errorf(kind, "fragment %d has type %q with mismatched payload", i, f.Type)
		}
	}
	return nil
}

func deleteID(ids []ulid.ID, id ulid.ID) []ulid.ID {
	return slices.DeleteFunc(ids, func(x ulid.ID) bool { return x == id })
}
