package weave

import (
	"bytes"

	"github.com/nstogner/tapestry/pkg/ulid"
)

// Param is one key/value pair of an insertion-ordered parameter map.
type Param struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Params is a string map that preserves insertion order. Setting an existing
// key updates it in place; new keys are appended.
type Params []Param

// Get returns the value stored for key.
func (p Params) Get(key string) (string, bool) {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

// Set stores value under key.
func (p *Params) Set(key, value string) {
	for i := range *p {
		if (*p)[i].Key == key {
			(*p)[i].Value = value
			return
		}
	}
	*p = append(*p, Param{Key: key, Value: value})
}

// Merge applies every pair of other in order.
func (p *Params) Merge(other Params) {
	for _, kv := range other {
		p.Set(kv.Key, kv.Value)
	}
}

func (p Params) Keys() []string {
	keys := make([]string, len(p))
	for i, kv := range p {
		keys[i] = kv.Key
	}
	return keys
}

func (p Params) Clone() Params {
	if len(p) == 0 {
		return nil
	}
	out := make(Params, len(p))
	copy(out, p)
	return out
}

// Equal reports whether both maps hold the same pairs in the same order.
// A nil map equals an empty one.
func (p Params) Equal(other Params) bool {
	if len(p) != len(other) {
		return false
	}
	for i := range p {
		if p[i] != other[i] {
			return false
		}
	}
	return true
}

// FragmentType identifies which payload of a Fragment is set.
type FragmentType string

const (
	FragmentInner   FragmentType = "inner"
	FragmentLiteral FragmentType = "literal"
)

// Fragment is a tagged union: exactly one of Inner and Literal is non-nil,
// matching Type.
type Fragment struct {
	Type FragmentType `json:"type"`

	Inner   *InnerFragment   `json:"inner,omitempty"`
	Literal *LiteralFragment `json:"literal,omitempty"`
}

// InnerFragment carries a structured prompt or inference payload.
type InnerFragment struct {
	Params Params `json:"params"`
}

// LiteralFragment is an opaque byte run, UTF-8 text in practice.
type LiteralFragment struct {
	Data []byte `json:"data"`
}

// Inner builds an inner fragment from params.
func Inner(params ...Param) Fragment {
	return Fragment{Type: FragmentInner, Inner: &InnerFragment{Params: Params(params).Clone()}}
}

// Literal builds a literal fragment holding a copy of data.
func Literal(data []byte) Fragment {
	return Fragment{Type: FragmentLiteral, Literal: &LiteralFragment{Data: bytes.Clone(data)}}
}

// Text builds a literal fragment from a string.
func Text(s string) Fragment {
	return Literal([]byte(s))
}

// Valid reports whether the tag matches the populated payload.
func (f Fragment) Valid() bool {
	switch f.Type {
	case FragmentInner:
		return f.Inner != nil && f.Literal == nil
	case FragmentLiteral:
		return f.Literal != nil && f.Inner == nil
	}
	return false
}

func (f Fragment) Clone() Fragment {
	switch {
	case f.Inner != nil:
		return Fragment{Type: f.Type, Inner: &InnerFragment{Params: f.Inner.Params.Clone()}}
	case f.Literal != nil:
		return Fragment{Type: f.Type, Literal: &LiteralFragment{Data: bytes.Clone(f.Literal.Data)}}
	}
	return f
}

func (f Fragment) Equal(other Fragment) bool {
	if f.Type != other.Type {
		return false
	}
	switch f.Type {
	case FragmentInner:
		if f.Inner == nil || other.Inner == nil {
			return f.Inner == other.Inner
		}
		return f.Inner.Params.Equal(other.Inner.Params)
	case FragmentLiteral:
		if f.Literal == nil || other.Literal == nil {
			return f.Literal == other.Literal
		}
		return bytes.Equal(f.Literal.Data, other.Literal.Data)
	}
	return true
}

// Content is the ordered fragment sequence of a node. Fragments are the unit
// of splitting and merging.
type Content []Fragment

func (c Content) Clone() Content {
	if len(c) == 0 {
		return nil
	}
	out := make(Content, len(c))
	for i, f := range c {
		out[i] = f.Clone()
	}
	return out
}

func (c Content) Equal(other Content) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if !c[i].Equal(other[i]) {
			return false
		}
	}
	return true
}

// Node is a snapshot of one node of a weave. Mutating a snapshot has no
// effect on the weave it came from.
type Node struct {
	ID          ulid.ID   `json:"id"`
	Parent      *ulid.ID  `json:"parent,omitempty"`
	Children    []ulid.ID `json:"children"`
	ActiveChild *ulid.ID  `json:"active_child,omitempty"`
	Content     Content   `json:"content"`
	Bookmarked  bool      `json:"bookmarked"`
	Metadata    Params    `json:"metadata"`
}

// DependentNode describes a node to be added. The weave assigns its ID.
type DependentNode struct {
	// Parent is nil for a new root.
	Parent     *ulid.ID `json:"parent,omitempty"`
	Content    Content  `json:"content"`
	Metadata   Params   `json:"metadata,omitempty"`
	Bookmarked bool     `json:"bookmarked,omitempty"`
}

// node is the arena record. Parent and active child use ulid.Nil for none.
type node struct {
	id         ulid.ID
	parent     ulid.ID
	children   []ulid.ID
	active     ulid.ID
	content    Content
	bookmarked bool
	metadata   Params
}

func (n *node) snapshot() Node {
	out := Node{
		ID:         n.id,
		Children:   append([]ulid.ID{}, n.children...),
		Content:    n.content.Clone(),
		Bookmarked: n.bookmarked,
		Metadata:   n.metadata.Clone(),
	}
	if !n.parent.IsNil() {
		p := n.parent
		out.Parent = &p
	}
	if !n.active.IsNil() {
		a := n.active
		out.ActiveChild = &a
	}
	return out
}

func (n *node) equal(o *node) bool {
	return n.id == o.id &&
		n.parent == o.parent &&
		n.active == o.active &&
		n.bookmarked == o.bookmarked &&
		idsEqual(n.children, o.children) &&
		n.content.Equal(o.content) &&
		n.metadata.Equal(o.metadata)
}

func idsEqual(a, b []ulid.ID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func idOrNil(p *ulid.ID) ulid.ID {
	if p == nil {
		return ulid.Nil
	}
	return *p
}
