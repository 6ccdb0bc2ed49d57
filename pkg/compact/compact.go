// Package compact implements CompactWeave, the stable binary serialization
// of a weave.
//
// Layout (all integers big-endian):
//
//	"TPWV" u16:version u16:flags
//	u32:nodeCount node*
//	u32:rootCount id*
//	u32:bookmarkCount id*
//	u8:present [id]            active root
//
//	node     = id u8:present [id] u32:n id* u8:present [id] u8:bookmarked
//	           u32:n (str str)* u32:n fragment*
//	fragment = u8:0 u32:n (str str)*   inner
//	         | u8:1 u64:n byte*        literal
//	str      = u32:n byte*
//
// Nodes are written in creation order, so decoding reproduces every
// ordering of the source weave.
package compact

import (
	"bytes"
	"encoding/binary"

	"github.com/nstogner/tapestry/pkg/ulid"
	"github.com/nstogner/tapestry/pkg/weave"
)

// Magic identifies a CompactWeave document.
const Magic = "TPWV"

// Version is the format version written by Encode.
const Version uint16 = 0

const headerSize = len(Magic) + 4

const (
	tagInner   byte = 0
	tagLiteral byte = 1
)

// Encode serializes w.
func Encode(w *weave.Weave) []byte {
	e := &encoder{}
	e.buf.WriteString(Magic)
	e.u16(Version)
	e.u16(0)

	nodes := w.Nodes()
	e.u32(uint32(len(nodes)))
	for _, n := range nodes {
		e.node(n)
	}
	e.ids(w.Roots())
	e.ids(w.Bookmarks())
	root, ok := w.ActiveRoot()
	e.optID(root, ok)
	return e.buf.Bytes()
}

// IsCompactWeave reports whether data starts with the CompactWeave magic.
func IsCompactWeave(data []byte) bool {
	return bytes.HasPrefix(data, []byte(Magic))
}

type encoder struct {
	buf bytes.Buffer
}

func (e *encoder) u8(v byte) { e.buf.WriteByte(v) }

func (e *encoder) u16(v uint16) {
	e.buf.Write(binary.BigEndian.AppendUint16(nil, v))
}

func (e *encoder) u32(v uint32) {
	e.buf.Write(binary.BigEndian.AppendUint32(nil, v))
}

func (e *encoder) u64(v uint64) {
	e.buf.Write(binary.BigEndian.AppendUint64(nil, v))
}

func (e *encoder) flag(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *encoder) id(id ulid.ID) { e.buf.Write(id[:]) }

func (e *encoder) optID(id ulid.ID, ok bool) {
	e.flag(ok)
	if ok {
		e.id(id)
	}
}

func (e *encoder) ptrID(p *ulid.ID) {
	if p == nil {
		e.optID(ulid.Nil, false)
		return
	}
	e.optID(*p, true)
}

func (e *encoder) ids(ids []ulid.ID) {
	e.u32(uint32(len(ids)))
	for _, id := range ids {
		e.id(id)
	}
}

func (e *encoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf.WriteString(s)
}

func (e *encoder) params(p weave.Params) {
	e.u32(uint32(len(p)))
	for _, kv := range p {
		e.str(kv.Key)
		e.str(kv.Value)
	}
}

func (e *encoder) node(n weave.Node) {
	e.id(n.ID)
	e.ptrID(n.Parent)
	e.ids(n.Children)
	e.ptrID(n.ActiveChild)
	e.flag(n.Bookmarked)
	e.params(n.Metadata)
	e.u32(uint32(len(n.Content)))
	for _, f := range n.Content {
		switch f.Type {
		case weave.FragmentInner:
			e.u8(tagInner)
			e.params(f.Inner.Params)
		case weave.FragmentLiteral:
			e.u8(tagLiteral)
			e.u64(uint64(len(f.Literal.Data)))
			e.buf.Write(f.Literal.Data)
		}
	}
}
