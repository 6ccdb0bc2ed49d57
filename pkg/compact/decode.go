package compact

import (
	"encoding/binary"

	"github.com/nstogner/tapestry/pkg/ulid"
	"github.com/nstogner/tapestry/pkg/weave"
)

// Decode parses a CompactWeave document. Malformed bytes yield a
// CorruptDocument error; a well-formed document describing an inconsistent
// graph yields InvariantViolation. No weave is returned on error.
func Decode(data []byte, opts ...weave.Option) (*weave.Weave, error) {
	d := &decoder{data: data}
	if err := d.header(); err != nil {
		return nil, err
	}

	count, err := d.count(minNodeSize)
	if err != nil {
		return nil, err
	}
	nodes := make([]weave.Node, 0, count)
	for i := 0; i < count; i++ {
		n, err := d.node()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	roots, err := d.ids()
	if err != nil {
		return nil, err
	}
	bookmarks, err := d.ids()
	if err != nil {
		return nil, err
	}
	activeRoot, err := d.optID()
	if err != nil {
		return nil, err
	}
	if d.off != len(d.data) {
		return nil, corrupt("%d trailing bytes", len(d.data)-d.off)
	}
	return weave.Restore(nodes, roots, bookmarks, activeRoot, opts...)
}

// Smallest possible encoded node: id, two absent options, empty child,
// metadata and content lists, bookmark flag.
const minNodeSize = ulid.Size + 1 + 4 + 1 + 1 + 4 + 4

func corrupt(format string, args ...any) error {
	return weave.Errorf(weave.KindCorruptDocument, format, args...)
}

type decoder struct {
	data []byte
	off  int
}

func (d *decoder) remaining() int { return len(d.data) - d.off }

func (d *decoder) take(n int) ([]byte, error) {
	if n < 0 || n > d.remaining() {
		return nil, corrupt("truncated at offset %d: need %d bytes, have %d", d.off, n, d.remaining())
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) header() error {
	b, err := d.take(headerSize)
	if err != nil {
		return corrupt("missing header")
	}
	if string(b[:len(Magic)]) != Magic {
		return corrupt("bad magic %q", b[:len(Magic)])
	}
	if v := binary.BigEndian.Uint16(b[4:6]); v != Version {
		return corrupt("unsupported version %d", v)
	}
	if f := binary.BigEndian.Uint16(b[6:8]); f != 0 {
		return corrupt("unsupported flags %#04x", f)
	}
	return nil
}

func (d *decoder) u8() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) u32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (d *decoder) u64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (d *decoder) flag() (bool, error) {
	b, err := d.u8()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, corrupt("invalid flag byte %d at offset %d", b, d.off-1)
}

// count reads a u32 length and rejects it if that many elements of at least
// elemSize bytes cannot fit in the remaining input.
func (d *decoder) count(elemSize int) (int, error) {
	n, err := d.u32()
	if err != nil {
		return 0, err
	}
	if uint64(n)*uint64(elemSize) > uint64(d.remaining()) {
		return 0, corrupt("length %d at offset %d exceeds input", n, d.off-4)
	}
	return int(n), nil
}

func (d *decoder) id() (ulid.ID, error) {
	b, err := d.take(ulid.Size)
	if err != nil {
		return ulid.Nil, err
	}
	return ulid.ID(b), nil
}

func (d *decoder) optID() (*ulid.ID, error) {
	present, err := d.flag()
	if err != nil || !present {
		return nil, err
	}
	id, err := d.id()
	if err != nil {
		return nil, err
	}
	if id == ulid.Nil {
		return nil, weave.Errorf(weave.KindInvariantViolation, "present id at offset %d is nil", d.off-ulid.Size)
	}
	return &id, nil
}

func (d *decoder) ids() ([]ulid.ID, error) {
	n, err := d.count(ulid.Size)
	if err != nil {
		return nil, err
	}
	out := make([]ulid.ID, n)
	for i := range out {
		if out[i], err = d.id(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (d *decoder) str() (string, error) {
	n, err := d.count(1)
	if err != nil {
		return "", err
	}
	b, err := d.take(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) params() (weave.Params, error) {
	n, err := d.count(8)
	if err != nil {
		return nil, err
	}
	var out weave.Params
	for i := 0; i < n; i++ {
		k, err := d.str()
		if err != nil {
			return nil, err
		}
		v, err := d.str()
		if err != nil {
			return nil, err
		}
		out = append(out, weave.Param{Key: k, Value: v})
	}
	return out, nil
}

func (d *decoder) fragment() (weave.Fragment, error) {
	tag, err := d.u8()
	if err != nil {
		return weave.Fragment{}, err
	}
	switch tag {
	case tagInner:
		p, err := d.params()
		if err != nil {
			return weave.Fragment{}, err
		}
		return weave.Fragment{Type: weave.FragmentInner, Inner: &weave.InnerFragment{Params: p}}, nil
	case tagLiteral:
		n, err := d.u64()
		if err != nil {
			return weave.Fragment{}, err
		}
		if n > uint64(d.remaining()) {
			return weave.Fragment{}, corrupt("literal of %d bytes at offset %d exceeds input", n, d.off-8)
		}
		b, _ := d.take(int(n))
		return weave.Literal(b), nil
	}
	return weave.Fragment{}, corrupt("unknown fragment tag %d at offset %d", tag, d.off-1)
}

func (d *decoder) node() (weave.Node, error) {
	var n weave.Node
	var err error
	if n.ID, err = d.id(); err != nil {
		return n, err
	}
	if n.Parent, err = d.optID(); err != nil {
		return n, err
	}
	if n.Children, err = d.ids(); err != nil {
		return n, err
	}
	if n.ActiveChild, err = d.optID(); err != nil {
		return n, err
	}
	if n.Bookmarked, err = d.flag(); err != nil {
		return n, err
	}
	if n.Metadata, err = d.params(); err != nil {
		return n, err
	}
	count, err := d.count(1)
	if err != nil {
		return n, err
	}
	for i := 0; i < count; i++ {
		f, err := d.fragment()
		if err != nil {
			return n, err
		}
		n.Content = append(n.Content, f)
	}
	return n, nil
}
