package compact

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nstogner/tapestry/pkg/ulid"
	"github.com/nstogner/tapestry/pkg/weave"
)

func newWeave() *weave.Weave {
	return weave.New(weave.WithGenerator(ulid.NewGenerator(rand.New(rand.NewSource(7)))))
}

func TestEmptyRoundTrip(t *testing.T) {
	data := Encode(newWeave())

	wantPrefix := []byte{0x54, 0x50, 0x57, 0x56, 0x00, 0x00}
	if !bytes.HasPrefix(data, wantPrefix) {
		t.Fatalf("header = % x, want prefix % x", data[:6], wantPrefix)
	}
	if !IsCompactWeave(data) {
		t.Error("IsCompactWeave = false")
	}

	w, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if w.Len() != 0 || len(w.Roots()) != 0 || len(w.Bookmarks()) != 0 {
		t.Errorf("decoded weave not empty: len=%d roots=%v bookmarks=%v", w.Len(), w.Roots(), w.Bookmarks())
	}
	if _, ok := w.ActiveRoot(); ok {
		t.Error("decoded weave has an active root")
	}
}

func buildSample(t *testing.T) *weave.Weave {
	t.Helper()
	w := newWeave()
	add := func(parent *ulid.ID, d weave.DependentNode) ulid.ID {
		d.Parent = parent
		id, err := w.AddNode(d)
		if err != nil {
			t.Fatal(err)
		}
		return id
	}

	r1 := add(nil, weave.DependentNode{
		Content:  weave.Content{weave.Inner(weave.Param{Key: "model", Value: "base"}, weave.Param{Key: "temperature", Value: "1.0"})},
		Metadata: weave.Params{{Key: "z", Value: "last"}, {Key: "a", Value: "first"}},
	})
	r2 := add(nil, weave.DependentNode{Content: weave.Content{weave.Text("second root")}})
	c1 := add(&r1, weave.DependentNode{Content: weave.Content{weave.Text("once upon"), weave.Text(" a time"), weave.Literal([]byte{0, 0xff, 0x10})}})
	c2 := add(&r1, weave.DependentNode{Content: weave.Content{weave.Text("")}, Bookmarked: true})
	gc := add(&c1, weave.DependentNode{Content: weave.Content{weave.Text("héllo ✓")}})
	add(&r2, weave.DependentNode{})

	for _, id := range []ulid.ID{r1, c1, gc} {
		if err := w.SetNodeActiveStatus(id, true); err != nil {
			t.Fatal(err)
		}
	}
	w.SetNodeBookmarkedStatus(r2, true)
	w.SetNodeBookmarkedStatus(c2, true) // moves behind r2
	if _, err := w.SplitNode(c1, 1); err != nil {
		t.Fatal(err)
	}
	return w
}

func TestRoundTrip(t *testing.T) {
	w := buildSample(t)
	data := Encode(w)

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(w) {
		t.Error("decoded weave differs from source")
	}
	if diff := cmp.Diff(w.Nodes(), got.Nodes()); diff != "" {
		t.Errorf("nodes (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(w.ActiveThread(), got.ActiveThread()); diff != "" {
		t.Errorf("active thread (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(w.Bookmarks(), got.Bookmarks()); diff != "" {
		t.Errorf("bookmarks (-want +got):\n%s", diff)
	}

	// Encoding is deterministic.
	if !bytes.Equal(Encode(got), data) {
		t.Error("re-encoding the decoded weave produced different bytes")
	}
}

func TestRoundTripAfterRandomEdits(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	w := newWeave()
	var ids []ulid.ID
	for i := 0; i < 300; i++ {
		d := weave.DependentNode{Content: weave.Content{weave.Text("x"), weave.Text("y")}}
		if len(ids) > 0 && rng.Intn(5) > 0 {
			p := ids[rng.Intn(len(ids))]
			d.Parent = &p
		}
		id, err := w.AddNode(d)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
		switch rng.Intn(4) {
		case 0:
			w.SetNodeActiveStatus(id, true)
		case 1:
			w.SetNodeBookmarkedStatus(ids[rng.Intn(len(ids))], rng.Intn(2) == 0)
		case 2:
			if child, err := w.SplitNode(id, 1); err == nil {
				ids = append(ids, child)
			}
		}
	}

	got, err := Decode(Encode(w))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !got.Equal(w) {
		t.Error("decoded weave differs from source")
	}
}

func TestDecodeTruncated(t *testing.T) {
	data := Encode(buildSample(t))
	for n := 0; n < len(data); n++ {
		if _, err := Decode(data[:n]); !errors.Is(err, weave.ErrCorruptDocument) {
			t.Fatalf("Decode(data[:%d]) err = %v, want CorruptDocument", n, err)
		}
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	good := Encode(newWeave())

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad magic", func(b []byte) []byte { b[0] = 'X'; return b }},
		{"future version", func(b []byte) []byte { b[5] = 1; return b }},
		{"flags set", func(b []byte) []byte { b[7] = 1; return b }},
		{"trailing bytes", func(b []byte) []byte { return append(b, 0) }},
		{"bad presence byte", func(b []byte) []byte { b[len(b)-1] = 2; return b }},
		{"huge node count", func(b []byte) []byte { b[8], b[9] = 0xff, 0xff; return b }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := tc.mutate(bytes.Clone(good))
			if _, err := Decode(data); !errors.Is(err, weave.ErrCorruptDocument) {
				t.Errorf("err = %v, want CorruptDocument", err)
			}
		})
	}
}

// craft writes a document from raw parts, bypassing the weave so that
// inconsistent graphs can be produced.
func craft(nodes []weave.Node, roots, bookmarks []ulid.ID, activeRoot *ulid.ID) []byte {
	e := &encoder{}
	e.buf.WriteString(Magic)
	e.u16(Version)
	e.u16(0)
	e.u32(uint32(len(nodes)))
	for _, n := range nodes {
		e.node(n)
	}
	e.ids(roots)
	e.ids(bookmarks)
	e.ptrID(activeRoot)
	return e.buf.Bytes()
}

func TestDecodeInvariantViolations(t *testing.T) {
	a, b, c := ulid.Make(), ulid.Make(), ulid.Make()
	nilID := ulid.Nil

	tests := []struct {
		name      string
		nodes     []weave.Node
		roots     []ulid.ID
		bookmarks []ulid.ID
		active    *ulid.ID
	}{
		{
			name:  "dangling parent",
			nodes: []weave.Node{{ID: a, Parent: &b}},
		},
		{
			name:  "child not listed by parent",
			nodes: []weave.Node{{ID: a}, {ID: b, Parent: &a}},
			roots: []ulid.ID{a},
		},
		{
			name:  "root missing from roots",
			nodes: []weave.Node{{ID: a}},
		},
		{
			name:      "bookmark without flag",
			nodes:     []weave.Node{{ID: a}},
			roots:     []ulid.ID{a},
			bookmarks: []ulid.ID{a},
		},
		{
			name:  "flag without bookmark",
			nodes: []weave.Node{{ID: a, Bookmarked: true}},
			roots: []ulid.ID{a},
		},
		{
			name:  "active child not a child",
			nodes: []weave.Node{{ID: a, ActiveChild: &b}, {ID: b}},
			roots: []ulid.ID{a, b},
		},
		{
			name:   "active root not a root",
			nodes:  []weave.Node{{ID: a, Children: []ulid.ID{b}}, {ID: b, Parent: &a}},
			roots:  []ulid.ID{a},
			active: &b,
		},
		{
			name: "cycle",
			nodes: []weave.Node{
				{ID: a, Parent: &c, Children: []ulid.ID{b}},
				{ID: b, Parent: &a, Children: []ulid.ID{c}},
				{ID: c, Parent: &b, Children: []ulid.ID{a}},
			},
		},
		{
			name:  "duplicate id",
			nodes: []weave.Node{{ID: a}, {ID: a}},
			roots: []ulid.ID{a},
		},
		{
			name:  "nil parent marked present",
			nodes: []weave.Node{{ID: a, Parent: &nilID}},
			roots: []ulid.ID{a},
		},
		{
			name:  "nil active child marked present",
			nodes: []weave.Node{{ID: a, ActiveChild: &nilID}},
			roots: []ulid.ID{a},
		},
		{
			name:   "nil active root marked present",
			nodes:  []weave.Node{{ID: a}},
			roots:  []ulid.ID{a},
			active: &nilID,
		},
		{
			name:  "duplicate root",
			nodes: []weave.Node{{ID: a}, {ID: b}},
			roots: []ulid.ID{a, a},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			data := craft(tc.nodes, tc.roots, tc.bookmarks, tc.active)
			if _, err := Decode(data); !errors.Is(err, weave.ErrInvariantViolation) {
				t.Errorf("err = %v, want InvariantViolation", err)
			}
		})
	}
}

func TestDecodeUnknownFragmentTag(t *testing.T) {
	id := ulid.Make()
	data := craft([]weave.Node{{ID: id, Content: weave.Content{weave.Text("x")}}}, []ulid.ID{id}, nil, nil)
	// The literal tag sits after id(16) parent(1) children(4) active(1)
	// bookmarked(1) metadata(4) contentCount(4) within the node record.
	off := headerSize + 4 + 16 + 1 + 4 + 1 + 1 + 4 + 4
	if data[off] != tagLiteral {
		t.Fatalf("byte at %d = %d, want literal tag", off, data[off])
	}
	data[off] = 9
	if _, err := Decode(data); !errors.Is(err, weave.ErrCorruptDocument) {
		t.Errorf("err = %v, want CorruptDocument", err)
	}
}
