package protocol

import (
	"encoding/json"
	"errors"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nstogner/tapestry/pkg/ulid"
	"github.com/nstogner/tapestry/pkg/weave"
)

// session drives Handle the way a socket host would: one frame at a time,
// threading the dirty flag through.
type session struct {
	t     *testing.T
	w     *weave.Weave
	dirty bool
}

func newSession(t *testing.T) *session {
	return &session{
		t: t,
		w: weave.New(weave.WithGenerator(ulid.NewGenerator(rand.New(rand.NewSource(9))))),
	}
}

func (s *session) send(req Request) Response {
	s.t.Helper()
	frame, err := EncodeRequest(req)
	if err != nil {
		s.t.Fatalf("EncodeRequest: %v", err)
	}
	return s.sendRaw(frame)
}

func (s *session) sendRaw(frame []byte) Response {
	s.t.Helper()
	out, dirty := Handle(s.w, s.dirty, frame)
	s.dirty = dirty
	if len(out) != 1 {
		s.t.Fatalf("got %d response frames, want 1", len(out))
	}
	resp, err := DecodeResponse(out[0])
	if err != nil {
		s.t.Fatal(err)
	}
	return resp
}

func (s *session) ok(req Request, v any) {
	s.t.Helper()
	resp := s.send(req)
	if !resp.OK {
		s.t.Fatalf("%s failed: %+v", req.Type, resp.Error)
	}
	if err := resp.Decode(v); err != nil {
		s.t.Fatalf("%s decode: %v", req.Type, err)
	}
}

func (s *session) add(parent *ulid.ID, content ...weave.Fragment) ulid.ID {
	s.t.Helper()
	var id ulid.ID
	s.ok(Request{Type: TypeAddNode, Dependent: &weave.DependentNode{Parent: parent, Content: content}}, &id)
	return id
}

func boolPtr(b bool) *bool { return &b }
func intPtr(i int) *int    { return &i }
func idPtr(id ulid.ID) *ulid.ID {
	return &id
}

func TestScenario(t *testing.T) {
	s := newSession(t)

	var changed bool
	s.ok(Request{Type: TypeIsChanged}, &changed)
	if changed {
		t.Fatal("fresh weave reports changed")
	}

	r := s.add(nil, weave.Text("a"))
	c := s.add(&r, weave.Text("hello"), weave.Text("world"))
	if !s.dirty {
		t.Fatal("AddNode did not raise the dirty flag")
	}

	var roots []ulid.ID
	s.ok(Request{Type: TypeGetRoots}, &roots)
	if diff := cmp.Diff([]ulid.ID{r}, roots); diff != "" {
		t.Errorf("roots (-want +got):\n%s", diff)
	}

	var thread []ulid.ID
	s.ok(Request{Type: TypeGetActiveThread}, &thread)
	if len(thread) != 0 {
		t.Errorf("thread = %v, want empty", thread)
	}

	s.ok(Request{Type: TypeSetNodeActiveStatus, Node: &r, Active: boolPtr(true)}, nil)
	s.ok(Request{Type: TypeSetNodeActiveStatus, Node: &c, Active: boolPtr(true)}, nil)
	s.ok(Request{Type: TypeGetActiveThread}, &thread)
	if diff := cmp.Diff([]ulid.ID{r, c}, thread); diff != "" {
		t.Errorf("thread (-want +got):\n%s", diff)
	}

	var child ulid.ID
	s.ok(Request{Type: TypeSplitNode, Node: &c, Index: intPtr(1)}, &child)
	s.ok(Request{Type: TypeGetActiveThread}, &thread)
	if diff := cmp.Diff([]ulid.ID{r, c, child}, thread); diff != "" {
		t.Errorf("thread after split (-want +got):\n%s", diff)
	}

	var node weave.Node
	s.ok(Request{Type: TypeGetNode, Node: &child}, &node)
	if diff := cmp.Diff(weave.Content{weave.Text("world")}, node.Content); diff != "" {
		t.Errorf("split content (-want +got):\n%s", diff)
	}

	var mergeable bool
	s.ok(Request{Type: TypeIsNodeMergeableWithParent, Node: &child}, &mergeable)
	if !mergeable {
		t.Error("split child not mergeable")
	}
	s.ok(Request{Type: TypeMergeNodeWithParent, Node: &child}, nil)

	var length int
	s.ok(Request{Type: TypeGetLength}, &length)
	if length != 2 {
		t.Errorf("length = %d, want 2", length)
	}

	s.ok(Request{Type: TypeSetNodeBookmarkedStatus, Node: &c, Bookmarked: boolPtr(true)}, nil)
	s.ok(Request{Type: TypeSetNodeBookmarkedStatus, Node: &r, Bookmarked: boolPtr(true)}, nil)
	var marks []ulid.ID
	s.ok(Request{Type: TypeGetBookmarks}, &marks)
	if diff := cmp.Diff([]ulid.ID{c, r}, marks); diff != "" {
		t.Errorf("bookmarks (-want +got):\n%s", diff)
	}

	s.ok(Request{Type: TypeSetActiveContent, Node: &c, Params: weave.Params{{Key: "model", Value: "m"}}}, nil)
	s.ok(Request{Type: TypeGetNode, Node: &c}, &node)
	if got := node.Content[len(node.Content)-1]; got.Type != weave.FragmentInner {
		t.Errorf("last fragment type = %q, want inner", got.Type)
	}

	var results []NodeResult
	missingID := ulid.Make()
	s.ok(Request{Type: TypeGetNodes, Nodes: []ulid.ID{r, missingID}}, &results)
	if len(results) != 2 || results[0].Node == nil || results[1].Error == nil || results[1].Error.Kind != weave.KindUnknownNode {
		t.Errorf("GetNodes results = %+v", results)
	}

	s.ok(Request{Type: TypeRemoveNode, Node: &r}, nil)
	s.ok(Request{Type: TypeGetLength}, &length)
	if length != 0 {
		t.Errorf("length after remove = %d, want 0", length)
	}

	s.ok(Request{Type: TypeIsChanged}, &changed)
	if !changed {
		t.Error("IsChanged = false after mutations")
	}
	// IsChanged does not reset the flag.
	s.ok(Request{Type: TypeIsChanged}, &changed)
	if !changed {
		t.Error("IsChanged reset the flag")
	}
}

func TestStructuralErrors(t *testing.T) {
	s := newSession(t)
	r := s.add(nil, weave.Text("only"))
	s.dirty = false
	ghost := ulid.Make()

	tests := []struct {
		name string
		req  Request
		kind weave.ErrorKind
	}{
		{"unknown node", Request{Type: TypeGetNode, Node: &ghost}, weave.KindUnknownNode},
		{"remove unknown", Request{Type: TypeRemoveNode, Node: &ghost}, weave.KindUnknownNode},
		{"split out of range", Request{Type: TypeSplitNode, Node: &r, Index: intPtr(1)}, weave.KindIndexOutOfRange},
		{"merge root", Request{Type: TypeMergeNodeWithParent, Node: &r}, weave.KindIllegalMerge},
		{"add under unknown", Request{Type: TypeAddNode, Dependent: &weave.DependentNode{Parent: idPtr(ghost)}}, weave.KindUnknownNode},
		{"missing node", Request{Type: TypeRemoveNode}, weave.KindMalformedFrame},
		{"missing flag", Request{Type: TypeSetNodeActiveStatus, Node: &r}, weave.KindMalformedFrame},
		{"missing index", Request{Type: TypeSplitNode, Node: &r}, weave.KindMalformedFrame},
		{"missing dependent", Request{Type: TypeAddNode}, weave.KindMalformedFrame},
		{"unknown type", Request{Type: "Frobnicate"}, weave.KindMalformedFrame},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s.t = t
			resp := s.send(Request{ID: "req-1", Type: tc.req.Type, Node: tc.req.Node, Index: tc.req.Index, Dependent: tc.req.Dependent})
			if resp.OK || resp.Error == nil {
				t.Fatalf("expected error response, got %+v", resp)
			}
			if resp.Error.Kind != tc.kind {
				t.Errorf("kind = %s, want %s", resp.Error.Kind, tc.kind)
			}
			if resp.ID != "req-1" {
				t.Errorf("correlation id = %q, want req-1", resp.ID)
			}
			if !errors.Is(resp.Decode(nil), &weave.Error{Kind: tc.kind}) {
				t.Errorf("Decode did not surface %s", tc.kind)
			}
			if s.dirty {
				t.Error("failed request raised the dirty flag")
			}
		})
	}
	if s.w.Len() != 1 {
		t.Errorf("failed requests changed the weave: len = %d", s.w.Len())
	}
}

func TestMalformedFrames(t *testing.T) {
	s := newSession(t)
	for _, frame := range []string{
		``,
		`not json`,
		`{"type":"GetLength"} {"type":"GetLength"}`,
		`{"type":"GetLength"}]`,
		`{"type":"GetLength"}}`,
		`{}`,
		`{"type":"GetNode","node":"nope"}`,
		`{"type":"GetLength","surprise":1}`,
	} {
		resp := s.sendRaw([]byte(frame))
		if resp.OK || resp.Error == nil || resp.Error.Kind != weave.KindMalformedFrame {
			t.Errorf("frame %q: response = %+v, want MalformedFrame", frame, resp)
		}
		if resp.Type != TypeError {
			t.Errorf("frame %q: type = %q, want %q", frame, resp.Type, TypeError)
		}
	}
	if s.dirty {
		t.Error("malformed frames raised the dirty flag")
	}
}

func TestWireFormat(t *testing.T) {
	s := newSession(t)
	frame := []byte(`{"id":"7","type":"AddNode","dependent":{"content":[{"type":"literal","literal":{"data":"aGk="}},{"type":"inner","inner":{"params":[{"key":"k","value":"v"}]}}]}}`)
	resp := s.sendRaw(frame)
	if !resp.OK {
		t.Fatalf("AddNode failed: %+v", resp.Error)
	}
	var id ulid.ID
	if err := json.Unmarshal(resp.Value, &id); err != nil {
		t.Fatalf("value %s is not an id: %v", resp.Value, err)
	}
	n, ok := s.w.Node(id)
	if !ok {
		t.Fatal("node not created")
	}
	want := weave.Content{weave.Text("hi"), weave.Inner(weave.Param{Key: "k", Value: "v"})}
	if diff := cmp.Diff(want, n.Content); diff != "" {
		t.Errorf("content (-want +got):\n%s", diff)
	}
}

func TestSetActiveContentWithoutParams(t *testing.T) {
	s := newSession(t)
	id := s.add(nil, weave.Text("plain"))
	s.dirty = false

	s.ok(Request{Type: TypeSetActiveContent, Node: &id}, nil)
	if s.dirty {
		t.Error("empty params raised the dirty flag")
	}
	var n weave.Node
	s.ok(Request{Type: TypeGetNode, Node: &id}, &n)
	if diff := cmp.Diff(weave.Content{weave.Text("plain")}, n.Content); diff != "" {
		t.Errorf("content (-want +got):\n%s", diff)
	}
	if (Request{Type: TypeSetActiveContent, Node: &id}).Mutates() {
		t.Error("Mutates() = true for empty params")
	}
}
