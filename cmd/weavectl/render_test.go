package main

import (
	"strings"
	"testing"

	"github.com/nstogner/tapestry/pkg/ulid"
	"github.com/nstogner/tapestry/pkg/weave"
)

func TestThreadText(t *testing.T) {
	w := weave.New()
	r, err := w.AddNode(weave.DependentNode{Content: weave.Content{weave.Text("Once "), weave.Inner(weave.Param{Key: "model", Value: "m"})}})
	if err != nil {
		t.Fatal(err)
	}
	c, err := w.AddNode(weave.DependentNode{Parent: &r, Content: weave.Content{weave.Text("upon a time")}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.AddNode(weave.DependentNode{Parent: &r, Content: weave.Content{weave.Text("inactive")}}); err != nil {
		t.Fatal(err)
	}

	if got := threadText(w); got != "" {
		t.Errorf("threadText with no active root = %q, want empty", got)
	}

	for _, id := range []ulid.ID{r, c} {
		if err := w.SetNodeActiveStatus(id, true); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := threadText(w), "Once upon a time"; got != want {
		t.Errorf("threadText = %q, want %q", got, want)
	}
}

func TestRenderTree(t *testing.T) {
	w := weave.New()
	r, _ := w.AddNode(weave.DependentNode{Content: weave.Content{weave.Text("root\nline")}, Bookmarked: true})
	w.AddNode(weave.DependentNode{Parent: &r, Content: weave.Content{weave.Text(strings.Repeat("x", 100))}})
	w.AddNode(weave.DependentNode{Parent: &r})

	out := renderTree(w, "test.tapestry")
	for _, want := range []string{"test.tapestry", "3 nodes", "root line", "★", "…", "(empty)", r.String()} {
		if !strings.Contains(out, want) {
			t.Errorf("tree missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("x", 100)) {
		t.Error("long content not truncated")
	}
}
