package main

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/tapestry/pkg/ulid"
	"github.com/nstogner/tapestry/pkg/weave"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	idStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	bookmarkStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	paramStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

const previewLen = 48

// renderTree draws the forest, marking the active thread and bookmarks.
func renderTree(w *weave.Weave, title string) string {
	active := make(map[ulid.ID]bool)
	for _, id := range w.ActiveThread() {
		active[id] = true
	}

	header := titleStyle.Render(fmt.Sprintf("%s  %d nodes  %d bookmarks", title, w.Len(), len(w.Bookmarks())))
	lines := []string{header}
	for _, root := range w.Roots() {
		lines = renderNode(w, root, "", true, active, lines)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderNode(w *weave.Weave, id ulid.ID, indent string, last bool, active map[ulid.ID]bool, lines []string) []string {
	n, ok := w.Node(id)
	if !ok {
		return lines
	}

	branch := "├─ "
	next := indent + "│  "
	if last {
		branch = "└─ "
		next = indent + "   "
	}

	label := preview(n.Content)
	if active[id] {
		label = activeStyle.Render(label)
	}
	if n.Bookmarked {
		label += " " + bookmarkStyle.Render("★")
	}
	lines = append(lines, indent+branch+idStyle.Render(id.String())+" "+label)

	for i, c := range n.Children {
		lines = renderNode(w, c, next, i == len(n.Children)-1, active, lines)
	}
	return lines
}

// preview summarises content on one line.
func preview(c weave.Content) string {
	var b strings.Builder
	for _, f := range c {
		switch f.Type {
		case weave.FragmentLiteral:
			b.WriteString(string(f.Literal.Data))
		case weave.FragmentInner:
			b.WriteString(paramStyle.Render(fmt.Sprintf("{%s}", strings.Join(f.Inner.Params.Keys(), ","))))
		}
	}
	s := strings.Join(strings.Fields(b.String()), " ")
	if utf8.RuneCountInString(s) > previewLen {
		r := []rune(s)
		s = string(r[:previewLen]) + "…"
	}
	if s == "" {
		s = "(empty)"
	}
	return s
}

// threadText concatenates the literal fragments along the active thread.
func threadText(w *weave.Weave) string {
	var b strings.Builder
	for _, id := range w.ActiveThread() {
		n, _ := w.Node(id)
		for _, f := range n.Content {
			if f.Type == weave.FragmentLiteral {
				b.Write(f.Literal.Data)
			}
		}
	}
	return b.String()
}
