package main

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/docopt/docopt-go"
	"github.com/gorilla/websocket"

	"github.com/nstogner/tapestry/pkg/compact"
	"github.com/nstogner/tapestry/pkg/protocol"
	"github.com/nstogner/tapestry/pkg/ulid"
	"github.com/nstogner/tapestry/pkg/weave"
)

const WeaveCtlVersion = "0.1.0"

func main() {
	usage := `Weave control.

Usage:
    weavectl new <file>
    weavectl add <file> <text> [--parent=<id>] [--bookmark]
    weavectl inspect <file>
    weavectl thread <file> [--markdown]
    weavectl call <addr> <weave_id> <request_json> [--timeout=<seconds>]

Options:
    -h --help              Show this screen.
    --version              Show version.
    --parent=<id>          Parent node id; omitted adds a root.
    --bookmark             Bookmark the new node.
    --markdown             Render the thread as markdown.
    --timeout=<seconds>    Seconds to wait for the response [default: 10].`

	opts, err := docopt.ParseArgs(usage, os.Args[1:], WeaveCtlVersion)
	if err != nil {
		fail(err)
	}

	if new_, _ := opts.Bool("new"); new_ {
		err = newWeave(opts)
	} else if add_, _ := opts.Bool("add"); add_ {
		err = addNode(opts)
	} else if inspect_, _ := opts.Bool("inspect"); inspect_ {
		err = inspect(opts)
	} else if thread_, _ := opts.Bool("thread"); thread_ {
		err = thread(opts)
	} else if call_, _ := opts.Bool("call"); call_ {
		err = call(opts)
	}
	if err != nil {
		fail(err)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
	os.Exit(1)
}

func readWeave(path string) (*weave.Weave, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return compact.Decode(data)
}

func writeWeave(path string, w *weave.Weave) error {
	return os.WriteFile(path, compact.Encode(w), 0644)
}

func newWeave(opts docopt.Opts) error {
	path, _ := opts.String("<file>")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}
	return writeWeave(path, weave.New())
}

func addNode(opts docopt.Opts) error {
	path, _ := opts.String("<file>")
	text, _ := opts.String("<text>")
	bookmark, _ := opts.Bool("--bookmark")

	w, err := readWeave(path)
	if err != nil {
		return err
	}
	dep := weave.DependentNode{Content: weave.Content{weave.Text(text)}, Bookmarked: bookmark}
	if p, _ := opts.String("--parent"); p != "" {
		parent, err := ulid.Parse(p)
		if err != nil {
			return fmt.Errorf("invalid --parent: %w", err)
		}
		dep.Parent = &parent
	}
	id, err := w.AddNode(dep)
	if err != nil {
		return err
	}
	if err := writeWeave(path, w); err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func inspect(opts docopt.Opts) error {
	path, _ := opts.String("<file>")
	w, err := readWeave(path)
	if err != nil {
		return err
	}
	fmt.Println(renderTree(w, path))
	return nil
}

func thread(opts docopt.Opts) error {
	path, _ := opts.String("<file>")
	markdown, _ := opts.Bool("--markdown")

	w, err := readWeave(path)
	if err != nil {
		return err
	}
	text := threadText(w)
	if !markdown {
		fmt.Print(text)
		return nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)
	if err != nil {
		return err
	}
	out, err := r.Render(text)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

// call sends one request frame to a running server and prints the response.
func call(opts docopt.Opts) error {
	addr, _ := opts.String("<addr>")
	weaveID, _ := opts.String("<weave_id>")
	body, _ := opts.String("<request_json>")
	timeout, err := opts.Int("--timeout")
	if err != nil {
		return fmt.Errorf("invalid --timeout: %w", err)
	}

	id, err := ulid.Parse(weaveID)
	if err != nil {
		return fmt.Errorf("invalid weave id: %w", err)
	}
	if _, err := protocol.DecodeRequest([]byte(body)); err != nil {
		return err
	}

	u := url.URL{Scheme: "ws", Host: addr, Path: "/api/weaves/" + id.String() + "/socket"}
	ws, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer ws.Close()

	if err := ws.WriteMessage(websocket.TextMessage, []byte(body)); err != nil {
		return err
	}
	ws.SetReadDeadline(time.Now().Add(time.Duration(timeout) * time.Second))
	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		resp, err := protocol.DecodeResponse(msg)
		if err != nil {
			return err
		}
		// Skip change notifications from other connections.
		if resp.Type == protocol.TypeChanged {
			continue
		}
		fmt.Println(string(msg))
		if !resp.OK {
			return resp.Error.Err()
		}
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		return nil
	}
}
