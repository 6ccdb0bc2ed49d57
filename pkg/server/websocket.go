package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nstogner/tapestry/pkg/document"
	"github.com/nstogner/tapestry/pkg/protocol"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleWeaveSocket carries protocol frames for one weave. Every text frame
// read is one request; its responses are written back in order. Mutations
// made through other connections are announced with Changed events, and the
// socket is closed when the weave is closed or deleted.
func (s *Server) handleWeaveSocket(w http.ResponseWriter, r *http.Request) {
	doc, ok := s.openDocument(w, r)
	if !ok {
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade websocket", "error", err)
		return
	}
	defer ws.Close()

	sub, updates := s.manager.Subscribe()
	defer s.manager.Unsubscribe(sub)

	// Channel to signal connection close
	done := make(chan struct{})
	// Responses from the reader loop; gorilla allows one writer at a time.
	out := make(chan [][]byte, 16)

	// Closed when the writer gives up, so the reader never blocks on out.
	writerDone := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(1)

	// Writer Loop
	go func() {
		defer wg.Done()
		defer close(writerDone)
		defer ws.Close()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case frames := <-out:
				for _, f := range frames {
					if err := write(ws, websocket.TextMessage, f); err != nil {
						slog.Error("WebSocket write error", "error", err)
						return
					}
				}
			case ev, ok := <-updates:
				if !ok {
					return
				}
				if ev.Weave != doc.ID() {
					continue
				}
				if ev.Kind == document.EventClosed || ev.Kind == document.EventDeleted {
					msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "weave "+string(ev.Kind))
					write(ws, websocket.CloseMessage, msg)
					return
				}
				if ev.Kind != document.EventChanged || ev.Origin == sub {
					continue
				}
				b, _ := json.Marshal(protocol.Event{Type: protocol.TypeChanged, Weave: ev.Weave, Length: ev.Length})
				if err := write(ws, websocket.TextMessage, b); err != nil {
					slog.Error("WebSocket write error", "error", err)
					return
				}
			case <-ticker.C:
				if err := write(ws, websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader Loop
	for {
		mt, frame, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("WebSocket read error", "error", err)
			}
			break
		}
		if mt != websocket.TextMessage {
			continue
		}
		select {
		case out <- doc.Handle(sub, frame):
		case <-writerDone:
		}
	}

	close(done)
	wg.Wait()
}

func write(ws *websocket.Conn, mt int, data []byte) error {
	ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return ws.WriteMessage(mt, data)
}
