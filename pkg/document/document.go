// Package document keeps weaves open in memory on behalf of a host, routes
// protocol frames to them and persists them through a store.DocumentStore.
package document

import (
	"sync"

	"github.com/nstogner/tapestry/pkg/compact"
	"github.com/nstogner/tapestry/pkg/protocol"
	"github.com/nstogner/tapestry/pkg/ulid"
	"github.com/nstogner/tapestry/pkg/weave"
)

// Document is an open weave. All access to the weave goes through the
// document's mutex, so there is exactly one mutator at a time.
type Document struct {
	id   ulid.ID
	name string
	mgr  *Manager

	mu    sync.Mutex
	w     *weave.Weave
	dirty bool
	// closed refuses frames once the manager has forgotten the document.
	closed bool
}

// Summary is a read-only overview of a document.
type Summary struct {
	ID           ulid.ID   `json:"id"`
	Name         string    `json:"name"`
	Length       int       `json:"length"`
	Roots        []ulid.ID `json:"roots"`
	Bookmarks    []ulid.ID `json:"bookmarks"`
	ActiveThread []ulid.ID `json:"active_thread"`
	Changed      bool      `json:"changed"`
}

func (d *Document) ID() ulid.ID  { return d.id }
func (d *Document) Name() string { return d.name }

// Changed reports whether the weave has unsaved mutations.
func (d *Document) Changed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dirty
}

// Handle applies one request frame and returns the response frames.
// origin identifies the caller's subscription so that it can skip its own
// change events; zero means none.
func (d *Document) Handle(origin uint64, frame []byte) [][]byte {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		return [][]byte{protocol.EncodeResponse(protocol.ErrorResponse(err))}
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return [][]byte{protocol.EncodeResponse(protocol.ClosedResponse(req))}
	}
	resp, dirty := protocol.Apply(d.w, d.dirty, req)
	d.dirty = dirty
	length := d.w.Len()
	d.mu.Unlock()

	if resp.OK && req.Mutates() {
		d.mgr.publish(Event{Kind: EventChanged, Weave: d.id, Origin: origin, Length: length})
	}
	return [][]byte{protocol.EncodeResponse(resp)}
}

// Closed reports whether the document has been closed or deleted.
func (d *Document) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// close marks the document closed and reports whether it had unsaved
// changes.
func (d *Document) close() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return d.dirty
}

// Summary returns the current overview.
func (d *Document) Summary() Summary {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Summary{
		ID:           d.id,
		Name:         d.name,
		Length:       d.w.Len(),
		Roots:        d.w.Roots(),
		Bookmarks:    d.w.Bookmarks(),
		ActiveThread: d.w.ActiveThread(),
		Changed:      d.dirty,
	}
}

// Export encodes the current weave, saved or not.
func (d *Document) Export() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return compact.Encode(d.w)
}
