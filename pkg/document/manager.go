package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nstogner/tapestry/pkg/compact"
	"github.com/nstogner/tapestry/pkg/shard"
	"github.com/nstogner/tapestry/pkg/store"
	"github.com/nstogner/tapestry/pkg/ulid"
	"github.com/nstogner/tapestry/pkg/weave"
)

// ErrNotOpen is returned by operations that need an open document.
var ErrNotOpen = errors.New("document not open")

// EventKind classifies manager events.
type EventKind string

const (
	EventChanged EventKind = "changed"
	EventSaved   EventKind = "saved"
	EventClosed  EventKind = "closed"
	EventDeleted EventKind = "deleted"
)

// Event reports something that happened to a document.
type Event struct {
	Kind   EventKind
	Weave  ulid.ID
	Origin uint64
	Length int
}

// Manager is the registry of open documents.
type Manager struct {
	store store.DocumentStore
	docs  *shard.Map[ulid.ID, *Document]

	subs      *shard.Map[uint64, chan Event]
	nextSub   atomic.Uint64
	mu        sync.RWMutex
	stopped   bool
	eventChan chan Event
}

// NewManager returns a manager backed by st and starts its broadcast loop.
// Call Stop to release it.
func NewManager(st store.DocumentStore) *Manager {
	m := &Manager{
		store:     st,
		docs:      shard.NewIDMap[*Document](),
		subs:      shard.NewUint64Map[chan Event](),
		eventChan: make(chan Event, 100),
	}
	go m.broadcastLoop()
	return m
}

// Stop ends the broadcast loop and closes every subscription channel.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.stopped {
		m.stopped = true
		close(m.eventChan)
	}
}

func (m *Manager) broadcastLoop() {
	for ev := range m.eventChan {
		m.subs.Range(func(_ uint64, ch chan Event) bool {
			// Non-blocking send
			select {
			case ch <- ev:
			default:
			}
			return true
		})
	}
	var ids []uint64
	m.subs.Range(func(id uint64, _ chan Event) bool {
		ids = append(ids, id)
		return true
	})
	for _, id := range ids {
		m.Unsubscribe(id)
	}
}

// Subscribe registers for events. The returned id is also the origin a
// subscriber passes to Document.Handle.
func (m *Manager) Subscribe() (uint64, <-chan Event) {
	id := m.nextSub.Add(1)
	ch := make(chan Event, 10)
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		close(ch)
		return id, ch
	}
	m.subs.Set(id, ch)
	return id, ch
}

// Unsubscribe removes a subscription and closes its channel. Broadcasts
// send under the shard read lock, so a deleted channel is never sent to.
func (m *Manager) Unsubscribe(id uint64) {
	if ch, ok := m.subs.Delete(id); ok {
		close(ch)
	}
}

func (m *Manager) publish(ev Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.stopped {
		return
	}
	select {
	case m.eventChan <- ev:
	default:
	}
}

// Get returns an already open document.
func (m *Manager) Get(id ulid.ID) (*Document, bool) {
	return m.docs.Get(id)
}

// Documents returns the open documents in no particular order.
func (m *Manager) Documents() []*Document {
	var docs []*Document
	m.docs.Range(func(_ ulid.ID, doc *Document) bool {
		docs = append(docs, doc)
		return true
	})
	return docs
}

// Create persists a new empty weave and opens it.
func (m *Manager) Create(ctx context.Context, name string) (*Document, error) {
	return m.add(ctx, name, weave.New())
}

// Import validates CompactWeave bytes, stores them as a new document and
// opens it.
func (m *Manager) Import(ctx context.Context, name string, data []byte) (*Document, error) {
	w, err := compact.Decode(data)
	if err != nil {
		return nil, err
	}
	return m.add(ctx, name, w)
}

func (m *Manager) add(ctx context.Context, name string, w *weave.Weave) (*Document, error) {
	rec := &store.Record{ID: ulid.Make(), Name: name}
	if err := m.store.Create(ctx, rec, compact.Encode(w)); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	doc := &Document{id: rec.ID, name: rec.Name, mgr: m, w: w}
	m.docs.Set(rec.ID, doc)
	slog.Info("Created weave", "id", rec.ID, "name", name, "nodes", w.Len())
	return doc, nil
}

// Open returns the open document with the given id, loading it from the
// store if needed.
func (m *Manager) Open(ctx context.Context, id ulid.ID) (*Document, error) {
	doc, loaded, err := m.docs.GetOrCreate(id, func() (*Document, error) {
		rec, data, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		w, err := compact.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode document %s: %w", id, err)
		}
		return &Document{id: id, name: rec.Name, mgr: m, w: w}, nil
	})
	if err != nil {
		return nil, err
	}
	if !loaded {
		slog.Info("Opened weave", "id", id)
	}
	return doc, nil
}

// Save encodes an open document and stores it as a new revision. The dirty
// flag is cleared only when the store accepts the bytes.
func (m *Manager) Save(ctx context.Context, id ulid.ID) (*store.Revision, error) {
	doc, ok := m.docs.Get(id)
	if !ok {
		return nil, fmt.Errorf("save %s: %w", id, ErrNotOpen)
	}

	doc.mu.Lock()
	data := compact.Encode(doc.w)
	rev, err := m.store.Save(ctx, id, data)
	if err == nil {
		doc.dirty = false
	}
	length := doc.w.Len()
	doc.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("save %s: %w", id, err)
	}
	m.publish(Event{Kind: EventSaved, Weave: id, Length: length})
	return rev, nil
}

// Close forgets an open document. Unsaved changes are discarded.
func (m *Manager) Close(id ulid.ID) error {
	doc, ok := m.docs.Delete(id)
	if !ok {
		return fmt.Errorf("close %s: %w", id, ErrNotOpen)
	}
	if doc.close() {
		slog.Warn("Closing weave with unsaved changes", "id", id)
	}
	m.publish(Event{Kind: EventClosed, Weave: id})
	return nil
}

// List returns the stored documents.
func (m *Manager) List(ctx context.Context) ([]store.Record, error) {
	return m.store.List(ctx)
}

// Revisions returns a stored document's revisions, newest first.
func (m *Manager) Revisions(ctx context.Context, id ulid.ID) ([]store.Revision, error) {
	return m.store.Revisions(ctx, id)
}

// Delete closes and removes a document.
func (m *Manager) Delete(ctx context.Context, id ulid.ID) error {
	if doc, ok := m.docs.Delete(id); ok {
		doc.close()
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}
	m.publish(Event{Kind: EventDeleted, Weave: id})
	slog.Info("Deleted weave", "id", id)
	return nil
}
