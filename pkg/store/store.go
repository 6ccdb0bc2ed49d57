package store

import (
	"context"
	"errors"
	"time"

	"github.com/nstogner/tapestry/pkg/ulid"
)

// ErrNotFound is returned when a document or revision does not exist.
var ErrNotFound = errors.New("not found")

// Record describes a stored weave document.
type Record struct {
	ID        ulid.ID   `json:"id"`
	Name      string    `json:"name"`
	Size      int       `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Revision is one saved snapshot of a document.
type Revision struct {
	ID         string    `json:"id"`
	DocumentID ulid.ID   `json:"document_id"`
	Size       int       `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
}

// DocumentStore persists CompactWeave documents. Stores treat the document
// bytes as opaque.
type DocumentStore interface {
	// Create persists a new document. rec.ID must be set by the caller;
	// timestamps and size are filled in by the store.
	Create(ctx context.Context, rec *Record, data []byte) error

	// Get returns a document's record and current bytes.
	// Returns ErrNotFound if the document does not exist.
	Get(ctx context.Context, id ulid.ID) (*Record, []byte, error)

	// Save replaces a document's bytes and appends a revision.
	Save(ctx context.Context, id ulid.ID, data []byte) (*Revision, error)

	// List returns all documents, most recently updated first.
	List(ctx context.Context) ([]Record, error)

	// Delete removes a document and its revisions.
	Delete(ctx context.Context, id ulid.ID) error

	// Revisions returns a document's revisions, newest first.
	Revisions(ctx context.Context, id ulid.ID) ([]Revision, error)

	// Revision returns the bytes of one revision.
	Revision(ctx context.Context, id ulid.ID, revisionID string) ([]byte, error)

	Close() error
}
